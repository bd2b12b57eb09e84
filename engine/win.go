package engine

import "github.com/mafiadial/mafia-night-server/model"

// CountAliveAlignments returns the living mafia-aligned and living
// non-mafia head-counts.
func CountAliveAlignments(roles map[string]RoleState) (mafia, others int) {
	for _, r := range roles {
		if !r.Alive {
			continue
		}
		if r.Alignment == model.AlignMafia {
			mafia++
		} else {
			others++
		}
	}
	return mafia, others
}

// CheckWin evaluates the win condition on the current alive/alignment
// state. Town wins the instant no mafia-aligned player lives; mafia wins
// when its living count strictly exceeds everyone else's. A tie does not
// end the game. Pure and idempotent; callers re-run it after every
// death-producing resolution.
func CheckWin(roles map[string]RoleState) (model.Alignment, bool) {
	mafia, others := CountAliveAlignments(roles)
	if mafia == 0 {
		return model.AlignTown, true
	}
	if mafia > others {
		return model.AlignMafia, true
	}
	return model.AlignNone, false
}
