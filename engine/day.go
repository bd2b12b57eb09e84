package engine

import "github.com/mafiadial/mafia-night-server/model"

// ResolveDay turns a room snapshot plus the deduplicated day votes into
// a lynch outcome. Only living voters count; votes for dead nominees are
// discarded. The top nominee is lynched only with strictly the most
// votes and at least a strict majority of living players. Under the
// no-lynch tie policy a tie or shortfall produces no lynch; under the
// revote policy the result is marked unresolved and the orchestrator
// must apply its fallback.
func ResolveDay(snap Snapshot, votes []Vote) Result {
	res := Result{NextPhase: model.PhaseNight}
	if snap.Phase != model.PhaseDay {
		res.NextPhase = snap.Phase
		res.Rejections = append(res.Rejections, Rejection{Reason: ReasonWrongPhase})
		return res
	}

	tally := make(map[string]int)
	noLynch := 0
	for _, v := range votes {
		if !snap.alive(v.Voter) {
			continue
		}
		if v.Value == model.VoteNoLynch {
			noLynch++
			continue
		}
		if v.Nominee != "" && snap.alive(v.Nominee) {
			tally[v.Nominee]++
		}
	}

	totalLiving := 0
	for _, r := range snap.Roles {
		if r.Alive {
			totalLiving++
		}
	}
	majority := totalLiving/2 + 1

	target, topVotes, unique := topOfTally(tally)
	switch {
	case unique && topVotes >= majority:
		res.Deaths = append(res.Deaths, target)
		res.Log = append(res.Log, LogEntry{Message: "A player was lynched", Meta: map[string]any{"targetId": target, "votes": topVotes}})
	case snap.Settings.TiePolicy == model.TiePolicyRevote && len(tally) > 0:
		// There were real nominee votes but no resolvable winner. Surface
		// that explicitly rather than picking one.
		res.Unresolved = true
		res.Log = append(res.Log, LogEntry{Message: "Vote unresolved; revote required", Meta: map[string]any{"noLynchVotes": noLynch}})
	default:
		res.Log = append(res.Log, LogEntry{Message: "No lynch", Meta: map[string]any{"noLynchVotes": noLynch}})
	}
	return res
}
