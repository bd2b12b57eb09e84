package logic

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/mafiadial/mafia-night-server/engine"
	"github.com/mafiadial/mafia-night-server/model"
)

// openDayLocked delivers the investigation results carried through dawn
// and opens the discussion stage. In timed mode discussion only ends by
// deadline or by the host advancing it; in manual mode every living
// player is expected to accuse and the stage closes once they all have.
func (r *Room) openDayLocked() {
	r.phase = model.PhaseDay
	r.epoch++
	var carried []model.Investigation
	if r.pending != nil {
		carried = r.pending.Investigations
	}
	pending := model.NewPending(model.StageDiscussion)
	if r.settings.ManualMode {
		for _, id := range r.livingIDsLocked() {
			pending.Expected[id] = struct{}{}
		}
	}
	r.pending = pending
	for _, inv := range carried {
		r.notifier.ToPlayer(inv.ActorID, model.EventInvestigation, model.InvestigationNotice{
			TargetID:   inv.TargetID,
			TargetName: r.playerNameLocked(inv.TargetID),
			IsMafia:    inv.IsMafia,
		})
	}
	r.appendLogLocked(fmt.Sprintf("Day %d begins. Discuss.", r.dayNumber), nil)
	slog.Info("day opened", "room", r.Code, "day", r.dayNumber)
	if !r.settings.ManualMode {
		r.scheduleAdvanceLocked(time.Duration(r.settings.Timers.DiscussionSeconds) * time.Second)
	}
	r.broadcastLocked()
}

// Accuse records or moves a player's accusation during discussion. An
// empty target is an explicit "no nominee" motion. In manual mode the
// first accusation is final and discussion closes the moment every
// living player has accused.
func (r *Room) Accuse(playerID, targetID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != model.PhaseDay || r.pending == nil || r.pending.Stage != model.StageDiscussion {
		return ErrWrongPhase
	}
	role, ok := r.roles[playerID]
	if !ok {
		return ErrUnknownPlayer
	}
	if !role.alive {
		return ErrNotAlive
	}
	if r.settings.ManualMode {
		if _, accused := r.pending.AccuserOf[playerID]; accused {
			return ErrAccusationFinal
		}
	}
	targetKey := model.NoNominee
	if targetID != "" {
		target, ok := r.roles[targetID]
		if !ok || !target.alive {
			return ErrInvalidTarget
		}
		targetKey = targetID
	}
	r.pending.Accuse(playerID, targetKey)
	slog.Debug("accusation recorded", "room", r.Code, "accuser", playerID, "target", targetKey)
	if r.settings.ManualMode && r.pending.AllExpectedResponded() {
		r.closeDiscussionLocked()
		return nil
	}
	r.broadcastLocked()
	return nil
}

// closeDiscussionLocked turns the accusation tallies into the nominee
// set. No accusations means an immediate no-lynch night; the top-accused
// go to defense, tied or not.
func (r *Room) closeDiscussionLocked() {
	top := r.pending.TopAccused()
	if len(top) == 0 {
		r.appendLogLocked("The town could not settle on a nominee. No lynch.", nil)
		r.notifier.ToRoom(r.Code, model.EventLynchResult, model.LynchResult{})
		r.nightfallLocked()
		return
	}
	r.nominateLocked(top)
}

// nominateLocked moves the top-accused into defense. A tie puts every
// tied nominee on the podium and, later, on the ballot.
func (r *Room) nominateLocked(top []string) {
	r.epoch++
	pending := model.NewPending(model.StageDefense)
	if len(top) == 1 {
		pending.NomineeID = top[0]
		r.appendLogLocked(fmt.Sprintf("%s stands accused and may speak in their defense.", r.playerNameLocked(top[0])), map[string]any{"nomineeId": top[0]})
	} else {
		pending.Nominees = top
		r.appendLogLocked("Accusations are tied. The accused may speak in their defense.", map[string]any{"nominees": top})
	}
	r.pending = pending
	slog.Info("nominees selected", "room", r.Code, "day", r.dayNumber, "count", len(top))
	if !r.settings.ManualMode {
		r.scheduleAdvanceLocked(time.Duration(r.settings.Timers.DefenseSeconds) * time.Second)
	}
	r.broadcastLocked()
}

// openVotingLocked opens the voting stage over the defense-stage
// nominees. Every living player is expected to vote; the stage closes
// early once they all have.
func (r *Room) openVotingLocked() {
	var nomineeID string
	var nominees []string
	if r.pending != nil {
		nomineeID = r.pending.NomineeID
		nominees = r.pending.Nominees
	}
	r.openVotingWithLocked(nomineeID, nominees, 0)
}

func (r *Room) openVotingWithLocked(nomineeID string, nominees []string, revoteRound int) {
	r.epoch++
	pending := model.NewPending(model.StageVoting)
	pending.NomineeID = nomineeID
	pending.Nominees = nominees
	pending.RevoteRound = revoteRound
	for _, id := range r.livingIDsLocked() {
		pending.Expected[id] = struct{}{}
	}
	r.pending = pending
	slog.Info("voting opened", "room", r.Code, "day", r.dayNumber, "nominee", nomineeID, "revote", revoteRound)
	if !r.settings.ManualMode {
		r.scheduleAdvanceLocked(time.Duration(r.settings.Timers.VoteSeconds) * time.Second)
	}
	r.broadcastLocked()
}

// SubmitDayVote records a lynch or no-lynch vote. Resubmitting replaces
// the earlier vote.
func (r *Room) SubmitDayVote(playerID, nomineeID, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != model.PhaseDay || r.pending == nil || r.pending.Stage != model.StageVoting {
		return ErrWrongPhase
	}
	role, ok := r.roles[playerID]
	if !ok {
		return ErrUnknownPlayer
	}
	if !role.alive {
		return ErrNotAlive
	}
	voteValue, ok := model.VoteValueFromString(value)
	if !ok {
		return ErrInvalidRequest
	}
	vote := model.PendingVote{Value: voteValue}
	if voteValue == model.VoteLynch {
		if nomineeID == "" {
			nomineeID = r.pending.NomineeID
		}
		if !r.nomineeOnBallotLocked(nomineeID) {
			return ErrInvalidTarget
		}
		vote.NomineeID = nomineeID
	}
	r.pending.Votes[playerID] = vote
	r.broadcastLocked()
	if r.pending.AllExpectedResponded() {
		r.scheduleAdvanceLocked(time.Duration(r.config.Room.FinalizeDebounceMs) * time.Millisecond)
	}
	return nil
}

func (r *Room) nomineeOnBallotLocked(nomineeID string) bool {
	if nomineeID == "" {
		return false
	}
	if r.pending.NomineeID != "" {
		return nomineeID == r.pending.NomineeID
	}
	for _, id := range r.pending.Nominees {
		if id == nomineeID {
			return true
		}
	}
	return false
}

// finalizeDayLocked resolves the vote. An unresolved revote tie gets one
// fresh ballot between the tied nominees; a second tie is a no-lynch.
func (r *Room) finalizeDayLocked() {
	if r.phase != model.PhaseDay || r.pending == nil || r.pending.Stage != model.StageVoting {
		return
	}
	r.scheduler.Cancel(r.Code)
	revoteRound := r.pending.RevoteRound

	votes := make([]engine.Vote, 0, len(r.pending.Votes))
	for _, p := range r.seatedPlayersLocked() {
		if v, ok := r.pending.Votes[p.ID]; ok {
			votes = append(votes, engine.Vote{Voter: p.ID, Nominee: v.NomineeID, Value: v.Value})
		}
	}
	res := engine.ResolveDay(r.engineSnapshotLocked(), votes)

	if res.Unresolved && revoteRound == 0 {
		tied := r.topVotedLocked()
		for _, e := range res.Log {
			r.appendLogLocked(e.Message, e.Meta)
		}
		r.openVotingWithLocked("", tied, 1)
		return
	}
	r.epoch++
	if res.Unresolved {
		r.appendLogLocked("The revote settled nothing. No lynch.", nil)
		res.Deaths = nil
	} else {
		for _, e := range res.Log {
			r.appendLogLocked(e.Message, e.Meta)
		}
	}

	result := model.LynchResult{}
	jesterLynched := false
	for _, id := range res.Deaths {
		role, ok := r.roles[id]
		if !ok {
			continue
		}
		role.alive = false
		role.revealed = true
		if p, ok := r.players[id]; ok {
			p.IsAlive = false
		}
		result = model.LynchResult{
			LynchedID:   id,
			LynchedName: r.playerNameLocked(id),
			RoleType:    role.roleType,
			Alignment:   role.alignment,
		}
		jesterLynched = role.roleType == model.RoleJester
		r.notifier.ToPlayer(id, model.EventDeathNotice, model.DeathNotice{At: model.PhaseDay, DayNumber: r.dayNumber})
	}
	r.notifier.ToRoom(r.Code, model.EventLynchResult, result)
	r.notifier.ToPublic(r.Code, model.EventLynchResult, result)
	slog.Info("day resolved", "room", r.Code, "day", r.dayNumber, "lynched", result.LynchedID)
	r.persistResolutionLocked(res.Deaths)

	if jesterLynched {
		r.appendLogLocked("The town lynched the jester. The jester laughs last.", nil)
		r.endGameLocked(model.AlignNeutral)
		return
	}
	if winner, ended := engine.CheckWin(r.engineSnapshotLocked().Roles); ended {
		r.endGameLocked(winner)
		return
	}
	r.nightfallLocked()
}

// topVotedLocked returns the nominees sharing the highest live vote
// count, for building a revote ballot.
func (r *Room) topVotedLocked() []string {
	tally, _ := r.pending.VoteTally()
	max := 0
	for _, n := range tally {
		if n > max {
			max = n
		}
	}
	if max == 0 {
		return nil
	}
	var top []string
	for _, p := range r.seatedPlayersLocked() {
		if tally[p.ID] == max {
			top = append(top, p.ID)
		}
	}
	return top
}

// nightfallLocked ends the day and opens the next night.
func (r *Room) nightfallLocked() {
	r.dayNumber++
	r.appendLogLocked("Night falls.", nil)
	r.openNightLocked()
}
