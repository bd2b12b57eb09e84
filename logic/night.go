package logic

import (
	"log/slog"
	"time"

	"github.com/mafiadial/mafia-night-server/engine"
	"github.com/mafiadial/mafia-night-server/model"
)

// openNightLocked replaces the pending record with a fresh night stage,
// prompts every living night actor and arms the night deadline. A night
// with no living actors resolves immediately.
func (r *Room) openNightLocked() {
	r.phase = model.PhaseNight
	r.epoch++
	r.pending = model.NewPending(model.StageNight)
	for _, id := range r.livingIDsLocked() {
		role := r.roles[id]
		if !role.roleType.ActsAtNight() {
			continue
		}
		r.pending.Expected[id] = struct{}{}
		r.notifier.ToPlayer(id, model.EventNightPrompt, r.nightPromptLocked(id, role))
	}
	slog.Info("night opened", "room", r.Code, "day", r.dayNumber, "actors", len(r.pending.Expected))
	if !r.settings.ManualMode {
		r.scheduleAdvanceLocked(time.Duration(r.settings.Timers.NightSeconds) * time.Second)
	}
	r.broadcastLocked()
	if len(r.pending.Expected) == 0 {
		r.finalizeNightLocked()
	}
}

func (r *Room) nightPromptLocked(playerID string, role *roleState) model.NightPrompt {
	action := role.roleType.NightAction()
	targets := make([]string, 0, len(r.roles))
	for _, id := range r.livingIDsLocked() {
		if id == playerID {
			// Doctors may target themselves when self-heal is on.
			if role.roleType == model.RoleDoctor && r.settings.SelfHealAllowed {
				targets = append(targets, id)
			}
			continue
		}
		if action == model.ActionKill && role.alignment == model.AlignMafia {
			if target, ok := r.roles[id]; ok && target.alignment == model.AlignMafia {
				continue
			}
		}
		targets = append(targets, id)
	}
	return model.NightPrompt{Phase: r.phase, Action: action, Targets: targets}
}

// SubmitNightAction records a night action. Resubmitting replaces the
// earlier one. When every expected actor has responded the night closes
// after a short debounce so a last-second change can still land.
func (r *Room) SubmitNightAction(playerID, actionType, targetID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase != model.PhaseNight || r.pending == nil {
		return ErrWrongPhase
	}
	role, ok := r.roles[playerID]
	if !ok {
		return ErrUnknownPlayer
	}
	if !role.alive {
		return ErrNotAlive
	}
	if _, expected := r.pending.Expected[playerID]; !expected {
		return ErrNotEligible
	}
	action := model.ActionTypeFromString(actionType)
	if action == model.ActionNone || action != role.roleType.NightAction() {
		return ErrInvalidRequest
	}
	if target, ok := r.roles[targetID]; !ok || !target.alive {
		return ErrInvalidTarget
	}
	r.pending.Actions[playerID] = model.PendingAction{Type: action, TargetID: targetID}
	slog.Debug("night action recorded", "room", r.Code, "actor", playerID, "action", action)
	if r.pending.AllExpectedResponded() {
		r.scheduleAdvanceLocked(time.Duration(r.config.Room.FinalizeDebounceMs) * time.Millisecond)
	}
	return nil
}

// finalizeNightLocked resolves the recorded actions, applies deaths and
// either ends the game or opens the dawn window.
func (r *Room) finalizeNightLocked() {
	if r.phase != model.PhaseNight || r.pending == nil {
		return
	}
	r.scheduler.Cancel(r.Code)
	r.epoch++

	actions := make([]engine.Action, 0, len(r.pending.Actions))
	for _, p := range r.seatedPlayersLocked() {
		if a, ok := r.pending.Actions[p.ID]; ok {
			actions = append(actions, engine.Action{Actor: p.ID, Type: a.Type, Target: a.TargetID})
		}
	}
	res := engine.ResolveNight(r.engineSnapshotLocked(), actions)

	for _, rej := range res.Rejections {
		r.notifier.ToPlayer(rej.Actor, model.EventToast, model.Toast{
			Type:    "warning",
			Message: "Your night action had no effect: " + string(rej.Reason),
		})
	}
	for _, e := range res.Log {
		r.appendLogLocked(e.Message, e.Meta)
	}
	for _, id := range res.Deaths {
		if role, ok := r.roles[id]; ok {
			role.alive = false
		}
		if p, ok := r.players[id]; ok {
			p.IsAlive = false
		}
		r.notifier.ToPlayer(id, model.EventDeathNotice, model.DeathNotice{At: model.PhaseNight, DayNumber: r.dayNumber})
	}
	slog.Info("night resolved", "room", r.Code, "day", r.dayNumber, "deaths", len(res.Deaths))

	if winner, ended := engine.CheckWin(r.engineSnapshotLocked().Roles); ended {
		r.persistResolutionLocked(res.Deaths)
		r.endGameLocked(winner)
		return
	}
	// Investigation results ride the dawn pending record and are
	// delivered privately when the day opens.
	r.phase = model.PhaseDawn
	pending := model.NewPending(model.StageDawn)
	for _, inv := range res.Investigations {
		pending.Investigations = append(pending.Investigations, model.Investigation{
			ActorID:  inv.Actor,
			TargetID: inv.Target,
			IsMafia:  inv.IsMafia,
		})
	}
	r.pending = pending
	r.persistResolutionLocked(res.Deaths)
	if !r.settings.ManualMode {
		r.scheduleAdvanceLocked(time.Duration(r.settings.Timers.DawnSeconds) * time.Second)
	}
	r.broadcastLocked()
}
