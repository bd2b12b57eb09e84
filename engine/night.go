package engine

import (
	"slices"

	"github.com/mafiadial/mafia-night-server/model"
)

// ResolveNight turns a room snapshot plus the deduplicated night actions
// into deaths, protections, investigation results and rejections. Steps
// run in strict order: blocks, mafia head-count, protections, kills,
// investigations. A rejected action never aborts the rest of the batch.
func ResolveNight(snap Snapshot, actions []Action) Result {
	res := Result{NextPhase: model.PhaseDawn}
	if snap.Phase != model.PhaseNight {
		res.NextPhase = snap.Phase
		res.Rejections = append(res.Rejections, Rejection{Reason: ReasonWrongPhase})
		return res
	}

	// Step 1: blocks. Blocked actors lose every later action this night,
	// even ones submitted before the block.
	blocked := make(map[string]struct{})
	for _, a := range actions {
		if a.Type != model.ActionBlock {
			continue
		}
		if !snap.alive(a.Actor) {
			res.Rejections = append(res.Rejections, Rejection{Actor: a.Actor, Action: a.Type, Reason: ReasonActorDead})
			continue
		}
		switch snap.roleType(a.Actor) {
		case model.RoleSilencer, model.RoleWitch:
		default:
			res.Rejections = append(res.Rejections, Rejection{Actor: a.Actor, Action: a.Type, Reason: ReasonIllegalRole})
			continue
		}
		if a.Target == "" || !snap.alive(a.Target) {
			res.Rejections = append(res.Rejections, Rejection{Actor: a.Actor, Action: a.Type, Reason: ReasonInvalidTarget})
			continue
		}
		blocked[a.Target] = struct{}{}
		res.Log = append(res.Log, LogEntry{Message: "A player was blocked", Meta: map[string]any{"targetId": a.Target}})
	}

	// Step 2: living mafia-aligned head-count, the denominator for kill
	// majority. Aligned non-killers (the silencer) raise the bar too.
	livingMafia := 0
	for _, r := range snap.Roles {
		if r.Alive && r.Alignment == model.AlignMafia {
			livingMafia++
		}
	}

	// Step 3: protections.
	for _, a := range actions {
		if a.Type != model.ActionProtect {
			continue
		}
		if !snap.alive(a.Actor) {
			res.Rejections = append(res.Rejections, Rejection{Actor: a.Actor, Action: a.Type, Reason: ReasonActorDead})
			continue
		}
		if _, isBlocked := blocked[a.Actor]; isBlocked {
			res.Rejections = append(res.Rejections, Rejection{Actor: a.Actor, Action: a.Type, Reason: ReasonActorBlocked})
			continue
		}
		actorRole := snap.roleType(a.Actor)
		switch actorRole {
		case model.RoleDoctor, model.RoleBodyguard, model.RoleWitch:
		default:
			res.Rejections = append(res.Rejections, Rejection{Actor: a.Actor, Action: a.Type, Reason: ReasonIllegalRole})
			continue
		}
		if a.Target == "" || !snap.alive(a.Target) {
			res.Rejections = append(res.Rejections, Rejection{Actor: a.Actor, Action: a.Type, Reason: ReasonInvalidTarget})
			continue
		}
		if actorRole == model.RoleDoctor && a.Target == a.Actor && !snap.Settings.SelfHealAllowed {
			res.Rejections = append(res.Rejections, Rejection{Actor: a.Actor, Action: a.Type, Reason: ReasonSelfHealDisabled})
			continue
		}
		res.Protected = append(res.Protected, a.Target)
	}

	// Step 4: kills. Mafia kills are tallied as votes on a target; solo
	// killer archetypes apply immediately against an unprotected target.
	mafiaKillVotes := make(map[string]int)
	died := make(map[string]struct{})
	for _, a := range actions {
		if a.Type != model.ActionKill {
			continue
		}
		if !snap.alive(a.Actor) {
			res.Rejections = append(res.Rejections, Rejection{Actor: a.Actor, Action: a.Type, Reason: ReasonActorDead})
			continue
		}
		if _, isBlocked := blocked[a.Actor]; isBlocked {
			res.Rejections = append(res.Rejections, Rejection{Actor: a.Actor, Action: a.Type, Reason: ReasonActorBlocked})
			continue
		}
		if a.Target == "" || !snap.alive(a.Target) {
			res.Rejections = append(res.Rejections, Rejection{Actor: a.Actor, Action: a.Type, Reason: ReasonInvalidTarget})
			continue
		}
		switch actorRole := snap.roleType(a.Actor); actorRole {
		case model.RoleMafia:
			mafiaKillVotes[a.Target]++
		case model.RoleVigilante, model.RoleSerialKiller, model.RoleWitch:
			if slices.Contains(res.Protected, a.Target) {
				res.Log = append(res.Log, LogEntry{Message: "A kill was prevented", Meta: map[string]any{"targetId": a.Target, "by": actorRole.String()}})
				continue
			}
			if _, dead := died[a.Target]; !dead {
				died[a.Target] = struct{}{}
				res.Deaths = append(res.Deaths, a.Target)
			}
			res.Log = append(res.Log, LogEntry{Message: "A player was killed at night", Meta: map[string]any{"targetId": a.Target, "by": actorRole.String()}})
		default:
			res.Rejections = append(res.Rejections, Rejection{Actor: a.Actor, Action: a.Type, Reason: ReasonIllegalRole})
		}
	}

	// The mafia target with strictly the most votes dies when the count
	// meets the threshold; any tie at the top means no kill.
	if livingMafia > 0 && len(mafiaKillVotes) > 0 {
		required := 1
		if snap.Settings.MafiaMajorityRequired {
			required = livingMafia/2 + 1
		}
		target, votes, ok := topOfTally(mafiaKillVotes)
		if ok && votes >= required {
			if slices.Contains(res.Protected, target) {
				res.Log = append(res.Log, LogEntry{Message: "The mafia kill was prevented", Meta: map[string]any{"targetId": target}})
			} else {
				if _, dead := died[target]; !dead {
					died[target] = struct{}{}
					res.Deaths = append(res.Deaths, target)
				}
				res.Log = append(res.Log, LogEntry{Message: "Mafia performed a kill", Meta: map[string]any{"targetId": target, "votes": votes}})
			}
		} else {
			res.Log = append(res.Log, LogEntry{Message: "Mafia did not agree on a target; no kill"})
		}
	}

	// Step 5: investigations.
	for _, a := range actions {
		if a.Type != model.ActionInvestigate {
			continue
		}
		if !snap.alive(a.Actor) {
			res.Rejections = append(res.Rejections, Rejection{Actor: a.Actor, Action: a.Type, Reason: ReasonActorDead})
			continue
		}
		if _, isBlocked := blocked[a.Actor]; isBlocked {
			res.Rejections = append(res.Rejections, Rejection{Actor: a.Actor, Action: a.Type, Reason: ReasonActorBlocked})
			continue
		}
		if snap.roleType(a.Actor) != model.RoleDetective {
			res.Rejections = append(res.Rejections, Rejection{Actor: a.Actor, Action: a.Type, Reason: ReasonIllegalRole})
			continue
		}
		if a.Target == "" || !snap.alive(a.Target) {
			res.Rejections = append(res.Rejections, Rejection{Actor: a.Actor, Action: a.Type, Reason: ReasonInvalidTarget})
			continue
		}
		res.Investigations = append(res.Investigations, Investigation{
			Actor:   a.Actor,
			Target:  a.Target,
			IsMafia: snap.Roles[a.Target].Alignment == model.AlignMafia,
		})
	}

	return res
}
