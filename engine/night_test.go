package engine

import (
	"slices"
	"testing"

	"github.com/mafiadial/mafia-night-server/model"
)

func alive(rt model.RoleType) RoleState {
	return RoleState{RoleType: rt, Alignment: rt.Alignment(), Alive: true}
}

func dead(rt model.RoleType) RoleState {
	return RoleState{RoleType: rt, Alignment: rt.Alignment()}
}

func nightSnapshot(roles map[string]RoleState) Snapshot {
	return Snapshot{
		Roles:     roles,
		Settings:  model.DefaultSettings(),
		Phase:     model.PhaseNight,
		DayNumber: 1,
	}
}

func hasRejection(res Result, actor string, reason RejectReason) bool {
	for _, r := range res.Rejections {
		if r.Actor == actor && r.Reason == reason {
			return true
		}
	}
	return false
}

func TestNightStandardScenario(t *testing.T) {
	t.Log("night: mafia kills the detective, doctor protects a villager, detective investigates the mafia")
	roles := map[string]RoleState{
		"mafia":     alive(model.RoleMafia),
		"doctor":    alive(model.RoleDoctor),
		"detective": alive(model.RoleDetective),
		"v1":        alive(model.RoleVillager),
		"v2":        alive(model.RoleVillager),
		"v3":        alive(model.RoleVillager),
	}
	snap := nightSnapshot(roles)
	res := ResolveNight(snap, []Action{
		{Actor: "mafia", Type: model.ActionKill, Target: "detective"},
		{Actor: "doctor", Type: model.ActionProtect, Target: "v1"},
		{Actor: "detective", Type: model.ActionInvestigate, Target: "mafia"},
	})
	if len(res.Deaths) != 1 || res.Deaths[0] != "detective" {
		t.Fatalf("expected exactly the detective to die, got %v", res.Deaths)
	}
	if len(res.Investigations) != 1 || !res.Investigations[0].IsMafia {
		t.Fatalf("expected one isMafia=true investigation, got %v", res.Investigations)
	}
	if res.NextPhase != model.PhaseDawn {
		t.Errorf("expected next phase DAWN, got %s", res.NextPhase)
	}
	rolesAfter := map[string]RoleState{}
	for id, r := range roles {
		if slices.Contains(res.Deaths, id) {
			r.Alive = false
		}
		rolesAfter[id] = r
	}
	if winner, ended := CheckWin(rolesAfter); ended {
		t.Errorf("expected no winner with 1 mafia and 4 town alive, got %s", winner)
	}
}

func TestNightBlockResolvesFirst(t *testing.T) {
	t.Log("night: a blocked actor's action is rejected even when submitted before the block")
	roles := map[string]RoleState{
		"witch":     alive(model.RoleWitch),
		"detective": alive(model.RoleDetective),
		"v1":        alive(model.RoleVillager),
		"mafia":     alive(model.RoleMafia),
	}
	res := ResolveNight(nightSnapshot(roles), []Action{
		{Actor: "detective", Type: model.ActionInvestigate, Target: "mafia"},
		{Actor: "witch", Type: model.ActionBlock, Target: "detective"},
	})
	if len(res.Investigations) != 0 {
		t.Fatalf("blocked detective must not investigate, got %v", res.Investigations)
	}
	if !hasRejection(res, "detective", ReasonActorBlocked) {
		t.Fatalf("expected ACTOR_BLOCKED rejection for detective, got %v", res.Rejections)
	}
}

func TestNightMafiaMajorityRequired(t *testing.T) {
	t.Log("night: with majority required, a split mafia vote kills nobody")
	roles := map[string]RoleState{
		"m1": alive(model.RoleMafia),
		"m2": alive(model.RoleMafia),
		"v1": alive(model.RoleVillager),
		"v2": alive(model.RoleVillager),
		"v3": alive(model.RoleVillager),
	}
	res := ResolveNight(nightSnapshot(roles), []Action{
		{Actor: "m1", Type: model.ActionKill, Target: "v1"},
		{Actor: "m2", Type: model.ActionKill, Target: "v2"},
	})
	if len(res.Deaths) != 0 {
		t.Fatalf("tie at the top must not kill, got %v", res.Deaths)
	}

	res = ResolveNight(nightSnapshot(roles), []Action{
		{Actor: "m1", Type: model.ActionKill, Target: "v1"},
		{Actor: "m2", Type: model.ActionKill, Target: "v1"},
	})
	if len(res.Deaths) != 1 || res.Deaths[0] != "v1" {
		t.Fatalf("2 of 2 mafia votes meet the threshold, got %v", res.Deaths)
	}
}

func TestNightMafiaBelowMajority(t *testing.T) {
	t.Log("night: one of three mafia voting alone stays below floor(3/2)+1")
	roles := map[string]RoleState{
		"m1": alive(model.RoleMafia),
		"m2": alive(model.RoleMafia),
		"m3": alive(model.RoleMafia),
		"v1": alive(model.RoleVillager),
		"v2": alive(model.RoleVillager),
		"v3": alive(model.RoleVillager),
		"v4": alive(model.RoleVillager),
	}
	res := ResolveNight(nightSnapshot(roles), []Action{
		{Actor: "m1", Type: model.ActionKill, Target: "v1"},
	})
	if len(res.Deaths) != 0 {
		t.Fatalf("1 of 3 mafia votes is below majority, got %v", res.Deaths)
	}
}

func TestNightMafiaMajorityNotRequired(t *testing.T) {
	t.Log("night: without the majority requirement a single mafia vote resolves")
	roles := map[string]RoleState{
		"m1": alive(model.RoleMafia),
		"m2": alive(model.RoleMafia),
		"m3": alive(model.RoleMafia),
		"v1": alive(model.RoleVillager),
	}
	snap := nightSnapshot(roles)
	snap.Settings.MafiaMajorityRequired = false
	res := ResolveNight(snap, []Action{
		{Actor: "m1", Type: model.ActionKill, Target: "v1"},
	})
	if len(res.Deaths) != 1 || res.Deaths[0] != "v1" {
		t.Fatalf("expected v1 to die on a single vote, got %v", res.Deaths)
	}
}

func TestNightProtectionPreventsKill(t *testing.T) {
	t.Log("night: the doctor's shield absorbs the mafia kill")
	roles := map[string]RoleState{
		"mafia":  alive(model.RoleMafia),
		"doctor": alive(model.RoleDoctor),
		"v1":     alive(model.RoleVillager),
	}
	res := ResolveNight(nightSnapshot(roles), []Action{
		{Actor: "doctor", Type: model.ActionProtect, Target: "v1"},
		{Actor: "mafia", Type: model.ActionKill, Target: "v1"},
	})
	if len(res.Deaths) != 0 {
		t.Fatalf("protected target must survive, got deaths %v", res.Deaths)
	}
	if !slices.Contains(res.Protected, "v1") {
		t.Fatalf("expected v1 in protected set, got %v", res.Protected)
	}
}

func TestNightSelfHeal(t *testing.T) {
	t.Log("night: doctor self-heal follows the room setting")
	roles := map[string]RoleState{
		"mafia":  alive(model.RoleMafia),
		"doctor": alive(model.RoleDoctor),
		"v1":     alive(model.RoleVillager),
	}
	snap := nightSnapshot(roles)
	snap.Settings.SelfHealAllowed = false
	res := ResolveNight(snap, []Action{
		{Actor: "doctor", Type: model.ActionProtect, Target: "doctor"},
		{Actor: "mafia", Type: model.ActionKill, Target: "doctor"},
	})
	if !hasRejection(res, "doctor", ReasonSelfHealDisabled) {
		t.Fatalf("expected SELF_HEAL_DISABLED rejection, got %v", res.Rejections)
	}
	if len(res.Deaths) != 1 || res.Deaths[0] != "doctor" {
		t.Fatalf("unprotected doctor must die, got %v", res.Deaths)
	}

	snap.Settings.SelfHealAllowed = true
	res = ResolveNight(snap, []Action{
		{Actor: "doctor", Type: model.ActionProtect, Target: "doctor"},
		{Actor: "mafia", Type: model.ActionKill, Target: "doctor"},
	})
	if len(res.Deaths) != 0 {
		t.Fatalf("self-healed doctor must survive, got %v", res.Deaths)
	}
}

func TestNightSoloKillers(t *testing.T) {
	t.Log("night: solo killers resolve immediately and independently of the mafia vote")
	roles := map[string]RoleState{
		"sk":     alive(model.RoleSerialKiller),
		"vig":    alive(model.RoleVigilante),
		"doctor": alive(model.RoleDoctor),
		"v1":     alive(model.RoleVillager),
		"v2":     alive(model.RoleVillager),
	}
	res := ResolveNight(nightSnapshot(roles), []Action{
		{Actor: "doctor", Type: model.ActionProtect, Target: "v2"},
		{Actor: "sk", Type: model.ActionKill, Target: "v1"},
		{Actor: "vig", Type: model.ActionKill, Target: "v2"},
	})
	if !slices.Contains(res.Deaths, "v1") {
		t.Errorf("serial killer target must die, got %v", res.Deaths)
	}
	if slices.Contains(res.Deaths, "v2") {
		t.Errorf("protected vigilante target must survive, got %v", res.Deaths)
	}
}

func TestNightRejectionReasons(t *testing.T) {
	t.Log("night: rejections are explicit and never abort the batch")
	roles := map[string]RoleState{
		"mafia":    alive(model.RoleMafia),
		"ghost":    dead(model.RoleDetective),
		"villager": alive(model.RoleVillager),
		"deadGuy":  dead(model.RoleVillager),
	}
	res := ResolveNight(nightSnapshot(roles), []Action{
		{Actor: "ghost", Type: model.ActionInvestigate, Target: "mafia"},
		{Actor: "villager", Type: model.ActionKill, Target: "mafia"},
		{Actor: "mafia", Type: model.ActionKill, Target: "deadGuy"},
	})
	if !hasRejection(res, "ghost", ReasonActorDead) {
		t.Errorf("expected ACTOR_DEAD for ghost, got %v", res.Rejections)
	}
	if !hasRejection(res, "villager", ReasonIllegalRole) {
		t.Errorf("expected ILLEGAL_ROLE for villager, got %v", res.Rejections)
	}
	if !hasRejection(res, "mafia", ReasonInvalidTarget) {
		t.Errorf("expected INVALID_TARGET for mafia, got %v", res.Rejections)
	}
	if len(res.Deaths) != 0 {
		t.Errorf("no action should have resolved, got deaths %v", res.Deaths)
	}
}

func TestNightWrongPhase(t *testing.T) {
	snap := nightSnapshot(map[string]RoleState{"v1": alive(model.RoleVillager)})
	snap.Phase = model.PhaseDay
	res := ResolveNight(snap, nil)
	if res.NextPhase != model.PhaseDay {
		t.Errorf("wrong-phase resolve must not advance, got %s", res.NextPhase)
	}
	if len(res.Rejections) != 1 || res.Rejections[0].Reason != ReasonWrongPhase {
		t.Errorf("expected WRONG_PHASE rejection, got %v", res.Rejections)
	}
}

func TestNightDeterministicTie(t *testing.T) {
	t.Log("night: tie outcome is stable regardless of action order")
	roles := map[string]RoleState{
		"m1": alive(model.RoleMafia),
		"m2": alive(model.RoleMafia),
		"v1": alive(model.RoleVillager),
		"v2": alive(model.RoleVillager),
		"v3": alive(model.RoleVillager),
	}
	forward := []Action{
		{Actor: "m1", Type: model.ActionKill, Target: "v1"},
		{Actor: "m2", Type: model.ActionKill, Target: "v2"},
	}
	reversed := []Action{forward[1], forward[0]}
	for range 50 {
		if got := ResolveNight(nightSnapshot(roles), forward); len(got.Deaths) != 0 {
			t.Fatalf("tie must never kill, got %v", got.Deaths)
		}
		if got := ResolveNight(nightSnapshot(roles), reversed); len(got.Deaths) != 0 {
			t.Fatalf("tie must never kill (reversed), got %v", got.Deaths)
		}
	}
}
