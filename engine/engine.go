// Package engine holds the pure resolution rules for night actions, day
// votes and the win condition. Functions here perform no I/O, retain no
// state between calls, and are deterministic for a given snapshot: ties
// are resolved by documented rule, never by map iteration order.
package engine

import "github.com/mafiadial/mafia-night-server/model"

// RoleState is one player's immutable view inside a snapshot.
type RoleState struct {
	RoleType  model.RoleType
	Alignment model.Alignment
	Alive     bool
	Revealed  bool
}

// Snapshot is the frozen room state a resolution runs against. Callers
// must not mutate it while a resolve call is in flight; the engine never
// writes to it.
type Snapshot struct {
	Roles     map[string]RoleState
	Settings  model.Settings
	Phase     model.Phase
	DayNumber int
}

func (s Snapshot) alive(id string) bool {
	r, ok := s.Roles[id]
	return ok && r.Alive
}

func (s Snapshot) roleType(id string) model.RoleType {
	if r, ok := s.Roles[id]; ok {
		return r.RoleType
	}
	return model.RoleNone
}

// Action is one deduplicated night submission, already last-write-wins
// per actor. Order matters only for log output; resolution outcomes are
// order-independent within each step.
type Action struct {
	Actor  string
	Type   model.ActionType
	Target string
}

// Vote is one deduplicated day vote.
type Vote struct {
	Voter   string
	Nominee string
	Value   model.VoteValue
}

// RejectReason enumerates why a submitted action was refused. Rejections
// never abort the batch.
type RejectReason string

const (
	ReasonActorDead        RejectReason = "ACTOR_DEAD"
	ReasonActorBlocked     RejectReason = "ACTOR_BLOCKED"
	ReasonIllegalRole      RejectReason = "ILLEGAL_ROLE"
	ReasonInvalidTarget    RejectReason = "INVALID_TARGET"
	ReasonSelfHealDisabled RejectReason = "SELF_HEAL_DISABLED"
	ReasonWrongPhase       RejectReason = "WRONG_PHASE"
)

// Rejection identifies one refused action and the actor to report it to.
type Rejection struct {
	Actor  string
	Action model.ActionType
	Reason RejectReason
}

// Investigation is one resolved detective result.
type Investigation struct {
	Actor   string
	Target  string
	IsMafia bool
}

// LogEntry is one narrative line produced by a resolution.
type LogEntry struct {
	Message string
	Meta    map[string]any
}

// Result is the outcome of one resolution pass. Unresolved is set only
// by day resolution under the revote tie policy; the orchestrator must
// then apply its documented fallback instead of guessing a winner.
type Result struct {
	NextPhase      model.Phase
	Deaths         []string
	Protected      []string
	Investigations []Investigation
	Rejections     []Rejection
	Log            []LogEntry
	Unresolved     bool
}

// topOfTally returns the key holding the strictly highest count and that
// count. A tie at the top yields ok=false: two or more keys share the
// maximum, so no unique winner exists.
func topOfTally(tally map[string]int) (string, int, bool) {
	max := 0
	for _, n := range tally {
		if n > max {
			max = n
		}
	}
	if max == 0 {
		return "", 0, false
	}
	var top string
	count := 0
	for key, n := range tally {
		if n == max {
			top = key
			count++
		}
	}
	if count != 1 {
		return "", max, false
	}
	return top, max, true
}
