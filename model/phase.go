package model

import "encoding/json"

// Phase is the room-level game phase.
type Phase string

const (
	PhaseLobby Phase = "LOBBY"
	PhaseNight Phase = "NIGHT"
	PhaseDawn  Phase = "DAWN"
	PhaseDay   Phase = "DAY"
	PhaseEnded Phase = "ENDED"
)

func (p Phase) String() string {
	return string(p)
}

func (p Phase) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func PhaseFromString(s string) Phase {
	switch Phase(s) {
	case PhaseLobby, PhaseNight, PhaseDawn, PhaseDay, PhaseEnded:
		return Phase(s)
	}
	return PhaseLobby
}

// Stage is the sub-stage the pending record is collecting input for.
// The three day stages are mutually exclusive.
type Stage string

const (
	StageNight      Stage = "NIGHT"
	StageDawn       Stage = "DAWN"
	StageDiscussion Stage = "DAY_DISCUSSION"
	StageDefense    Stage = "DAY_DEFENSE"
	StageVoting     Stage = "DAY_VOTING"
)

func (s Stage) String() string {
	return string(s)
}

func (s Stage) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}
