package model

import "encoding/json"

type RoleType string

const (
	RoleVillager     RoleType = "VILLAGER"
	RoleMafia        RoleType = "MAFIA"
	RoleDoctor       RoleType = "DOCTOR"
	RoleDetective    RoleType = "DETECTIVE"
	RoleVigilante    RoleType = "VIGILANTE"
	RoleJester       RoleType = "JESTER"
	RoleBodyguard    RoleType = "BODYGUARD"
	RoleMayor        RoleType = "MAYOR"
	RoleSerialKiller RoleType = "SERIAL_KILLER"
	RoleSilencer     RoleType = "SILENCER"
	RoleWitch        RoleType = "WITCH"
	RoleNone         RoleType = "NONE"
)

type Alignment string

const (
	AlignTown    Alignment = "TOWN"
	AlignMafia   Alignment = "MAFIA"
	AlignNeutral Alignment = "NEUTRAL"
	AlignNone    Alignment = "NONE"
)

// Alignment is derived from the role type; the stored assignment keeps its
// own copy so a future role could be reassigned across factions.
func (r RoleType) Alignment() Alignment {
	switch r {
	case RoleMafia, RoleSilencer:
		return AlignMafia
	case RoleVillager, RoleDoctor, RoleDetective, RoleVigilante, RoleBodyguard, RoleMayor:
		return AlignTown
	case RoleJester, RoleSerialKiller, RoleWitch:
		return AlignNeutral
	}
	return AlignNone
}

// NightAction returns the action type this role is prompted for at night,
// or ActionNone for roles that sleep through it.
func (r RoleType) NightAction() ActionType {
	switch r {
	case RoleMafia, RoleVigilante, RoleSerialKiller:
		return ActionKill
	case RoleDoctor, RoleBodyguard:
		return ActionProtect
	case RoleDetective:
		return ActionInvestigate
	case RoleSilencer, RoleWitch:
		return ActionBlock
	}
	return ActionNone
}

func (r RoleType) ActsAtNight() bool {
	return r.NightAction() != ActionNone
}

func (r RoleType) String() string {
	return string(r)
}

func (r RoleType) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func RoleTypeFromString(s string) RoleType {
	switch RoleType(s) {
	case RoleVillager, RoleMafia, RoleDoctor, RoleDetective, RoleVigilante,
		RoleJester, RoleBodyguard, RoleMayor, RoleSerialKiller, RoleSilencer, RoleWitch:
		return RoleType(s)
	}
	return RoleNone
}

func AlignmentFromString(s string) Alignment {
	switch Alignment(s) {
	case AlignTown, AlignMafia, AlignNeutral:
		return Alignment(s)
	}
	return AlignNone
}

// RoleAssignment binds a player to a role for one game instance.
type RoleAssignment struct {
	PlayerID  string    `json:"playerId"`
	RoleType  RoleType  `json:"roleType"`
	Alignment Alignment `json:"alignment"`
	Revealed  bool      `json:"revealed"`
}

type ActionType string

const (
	ActionKill        ActionType = "KILL"
	ActionProtect     ActionType = "PROTECT"
	ActionInvestigate ActionType = "INVESTIGATE"
	ActionBlock       ActionType = "BLOCK"
	ActionNone        ActionType = "NONE"
)

func ActionTypeFromString(s string) ActionType {
	switch ActionType(s) {
	case ActionKill, ActionProtect, ActionInvestigate, ActionBlock:
		return ActionType(s)
	}
	return ActionNone
}

type VoteValue string

const (
	VoteLynch   VoteValue = "LYNCH"
	VoteNoLynch VoteValue = "NO_LYNCH"
)

func VoteValueFromString(s string) (VoteValue, bool) {
	switch VoteValue(s) {
	case VoteLynch, VoteNoLynch:
		return VoteValue(s), true
	}
	return "", false
}
