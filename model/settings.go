package model

import (
	"errors"
	"fmt"
)

type TiePolicy string

const (
	TiePolicyNoLynch TiePolicy = "NO_LYNCH"
	TiePolicyRevote  TiePolicy = "REVOTE"
)

var (
	ErrPlayerCountOutOfBounds = errors.New("player count outside configured bounds")
	ErrMafiaMajority          = errors.New("mafia count must be strictly less than half of total players")
	ErrRoleCountOverflow      = errors.New("role counts exceed number of players")
	ErrInvalidPatch           = errors.New("invalid settings patch")
)

// Timers holds every phase duration in seconds. A value applies only in
// timed mode; manual mode ignores all of them.
type Timers struct {
	NightSeconds      int `json:"nightSeconds" yaml:"night_seconds"`
	DawnSeconds       int `json:"dawnSeconds" yaml:"dawn_seconds"`
	DiscussionSeconds int `json:"discussionSeconds" yaml:"discussion_seconds"`
	DefenseSeconds    int `json:"defenseSeconds" yaml:"defense_seconds"`
	VoteSeconds       int `json:"voteSeconds" yaml:"vote_seconds"`
}

// RoleCounts configures how many of each special role are dealt at start.
// Unassigned players become villagers.
type RoleCounts struct {
	Mafia        int `json:"mafia" yaml:"mafia"`
	Doctor       int `json:"doctor" yaml:"doctor"`
	Detective    int `json:"detective" yaml:"detective"`
	Vigilante    int `json:"vigilante,omitempty" yaml:"vigilante"`
	Jester       int `json:"jester,omitempty" yaml:"jester"`
	Bodyguard    int `json:"bodyguard,omitempty" yaml:"bodyguard"`
	Mayor        int `json:"mayor,omitempty" yaml:"mayor"`
	SerialKiller int `json:"serialKiller,omitempty" yaml:"serial_killer"`
	Silencer     int `json:"silencer,omitempty" yaml:"silencer"`
	Witch        int `json:"witch,omitempty" yaml:"witch"`
}

// Special returns the number of players consumed by non-villager roles.
func (rc RoleCounts) Special() int {
	return rc.Mafia + rc.Doctor + rc.Detective + rc.Vigilante + rc.Jester +
		rc.Bodyguard + rc.Mayor + rc.SerialKiller + rc.Silencer + rc.Witch
}

// MafiaAligned returns the number of mafia-aligned seats the counts deal.
func (rc RoleCounts) MafiaAligned() int {
	return rc.Mafia + rc.Silencer
}

// Settings is the versioned per-room configuration. Version increments on
// every accepted patch so stale snapshots are detectable.
type Settings struct {
	Version                int        `json:"version"`
	MinPlayers             int        `json:"minPlayers"`
	MaxPlayers             int        `json:"maxPlayers"`
	Timers                 Timers     `json:"timers"`
	ManualMode             bool       `json:"manualMode"`
	SelfHealAllowed        bool       `json:"selfHealAllowed"`
	MafiaMajorityRequired  bool       `json:"mafiaMajorityRequired"`
	SpectatorsAllowed      bool       `json:"spectatorsAllowed"`
	DeadChatVisibleToAlive bool       `json:"deadChatVisibleToAlive"`
	LockAfterStart         bool       `json:"lockAfterStart"`
	TiePolicy              TiePolicy  `json:"tiePolicy"`
	Roles                  RoleCounts `json:"roles"`
}

func DefaultSettings() Settings {
	return Settings{
		Version:    1,
		MinPlayers: 5,
		MaxPlayers: 20,
		Timers: Timers{
			NightSeconds:      90,
			DawnSeconds:       10,
			DiscussionSeconds: 120,
			DefenseSeconds:    20,
			VoteSeconds:       30,
		},
		SelfHealAllowed:       true,
		MafiaMajorityRequired: true,
		SpectatorsAllowed:     true,
		TiePolicy:             TiePolicyNoLynch,
		Roles:                 RoleCounts{Mafia: 2, Doctor: 1, Detective: 1},
	}
}

// ValidateForStart checks the invariants that must hold before roles can
// be dealt to playerCount players.
func (s Settings) ValidateForStart(playerCount int) error {
	if playerCount < s.MinPlayers || playerCount > s.MaxPlayers {
		return fmt.Errorf("%w: %d players, want %d..%d", ErrPlayerCountOutOfBounds, playerCount, s.MinPlayers, s.MaxPlayers)
	}
	// A mafia majority at deal time would make a unique town majority
	// impossible, so mafia must stay under half.
	if s.Roles.MafiaAligned() > (playerCount-1)/2 {
		return fmt.Errorf("%w: %d mafia for %d players (max %d)", ErrMafiaMajority, s.Roles.MafiaAligned(), playerCount, (playerCount-1)/2)
	}
	if s.Roles.Special() > playerCount {
		return fmt.Errorf("%w: %d roles for %d players", ErrRoleCountOverflow, s.Roles.Special(), playerCount)
	}
	return nil
}

// SettingsPatch carries an explicit, field-by-field update. Only non-nil
// fields are applied; unknown fields are rejected at decode time by the
// transport layer.
type SettingsPatch struct {
	MinPlayers             *int        `json:"minPlayers,omitempty"`
	MaxPlayers             *int        `json:"maxPlayers,omitempty"`
	Timers                 *Timers     `json:"timers,omitempty"`
	ManualMode             *bool       `json:"manualMode,omitempty"`
	SelfHealAllowed        *bool       `json:"selfHealAllowed,omitempty"`
	MafiaMajorityRequired  *bool       `json:"mafiaMajorityRequired,omitempty"`
	SpectatorsAllowed      *bool       `json:"spectatorsAllowed,omitempty"`
	DeadChatVisibleToAlive *bool       `json:"deadChatVisibleToAlive,omitempty"`
	LockAfterStart         *bool       `json:"lockAfterStart,omitempty"`
	TiePolicy              *string     `json:"tiePolicy,omitempty"`
	Roles                  *RoleCounts `json:"roles,omitempty"`
}

// ApplyPatch validates and merges the patch, bumping the version. The
// receiver is unchanged when an error is returned.
func (s *Settings) ApplyPatch(p SettingsPatch) error {
	next := *s
	if p.MinPlayers != nil {
		if *p.MinPlayers < 3 {
			return fmt.Errorf("%w: minPlayers %d below 3", ErrInvalidPatch, *p.MinPlayers)
		}
		next.MinPlayers = *p.MinPlayers
	}
	if p.MaxPlayers != nil {
		if *p.MaxPlayers < 3 {
			return fmt.Errorf("%w: maxPlayers %d below 3", ErrInvalidPatch, *p.MaxPlayers)
		}
		next.MaxPlayers = *p.MaxPlayers
	}
	if next.MinPlayers > next.MaxPlayers {
		return fmt.Errorf("%w: minPlayers %d above maxPlayers %d", ErrInvalidPatch, next.MinPlayers, next.MaxPlayers)
	}
	if p.Timers != nil {
		t := *p.Timers
		if t.NightSeconds < 5 || t.DawnSeconds < 2 || t.DiscussionSeconds < 5 || t.DefenseSeconds < 5 || t.VoteSeconds < 5 {
			return fmt.Errorf("%w: timer below minimum", ErrInvalidPatch)
		}
		next.Timers = t
	}
	if p.ManualMode != nil {
		next.ManualMode = *p.ManualMode
	}
	if p.SelfHealAllowed != nil {
		next.SelfHealAllowed = *p.SelfHealAllowed
	}
	if p.MafiaMajorityRequired != nil {
		next.MafiaMajorityRequired = *p.MafiaMajorityRequired
	}
	if p.SpectatorsAllowed != nil {
		next.SpectatorsAllowed = *p.SpectatorsAllowed
	}
	if p.DeadChatVisibleToAlive != nil {
		next.DeadChatVisibleToAlive = *p.DeadChatVisibleToAlive
	}
	if p.LockAfterStart != nil {
		next.LockAfterStart = *p.LockAfterStart
	}
	if p.TiePolicy != nil {
		switch TiePolicy(*p.TiePolicy) {
		case TiePolicyNoLynch, TiePolicyRevote:
			next.TiePolicy = TiePolicy(*p.TiePolicy)
		default:
			return fmt.Errorf("%w: unknown tie policy %q", ErrInvalidPatch, *p.TiePolicy)
		}
	}
	if p.Roles != nil {
		rc := *p.Roles
		for _, n := range []int{rc.Mafia, rc.Doctor, rc.Detective, rc.Vigilante, rc.Jester, rc.Bodyguard, rc.Mayor, rc.SerialKiller, rc.Silencer, rc.Witch} {
			if n < 0 {
				return fmt.Errorf("%w: negative role count", ErrInvalidPatch)
			}
		}
		next.Roles = rc
	}
	next.Version = s.Version + 1
	*s = next
	return nil
}
