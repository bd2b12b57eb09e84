package model

import "strings"

// Player is one seat in a room. The alive flag is mutated only by the
// orchestrator applying an engine result or a reset to lobby; dead players
// remain in the roster for spectating and ghost chat.
type Player struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsHost    bool   `json:"isHost"`
	IsAlive   bool   `json:"isAlive"`
	Seat      int    `json:"seat"`
	Connected bool   `json:"connected"`
}

const (
	MinNameLength = 2
	MaxNameLength = 16
)

// CleanName trims and truncates a display name to the allowed length.
// Returns false if what remains is too short to use.
func CleanName(name string) (string, bool) {
	runes := []rune(strings.TrimSpace(name))
	if len(runes) > MaxNameLength {
		runes = runes[:MaxNameLength]
	}
	if len(runes) < MinNameLength {
		return "", false
	}
	return string(runes), true
}
