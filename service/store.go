package service

import (
	"context"
	"errors"
	"time"

	"github.com/mafiadial/mafia-night-server/model"
)

// ErrRoomNotFound is returned when a room code has no stored record.
var ErrRoomNotFound = errors.New("room not found")

// RoomRecord is the durable shape of a room between restarts.
type RoomRecord struct {
	Code      string
	HostID    string
	Phase     model.Phase
	DayNumber int
	Settings  model.Settings
	Winner    model.Alignment
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PlayerRecord is one seated player's durable state.
type PlayerRecord struct {
	RoomCode string
	PlayerID string
	Name     string
	Alive    bool
	Seat     int
}

// RoleRecord is one durable role assignment row, kept separate from the
// player row because roles are cleared and redealt between games.
type RoleRecord struct {
	RoomCode string
	Alive    bool
	model.RoleAssignment
}

// Resolution bundles everything a finalized phase changes so it can be
// written in one transaction. A partially applied resolution must never
// be observable after a crash.
type Resolution struct {
	Room   RoomRecord
	Deaths []string
	Log    []model.EventLogEntry
}

// Store persists room, role and event-log state.
type Store interface {
	SaveRoom(ctx context.Context, room RoomRecord) error
	GetRoom(ctx context.Context, code string) (RoomRecord, error)
	DeleteRoom(ctx context.Context, code string) error

	SavePlayers(ctx context.Context, code string, players []PlayerRecord) error
	ListPlayers(ctx context.Context, code string) ([]PlayerRecord, error)

	SaveRoles(ctx context.Context, code string, roles []RoleRecord) error
	ListRoles(ctx context.Context, code string) ([]RoleRecord, error)

	AppendLog(ctx context.Context, code string, entries []model.EventLogEntry) error
	ListLog(ctx context.Context, code string) ([]model.EventLogEntry, error)

	// ApplyResolution writes the room record, marks the dead and appends
	// the phase log atomically.
	ApplyResolution(ctx context.Context, res Resolution) error

	// ResetRoom clears roles and log and rewrites the room record in one
	// transaction, returning the room to a playable lobby.
	ResetRoom(ctx context.Context, room RoomRecord) error

	Close() error
}
