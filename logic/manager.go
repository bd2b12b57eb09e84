package logic

import (
	"context"
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/mafiadial/mafia-night-server/model"
	"github.com/mafiadial/mafia-night-server/service"
	"github.com/mafiadial/mafia-night-server/util"
)

// Manager owns the live room registry. Rooms are keyed by their join
// code; the registry lock is never held while a room does work.
type Manager struct {
	mu     sync.RWMutex
	rooms  map[string]*Room
	config *model.Config
	deps   roomDeps
}

func NewManager(config *model.Config, clock service.Clock, store service.Store, notifier Notifier) *Manager {
	deps := roomDeps{
		clock:     clock,
		scheduler: service.NewScheduler(clock),
		store:     store,
		notifier:  notifier,
	}
	if config.GameLogger.Enable {
		deps.gameLogger = service.NewGameLogger(*config)
	}
	return &Manager{
		rooms:  make(map[string]*Room),
		config: config,
		deps:   deps,
	}
}

// CreateRoom opens a fresh lobby with the caller seated as host.
func (m *Manager) CreateRoom(hostName string) (*Room, *model.Player, error) {
	name, ok := model.CleanName(hostName)
	if !ok {
		return nil, nil, ErrInvalidName
	}
	m.mu.Lock()
	code := util.GenerateRoomCode()
	for {
		if _, taken := m.rooms[code]; !taken {
			break
		}
		code = util.GenerateRoomCode()
	}
	room := newRoom(code, m.config, m.deps)
	m.rooms[code] = room
	m.mu.Unlock()

	player := &model.Player{ID: ulid.Make().String(), Name: name}
	if err := room.join(player); err != nil {
		return nil, nil, err
	}
	slog.Info("room created", "room", code, "host", player.ID)
	return room, player, nil
}

// JoinRoom seats a new player in an existing room.
func (m *Manager) JoinRoom(code, name string) (*Room, *model.Player, error) {
	clean, ok := model.CleanName(name)
	if !ok {
		return nil, nil, ErrInvalidName
	}
	room, err := m.Get(code)
	if err != nil {
		return nil, nil, err
	}
	player := &model.Player{ID: ulid.Make().String(), Name: clean}
	if err := room.join(player); err != nil {
		return nil, nil, err
	}
	return room, player, nil
}

// Rejoin reconnects a known player to their room.
func (m *Manager) Rejoin(code, playerID string) (*Room, error) {
	room, err := m.Get(code)
	if err != nil {
		return nil, err
	}
	if err := room.Reconnect(playerID); err != nil {
		return nil, err
	}
	return room, nil
}

// Get returns the live room for a code.
func (m *Manager) Get(code string) (*Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// HandleDisconnect marks the player disconnected and reaps the room if
// nobody is left in a lobby.
func (m *Manager) HandleDisconnect(code, playerID string) {
	room, err := m.Get(code)
	if err != nil {
		return
	}
	room.Disconnect(playerID)

	room.mu.Lock()
	empty := room.phase == model.PhaseLobby
	if empty {
		for _, p := range room.players {
			if p.Connected {
				empty = false
				break
			}
		}
	}
	room.mu.Unlock()
	if !empty {
		return
	}

	m.mu.Lock()
	delete(m.rooms, code)
	m.mu.Unlock()
	room.scheduler.Cancel(code)
	if err := m.deps.store.DeleteRoom(context.Background(), code); err != nil {
		slog.Warn("failed to delete room record", "room", code, "error", err)
	}
	slog.Info("empty room removed", "room", code)
}

// RoomCount reports how many rooms are live.
func (m *Manager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// Close cancels every pending deadline. Called on shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for code := range m.rooms {
		m.deps.scheduler.Cancel(code)
	}
}
