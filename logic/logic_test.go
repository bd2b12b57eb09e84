package logic

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mafiadial/mafia-night-server/model"
	"github.com/mafiadial/mafia-night-server/service"
)

// fakeClock drives scheduler timers manually.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) service.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward, firing due timers one at a time so a
// fired transition can arm and fire a follow-up deadline in the same
// advance window.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	for {
		c.mu.Lock()
		var due *fakeTimer
		for _, t := range c.timers {
			if !t.stopped && !t.fired && !t.at.After(c.now) {
				due = t
				break
			}
		}
		if due != nil {
			due.fired = true
		}
		c.mu.Unlock()
		if due == nil {
			return
		}
		due.fn()
	}
}

// fakeNotifier records every delivery for assertions.
type sentEvent struct {
	playerID string // empty for room or public broadcasts
	scope    string // "player", "room", "public"
	event    string
	data     any
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []sentEvent
}

func (n *fakeNotifier) ToPlayer(playerID string, event string, data any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sentEvent{playerID: playerID, scope: "player", event: event, data: data})
}

func (n *fakeNotifier) ToRoom(code string, event string, data any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sentEvent{scope: "room", event: event, data: data})
}

func (n *fakeNotifier) ToPublic(code string, event string, data any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sentEvent{scope: "public", event: event, data: data})
}

func (n *fakeNotifier) playerEvents(playerID, event string) []sentEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentEvent
	for _, e := range n.events {
		if e.scope == "player" && e.playerID == playerID && e.event == event {
			out = append(out, e)
		}
	}
	return out
}

func (n *fakeNotifier) roomEvents(event string) []sentEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentEvent
	for _, e := range n.events {
		if e.scope == "room" && e.event == event {
			out = append(out, e)
		}
	}
	return out
}

// fakeStore is an in-memory Store that counts transactional writes.
type fakeStore struct {
	mu          sync.Mutex
	rooms       map[string]service.RoomRecord
	players     map[string][]service.PlayerRecord
	roles       map[string][]service.RoleRecord
	logs        map[string][]model.EventLogEntry
	resolutions int
	resets      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rooms:   make(map[string]service.RoomRecord),
		players: make(map[string][]service.PlayerRecord),
		roles:   make(map[string][]service.RoleRecord),
		logs:    make(map[string][]model.EventLogEntry),
	}
}

func (s *fakeStore) SaveRoom(_ context.Context, room service.RoomRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.Code] = room
	return nil
}

func (s *fakeStore) GetRoom(_ context.Context, code string) (service.RoomRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[code]
	if !ok {
		return service.RoomRecord{}, service.ErrRoomNotFound
	}
	return room, nil
}

func (s *fakeStore) DeleteRoom(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, code)
	delete(s.players, code)
	delete(s.roles, code)
	delete(s.logs, code)
	return nil
}

func (s *fakeStore) SavePlayers(_ context.Context, code string, players []service.PlayerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[code] = append([]service.PlayerRecord(nil), players...)
	return nil
}

func (s *fakeStore) ListPlayers(_ context.Context, code string) ([]service.PlayerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]service.PlayerRecord(nil), s.players[code]...), nil
}

func (s *fakeStore) SaveRoles(_ context.Context, code string, roles []service.RoleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[code] = append([]service.RoleRecord(nil), roles...)
	return nil
}

func (s *fakeStore) ListRoles(_ context.Context, code string) ([]service.RoleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]service.RoleRecord(nil), s.roles[code]...), nil
}

func (s *fakeStore) AppendLog(_ context.Context, code string, entries []model.EventLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[code] = append(s.logs[code], entries...)
	return nil
}

func (s *fakeStore) ListLog(_ context.Context, code string) ([]model.EventLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.EventLogEntry(nil), s.logs[code]...), nil
}

func (s *fakeStore) ApplyResolution(_ context.Context, res service.Resolution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolutions++
	s.rooms[res.Room.Code] = res.Room
	for _, id := range res.Deaths {
		for i := range s.roles[res.Room.Code] {
			if s.roles[res.Room.Code][i].PlayerID == id {
				s.roles[res.Room.Code][i].Alive = false
			}
		}
		for i := range s.players[res.Room.Code] {
			if s.players[res.Room.Code][i].PlayerID == id {
				s.players[res.Room.Code][i].Alive = false
			}
		}
	}
	s.logs[res.Room.Code] = append(s.logs[res.Room.Code], res.Log...)
	return nil
}

func (s *fakeStore) ResetRoom(_ context.Context, room service.RoomRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
	s.rooms[room.Code] = room
	for i := range s.players[room.Code] {
		s.players[room.Code][i].Alive = true
	}
	delete(s.roles, room.Code)
	delete(s.logs, room.Code)
	return nil
}

func (s *fakeStore) Close() error { return nil }

func testConfig() *model.Config {
	cfg := &model.Config{}
	cfg.Room.SelfHealAllowed = true
	cfg.Room.MafiaMajorityRequired = true
	cfg.Room.FinalizeDebounceMs = 250
	return cfg
}

type testRig struct {
	manager  *Manager
	clock    *fakeClock
	store    *fakeStore
	notifier *fakeNotifier
}

func newTestRig() *testRig {
	clock := newFakeClock()
	store := newFakeStore()
	notifier := &fakeNotifier{}
	return &testRig{
		manager:  NewManager(testConfig(), clock, store, notifier),
		clock:    clock,
		store:    store,
		notifier: notifier,
	}
}

// seatPlayers creates a room and fills it to n seated players, the
// first being host. Returns the room and player ids in seat order.
func (rig *testRig) seatPlayers(t *testing.T, n int) (*Room, []string) {
	t.Helper()
	room, host, err := rig.manager.CreateRoom("Player0")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	ids := []string{host.ID}
	for i := 1; i < n; i++ {
		_, p, err := rig.manager.JoinRoom(room.Code, "Player"+string(rune('0'+i)))
		if err != nil {
			t.Fatalf("join room: %v", err)
		}
		ids = append(ids, p.ID)
	}
	return room, ids
}

// forceRoles replaces the dealt roles with a fixed assignment so a test
// can script both factions.
func forceRoles(room *Room, assignment map[string]model.RoleType) {
	room.mu.Lock()
	defer room.mu.Unlock()
	for id, roleType := range assignment {
		room.roles[id] = &roleState{
			roleType:  roleType,
			alignment: roleType.Alignment(),
			alive:     true,
		}
		if p, ok := room.players[id]; ok {
			p.IsAlive = true
		}
	}
	// Night prompts were issued for the shuffled deal; reopen the stage
	// so the expected-actor set matches the forced assignment.
	if room.phase == model.PhaseNight {
		room.openNightLocked()
	}
}
