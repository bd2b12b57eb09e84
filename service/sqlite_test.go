package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mafiadial/mafia-night-server/model"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "rooms.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testRoom(code string) RoomRecord {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return RoomRecord{
		Code:      code,
		HostID:    "host-1",
		Phase:     model.PhaseLobby,
		DayNumber: 0,
		Settings:  model.DefaultSettings(),
		Winner:    model.AlignNone,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSQLiteRoomRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	room := testRoom("ABCDEF")
	if err := store.SaveRoom(ctx, room); err != nil {
		t.Fatalf("save room: %v", err)
	}
	got, err := store.GetRoom(ctx, "ABCDEF")
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if got.Code != room.Code || got.HostID != room.HostID || got.Phase != room.Phase {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Settings.MaxPlayers != room.Settings.MaxPlayers || got.Settings.TiePolicy != room.Settings.TiePolicy {
		t.Fatalf("settings did not survive the round trip: %+v", got.Settings)
	}
	if !got.CreatedAt.Equal(room.CreatedAt) {
		t.Errorf("created at %v, want %v", got.CreatedAt, room.CreatedAt)
	}
}

func TestSQLiteRoomNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.GetRoom(context.Background(), "NOROOM")
	if !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}

func testRole(code, playerID string, roleType model.RoleType, alive bool) RoleRecord {
	return RoleRecord{
		RoomCode: code,
		Alive:    alive,
		RoleAssignment: model.RoleAssignment{
			PlayerID:  playerID,
			RoleType:  roleType,
			Alignment: roleType.Alignment(),
		},
	}
}

func TestSQLiteRolesReplace(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.SaveRoles(ctx, "ABCDEF", []RoleRecord{
		testRole("ABCDEF", "p1", model.RoleMafia, true),
		testRole("ABCDEF", "p2", model.RoleDoctor, true),
	}); err != nil {
		t.Fatalf("save roles: %v", err)
	}
	if err := store.SaveRoles(ctx, "ABCDEF", []RoleRecord{
		testRole("ABCDEF", "p3", model.RoleSilencer, true),
	}); err != nil {
		t.Fatalf("second save must replace, got %v", err)
	}
	roles, err := store.ListRoles(ctx, "ABCDEF")
	if err != nil {
		t.Fatalf("list roles: %v", err)
	}
	if len(roles) != 1 || roles[0].PlayerID != "p3" || roles[0].RoleType != model.RoleSilencer {
		t.Fatalf("expected only the replacement row, got %+v", roles)
	}
	if roles[0].Alignment != model.AlignMafia {
		t.Fatalf("alignment did not survive the round trip: %+v", roles[0])
	}
}

func TestSQLitePlayersReplace(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.SavePlayers(ctx, "ABCDEF", []PlayerRecord{
		{RoomCode: "ABCDEF", PlayerID: "p2", Name: "Bea", Alive: true, Seat: 1},
		{RoomCode: "ABCDEF", PlayerID: "p1", Name: "Abe", Alive: true, Seat: 0},
	}); err != nil {
		t.Fatalf("save players: %v", err)
	}
	if err := store.SavePlayers(ctx, "ABCDEF", []PlayerRecord{
		{RoomCode: "ABCDEF", PlayerID: "p1", Name: "Abel", Alive: true, Seat: 0},
		{RoomCode: "ABCDEF", PlayerID: "p3", Name: "Cal", Alive: true, Seat: 2},
	}); err != nil {
		t.Fatalf("second save must replace, got %v", err)
	}
	players, err := store.ListPlayers(ctx, "ABCDEF")
	if err != nil {
		t.Fatalf("list players: %v", err)
	}
	if len(players) != 2 || players[0].PlayerID != "p1" || players[1].PlayerID != "p3" {
		t.Fatalf("expected replacement rows in seat order, got %+v", players)
	}
	if players[0].Name != "Abel" {
		t.Fatalf("rename did not stick: %+v", players[0])
	}
}

func TestSQLiteApplyResolution(t *testing.T) {
	t.Log("a finalized phase writes room, deaths and log in one transaction")
	store := openTestStore(t)
	ctx := context.Background()

	room := testRoom("ABCDEF")
	if err := store.SaveRoom(ctx, room); err != nil {
		t.Fatalf("save room: %v", err)
	}
	if err := store.SaveRoles(ctx, room.Code, []RoleRecord{
		testRole(room.Code, "p1", model.RoleMafia, true),
		testRole(room.Code, "p2", model.RoleVillager, true),
	}); err != nil {
		t.Fatalf("save roles: %v", err)
	}
	if err := store.SavePlayers(ctx, room.Code, []PlayerRecord{
		{RoomCode: room.Code, PlayerID: "p1", Name: "Abe", Alive: true, Seat: 0},
		{RoomCode: room.Code, PlayerID: "p2", Name: "Bea", Alive: true, Seat: 1},
	}); err != nil {
		t.Fatalf("save players: %v", err)
	}

	room.Phase = model.PhaseDawn
	room.DayNumber = 1
	if err := store.ApplyResolution(ctx, Resolution{
		Room:   room,
		Deaths: []string{"p2"},
		Log: []model.EventLogEntry{
			{ID: "e1", Phase: model.PhaseNight, Message: "A body was found", CreatedAt: room.UpdatedAt},
		},
	}); err != nil {
		t.Fatalf("apply resolution: %v", err)
	}

	got, err := store.GetRoom(ctx, room.Code)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if got.Phase != model.PhaseDawn || got.DayNumber != 1 {
		t.Fatalf("room record not advanced: %+v", got)
	}
	roles, err := store.ListRoles(ctx, room.Code)
	if err != nil {
		t.Fatalf("list roles: %v", err)
	}
	for _, r := range roles {
		if r.PlayerID == "p2" && r.Alive {
			t.Fatalf("p2 must be marked dead")
		}
		if r.PlayerID == "p1" && !r.Alive {
			t.Fatalf("p1 must stay alive")
		}
	}
	players, err := store.ListPlayers(ctx, room.Code)
	if err != nil {
		t.Fatalf("list players: %v", err)
	}
	for _, p := range players {
		if p.PlayerID == "p2" && p.Alive {
			t.Fatalf("p2's player row must be marked dead too")
		}
	}
	log, err := store.ListLog(ctx, room.Code)
	if err != nil {
		t.Fatalf("list log: %v", err)
	}
	if len(log) != 1 || log[0].Message != "A body was found" {
		t.Fatalf("expected one log entry, got %+v", log)
	}
}

func TestSQLiteResetRoom(t *testing.T) {
	t.Log("a reset clears roles and log and rewrites the room record")
	store := openTestStore(t)
	ctx := context.Background()

	room := testRoom("ABCDEF")
	room.Phase = model.PhaseEnded
	room.Winner = model.AlignTown
	if err := store.SaveRoom(ctx, room); err != nil {
		t.Fatalf("save room: %v", err)
	}
	if err := store.SaveRoles(ctx, room.Code, []RoleRecord{
		testRole(room.Code, "p1", model.RoleMafia, false),
	}); err != nil {
		t.Fatalf("save roles: %v", err)
	}
	if err := store.SavePlayers(ctx, room.Code, []PlayerRecord{
		{RoomCode: room.Code, PlayerID: "p1", Name: "Abe", Alive: false, Seat: 0},
	}); err != nil {
		t.Fatalf("save players: %v", err)
	}
	if err := store.AppendLog(ctx, room.Code, []model.EventLogEntry{
		{ID: "e1", Phase: model.PhaseEnded, Message: "Town wins", CreatedAt: room.UpdatedAt},
	}); err != nil {
		t.Fatalf("append log: %v", err)
	}

	room.Phase = model.PhaseLobby
	room.DayNumber = 0
	room.Winner = model.AlignNone
	if err := store.ResetRoom(ctx, room); err != nil {
		t.Fatalf("reset room: %v", err)
	}

	got, err := store.GetRoom(ctx, room.Code)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if got.Phase != model.PhaseLobby || got.Winner != model.AlignNone {
		t.Fatalf("room not returned to lobby: %+v", got)
	}
	roles, err := store.ListRoles(ctx, room.Code)
	if err != nil {
		t.Fatalf("list roles: %v", err)
	}
	if len(roles) != 0 {
		t.Fatalf("roles must be cleared, got %+v", roles)
	}
	players, err := store.ListPlayers(ctx, room.Code)
	if err != nil {
		t.Fatalf("list players: %v", err)
	}
	if len(players) != 1 || !players[0].Alive {
		t.Fatalf("player rows must survive the reset alive, got %+v", players)
	}
	log, err := store.ListLog(ctx, room.Code)
	if err != nil {
		t.Fatalf("list log: %v", err)
	}
	if len(log) != 0 {
		t.Fatalf("log must be cleared, got %+v", log)
	}
}

func TestSQLiteDeleteRoom(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	room := testRoom("ABCDEF")
	if err := store.SaveRoom(ctx, room); err != nil {
		t.Fatalf("save room: %v", err)
	}
	if err := store.DeleteRoom(ctx, room.Code); err != nil {
		t.Fatalf("delete room: %v", err)
	}
	if _, err := store.GetRoom(ctx, room.Code); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound after delete, got %v", err)
	}
}
