// Package service provides the infrastructure the room orchestrator
// leans on: the deadline scheduler, durable storage and the per-game
// file logger.
package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mafiadial/mafia-night-server/model"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists room state in SQLite.
type SQLiteStore struct {
	sqlDB *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	code       TEXT PRIMARY KEY,
	host_id    TEXT NOT NULL,
	phase      TEXT NOT NULL,
	day_number INTEGER NOT NULL,
	settings   TEXT NOT NULL,
	winner     TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS players (
	room_code TEXT NOT NULL,
	player_id TEXT NOT NULL,
	name      TEXT NOT NULL,
	alive     INTEGER NOT NULL,
	seat      INTEGER NOT NULL,
	PRIMARY KEY (room_code, player_id)
);
CREATE TABLE IF NOT EXISTS roles (
	room_code TEXT NOT NULL,
	player_id TEXT NOT NULL,
	role_type TEXT NOT NULL,
	alignment TEXT NOT NULL,
	alive     INTEGER NOT NULL,
	revealed  INTEGER NOT NULL,
	PRIMARY KEY (room_code, player_id)
);
CREATE TABLE IF NOT EXISTS room_log (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	room_code  TEXT NOT NULL,
	entry_id   TEXT NOT NULL,
	phase      TEXT NOT NULL,
	message    TEXT NOT NULL,
	meta       TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_room_log_code ON room_log (room_code, seq);
`

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// OpenSQLite opens the store at path and creates the schema if missing.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *SQLiteStore) saveRoomTx(ctx context.Context, tx *sql.Tx, room RoomRecord) error {
	settings, err := json.Marshal(room.Settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO rooms (code, host_id, phase, day_number, settings, winner, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(code) DO UPDATE SET
		   host_id    = excluded.host_id,
		   phase      = excluded.phase,
		   day_number = excluded.day_number,
		   settings   = excluded.settings,
		   winner     = excluded.winner,
		   updated_at = excluded.updated_at`,
		room.Code,
		room.HostID,
		string(room.Phase),
		room.DayNumber,
		string(settings),
		string(room.Winner),
		toMillis(room.CreatedAt),
		toMillis(room.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save room: %w", err)
	}
	return nil
}

// SaveRoom upserts one room record.
func (s *SQLiteStore) SaveRoom(ctx context.Context, room RoomRecord) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.saveRoomTx(ctx, tx, room)
	})
}

// GetRoom returns one room record or ErrRoomNotFound.
func (s *SQLiteStore) GetRoom(ctx context.Context, code string) (RoomRecord, error) {
	if err := ctx.Err(); err != nil {
		return RoomRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT code, host_id, phase, day_number, settings, winner, created_at, updated_at
		 FROM rooms WHERE code = ?`,
		code,
	)
	var (
		room      RoomRecord
		phase     string
		settings  string
		winner    string
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(&room.Code, &room.HostID, &phase, &room.DayNumber, &settings, &winner, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RoomRecord{}, ErrRoomNotFound
		}
		return RoomRecord{}, fmt.Errorf("get room: %w", err)
	}
	if err := json.Unmarshal([]byte(settings), &room.Settings); err != nil {
		return RoomRecord{}, fmt.Errorf("decode settings: %w", err)
	}
	room.Phase = model.PhaseFromString(phase)
	room.Winner = model.AlignmentFromString(winner)
	room.CreatedAt = fromMillis(createdAt)
	room.UpdatedAt = fromMillis(updatedAt)
	return room, nil
}

// DeleteRoom removes the room and everything keyed to it.
func (s *SQLiteStore) DeleteRoom(ctx context.Context, code string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{
			`DELETE FROM room_log WHERE room_code = ?`,
			`DELETE FROM roles WHERE room_code = ?`,
			`DELETE FROM players WHERE room_code = ?`,
			`DELETE FROM rooms WHERE code = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, code); err != nil {
				return fmt.Errorf("delete room: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) savePlayersTx(ctx context.Context, tx *sql.Tx, code string, players []PlayerRecord) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM players WHERE room_code = ?`, code); err != nil {
		return fmt.Errorf("clear players: %w", err)
	}
	for _, p := range players {
		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO players (room_code, player_id, name, alive, seat)
			 VALUES (?, ?, ?, ?, ?)`,
			code,
			p.PlayerID,
			p.Name,
			boolToInt(p.Alive),
			p.Seat,
		)
		if err != nil {
			return fmt.Errorf("save player: %w", err)
		}
	}
	return nil
}

// SavePlayers replaces the room's player rows.
func (s *SQLiteStore) SavePlayers(ctx context.Context, code string, players []PlayerRecord) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.savePlayersTx(ctx, tx, code, players)
	})
}

// ListPlayers returns the room's player rows in seat order.
func (s *SQLiteStore) ListPlayers(ctx context.Context, code string) ([]PlayerRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT room_code, player_id, name, alive, seat
		 FROM players WHERE room_code = ? ORDER BY seat ASC`,
		code,
	)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	var players []PlayerRecord
	for rows.Next() {
		var (
			p     PlayerRecord
			alive int
		)
		if err := rows.Scan(&p.RoomCode, &p.PlayerID, &p.Name, &alive, &p.Seat); err != nil {
			return nil, fmt.Errorf("list players: %w", err)
		}
		p.Alive = alive != 0
		players = append(players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	return players, nil
}

func (s *SQLiteStore) saveRolesTx(ctx context.Context, tx *sql.Tx, code string, roles []RoleRecord) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM roles WHERE room_code = ?`, code); err != nil {
		return fmt.Errorf("clear roles: %w", err)
	}
	for _, r := range roles {
		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO roles (room_code, player_id, role_type, alignment, alive, revealed)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			code,
			r.PlayerID,
			string(r.RoleType),
			string(r.Alignment),
			boolToInt(r.Alive),
			boolToInt(r.Revealed),
		)
		if err != nil {
			return fmt.Errorf("save role: %w", err)
		}
	}
	return nil
}

// SaveRoles replaces the room's role rows.
func (s *SQLiteStore) SaveRoles(ctx context.Context, code string, roles []RoleRecord) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.saveRolesTx(ctx, tx, code, roles)
	})
}

// ListRoles returns the room's role rows ordered by player id.
func (s *SQLiteStore) ListRoles(ctx context.Context, code string) ([]RoleRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT room_code, player_id, role_type, alignment, alive, revealed
		 FROM roles WHERE room_code = ? ORDER BY player_id ASC`,
		code,
	)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	var roles []RoleRecord
	for rows.Next() {
		var (
			r         RoleRecord
			roleType  string
			alignment string
			alive     int
			revealed  int
		)
		if err := rows.Scan(&r.RoomCode, &r.PlayerID, &roleType, &alignment, &alive, &revealed); err != nil {
			return nil, fmt.Errorf("list roles: %w", err)
		}
		r.RoleType = model.RoleTypeFromString(roleType)
		r.Alignment = model.AlignmentFromString(alignment)
		r.Alive = alive != 0
		r.Revealed = revealed != 0
		roles = append(roles, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

func (s *SQLiteStore) appendLogTx(ctx context.Context, tx *sql.Tx, code string, entries []model.EventLogEntry) error {
	for _, e := range entries {
		meta, err := json.Marshal(e.Meta)
		if err != nil {
			return fmt.Errorf("encode log meta: %w", err)
		}
		_, err = tx.ExecContext(
			ctx,
			`INSERT INTO room_log (room_code, entry_id, phase, message, meta, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			code,
			e.ID,
			string(e.Phase),
			e.Message,
			string(meta),
			toMillis(e.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("append log: %w", err)
		}
	}
	return nil
}

// AppendLog appends event-log entries in order.
func (s *SQLiteStore) AppendLog(ctx context.Context, code string, entries []model.EventLogEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.appendLogTx(ctx, tx, code, entries)
	})
}

// ListLog returns the room's event log in insertion order.
func (s *SQLiteStore) ListLog(ctx context.Context, code string) ([]model.EventLogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT entry_id, phase, message, meta, created_at
		 FROM room_log WHERE room_code = ? ORDER BY seq ASC`,
		code,
	)
	if err != nil {
		return nil, fmt.Errorf("list log: %w", err)
	}
	defer rows.Close()

	var entries []model.EventLogEntry
	for rows.Next() {
		var (
			e         model.EventLogEntry
			phase     string
			meta      string
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &phase, &e.Message, &meta, &createdAt); err != nil {
			return nil, fmt.Errorf("list log: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &e.Meta); err != nil {
			return nil, fmt.Errorf("decode log meta: %w", err)
		}
		e.Phase = model.PhaseFromString(phase)
		e.CreatedAt = fromMillis(createdAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list log: %w", err)
	}
	return entries, nil
}

// ApplyResolution writes a finalized phase in one transaction.
func (s *SQLiteStore) ApplyResolution(ctx context.Context, res Resolution) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.saveRoomTx(ctx, tx, res.Room); err != nil {
			return err
		}
		for _, id := range res.Deaths {
			for _, q := range []string{
				`UPDATE roles SET alive = 0 WHERE room_code = ? AND player_id = ?`,
				`UPDATE players SET alive = 0 WHERE room_code = ? AND player_id = ?`,
			} {
				if _, err := tx.ExecContext(ctx, q, res.Room.Code, id); err != nil {
					return fmt.Errorf("mark death: %w", err)
				}
			}
		}
		return s.appendLogTx(ctx, tx, res.Room.Code, res.Log)
	})
}

// ResetRoom clears roles and log, revives the player rows and rewrites
// the room record.
func (s *SQLiteStore) ResetRoom(ctx context.Context, room RoomRecord) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM roles WHERE room_code = ?`, room.Code); err != nil {
			return fmt.Errorf("reset roles: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM room_log WHERE room_code = ?`, room.Code); err != nil {
			return fmt.Errorf("reset log: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE players SET alive = 1 WHERE room_code = ?`, room.Code); err != nil {
			return fmt.Errorf("reset players: %w", err)
		}
		return s.saveRoomTx(ctx, tx, room)
	})
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Store = (*SQLiteStore)(nil)
