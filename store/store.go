// Package store keeps the per-room message log and the room table in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// FetchLimit caps how many log entries one Fetch returns.
const FetchLimit = 1000

// Entry kinds.
const (
	KindChat   = "chat"
	KindDelete = "delete_shape"
)

// ErrBadRoomID is returned for room ids below 1.
var ErrBadRoomID = errors.New("bad room id")

// Entry is one persisted event. For chat entries Message is the raw chat
// payload; for delete entries it is the deleted shape id.
type Entry struct {
	ID      int64  `json:"id"`
	RoomID  int64  `json:"roomId"`
	Type    string `json:"type"`
	Message string `json:"message"`
	UserID  string `json:"userId"`
}

// Room maps a slug to the numeric id the log is keyed by.
type Room struct {
	ID   int64  `json:"id"`
	Slug string `json:"slug"`
}

// Store represents the SQLite database behind the relay.
type Store struct {
	database *sql.DB
}

// Open opens (creating if needed) the SQLite database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serializes writers anyway; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	s := &Store{database: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	if _, err := s.database.Exec(
		`CREATE TABLE IF NOT EXISTS rooms (
		id integer not null primary key autoincrement,
		slug text not null unique
		)`,
	); err != nil {
		return fmt.Errorf("failed to create rooms table: %w", err)
	}
	if _, err := s.database.Exec(
		`CREATE TABLE IF NOT EXISTS chats (
		id integer not null primary key autoincrement,
		room_id integer not null,
		kind text not null default 'chat',
		message text not null,
		user_id text not null
		)`,
	); err != nil {
		return fmt.Errorf("failed to create chats table: %w", err)
	}
	if _, err := s.database.Exec(`CREATE INDEX IF NOT EXISTS chats_room ON chats (room_id, id)`); err != nil {
		return fmt.Errorf("failed to create chats index: %w", err)
	}
	slog.Debug("ensured message log tables exist")
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.database.Close()
}

// Append stores a committed chat payload and returns its log id.
func (s *Store) Append(ctx context.Context, roomID int64, message, userID string) (int64, error) {
	return s.insert(ctx, roomID, KindChat, message, userID)
}

// AppendTombstone records that shapeID was deleted so replay drops it.
func (s *Store) AppendTombstone(ctx context.Context, roomID int64, shapeID, userID string) (int64, error) {
	return s.insert(ctx, roomID, KindDelete, shapeID, userID)
}

func (s *Store) insert(ctx context.Context, roomID int64, kind, message, userID string) (int64, error) {
	if roomID <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrBadRoomID, roomID)
	}
	res, err := s.database.ExecContext(ctx,
		`INSERT INTO chats (room_id, kind, message, user_id) VALUES (?, ?, ?, ?)`,
		roomID, kind, message, userID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append %s: %w", kind, err)
	}
	return res.LastInsertId()
}

// Fetch returns the room's log in insertion order, at most limit entries
// (FetchLimit when limit <= 0).
func (s *Store) Fetch(ctx context.Context, roomID int64, limit int) ([]Entry, error) {
	if limit <= 0 || limit > FetchLimit {
		limit = FetchLimit
	}
	rows, err := s.database.QueryContext(ctx,
		`SELECT id, room_id, kind, message, user_id FROM chats WHERE room_id = ? ORDER BY id ASC LIMIT ?`,
		roomID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			slog.Error("failed to close rows", "err", err)
		}
	}(rows)

	out := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.RoomID, &e.Type, &e.Message, &e.UserID); err != nil {
			return nil, fmt.Errorf("failed to scan: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate: %w", err)
	}
	return out, nil
}

// Purge deletes every entry of the room and reports how many were removed.
func (s *Store) Purge(ctx context.Context, roomID int64) (int64, error) {
	res, err := s.database.ExecContext(ctx, `DELETE FROM chats WHERE room_id = ?`, roomID)
	if err != nil {
		return 0, fmt.Errorf("failed to purge room %d: %w", roomID, err)
	}
	return res.RowsAffected()
}

// EnsureRoom returns the room with slug, creating it if missing.
func (s *Store) EnsureRoom(ctx context.Context, slug string) (Room, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return Room{}, fmt.Errorf("room slug is empty")
	}
	if _, err := s.database.ExecContext(ctx, `INSERT OR IGNORE INTO rooms (slug) VALUES (?)`, slug); err != nil {
		return Room{}, fmt.Errorf("failed to create room %q: %w", slug, err)
	}
	r, ok, err := s.LookupRoom(ctx, slug)
	if err != nil {
		return Room{}, err
	}
	if !ok {
		return Room{}, fmt.Errorf("room %q vanished after insert", slug)
	}
	return r, nil
}

// LookupRoom resolves a slug. The bool is false when no such room exists.
func (s *Store) LookupRoom(ctx context.Context, slug string) (Room, bool, error) {
	var r Room
	err := s.database.QueryRowContext(ctx, `SELECT id, slug FROM rooms WHERE slug = ?`, slug).Scan(&r.ID, &r.Slug)
	if errors.Is(err, sql.ErrNoRows) {
		return Room{}, false, nil
	}
	if err != nil {
		return Room{}, false, fmt.Errorf("failed to look up room %q: %w", slug, err)
	}
	return r, true, nil
}
