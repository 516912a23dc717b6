// Package sqlite provides a SQLite implementation of storage.Store backed by
// github.com/mattn/go-sqlite3. It is the default store for local
// development and writes to ./datagem.db unless configured otherwise.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/rhuss/datagem/pkg/api"
	"github.com/rhuss/datagem/pkg/debug"
	"github.com/rhuss/datagem/pkg/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    email      TEXT NOT NULL UNIQUE,
    full_name  TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS chat_history (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id   INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    role      TEXT NOT NULL,
    content   TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chat_history_user_time
    ON chat_history (user_id, timestamp DESC, id DESC);
`

// Store is a SQLite-backed storage.Store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Ensure Store implements storage.Store at compile time.
var _ storage.Store = (*Store)(nil)

// Open opens (or creates) the database at path and applies the schema.
// The path ":memory:" yields a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = "./datagem.db"
	}

	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// SQLite allows a single writer; serializing on one connection avoids
	// SQLITE_BUSY and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to sqlite database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func dsn(path string) string {
	return "file:" + path + "?_foreign_keys=on&_busy_timeout=5000"
}

// GetOrCreateUser returns the user registered under identity.
func (s *Store) GetOrCreateUser(ctx context.Context, identity string) (storage.UserID, error) {
	identity = storage.NormalizeIdentity(identity)

	if _, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO users (email, full_name) VALUES (?, ?)",
		identity, storage.DisplayName(identity),
	); err != nil {
		return 0, fmt.Errorf("inserting user: %w", err)
	}

	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM users WHERE email = ?", identity).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("querying user: %w", err)
	}
	return storage.UserID(id), nil
}

// AppendMessage stores one chat message.
func (s *Store) AppendMessage(ctx context.Context, user storage.UserID, role api.Role, content string) error {
	if err := storage.ValidateRole(role); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO chat_history (user_id, role, content, timestamp) VALUES (?, ?, ?, ?)",
		int64(user), string(role), content, s.now().UTC(),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey {
			return storage.ErrNotFound
		}
		return fmt.Errorf("inserting message: %w", err)
	}
	debug.Log(debug.Storage, "message stored", "user", int64(user), "role", role, "bytes", len(content))
	return nil
}

// History returns up to limit messages of the user, newest first.
func (s *Store) History(ctx context.Context, user storage.UserID, limit int) ([]storage.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, role, content, timestamp
		FROM chat_history
		WHERE user_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, int64(user), storage.NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var msgs []storage.Message
	for rows.Next() {
		var (
			m    storage.Message
			uid  int64
			role string
		)
		if err := rows.Scan(&m.ID, &uid, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		m.UserID = storage.UserID(uid)
		m.Role = api.Role(role)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}
	return msgs, nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
