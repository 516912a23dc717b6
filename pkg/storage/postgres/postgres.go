// Package postgres provides a PostgreSQL implementation of storage.Store.
// It uses pgx/v5 for connection pooling and embedded SQL migrations.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/datagem/pkg/api"
	"github.com/rhuss/datagem/pkg/debug"
	"github.com/rhuss/datagem/pkg/storage"
)

// PostgreSQL error codes checked by the store.
const (
	codeForeignKeyViolation = "23503"
)

// Store is a PostgreSQL-backed storage.Store.
type Store struct {
	pool *pgxpool.Pool
}

// Ensure Store implements storage.Store at compile time.
var _ storage.Store = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := cfg.poolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// GetOrCreateUser returns the user registered under identity. The upsert
// makes concurrent first requests for the same identity converge on one row.
func (s *Store) GetOrCreateUser(ctx context.Context, identity string) (storage.UserID, error) {
	identity = storage.NormalizeIdentity(identity)

	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (email, full_name)
		VALUES ($1, $2)
		ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
		RETURNING id
	`, identity, storage.DisplayName(identity)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upserting user: %w", err)
	}
	return storage.UserID(id), nil
}

// AppendMessage stores one chat message.
func (s *Store) AppendMessage(ctx context.Context, user storage.UserID, role api.Role, content string) error {
	if err := storage.ValidateRole(role); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx,
		"INSERT INTO chat_history (user_id, role, content) VALUES ($1, $2, $3)",
		int64(user), string(role), content,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeForeignKeyViolation {
			return storage.ErrNotFound
		}
		return fmt.Errorf("inserting message: %w", err)
	}
	debug.Log(debug.Storage, "message stored", "user", int64(user), "role", role, "bytes", len(content))
	return nil
}

// History returns up to limit messages of the user, newest first.
func (s *Store) History(ctx context.Context, user storage.UserID, limit int) ([]storage.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, role, content, timestamp
		FROM chat_history
		WHERE user_id = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT $2
	`, int64(user), storage.NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}

	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (storage.Message, error) {
		var (
			m    storage.Message
			uid  int64
			role string
		)
		if err := row.Scan(&m.ID, &uid, &role, &m.Content, &m.CreatedAt); err != nil {
			return m, err
		}
		m.UserID = storage.UserID(uid)
		m.Role = api.Role(role)
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning history: %w", err)
	}
	return msgs, nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
