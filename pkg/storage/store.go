package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rhuss/datagem/pkg/api"
)

// DefaultIdentity is the identity chat history is logged under when the
// request does not name a user.
const DefaultIdentity = "anonymous@datagem.ai"

// History limits.
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

// UserID identifies a stored user.
type UserID int64

// Message is one persisted chat message.
type Message struct {
	ID        int64     `json:"id"`
	UserID    UserID    `json:"user_id"`
	Role      api.Role  `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"timestamp"`
}

// Store persists users and their chat messages.
type Store interface {
	// GetOrCreateUser returns the user registered under identity,
	// creating it on first use.
	GetOrCreateUser(ctx context.Context, identity string) (UserID, error)

	// AppendMessage stores one message for the user. Returns ErrNotFound
	// when the user does not exist.
	AppendMessage(ctx context.Context, user UserID, role api.Role, content string) error

	// History returns up to limit messages of the user, newest first.
	History(ctx context.Context, user UserID, limit int) ([]Message, error)

	HealthCheck(ctx context.Context) error
	Close() error
}

// NormalizeLimit clamps a requested history size.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}

// NormalizeIdentity trims identity and falls back to DefaultIdentity.
func NormalizeIdentity(identity string) string {
	identity = strings.ToLower(strings.TrimSpace(identity))
	if identity == "" {
		return DefaultIdentity
	}
	return identity
}

// DisplayName derives the name stored for users created implicitly.
func DisplayName(identity string) string {
	if identity == DefaultIdentity {
		return "Anonymous User"
	}
	return identity
}

// ValidateRole checks the role of a message before it is written.
func ValidateRole(role api.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	return nil
}

// Backend names accepted by ParseDatabaseURL.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// ParseDatabaseURL maps a DATABASE_URL style string to a backend and the
// DSN its driver expects. An empty URL selects the local sqlite file
// ./datagem.db. "postgres://" and "postgresql://" select postgres,
// "sqlite://" or "sqlite:///" select sqlite, and "memory" or "memory://"
// select the in-memory store.
func ParseDatabaseURL(raw string) (backend, dsn string, err error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return BackendSQLite, "./datagem.db", nil
	case raw == "memory" || raw == "memory://":
		return BackendMemory, "", nil
	case strings.HasPrefix(raw, "postgres://"):
		return BackendPostgres, "postgresql://" + strings.TrimPrefix(raw, "postgres://"), nil
	case strings.HasPrefix(raw, "postgresql://"):
		return BackendPostgres, raw, nil
	case strings.HasPrefix(raw, "sqlite:///"):
		return BackendSQLite, strings.TrimPrefix(raw, "sqlite:///"), nil
	case strings.HasPrefix(raw, "sqlite://"):
		return BackendSQLite, strings.TrimPrefix(raw, "sqlite://"), nil
	}
	return "", "", fmt.Errorf("unsupported database url %q", raw)
}
