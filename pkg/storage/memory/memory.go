// Package memory provides an in-memory implementation of storage.Store for
// tests and lightweight deployments. Messages are lost when the process
// restarts. An optional cap evicts the oldest messages.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rhuss/datagem/pkg/api"
	"github.com/rhuss/datagem/pkg/storage"
)

// Store is an in-memory storage.Store.
type Store struct {
	mu       sync.RWMutex
	users    map[string]storage.UserID
	known    map[storage.UserID]bool
	messages []storage.Message // oldest first
	nextUser storage.UserID
	nextMsg  int64
	maxSize  int // 0 = unlimited
	now      func() time.Time
}

// Ensure Store implements storage.Store at compile time.
var _ storage.Store = (*Store)(nil)

// New creates a new in-memory store. If maxSize is 0, the store grows
// without limit. If maxSize > 0, the oldest message is evicted when the
// limit is reached.
func New(maxSize int) *Store {
	return &Store{
		users:   make(map[string]storage.UserID),
		known:   make(map[storage.UserID]bool),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// GetOrCreateUser returns the ID registered for identity, creating it on
// first use.
func (s *Store) GetOrCreateUser(_ context.Context, identity string) (storage.UserID, error) {
	identity = storage.NormalizeIdentity(identity)

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.users[identity]; ok {
		return id, nil
	}
	s.nextUser++
	s.users[identity] = s.nextUser
	s.known[s.nextUser] = true
	return s.nextUser, nil
}

// AppendMessage stores one message.
func (s *Store) AppendMessage(_ context.Context, user storage.UserID, role api.Role, content string) error {
	if err := storage.ValidateRole(role); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.known[user] {
		return storage.ErrNotFound
	}

	if s.maxSize > 0 && len(s.messages) >= s.maxSize {
		s.messages = s.messages[len(s.messages)-s.maxSize+1:]
	}

	s.nextMsg++
	s.messages = append(s.messages, storage.Message{
		ID:        s.nextMsg,
		UserID:    user,
		Role:      role,
		Content:   content,
		CreatedAt: s.now().UTC(),
	})
	return nil
}

// History returns the newest messages of the user first.
func (s *Store) History(_ context.Context, user storage.UserID, limit int) ([]storage.Message, error) {
	limit = storage.NormalizeLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]storage.Message, 0, limit)
	for i := len(s.messages) - 1; i >= 0 && len(out) < limit; i-- {
		if s.messages[i].UserID == user {
			out = append(out, s.messages[i])
		}
	}
	return out, nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
