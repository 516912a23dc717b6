package transport

import (
	"context"
	"sync"
)

// InFlightRegistry maps the session IDs of streaming chats to the cancel
// functions of their contexts. It backs DELETE /chat/{session_id} and the
// forced stop at the end of a shutdown drain.
type InFlightRegistry struct {
	mu       sync.Mutex
	sessions map[string]context.CancelFunc
}

func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{sessions: map[string]context.CancelFunc{}}
}

// Register records a running session. A second registration under the same
// ID replaces the first.
func (r *InFlightRegistry) Register(id string, cancel context.CancelFunc) {
	r.mu.Lock()
	r.sessions[id] = cancel
	r.mu.Unlock()
}

// Cancel stops the session and forgets it. It reports false when no session
// with that ID is running, which includes sessions that already finished.
func (r *InFlightRegistry) Cancel(id string) bool {
	r.mu.Lock()
	cancel, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		cancel()
	}
	return ok
}

// CancelAll stops every running session and returns how many there were.
func (r *InFlightRegistry) CancelAll() int {
	r.mu.Lock()
	running := r.sessions
	r.sessions = map[string]context.CancelFunc{}
	r.mu.Unlock()

	for _, cancel := range running {
		cancel()
	}
	return len(running)
}

// Remove forgets a finished session without cancelling it.
func (r *InFlightRegistry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

func (r *InFlightRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
