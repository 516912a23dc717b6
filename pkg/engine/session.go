package engine

import (
	"fmt"
	"sync"

	"github.com/rhuss/datagem/pkg/api"
	"github.com/rhuss/datagem/pkg/storage"
	"github.com/rhuss/datagem/pkg/tools"
)

// State is the lifecycle position of a session.
type State string

const (
	StateIdle          State = "idle"
	StateAwaitingModel State = "awaiting_model"
	StateToolRequested State = "tool_requested"
	StateToolExecuting State = "tool_executing"
	StateEmitting      State = "emitting"
	StateDone          State = "done"
	StateFailed        State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// transitions lists the allowed successors of each state. Any
// non-terminal state may also move to StateFailed.
var transitions = map[State][]State{
	StateIdle:          {StateAwaitingModel},
	StateAwaitingModel: {StateEmitting, StateToolRequested, StateDone},
	StateEmitting:      {StateToolRequested, StateDone},
	StateToolRequested: {StateToolExecuting},
	StateToolExecuting: {StateAwaitingModel},
}

// ValidateTransition returns an error if a session may not move from one
// state to the other.
func ValidateTransition(from, to State) error {
	if from.Terminal() {
		return fmt.Errorf("session already %s, cannot move to %s", from, to)
	}
	if to == StateFailed {
		return nil
	}
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("invalid session transition %s -> %s", from, to)
}

// Transcript is the append-only conversation of one session.
type Transcript struct {
	mu    sync.RWMutex
	turns []api.ConversationTurn
}

// Append adds turns at the end of the transcript.
func (t *Transcript) Append(turns ...api.ConversationTurn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = append(t.turns, turns...)
}

// Turns returns a copy of all turns in order.
func (t *Transcript) Turns() []api.ConversationTurn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]api.ConversationTurn, len(t.turns))
	copy(out, t.turns)
	return out
}

// Len returns the number of turns.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}

// Session is one chat request in flight. It owns the dataset, the
// transcript and the tool registry built around that dataset.
type Session struct {
	ID         string
	Identity   string
	Dataset    api.Dataset
	Transcript *Transcript

	registry *tools.Registry

	mu        sync.Mutex
	state     State
	slot      int
	toolCalls int
	userID    storage.UserID
	hasUser   bool
	err       error
	started   bool
}

func newSession(identity string, dataset api.Dataset, registry *tools.Registry) *Session {
	return &Session{
		ID:         api.NewSessionID(),
		Identity:   storage.NormalizeIdentity(identity),
		Dataset:    dataset,
		Transcript: &Transcript{},
		registry:   registry,
		state:      StateIdle,
		slot:       -1,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error a failed session ended with.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// SlotIndex returns the credential slot used by the latest model step,
// or -1 before the first step.
func (s *Session) SlotIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slot
}

// ToolCalls returns the number of tool calls executed so far.
func (s *Session) ToolCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toolCalls
}

// Tools returns the definitions offered to the model.
func (s *Session) Tools() []tools.Definition {
	return s.registry.List()
}

func (s *Session) transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ValidateTransition(s.state, to); err != nil {
		return err
	}
	s.state = to
	return nil
}

// begin marks the session as started. It returns false when the sequence
// was already consumed once.
func (s *Session) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return false
	}
	s.started = true
	return true
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return
	}
	s.state = StateFailed
	s.err = err
}

func (s *Session) setSlot(i int) {
	s.mu.Lock()
	s.slot = i
	s.mu.Unlock()
}

func (s *Session) addToolCall() {
	s.mu.Lock()
	s.toolCalls++
	s.mu.Unlock()
}

func (s *Session) user() (storage.UserID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, s.hasUser
}

func (s *Session) setUser(id storage.UserID) {
	s.mu.Lock()
	s.userID = id
	s.hasUser = true
	s.mu.Unlock()
}
