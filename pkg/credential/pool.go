// Package credential manages the ordered pool of interchangeable upstream
// API keys and rotates between them when a key runs out of quota.
//
// The pool is the only state shared across concurrent chat sessions. All
// reads and writes of the current index happen under one mutex, so two
// sessions reporting a failure on the same key advance the index once.
package credential

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rhuss/datagem/pkg/debug"
	"github.com/rhuss/datagem/pkg/observability"
)

var (
	// ErrNoKeys is returned by New when no usable key is supplied.
	ErrNoKeys = errors.New("credential pool requires at least one API key")

	// ErrExhausted is returned by Attempt.Acquire once every slot has failed
	// within that attempt.
	ErrExhausted = errors.New("all API keys have exhausted their quota")
)

// Slot is a snapshot of one credential. Key is secret and must never be
// logged; use Masked.
type Slot struct {
	Key                 string
	Active              bool
	ConsecutiveFailures int
	LastQuotaError      string
	LastFailureAt       time.Time
}

// Masked returns the key with everything but its last four characters hidden.
func (s Slot) Masked() string {
	return MaskKey(s.Key)
}

// MaskKey hides all but the last four characters of key.
func MaskKey(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return "..." + key[len(key)-4:]
}

// Status is the read-only view exposed for health checks.
type Status struct {
	CurrentIndex   int    `json:"current_index"`
	TotalSlots     int    `json:"total_slots"`
	LastQuotaError string `json:"last_quota_error,omitempty"`
}

// Pool is a fixed, ordered set of credential slots with exactly one current
// slot. It is safe for concurrent use.
type Pool struct {
	mu             sync.Mutex
	slots          []Slot
	current        int
	lastQuotaError string
}

// New creates a Pool from keys in order. Blank entries are ignored.
func New(keys []string) (*Pool, error) {
	var slots []Slot
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			slots = append(slots, Slot{Key: k})
		}
	}
	if len(slots) == 0 {
		return nil, ErrNoKeys
	}
	observability.CredentialCurrentIndex.Set(0)
	return &Pool{slots: slots}, nil
}

// Len returns the number of slots.
func (p *Pool) Len() int {
	return len(p.slots)
}

// Current returns the index and a snapshot of the current slot.
func (p *Pool) Current() (int, Slot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.snapshot(p.current)
}

// ReportQuotaFailure records a quota failure for the slot at index. If that
// slot is still current, the current index advances to the next slot,
// wrapping after the last one. A report for a slot that is no longer current
// only updates that slot's record.
func (p *Pool) ReportQuotaFailure(index int, cause error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if index < 0 || index >= len(p.slots) {
		return
	}

	msg := "quota exceeded"
	if cause != nil {
		msg = cause.Error()
	}

	s := &p.slots[index]
	s.ConsecutiveFailures++
	s.LastQuotaError = msg
	s.LastFailureAt = time.Now()
	p.lastQuotaError = msg

	if index != p.current {
		debug.Log(debug.Credentials, "stale quota failure ignored for rotation",
			"slot", index, "current", p.current)
		return
	}

	p.current = (p.current + 1) % len(p.slots)
	observability.CredentialRotationsTotal.Inc()
	observability.CredentialCurrentIndex.Set(float64(p.current))
	slog.Warn("rotated API key after quota failure",
		"failed_slot", index,
		"next_slot", p.current,
		"total_slots", len(p.slots),
		"key", MaskKey(s.Key),
		"error", debug.Truncate(msg, 200),
	)
}

// ReportSuccess clears the consecutive failure count of the slot at index.
func (p *Pool) ReportSuccess(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index >= 0 && index < len(p.slots) {
		p.slots[index].ConsecutiveFailures = 0
	}
}

// Status returns the current index, the slot count and the most recent
// quota error of any slot.
func (p *Pool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		CurrentIndex:   p.current,
		TotalSlots:     len(p.slots),
		LastQuotaError: p.lastQuotaError,
	}
}

// Slots returns snapshots of all slots in order.
func (p *Pool) Slots() []Slot {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Slot, len(p.slots))
	for i := range p.slots {
		out[i] = p.snapshot(i)
	}
	return out
}

// pick returns the current slot unless it is excluded, in which case the
// next non-excluded slot in cyclic order is returned. ok is false when every
// slot is excluded. Callers hold p.mu.
func (p *Pool) pick(exclude map[int]bool) (int, Slot, bool) {
	for step := range len(p.slots) {
		i := (p.current + step) % len(p.slots)
		if !exclude[i] {
			return i, p.snapshot(i), true
		}
	}
	return 0, Slot{}, false
}

func (p *Pool) snapshot(i int) Slot {
	s := p.slots[i]
	s.Active = i == p.current
	return s
}

// Attempt tracks the slots that failed during one dispatch attempt, so the
// caller can tell rotation apart from exhaustion.
type Attempt struct {
	pool   *Pool
	failed map[int]bool
}

// Begin starts a new dispatch attempt.
func (p *Pool) Begin() *Attempt {
	return &Attempt{pool: p, failed: make(map[int]bool)}
}

// Acquire returns the slot to use next: the current slot, or the next one
// that has not failed in this attempt. It returns ErrExhausted once every
// slot has failed in this attempt.
func (a *Attempt) Acquire() (int, Slot, error) {
	a.pool.mu.Lock()
	defer a.pool.mu.Unlock()

	i, s, ok := a.pool.pick(a.failed)
	if !ok {
		return 0, Slot{}, fmt.Errorf("%w (%d keys tried)", ErrExhausted, len(a.failed))
	}
	debug.Log(debug.Credentials, "acquired API key", "slot", i, "key", s.Masked())
	return i, s, nil
}

// Fail marks the slot at index as failed for this attempt and reports the
// quota failure to the pool.
func (a *Attempt) Fail(index int, cause error) {
	a.failed[index] = true
	a.pool.ReportQuotaFailure(index, cause)
}

// Succeed reports a successful call on the slot at index.
func (a *Attempt) Succeed(index int) {
	a.pool.ReportSuccess(index)
}

// Failed returns how many distinct slots failed in this attempt.
func (a *Attempt) Failed() int {
	return len(a.failed)
}
