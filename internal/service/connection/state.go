// Package connection provides connection ID generation and lifecycle management
// for backend recognition connections.
package connection

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// State represents the lifecycle state of a backend connection.
type State int

const (
	// StateOpen - Connection accepts audio.
	StateOpen State = iota
	// StateDraining - Input closed, tail responses still being received.
	StateDraining
	// StateClosed - Connection ended normally.
	StateClosed
	// StateFailed - Connection ended with an error.
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateDraining:
		return "DRAINING"
	case StateClosed:
		return "CLOSED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if the state is terminal (CLOSED or FAILED).
func (s State) IsTerminal() bool {
	return s == StateClosed || s == StateFailed
}

// Errors for invalid state transitions.
var (
	ErrConnectionClosed = errors.New("connection is closed")
	ErrAlreadyDraining  = errors.New("connection is already draining")
)

// Lifecycle manages the state machine for a single connection.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	OPEN → DRAINING → CLOSED
//	  │        │
//	  │        └── Fail() ──→ FAILED
//	  │
//	  ├── Close() ──→ CLOSED
//	  └── Fail()  ──→ FAILED
//
// A connection is replaced when it expires, never extended.
type Lifecycle struct {
	mu       sync.RWMutex
	id       string
	openedAt time.Time
	deadline time.Time
	state    State
	err      error
}

// NewLifecycle creates a connection lifecycle in OPEN state whose deadline is
// openedAt + maxDuration.
func NewLifecycle(id string, openedAt time.Time, maxDuration time.Duration) *Lifecycle {
	return &Lifecycle{
		id:       id,
		openedAt: openedAt,
		deadline: openedAt.Add(maxDuration),
		state:    StateOpen,
	}
}

func (l *Lifecycle) ID() string {
	return l.id
}

func (l *Lifecycle) OpenedAt() time.Time {
	return l.openedAt
}

func (l *Lifecycle) Deadline() time.Time {
	return l.deadline
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Err returns the failure cause, nil unless FAILED.
func (l *Lifecycle) Err() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.err
}

// Expired reports whether now is at or past the deadline.
func (l *Lifecycle) Expired(now time.Time) bool {
	return !now.Before(l.deadline)
}

// Remaining returns the time left until the deadline, never negative.
func (l *Lifecycle) Remaining(now time.Time) time.Duration {
	if d := l.deadline.Sub(now); d > 0 {
		return d
	}
	return 0
}

// BeginDrain transitions OPEN to DRAINING.
func (l *Lifecycle) BeginDrain() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case StateOpen:
		l.state = StateDraining
		return nil
	case StateDraining:
		return ErrAlreadyDraining
	default:
		return ErrConnectionClosed
	}
}

// Close transitions to CLOSED. Returns false if already terminal.
func (l *Lifecycle) Close() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.IsTerminal() {
		return false
	}
	l.state = StateClosed
	return true
}

// Fail transitions to FAILED and records err. Returns false if already terminal.
func (l *Lifecycle) Fail(err error) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.IsTerminal() {
		return false
	}
	l.state = StateFailed
	l.err = err
	return true
}
