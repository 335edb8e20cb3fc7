// Package optimistic tracks a locally applied change until the backend
// confirms or rejects it.
package optimistic

import "sync"

// State is the lifecycle position of a Transition.
type State int

const (
	Applied State = iota
	Confirmed
	Reverted
)

func (s State) String() string {
	switch s {
	case Applied:
		return "applied"
	case Confirmed:
		return "confirmed"
	case Reverted:
		return "reverted"
	default:
		return "unknown"
	}
}

// Transition holds the value before and after an optimistic change. It
// settles exactly once: later Confirm or Revert calls report false.
type Transition[T any] struct {
	mu    sync.Mutex
	state State
	prev  T
	next  T
}

// Apply starts a transition from prev to next.
func Apply[T any](prev, next T) *Transition[T] {
	return &Transition[T]{state: Applied, prev: prev, next: next}
}

// State returns the current state.
func (t *Transition[T]) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Value is what the UI should show: prev after a revert, next otherwise.
func (t *Transition[T]) Value() T {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Reverted {
		return t.prev
	}
	return t.next
}

// Confirm settles the transition, optionally replacing next with the
// authoritative value reported by the backend.
func (t *Transition[T]) Confirm(authoritative ...T) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Applied {
		return false
	}
	if len(authoritative) > 0 {
		t.next = authoritative[0]
	}
	t.state = Confirmed
	return true
}

// Revert settles the transition back to prev and returns it.
func (t *Transition[T]) Revert() (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Applied {
		var zero T
		return zero, false
	}
	t.state = Reverted
	return t.prev, true
}
