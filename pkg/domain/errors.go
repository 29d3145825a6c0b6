package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoTransition is returned when a state has no transition for an event.
	ErrNoTransition = errors.New("no transition found")

	// ErrStateNotFound is returned when a state id cannot be resolved.
	ErrStateNotFound = errors.New("state not found")

	// ErrHopLimit is returned when a walk exceeds the configured hop budget.
	ErrHopLimit = errors.New("hop limit exceeded")

	// ErrWriteInFlight is returned when another writer holds a record's lease.
	ErrWriteInFlight = errors.New("publish already in flight")

	// ErrSiteConflict is returned when a record is already published under another site or section.
	ErrSiteConflict = errors.New("publish record belongs to another site")

	// ErrRecordNotFound is returned when a cache key has no record.
	ErrRecordNotFound = errors.New("publish record not found")

	// ErrIndexNotFound is returned by index stores that hold no index for this server yet.
	ErrIndexNotFound = errors.New("publish index not found")
)

// NoTransitionError reports an unresolvable (state, event) pair.
type NoTransitionError struct {
	StateID int64
	Event   string
	Trace   []Hop
}

func (e *NoTransitionError) Error() string {
	return fmt.Sprintf("no transition found: state %d, event %q (after %d hops)", e.StateID, e.Event, len(e.Trace))
}

// Is matches ErrNoTransition.
func (e *NoTransitionError) Is(target error) bool {
	return target == ErrNoTransition
}

// StateNotFoundError reports a transition target that is missing from the graph.
type StateNotFoundError struct {
	ID    int64
	Trace []Hop
}

func (e *StateNotFoundError) Error() string {
	return fmt.Sprintf("state not found: %d (after %d hops)", e.ID, len(e.Trace))
}

// Is matches ErrStateNotFound.
func (e *StateNotFoundError) Is(target error) bool {
	return target == ErrStateNotFound
}

// ExecutionError wraps a failure raised by a state's behavior.
type ExecutionError struct {
	StateID int64
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("state %d execution failed: %v", e.StateID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
