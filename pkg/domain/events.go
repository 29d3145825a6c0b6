package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventStateEnter EventType = "state_enter"
	EventTransition EventType = "transition"
)

// StateEvent represents entry into a state.
type StateEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	StateID   int64     `json:"state_id"`
	Kind      StateKind `json:"kind"`
}

// TransitionEvent represents a resolved hop.
type TransitionEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Hop       Hop       `json:"hop"`
}

// LifecycleHooks defines callbacks for engine observability.
// Hooks must not alter control flow.
type LifecycleHooks struct {
	OnStateEnter func(context.Context, *StateEvent)
	OnTransition func(context.Context, *TransitionEvent)
}
