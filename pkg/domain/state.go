package domain

import (
	"context"
	"sort"
)

// StateKind is the tag of the State variant.
type StateKind string

const (
	// KindStart marks an entry point of a flow. It carries no behavior of its own.
	KindStart StateKind = "start"
	// KindPage produces content. Page states are the usual publish targets.
	KindPage StateKind = "page"
	// KindAction runs request logic and emits the next event.
	KindAction StateKind = "action"
	// KindStop ends the walk without producing content.
	KindStop StateKind = "stop"
)

// Behavior is the pluggable execution step of a State.
// An empty next event ends the walk at the current state.
type Behavior interface {
	Execute(ctx context.Context, req *Request) (next string, err error)
}

// BehaviorFunc adapts a plain function to Behavior.
type BehaviorFunc func(ctx context.Context, req *Request) (string, error)

// Execute calls f.
func (f BehaviorFunc) Execute(ctx context.Context, req *Request) (string, error) {
	return f(ctx, req)
}

// Prerequisite is a sub-flow drained to its terminal state before the owning state executes.
type Prerequisite struct {
	Name       string
	StartState int64
	StartEvent string
}

// PublishSettings is present on states whose output may be cached.
type PublishSettings struct {
	Enabled       bool
	Publisher     string
	ExcludeParams []string
	Site          string
	Section       string
	Page          string
}

// State represents a node in the transition graph.
// States are built once at load time and are read-only afterwards.
type State struct {
	ID         int64
	Name       string
	Kind       StateKind
	Attributes map[string]string

	Prerequisites []Prerequisite

	// Transitions is keyed by lower-cased event name.
	Transitions map[string]*Transition

	// Publish is nil for states that never publish.
	Publish *PublishSettings

	Behavior Behavior
}

// IsPublishable reports whether the state's output may be stored in the publish cache.
func (s *State) IsPublishable() bool {
	return s != nil && s.Publish != nil && s.Publish.Enabled
}

// HasPrerequisites reports whether sub-flows must run before the state executes.
func (s *State) HasPrerequisites() bool {
	return s != nil && len(s.Prerequisites) > 0
}

// Attr returns the attribute value, or def if unset.
func (s *State) Attr(name, def string) string {
	if v, ok := s.Attributes[name]; ok && v != "" {
		return v
	}
	return def
}

// Transition returns the outgoing transition for event, if any.
func (s *State) Transition(event string) (*Transition, bool) {
	t, ok := s.Transitions[NormalizeEvent(event)]
	return t, ok
}

// Events returns the outgoing event names in sorted order.
func (s *State) Events() []string {
	events := make([]string, 0, len(s.Transitions))
	for e := range s.Transitions {
		events = append(events, e)
	}
	sort.Strings(events)
	return events
}

// String returns "name(id)" for logs.
func (s *State) String() string {
	if s == nil {
		return "<nil>"
	}
	if s.Name == "" {
		return formatID(s.ID)
	}
	return s.Name + "(" + formatID(s.ID) + ")"
}
