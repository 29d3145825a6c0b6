package dsl

import (
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
)

// StateBuilder provides a fluent API for configuring a state.
type StateBuilder struct {
	def     domain.StateDef
	builder *Builder
}

// Kind sets the state kind.
func (s *StateBuilder) Kind(kind domain.StateKind) *StateBuilder {
	s.def.Type = string(kind)
	return s
}

// Start marks the state as an entry point.
func (s *StateBuilder) Start() *StateBuilder {
	return s.Kind(domain.KindStart)
}

// Stop marks the state as a terminal stop state.
func (s *StateBuilder) Stop() *StateBuilder {
	return s.Kind(domain.KindStop)
}

// Action marks the state as an action state running the named action.
func (s *StateBuilder) Action(name string) *StateBuilder {
	s.def.Type = string(domain.KindAction)
	return s.Attr("action", name)
}

// Attr sets an attribute.
func (s *StateBuilder) Attr(key, value string) *StateBuilder {
	s.def.Attributes[key] = value
	return s
}

// Publish enables publishing, optionally excluding parameters from the cache key.
func (s *StateBuilder) Publish(excludeParams ...string) *StateBuilder {
	s.def.Attributes["publish"] = "true"
	if len(excludeParams) > 0 {
		s.def.Attributes["exclude-params"] = strings.Join(excludeParams, ",")
	}
	return s
}

// Site sets the site and section used to place published artifacts.
func (s *StateBuilder) Site(site, section string) *StateBuilder {
	s.def.Attributes["site"] = site
	s.def.Attributes["section"] = section
	return s
}

// On adds a transition fired by event.
func (s *StateBuilder) On(event string, to int64) *StateBuilder {
	s.def.Transitions = append(s.def.Transitions, domain.TransitionDef{To: to, Name: event})
	return s
}

// OnWithKeys adds a transition whose cache key uses only the given parameters.
func (s *StateBuilder) OnWithKeys(event string, to int64, provider string, keys ...string) *StateBuilder {
	s.def.Transitions = append(s.def.Transitions, domain.TransitionDef{
		To:              to,
		Name:            event,
		PublishKeys:     keys,
		ContentProvider: provider,
	})
	return s
}

// Uses merges a named transition group into the state.
func (s *StateBuilder) Uses(group string) *StateBuilder {
	s.def.Groups = append(s.def.Groups, group)
	return s
}

// Requires declares a prerequisite sub-flow.
func (s *StateBuilder) Requires(name string, start int64, event string) *StateBuilder {
	s.def.Prerequisites = append(s.def.Prerequisites, domain.PrerequisiteDef{Name: name, State: start, Event: event})
	return s
}

// State continues building another state.
func (s *StateBuilder) State(id int64, name string) *StateBuilder {
	return s.builder.State(id, name)
}
