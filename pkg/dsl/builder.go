package dsl

import (
	"sort"

	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/domain"
)

// Builder manages the graph construction.
type Builder struct {
	states map[int64]*StateBuilder
	groups map[string]*domain.GroupDef
}

// New creates a new graph builder.
func New() *Builder {
	return &Builder{
		states: make(map[int64]*StateBuilder),
		groups: make(map[string]*domain.GroupDef),
	}
}

// State creates a new state in the graph.
// If the state already exists, it returns the existing builder.
func (b *Builder) State(id int64, name string) *StateBuilder {
	if sb, ok := b.states[id]; ok {
		return sb
	}
	sb := &StateBuilder{
		def: domain.StateDef{
			ID:         id,
			Name:       name,
			Type:       string(domain.KindPage),
			Attributes: make(map[string]string),
		},
		builder: b,
	}
	b.states[id] = sb
	return sb
}

// Group declares a reusable transition group.
func (b *Builder) Group(name string, transitions ...domain.TransitionDef) *Builder {
	b.groups[name] = &domain.GroupDef{Name: name, Transitions: transitions}
	return b
}

// Definition returns the raw definition, states ordered by id.
func (b *Builder) Definition() *domain.Definition {
	def := &domain.Definition{}
	ids := make([]int64, 0, len(b.states))
	for id := range b.states {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		def.States = append(def.States, b.states[id].def)
	}

	names := make([]string, 0, len(b.groups))
	for n := range b.groups {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		def.Groups = append(def.Groups, *b.groups[n])
	}
	return def
}

// Build compiles the graph into a memory Loader.
func (b *Builder) Build() *memory.Loader {
	return memory.NewLoader(b.Definition())
}
