package graph

import (
	"sort"

	"github.com/aretw0/arbor/pkg/domain"
)

// Graph is an immutable id → State map.
type Graph struct {
	states map[int64]*domain.State
}

// Get returns the state with the given id.
func (g *Graph) Get(id int64) (*domain.State, bool) {
	if g == nil {
		return nil, false
	}
	s, ok := g.states[id]
	return s, ok
}

// Len returns the number of states.
func (g *Graph) Len() int {
	if g == nil {
		return 0
	}
	return len(g.states)
}

// States returns all states ordered by id.
func (g *Graph) States() []*domain.State {
	if g == nil {
		return nil
	}
	out := make([]*domain.State, 0, len(g.states))
	for _, s := range g.states {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
