package arbor

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/publish"
)

// States returns the loaded states ordered by id, loading the graph if needed.
func (c *Controller) States(ctx context.Context) ([]*domain.State, error) {
	g, err := c.graph.Load(ctx)
	if err != nil {
		return nil, err
	}
	return g.States(), nil
}

// Report returns the diagnostics of the last graph build, or nil before the first load.
func (c *Controller) Report() *graph.Report {
	return c.graph.Report()
}

// CacheStats returns a point-in-time view of the publish cache.
func (c *Controller) CacheStats() publish.Stats {
	return c.manager.Stats()
}

// ResetCache drops publish records. Explicit keys take precedence over site;
// with neither, the whole cache is cleared. It returns the number of records removed.
func (c *Controller) ResetCache(site string, keys ...string) int {
	switch {
	case len(keys) > 0:
		return c.manager.ResetKeys(keys...)
	case site != "":
		return c.manager.ResetSite(site)
	default:
		return c.manager.ResetAll()
	}
}

// StateInfo is the serializable view of a state used by the admin surfaces.
type StateInfo struct {
	ID            int64                `json:"id"`
	Name          string               `json:"name"`
	Kind          domain.StateKind     `json:"kind"`
	Publish       bool                 `json:"publish"`
	Publisher     string               `json:"publisher,omitempty"`
	Site          string               `json:"site,omitempty"`
	Prerequisites []int64              `json:"prerequisites,omitempty"`
	Transitions   []*domain.Transition `json:"transitions,omitempty"`
}

// Describe returns the StateInfo of st. Transitions are ordered by event.
func Describe(st *domain.State) StateInfo {
	info := StateInfo{
		ID:      st.ID,
		Name:    st.Name,
		Kind:    st.Kind,
		Publish: st.IsPublishable(),
	}
	if st.Publish != nil {
		info.Publisher = st.Publish.Publisher
		info.Site = st.Publish.Site
	}
	for _, p := range st.Prerequisites {
		info.Prerequisites = append(info.Prerequisites, p.StartState)
	}
	for _, e := range st.Events() {
		info.Transitions = append(info.Transitions, st.Transitions[e])
	}
	return info
}
