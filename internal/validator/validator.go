// Package validator checks a built graph for states no flow can reach.
package validator

import (
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
)

// Result summarizes a graph check.
type Result struct {
	States     int
	Publishing int
	Starts     []int64
	// Unreachable lists states that no start state reaches through
	// transitions or prerequisites, ordered by id.
	Unreachable []int64
	// Issues are the items the graph builder skipped.
	Issues []graph.Issue
}

// OK reports whether the graph loaded cleanly and every state is reachable.
func (r Result) OK() bool {
	return len(r.Issues) == 0 && len(r.Unreachable) == 0
}

// Validate crawls g from every start state.
func Validate(g *graph.Graph, report *graph.Report) Result {
	states := g.States()
	res := Result{States: len(states)}
	if report != nil {
		res.Issues = append(res.Issues, report.Issues...)
	}

	visited := make(map[int64]bool, len(states))
	var queue []int64
	for _, st := range states {
		if st.IsPublishable() {
			res.Publishing++
		}
		if st.Kind == domain.KindStart {
			res.Starts = append(res.Starts, st.ID)
			queue = append(queue, st.ID)
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true

		st, ok := g.Get(id)
		if !ok {
			continue
		}
		for _, t := range st.Transitions {
			if !visited[t.To] {
				queue = append(queue, t.To)
			}
		}
		for _, p := range st.Prerequisites {
			if !visited[p.StartState] {
				queue = append(queue, p.StartState)
			}
		}
	}

	for _, st := range states {
		if !visited[st.ID] {
			res.Unreachable = append(res.Unreachable, st.ID)
		}
	}
	return res
}
