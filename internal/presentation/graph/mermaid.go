// Package graph renders a loaded state graph as a Mermaid flowchart.
package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
)

// Overlay marks the states a walk went through.
type Overlay struct {
	Visited []int64
	Current int64
}

// OverlayFromTrace builds an overlay from a walk trace: the target of the
// last hop is current, every other state touched is visited.
func OverlayFromTrace(trace []domain.Hop) *Overlay {
	if len(trace) == 0 {
		return nil
	}
	o := &Overlay{Current: trace[len(trace)-1].To}
	seen := map[int64]bool{o.Current: true}
	for _, h := range trace {
		for _, id := range []int64{h.From, h.To} {
			if !seen[id] {
				seen[id] = true
				o.Visited = append(o.Visited, id)
			}
		}
	}
	return o
}

// GenerateMermaid produces a Mermaid flowchart from states, in the given order.
// Shapes follow the state kind:
//   - start: ((circle))
//   - action: [[subroutine]]
//   - stop: ([stadium])
//   - publishing page: [(cylinder)]
//   - page: [rectangle]
//
// Prerequisites are drawn as dotted edges.
func GenerateMermaid(states []*domain.State, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, st := range states {
		opener, closer := "[", "]"
		switch {
		case st.Kind == domain.KindStart:
			opener, closer = "((", "))"
		case st.Kind == domain.KindAction:
			opener, closer = "[[", "]]"
		case st.Kind == domain.KindStop:
			opener, closer = "([", "])"
		case st.IsPublishable():
			opener, closer = "[(", ")]"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", nodeID(st.ID), opener, label(st), closer)

		for _, event := range st.Events() {
			t := st.Transitions[event]
			text := event
			if len(t.PublishKeyParams) > 0 {
				text += " [" + strings.Join(t.PublishKeyParams, ",") + "]"
			}
			fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", nodeID(st.ID), quote(text), nodeID(t.To))
		}
		for _, p := range st.Prerequisites {
			fmt.Fprintf(&sb, "    %s -. \"requires %s\" .-> %s\n", nodeID(st.ID), quote(p.Name), nodeID(p.StartState))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Black text keeps contrast on light fills under both themes.
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		for _, id := range overlay.Visited {
			fmt.Fprintf(&sb, "    class %s visited;\n", nodeID(id))
		}
		if overlay.Current != 0 {
			fmt.Fprintf(&sb, "    class %s current;\n", nodeID(overlay.Current))
		}
	}
	return sb.String()
}

func nodeID(id int64) string {
	return fmt.Sprintf("s%d", id)
}

func label(st *domain.State) string {
	if st.Name == "" {
		return fmt.Sprintf("%d", st.ID)
	}
	return quote(st.Name)
}

func quote(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}
