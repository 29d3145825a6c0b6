package tests

import (
	"context"
	"sort"
	"testing"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// DefinitionLoaderContractTest is a reusable test suite that verifies if an adapter complies with ports.DefinitionLoader.
// want lists the state ids and, per state, the event names the loader must report.
func DefinitionLoaderContractTest(t *testing.T, loader ports.DefinitionLoader, want map[int64][]string) {
	t.Helper()

	def, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error loading definition: %v", err)
	}
	if def == nil {
		t.Fatal("expected definition, got nil")
	}

	t.Run("States", func(t *testing.T) {
		got := make(map[int64]domain.StateDef)
		for _, s := range def.States {
			got[s.ID] = s
		}
		for id := range want {
			if _, ok := got[id]; !ok {
				t.Errorf("state %d missing from definition", id)
			}
		}
		if len(got) != len(want) {
			t.Errorf("state count mismatch: got %d, want %d", len(got), len(want))
		}
	})

	t.Run("Transitions", func(t *testing.T) {
		events := make(map[int64][]string)
		for _, s := range def.States {
			for _, tr := range s.Transitions {
				events[s.ID] = append(events[s.ID], domain.NormalizeEvent(tr.Name))
			}
		}
		for _, tr := range def.Transitions {
			events[tr.From] = append(events[tr.From], domain.NormalizeEvent(tr.Name))
		}
		for id, wantEvents := range want {
			gotEvents := events[id]
			sort.Strings(gotEvents)
			expected := append([]string(nil), wantEvents...)
			sort.Strings(expected)
			if len(gotEvents) != len(expected) {
				t.Errorf("state %d: got events %v, want %v", id, gotEvents, expected)
				continue
			}
			for i := range expected {
				if gotEvents[i] != expected[i] {
					t.Errorf("state %d: got events %v, want %v", id, gotEvents, expected)
					break
				}
			}
		}
	})
}
