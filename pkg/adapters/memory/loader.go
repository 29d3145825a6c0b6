package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
)

// Loader implements ports.DefinitionLoader and ports.Watchable over an in-memory definition.
type Loader struct {
	mu       sync.RWMutex
	def      *domain.Definition
	watchers []chan struct{}
	loads    int
}

// NewLoader creates a new in-memory loader.
func NewLoader(def *domain.Definition) *Loader {
	return &Loader{def: def}
}

// NewFromStates creates a loader from state definitions.
// This improves DX for tests.
func NewFromStates(states ...domain.StateDef) (*Loader, error) {
	seen := make(map[int64]bool, len(states))
	for _, s := range states {
		if s.ID == 0 {
			return nil, fmt.Errorf("state missing ID")
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("duplicate state ID %d", s.ID)
		}
		seen[s.ID] = true
	}
	return NewLoader(&domain.Definition{States: states}), nil
}

// Load returns a copy of the current definition.
func (l *Loader) Load(ctx context.Context) (*domain.Definition, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads++
	if l.def == nil {
		return nil, fmt.Errorf("no definition loaded")
	}
	cp := *l.def
	cp.States = append([]domain.StateDef(nil), l.def.States...)
	cp.Transitions = append([]domain.TransitionDef(nil), l.def.Transitions...)
	cp.Groups = append([]domain.GroupDef(nil), l.def.Groups...)
	return &cp, nil
}

// Loads returns how many times Load was called.
func (l *Loader) Loads() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loads
}

// Set replaces the definition and notifies watchers.
func (l *Loader) Set(def *domain.Definition) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.def = def

	// Sends are non-blocking and happen under the lock so a watcher being
	// closed concurrently is never written to.
	for _, ch := range l.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Watch implements ports.Watchable.
func (l *Loader) Watch(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	l.mu.Lock()
	l.watchers = append(l.watchers, ch)
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, w := range l.watchers {
			if w == ch {
				l.watchers = append(l.watchers[:i], l.watchers[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}
