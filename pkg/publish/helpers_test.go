package publish_test

import (
	"context"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
)

type stateMap map[int64]*domain.State

func (m stateMap) Get(id int64) (*domain.State, bool) {
	s, ok := m[id]
	return s, ok
}

func pageState(id int64, site string, exclude ...string) *domain.State {
	return &domain.State{
		ID:   id,
		Name: "detail",
		Kind: domain.KindPage,
		Publish: &domain.PublishSettings{
			Enabled:       true,
			Publisher:     "default",
			ExcludeParams: exclude,
			Site:          site,
			Section:       "books",
			Page:          "detail",
		},
		Transitions: map[string]*domain.Transition{},
	}
}

// gatedArtifacts blocks every write until release is closed.
type gatedArtifacts struct {
	mu      sync.Mutex
	files   map[string][]byte
	writes  int
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedArtifacts() *gatedArtifacts {
	return &gatedArtifacts{
		files:   make(map[string][]byte),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (g *gatedArtifacts) Write(_ context.Context, p string, data []byte) error {
	g.once.Do(func() { close(g.started) })
	<-g.release
	g.mu.Lock()
	defer g.mu.Unlock()
	g.files[p] = data
	g.writes++
	return nil
}

func (g *gatedArtifacts) Read(_ context.Context, p string) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.files[p], nil
}

func (g *gatedArtifacts) Exists(context.Context, string) (bool, error) { return true, nil }

func (g *gatedArtifacts) Ensure(context.Context, string) error { return nil }

func (g *gatedArtifacts) Writes() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.writes
}
