package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/registry"
	"golang.org/x/sync/singleflight"
)

// Holder owns the loaded Graph and is the single read path for all components.
// Reads are lock-free; a reload builds a complete graph before publishing it,
// so readers never observe a half-built graph.
type Holder struct {
	loader ports.DefinitionLoader
	kinds  *registry.Registry[KindFactory]
	logger *slog.Logger

	current atomic.Pointer[Graph]
	report  atomic.Pointer[Report]
	loads   singleflight.Group

	onLoad func(*Graph, *Report)
}

// HolderOption configures a Holder.
type HolderOption func(*Holder)

// WithLogger sets the logger used for load diagnostics.
func WithLogger(logger *slog.Logger) HolderOption {
	return func(h *Holder) {
		h.logger = logger
	}
}

// WithOnLoad registers a callback invoked after every successful build.
func WithOnLoad(fn func(*Graph, *Report)) HolderOption {
	return func(h *Holder) {
		h.onLoad = fn
	}
}

// NewHolder creates a Holder. Nothing is loaded until Load or the first Get.
func NewHolder(loader ports.DefinitionLoader, kinds *registry.Registry[KindFactory], opts ...HolderOption) *Holder {
	h := &Holder{
		loader: loader,
		kinds:  kinds,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Load returns the current graph, building it first if needed.
// A failure to read the definition source is returned to the caller.
func (h *Holder) Load(ctx context.Context) (*Graph, error) {
	if g := h.current.Load(); g != nil {
		return g, nil
	}
	v, err, _ := h.loads.Do("load", func() (any, error) {
		if g := h.current.Load(); g != nil {
			return g, nil
		}
		return h.build(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Graph), nil
}

// Reload rebuilds the graph from the source and swaps it in atomically.
// On failure the previous graph stays in place.
func (h *Holder) Reload(ctx context.Context) error {
	_, err, _ := h.loads.Do("reload", func() (any, error) {
		return h.build(ctx)
	})
	return err
}

func (h *Holder) build(ctx context.Context) (*Graph, error) {
	def, err := h.loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load graph definition: %w", err)
	}
	g, report := Build(def, h.kinds, h.logger)
	h.current.Store(g)
	h.report.Store(report)
	h.logger.Info("graph loaded", "states", g.Len(), "skipped", len(report.Issues))
	if h.onLoad != nil {
		h.onLoad(g, report)
	}
	return g, nil
}

// Get resolves a state id. It triggers a synchronized load if no graph is loaded.
func (h *Holder) Get(id int64) (*domain.State, bool) {
	g := h.current.Load()
	if g == nil {
		var err error
		g, err = h.Load(context.Background())
		if err != nil {
			h.logger.Error("graph reload failed", "err", err)
			return nil, false
		}
	}
	return g.Get(id)
}

// Reset drops the loaded graph; the next read rebuilds it.
func (h *Holder) Reset() {
	h.current.Store(nil)
	h.logger.Info("graph reset")
}

// Report returns the diagnostics of the last build, or nil.
func (h *Holder) Report() *Report {
	return h.report.Load()
}

// Watch resets the graph whenever a Watchable loader signals a change.
// It returns an error if the loader cannot be watched.
func (h *Holder) Watch(ctx context.Context) error {
	w, ok := h.loader.(ports.Watchable)
	if !ok {
		return fmt.Errorf("current loader does not support watching")
	}
	changes, err := w.Watch(ctx)
	if err != nil {
		return err
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
				h.Reset()
			}
		}
	}()
	return nil
}

var _ ports.StateResolver = (*Holder)(nil)
