package arbor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/internal/metrics"
	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/publish"
	"github.com/aretw0/arbor/pkg/registry"
)

// Request is one page request entering the controller.
type Request struct {
	StartState int64
	// Event is fired on the start state. If empty, the "event" parameter is used.
	Event   string
	Site    string
	Section string
	Params  map[string]string
}

// Response is the outcome of Handle.
type Response struct {
	Content []byte
	// State is the final state of the walk, or the published state on a cache hit.
	State     *domain.State
	Key       string
	FromCache bool
	Trace     []domain.Hop
}

// Controller ties the state graph, the transition engine and the publish cache together.
type Controller struct {
	loader     ports.DefinitionLoader
	graph      *graph.Holder
	engine     *runtime.Engine
	manager    *publish.Manager
	publishers *publish.Set

	actions         *registry.Registry[graph.Action]
	providers       *registry.Registry[ContentProvider]
	rules           *registry.Registry[publish.Rule]
	ruleNames       []string
	extraPublishers map[string]publish.ContentPublisher

	indexStore   ports.IndexStore
	artifacts    ports.ArtifactStore
	locker       ports.DistributedLocker
	lockWait     time.Duration
	ttl          time.Duration
	ignoreParams []string
	paths        publish.PathBuilder
	managerOpts  []publish.ManagerOption

	defaultEvent string
	trace        bool
	maxHops      int
	watch        bool
	hooks        domain.LifecycleHooks
	metrics      *metrics.Metrics
	logger       *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
}

// New creates a controller reading its graph from loader.
// Without WithArtifactStore, artifacts are kept in memory.
func New(loader ports.DefinitionLoader, opts ...Option) (*Controller, error) {
	if loader == nil {
		return nil, errors.New("a definition loader is required")
	}
	c := &Controller{
		loader:          loader,
		actions:         graph.NewActions(),
		providers:       registry.New[ContentProvider]("content provider"),
		rules:           publish.NewRules(),
		ruleNames:       []string{"dynamic", "republish"},
		extraPublishers: make(map[string]publish.ContentPublisher),
	}
	c.providers.Register(DefaultProvider, ContentProviderFunc(staticProvider))

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = logging.NewNop()
	}
	if c.artifacts == nil {
		c.artifacts = memory.NewArtifacts()
	}

	c.graph = graph.NewHolder(loader, graph.NewKinds(c.actions), graph.WithLogger(c.logger))

	hooks := c.hooks
	if c.metrics != nil {
		hooks = chainHooks(c.hooks, c.metrics.Hooks())
	}
	c.engine = runtime.NewEngine(c.graph,
		runtime.WithDefaultEvent(c.defaultEvent),
		runtime.WithTrace(c.trace),
		runtime.WithMaxHops(c.maxHops),
		runtime.WithLifecycleHooks(hooks),
		runtime.WithLogger(c.logger),
	)

	rules, err := publish.BuildRules(c.rules, c.ruleNames)
	if err != nil {
		return nil, fmt.Errorf("publish rules: %w", err)
	}

	c.publishers = publish.NewSet(c.graph)
	managerOpts := []publish.ManagerOption{
		publish.WithIndexStore(c.indexStore),
		publish.WithExpiry(c.publishers),
		publish.WithLogger(c.logger),
	}
	if c.metrics != nil {
		managerOpts = append(managerOpts, publish.WithObserver(c.metrics))
	}
	c.manager = publish.NewManager(append(managerOpts, c.managerOpts...)...)

	fileOpts := []publish.FileOption{
		publish.WithTTL(c.ttl),
		publish.WithKeyDeriver(publish.NewKeyDeriver(c.ignoreParams...)),
		publish.WithPaths(c.paths),
		publish.WithFileLogger(c.logger),
	}
	if c.locker != nil {
		fileOpts = append(fileOpts, publish.WithLocker(c.locker, c.lockWait))
	}
	c.publishers.Add(publish.NewPublisher(graph.DefaultPublisher,
		publish.NewFilePublisher(c.artifacts, fileOpts...), c.manager, c.graph, rules...))
	for name, content := range c.extraPublishers {
		c.publishers.Add(publish.NewPublisher(name, content, c.manager, c.graph, rules...))
	}

	return c, nil
}

func chainHooks(a, b domain.LifecycleHooks) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStateEnter: func(ctx context.Context, e *domain.StateEvent) {
			if a.OnStateEnter != nil {
				a.OnStateEnter(ctx, e)
			}
			b.OnStateEnter(ctx, e)
		},
		OnTransition: func(ctx context.Context, e *domain.TransitionEvent) {
			if a.OnTransition != nil {
				a.OnTransition(ctx, e)
			}
			b.OnTransition(ctx, e)
		},
	}
}

// Start loads the graph and starts the publish manager.
// A graph that cannot be read is fatal.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return errors.New("controller already started")
	}
	if _, err := c.graph.Load(ctx); err != nil {
		return err
	}
	if err := c.manager.Start(ctx); err != nil {
		return err
	}
	if c.watch {
		watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		if err := c.graph.Watch(watchCtx); err != nil {
			cancel()
			c.logger.Warn("graph watch disabled", "err", err)
		} else {
			c.cancel = cancel
		}
	}
	c.started = true
	return nil
}

// Close stops background work and persists the publish index.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()
	return c.manager.Close(ctx)
}

// Graph returns the state graph holder.
func (c *Controller) Graph() *graph.Holder {
	return c.graph
}

// Manager returns the publish cache manager.
func (c *Controller) Manager() *publish.Manager {
	return c.manager
}

// Publishers returns the publisher set.
func (c *Controller) Publishers() *publish.Set {
	return c.publishers
}

// Engine returns the transition engine.
func (c *Controller) Engine() *runtime.Engine {
	return c.engine
}

// Reload rebuilds the graph. The previous graph stays in place on failure.
func (c *Controller) Reload(ctx context.Context) error {
	return c.graph.Reload(ctx)
}

// Handle serves one request: from the publish cache when a usable artifact
// exists, otherwise by walking the graph and rendering the final state.
// A failed publish is logged and the fresh content is served.
func (c *Controller) Handle(ctx context.Context, r Request) (*Response, error) {
	began := time.Now()

	start, ok := c.graph.Get(r.StartState)
	if !ok {
		return nil, &domain.StateNotFoundError{ID: r.StartState}
	}

	req := domain.NewRequest(r.Params)
	req.Site, req.Section = r.Site, r.Section
	req.Current = start

	event := r.Event
	if event == "" {
		event, _ = req.Param(publish.ParamEvent)
	}
	event = domain.NormalizeEvent(event)

	var (
		first  *domain.Transition
		target *domain.State
		pub    *publish.Publisher
		key    string
	)
	if t, _, ok := c.engine.Resolve(start, event); ok {
		first = t
		if st, ok := c.graph.Get(t.To); ok && st.IsPublishable() {
			p, err := c.publishers.For(st)
			if err != nil {
				c.logger.Warn("publisher not available", "state_id", st.ID, "err", err)
			} else {
				target, pub = st, p
				key = pub.Key(req, start, event, t, target)
			}
		}
	}

	if pub != nil && pub.UsePublishedContent(key, req) {
		content, err := pub.Serve(ctx, key)
		if err == nil {
			c.observe(true, began)
			return &Response{Content: content, State: target, Key: key, FromCache: true}, nil
		}
		c.logger.Warn("published artifact unreadable, rendering", "key", key, "err", err)
	}

	final, err := c.engine.Run(ctx, req, start, event)
	if err != nil {
		return nil, err
	}

	provider, err := c.providers.Lookup(providerFor(final, first))
	if err != nil {
		return nil, fmt.Errorf("render state %d: %w", final.ID, err)
	}
	content, err := provider.Render(ctx, req, final)
	if err != nil {
		return nil, fmt.Errorf("render state %d: %w", final.ID, err)
	}

	if pub != nil && pub.ShouldBePublished(req, target) {
		if _, err := pub.Publish(ctx, req, key, start, event, target, content); err != nil {
			switch {
			case errors.Is(err, domain.ErrWriteInFlight):
				c.logger.Debug("publish skipped, another writer is active", "key", key)
			case errors.Is(err, domain.ErrSiteConflict):
				c.logger.Debug("publish skipped, key is published for another site", "key", key, "site", req.Site)
			default:
				c.logger.Error("publish failed, serving fresh content", "key", key, "err", err)
			}
		}
	}

	c.observe(false, began)
	return &Response{Content: content, State: final, Key: key, Trace: req.TraceCopy()}, nil
}

func (c *Controller) observe(cached bool, began time.Time) {
	if c.metrics != nil {
		c.metrics.ObserveRequest(cached, time.Since(began))
	}
}
