package arbor

import (
	"log/slog"
	"time"

	"github.com/aretw0/arbor/internal/metrics"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/publish"
)

// Option defines a functional option for configuring the Controller.
type Option func(*Controller)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithLifecycleHooks registers engine observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(c *Controller) {
		c.hooks = hooks
	}
}

// WithMetrics records engine and cache activity.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithDefaultEvent sets the event retried when a state lacks the fired one.
func WithDefaultEvent(event string) Option {
	return func(c *Controller) {
		c.defaultEvent = event
	}
}

// WithTrace logs every hop of every walk.
func WithTrace(enabled bool) Option {
	return func(c *Controller) {
		c.trace = enabled
	}
}

// WithMaxHops bounds a single walk.
func WithMaxHops(n int) Option {
	return func(c *Controller) {
		c.maxHops = n
	}
}

// WithAction registers business logic for action states.
func WithAction(name string, fn graph.Action) Option {
	return func(c *Controller) {
		c.actions.Register(name, fn)
	}
}

// WithContentProvider registers a content provider.
func WithContentProvider(name string, p ContentProvider) Option {
	return func(c *Controller) {
		c.providers.Register(name, p)
	}
}

// WithIndexStore persists the publish index.
func WithIndexStore(store ports.IndexStore) Option {
	return func(c *Controller) {
		c.indexStore = store
	}
}

// WithArtifactStore sets where the default publisher writes artifacts.
func WithArtifactStore(store ports.ArtifactStore) Option {
	return func(c *Controller) {
		c.artifacts = store
	}
}

// WithLocker serializes artifact writers across instances.
func WithLocker(locker ports.DistributedLocker, wait time.Duration) Option {
	return func(c *Controller) {
		c.locker = locker
		c.lockWait = wait
	}
}

// WithTTL sets the artifact time-to-live of the default publisher.
func WithTTL(ttl time.Duration) Option {
	return func(c *Controller) {
		c.ttl = ttl
	}
}

// WithSweepInterval sets the expiration sweep period.
func WithSweepInterval(d time.Duration) Option {
	return func(c *Controller) {
		c.managerOpts = append(c.managerOpts, publish.WithSweepInterval(d))
	}
}

// WithPersistInterval sets the index persistence period.
func WithPersistInterval(d time.Duration) Option {
	return func(c *Controller) {
		c.managerOpts = append(c.managerOpts, publish.WithPersistInterval(d))
	}
}

// WithServer names the index partition owned by this instance.
func WithServer(server string) Option {
	return func(c *Controller) {
		c.managerOpts = append(c.managerOpts, publish.WithServer(server))
	}
}

// WithIgnoreParams adds request parameters that never take part in cache keys.
func WithIgnoreParams(params ...string) Option {
	return func(c *Controller) {
		c.ignoreParams = append(c.ignoreParams, params...)
	}
}

// WithPaths sets the artifact layout of the default publisher.
func WithPaths(paths publish.PathBuilder) Option {
	return func(c *Controller) {
		c.paths = paths
	}
}

// WithRules sets the rule chain of the default publisher, by registry name.
// The default chain is "dynamic", "republish".
func WithRules(names ...string) Option {
	return func(c *Controller) {
		c.ruleNames = names
	}
}

// WithRule registers a custom publish rule under name.
func WithRule(name string, r publish.Rule) Option {
	return func(c *Controller) {
		c.rules.Register(name, r)
	}
}

// WithPublisher registers an additional publisher, selected by the "publisher"
// state attribute. It shares the default rule chain.
func WithPublisher(name string, content publish.ContentPublisher) Option {
	return func(c *Controller) {
		c.extraPublishers[name] = content
	}
}

// WithWatch resets the graph whenever a watchable loader reports a change.
func WithWatch(enabled bool) Option {
	return func(c *Controller) {
		c.watch = enabled
	}
}
