// Package cli wires a configuration into adapters and a controller for the
// arbor command.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/metrics"
	"github.com/aretw0/arbor/pkg/adapters/file"
	"github.com/aretw0/arbor/pkg/adapters/loam"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/adapters/redis"
	"github.com/aretw0/arbor/pkg/adapters/sqlite"
	"github.com/aretw0/arbor/pkg/config"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/publish"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// App is a controller built from configuration, with the resources it owns.
type App struct {
	Config     config.Config
	Controller *arbor.Controller
	Registry   *prometheus.Registry
	Logger     *slog.Logger

	closers []io.Closer
}

// NewLoader opens the graph definition source selected by cfg.
// The returned closer may be nil.
func NewLoader(cfg config.Graph) (ports.DefinitionLoader, io.Closer, error) {
	switch cfg.Source {
	case config.SourceYAML:
		return file.NewLoader(cfg.Path), nil, nil
	case config.SourceLoam:
		l, err := loam.Open(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return l, nil, nil
	case config.SourceSQLite:
		db, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return db.Loader(), db, nil
	}
	return nil, nil, fmt.Errorf("%w: unknown graph.source %q", config.ErrInvalid, cfg.Source)
}

// NewIndexStore opens the publish index backend selected by cfg.
// The returned closer may be nil.
func NewIndexStore(cfg config.Index) (ports.IndexStore, io.Closer, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memory.NewStore(), nil, nil
	case config.BackendFile:
		return file.NewIndexStore(cfg.Path), nil, nil
	case config.BackendRedis:
		store := redis.New(cfg.RedisAddr, redis.WithPrefix(cfg.RedisPrefix))
		return store, store, nil
	case config.BackendSQLite:
		db, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return db.IndexStore(), db, nil
	}
	return nil, nil, fmt.Errorf("%w: unknown index.backend %q", config.ErrInvalid, cfg.Backend)
}

// Build creates the controller described by cfg. Nothing is started.
func Build(cfg config.Config, logger *slog.Logger, extra ...arbor.Option) (*App, error) {
	app := &App{
		Config:   cfg,
		Registry: prometheus.NewRegistry(),
		Logger:   logger,
	}
	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	loader, closer, err := NewLoader(cfg.Graph)
	if err != nil {
		return nil, fmt.Errorf("open graph source: %w", err)
	}
	app.track(closer)

	store, closer, err := NewIndexStore(cfg.Index)
	if err != nil {
		app.closeAll()
		return nil, fmt.Errorf("open index store: %w", err)
	}
	app.track(closer)

	opts := []arbor.Option{
		arbor.WithLogger(logger),
		arbor.WithMetrics(metrics.New(app.Registry)),
		arbor.WithDefaultEvent(cfg.Engine.DefaultEvent),
		arbor.WithTrace(cfg.Engine.Trace),
		arbor.WithMaxHops(cfg.Engine.MaxHops),
		arbor.WithIndexStore(store),
		arbor.WithArtifactStore(file.NewArtifacts(cfg.Publish.Root)),
		arbor.WithPaths(publish.PathBuilder{Root: cfg.Publish.Root, MaxLength: cfg.Publish.MaxPathLength}),
		arbor.WithTTL(cfg.Publish.TTL),
		arbor.WithSweepInterval(cfg.Publish.SweepInterval),
		arbor.WithPersistInterval(cfg.Publish.PersistInterval),
		arbor.WithIgnoreParams(cfg.Publish.IgnoreParams...),
		arbor.WithRules(cfg.Publish.Rules...),
		arbor.WithWatch(cfg.Graph.Watch),
	}
	if cfg.Publish.Server != "" {
		opts = append(opts, arbor.WithServer(cfg.Publish.Server))
	}
	if cfg.Index.DistributedLock {
		// The lock shares the index prefix so instances of one deployment contend on the same keys.
		lockStore := redis.New(cfg.Index.RedisAddr)
		app.track(lockStore)
		opts = append(opts, arbor.WithLocker(redis.NewLocker(lockStore.Client(), cfg.Index.RedisPrefix), cfg.Publish.LockWait))
	}

	ctrl, err := arbor.New(loader, append(opts, extra...)...)
	if err != nil {
		app.closeAll()
		return nil, err
	}
	app.Controller = ctrl
	return app, nil
}

func (a *App) track(c io.Closer) {
	if c != nil {
		a.closers = append(a.closers, c)
	}
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Start loads the graph and starts the publish manager.
func (a *App) Start(ctx context.Context) error {
	return a.Controller.Start(ctx)
}

// Close stops the controller, persisting the index, then releases backends.
func (a *App) Close(ctx context.Context) error {
	var err error
	if a.Controller != nil {
		err = a.Controller.Close(ctx)
	}
	return errors.Join(err, a.closeAll())
}
