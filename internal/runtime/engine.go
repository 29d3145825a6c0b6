package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

const (
	// DefaultMaxHops bounds a single walk, including prerequisite sub-walks.
	DefaultMaxHops = 10000

	// maxPrerequisiteDepth bounds nested prerequisite sub-walks.
	maxPrerequisiteDepth = 32
)

// Engine walks the transition graph for one request at a time.
// It holds no per-request state and is safe for concurrent use.
type Engine struct {
	states       ports.StateResolver
	defaultEvent string
	trace        bool
	maxHops      int
	hooks        domain.LifecycleHooks
	logger       *slog.Logger
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithDefaultEvent sets the event retried when a state has no transition for the fired one.
func WithDefaultEvent(event string) EngineOption {
	return func(e *Engine) {
		e.defaultEvent = domain.NormalizeEvent(event)
	}
}

// WithTrace logs every hop at Debug level.
func WithTrace(enabled bool) EngineOption {
	return func(e *Engine) {
		e.trace = enabled
	}
}

// WithMaxHops overrides DefaultMaxHops. Values <= 0 are ignored.
func WithMaxHops(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxHops = n
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates a new engine reading states from the resolver.
func NewEngine(states ports.StateResolver, opts ...EngineOption) *Engine {
	e := &Engine{
		states:  states,
		maxHops: DefaultMaxHops,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DefaultEvent returns the configured fallback event, if any.
func (e *Engine) DefaultEvent() string {
	return e.defaultEvent
}

// Resolve finds the transition for event on state, falling back to the default
// event. fallback reports whether the substitution happened.
func (e *Engine) Resolve(state *domain.State, event string) (t *domain.Transition, fallback bool, ok bool) {
	if t, ok := state.Transition(event); ok {
		return t, false, true
	}
	if e.defaultEvent == "" || domain.NormalizeEvent(event) == e.defaultEvent {
		return nil, false, false
	}
	if t, ok := state.Transition(e.defaultEvent); ok {
		return t, true, true
	}
	return nil, false, false
}

// Run walks the graph from start, firing event, until a state produces no
// next event. It returns that terminal state.
//
// The main walk is a loop; only prerequisite sub-walks recurse, and their
// depth is bounded.
func (e *Engine) Run(ctx context.Context, req *domain.Request, start *domain.State, event string) (*domain.State, error) {
	hops := 0
	return e.walk(ctx, req, start, event, 0, &hops)
}

func (e *Engine) walk(ctx context.Context, req *domain.Request, start *domain.State, event string, depth int, hops *int) (*domain.State, error) {
	current := start
	for event != "" {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		*hops++
		if *hops > e.maxHops {
			return nil, fmt.Errorf("%w: %d hops from state %d", domain.ErrHopLimit, e.maxHops, start.ID)
		}

		t, fallback, ok := e.Resolve(current, event)
		if !ok {
			return nil, &domain.NoTransitionError{StateID: current.ID, Event: event, Trace: req.TraceCopy()}
		}
		if fallback {
			e.logger.Info("default transition substituted",
				"state_id", current.ID,
				"event", event,
				"default_event", e.defaultEvent,
			)
		}

		target, ok := e.states.Get(t.To)
		if !ok {
			return nil, &domain.StateNotFoundError{ID: t.To, Trace: req.TraceCopy()}
		}

		hop := domain.Hop{From: current.ID, To: target.ID, Event: t.Event, Fallback: fallback}
		req.AddHop(hop)
		e.emitTransition(ctx, hop)
		if e.trace {
			e.logger.Debug("transition", "from", hop.From, "to", hop.To, "event", hop.Event, "depth", depth)
		}

		req.Current = target
		e.emitStateEnter(ctx, target)

		if target.HasPrerequisites() {
			if err := e.runPrerequisites(ctx, req, target, depth, hops); err != nil {
				return nil, err
			}
			// A prerequisite's terminal state must not leak into the outer walk.
			req.Current = target
		}

		next, err := e.execute(ctx, req, target)
		if err != nil {
			return nil, err
		}

		current = target
		event = next
	}
	return current, nil
}

func (e *Engine) runPrerequisites(ctx context.Context, req *domain.Request, target *domain.State, depth int, hops *int) error {
	if depth+1 > maxPrerequisiteDepth {
		return fmt.Errorf("%w: prerequisites of state %d nested deeper than %d", domain.ErrHopLimit, target.ID, maxPrerequisiteDepth)
	}
	for _, p := range target.Prerequisites {
		start, ok := e.states.Get(p.StartState)
		if !ok {
			return &domain.StateNotFoundError{ID: p.StartState, Trace: req.TraceCopy()}
		}
		if e.trace {
			e.logger.Debug("prerequisite", "state_id", target.ID, "name", p.Name, "start", p.StartState, "event", p.StartEvent)
		}
		req.Current = start
		if _, err := e.walk(ctx, req, start, p.StartEvent, depth+1, hops); err != nil {
			return err
		}
	}
	return nil
}

// execute runs the state's behavior. Panics are converted into execution errors.
func (e *Engine) execute(ctx context.Context, req *domain.Request, target *domain.State) (next string, err error) {
	if target.Behavior == nil {
		return "", nil
	}
	defer func() {
		if r := recover(); r != nil {
			next = ""
			err = &domain.ExecutionError{StateID: target.ID, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	next, err = target.Behavior.Execute(ctx, req)
	if err != nil {
		return "", &domain.ExecutionError{StateID: target.ID, Err: err}
	}
	return next, nil
}

func (e *Engine) emitStateEnter(ctx context.Context, s *domain.State) {
	if e.hooks.OnStateEnter == nil {
		return
	}
	e.hooks.OnStateEnter(ctx, &domain.StateEvent{
		Timestamp: time.Now(),
		Type:      domain.EventStateEnter,
		StateID:   s.ID,
		Kind:      s.Kind,
	})
}

func (e *Engine) emitTransition(ctx context.Context, hop domain.Hop) {
	if e.hooks.OnTransition == nil {
		return
	}
	e.hooks.OnTransition(ctx, &domain.TransitionEvent{
		Timestamp: time.Now(),
		Type:      domain.EventTransition,
		Hop:       hop,
	})
}
