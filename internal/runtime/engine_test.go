package runtime_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/internal/runtime"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/dsl"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func holder(t *testing.T, b *dsl.Builder, actions map[string]graph.Action) *graph.Holder {
	t.Helper()
	reg := graph.NewActions()
	for name, fn := range actions {
		reg.Register(name, fn)
	}
	h := graph.NewHolder(b.Build(), graph.NewKinds(reg))
	_, err := h.Load(context.Background())
	require.NoError(t, err)
	return h
}

func start(t *testing.T, h *graph.Holder, id int64) *domain.State {
	t.Helper()
	s, ok := h.Get(id)
	require.True(t, ok, "state %d", id)
	return s
}

func TestEngine_SimpleWalk(t *testing.T) {
	b := dsl.New()
	b.State(10, "start").Start().On("go", 20)
	b.State(20, "page").Attr("next", "done").On("done", 30)
	b.State(30, "end").Stop()
	h := holder(t, b, nil)

	e := runtime.NewEngine(h)
	req := domain.NewRequest(nil)
	final, err := e.Run(context.Background(), req, start(t, h, 10), "GO")
	require.NoError(t, err)

	assert.Equal(t, int64(30), final.ID)
	assert.Equal(t, int64(30), req.Current.ID)
	assert.Equal(t, []domain.Hop{
		{From: 10, To: 20, Event: "go"},
		{From: 20, To: 30, Event: "done"},
	}, req.Trace)
}

func TestEngine_DefaultEventFallback(t *testing.T) {
	b := dsl.New()
	b.State(1, "cart").Start().On("continue", 2)
	b.State(2, "review")
	h := holder(t, b, nil)

	var buf bytes.Buffer
	logger := logging.NewWithWriter(&buf, slog.LevelInfo, false)
	e := runtime.NewEngine(h, runtime.WithDefaultEvent("continue"), runtime.WithLogger(logger))

	req := domain.NewRequest(nil)
	final, err := e.Run(context.Background(), req, start(t, h, 1), "checkout")
	require.NoError(t, err)
	assert.Equal(t, int64(2), final.ID)
	require.Len(t, req.Trace, 1)
	assert.True(t, req.Trace[0].Fallback)
	assert.Equal(t, "continue", req.Trace[0].Event)
	assert.Contains(t, buf.String(), "default transition substituted")
	assert.Contains(t, buf.String(), "checkout")
}

func TestEngine_NoTransition(t *testing.T) {
	b := dsl.New()
	b.State(1, "a").Start().On("go", 2)
	b.State(2, "b").Attr("next", "nowhere")
	h := holder(t, b, nil)

	e := runtime.NewEngine(h, runtime.WithDefaultEvent("continue"))
	req := domain.NewRequest(nil)
	_, err := e.Run(context.Background(), req, start(t, h, 1), "go")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoTransition)

	var nte *domain.NoTransitionError
	require.True(t, errors.As(err, &nte))
	assert.Equal(t, int64(2), nte.StateID)
	assert.Equal(t, "nowhere", nte.Event)
	assert.Len(t, nte.Trace, 1)
}

func TestEngine_StateNotFound(t *testing.T) {
	target := &domain.State{ID: 1, Transitions: map[string]*domain.Transition{
		"go": domain.NewTransition(1, 99, "go", nil, ""),
	}}
	e := runtime.NewEngine(mapResolver{1: target})
	_, err := e.Run(context.Background(), domain.NewRequest(nil), target, "go")
	assert.ErrorIs(t, err, domain.ErrStateNotFound)

	var snf *domain.StateNotFoundError
	require.True(t, errors.As(err, &snf))
	assert.Equal(t, int64(99), snf.ID)
}

func TestEngine_PrerequisiteIsolation(t *testing.T) {
	var seen []int64
	record := func(_ context.Context, req *domain.Request) (string, error) {
		seen = append(seen, req.Current.ID)
		return "", nil
	}

	b := dsl.New()
	b.State(1, "entry").Start().On("go", 2)
	b.State(2, "dashboard").Action("record").
		Requires("profile", 10, "load").
		Requires("orders", 20, "load")
	b.State(10, "profile-start").Start().On("load", 11)
	b.State(11, "profile-loaded").Action("record")
	b.State(20, "orders-start").Start().On("load", 21)
	b.State(21, "orders-loaded").Action("record")
	h := holder(t, b, map[string]graph.Action{"record": record})

	e := runtime.NewEngine(h)
	req := domain.NewRequest(nil)
	final, err := e.Run(context.Background(), req, start(t, h, 1), "go")
	require.NoError(t, err)

	assert.Equal(t, int64(2), final.ID)
	assert.Equal(t, int64(2), req.Current.ID)
	assert.Equal(t, []int64{11, 21, 2}, seen, "prerequisites run in order before the owner")
	assert.Len(t, req.Trace, 3)
}

func TestEngine_PrerequisiteFailureStopsWalk(t *testing.T) {
	b := dsl.New()
	b.State(1, "entry").Start().On("go", 2)
	b.State(2, "owner").Requires("", 10, "missing")
	b.State(10, "pre").Start()
	h := holder(t, b, nil)

	_, err := runtime.NewEngine(h).Run(context.Background(), domain.NewRequest(nil), start(t, h, 1), "go")
	assert.ErrorIs(t, err, domain.ErrNoTransition)
}

func TestEngine_ExecutionErrorWrapped(t *testing.T) {
	boom := errors.New("boom")
	b := dsl.New()
	b.State(1, "entry").Start().On("go", 2)
	b.State(2, "fails").Action("fail")
	h := holder(t, b, map[string]graph.Action{
		"fail": func(context.Context, *domain.Request) (string, error) { return "", boom },
	})

	_, err := runtime.NewEngine(h).Run(context.Background(), domain.NewRequest(nil), start(t, h, 1), "go")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var ee *domain.ExecutionError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, int64(2), ee.StateID)
}

func TestEngine_PanicBecomesExecutionError(t *testing.T) {
	b := dsl.New()
	b.State(1, "entry").Start().On("go", 2)
	b.State(2, "panics").Action("panic")
	h := holder(t, b, map[string]graph.Action{
		"panic": func(context.Context, *domain.Request) (string, error) { panic("kaboom") },
	})

	_, err := runtime.NewEngine(h).Run(context.Background(), domain.NewRequest(nil), start(t, h, 1), "go")
	var ee *domain.ExecutionError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, int64(2), ee.StateID)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestEngine_LongWalk(t *testing.T) {
	const n = 5000
	states := make(mapResolver, n)
	for i := int64(1); i <= n; i++ {
		s := &domain.State{ID: i, Transitions: map[string]*domain.Transition{}}
		if i < n {
			s.Transitions["next"] = domain.NewTransition(i, i+1, "next", nil, "")
			s.Behavior = domain.BehaviorFunc(func(context.Context, *domain.Request) (string, error) {
				return "next", nil
			})
		}
		states[i] = s
	}

	req := domain.NewRequest(nil)
	final, err := runtime.NewEngine(states).Run(context.Background(), req, states[1], "next")
	require.NoError(t, err)
	assert.Equal(t, int64(n), final.ID)
	assert.Len(t, req.Trace, n-1)
}

func TestEngine_HopLimit(t *testing.T) {
	b := dsl.New()
	b.State(1, "ping").Attr("next", "pong").On("pong", 2)
	b.State(2, "pong").Attr("next", "ping").On("ping", 1)
	h := holder(t, b, nil)

	_, err := runtime.NewEngine(h, runtime.WithMaxHops(50)).
		Run(context.Background(), domain.NewRequest(nil), start(t, h, 1), "pong")
	assert.ErrorIs(t, err, domain.ErrHopLimit)
}

func TestEngine_ContextCanceled(t *testing.T) {
	b := dsl.New()
	b.State(1, "a").Start().On("go", 2)
	b.State(2, "b")
	h := holder(t, b, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := runtime.NewEngine(h).Run(ctx, domain.NewRequest(nil), start(t, h, 1), "go")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_Hooks(t *testing.T) {
	b := dsl.New()
	b.State(1, "a").Start().On("go", 2)
	b.State(2, "b").Attr("next", "end").On("end", 3)
	b.State(3, "c").Stop()
	h := holder(t, b, nil)

	var entered []int64
	var hops []domain.Hop
	e := runtime.NewEngine(h, runtime.WithTrace(true), runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnStateEnter: func(_ context.Context, ev *domain.StateEvent) { entered = append(entered, ev.StateID) },
		OnTransition: func(_ context.Context, ev *domain.TransitionEvent) { hops = append(hops, ev.Hop) },
	}))

	_, err := e.Run(context.Background(), domain.NewRequest(nil), start(t, h, 1), "go")
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, entered)
	assert.Len(t, hops, 2)
}

func TestEngine_Resolve(t *testing.T) {
	s := &domain.State{ID: 1, Transitions: map[string]*domain.Transition{
		"continue": domain.NewTransition(1, 2, "continue", nil, ""),
	}}
	e := runtime.NewEngine(mapResolver{}, runtime.WithDefaultEvent("Continue"))

	tr, fallback, ok := e.Resolve(s, "checkout")
	require.True(t, ok)
	assert.True(t, fallback)
	assert.Equal(t, int64(2), tr.To)

	_, fallback, ok = e.Resolve(s, "continue")
	assert.True(t, ok)
	assert.False(t, fallback)

	_, _, ok = runtime.NewEngine(mapResolver{}).Resolve(s, "checkout")
	assert.False(t, ok)
}

type mapResolver map[int64]*domain.State

func (m mapResolver) Get(id int64) (*domain.State, bool) {
	s, ok := m[id]
	return s, ok
}
