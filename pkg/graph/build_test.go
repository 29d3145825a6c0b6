package graph_test

import (
	"context"
	"testing"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/dsl"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func build(t *testing.T, def *domain.Definition) (*graph.Graph, *graph.Report) {
	t.Helper()
	return graph.Build(def, graph.NewKinds(graph.NewActions()), nil)
}

func TestBuild_Basic(t *testing.T) {
	b := dsl.New()
	b.State(10, "start").Start().On("Go", 20)
	b.State(20, "page").Publish("CSRF").Site("news", "world")

	g, report := build(t, b.Definition())
	require.True(t, report.OK(), "issues: %v", report.Issues)
	assert.Equal(t, 2, g.Len())

	start, ok := g.Get(10)
	require.True(t, ok)
	assert.Equal(t, domain.KindStart, start.Kind)

	tr, ok := start.Transition("GO")
	require.True(t, ok)
	assert.Equal(t, int64(10), tr.From)
	assert.Equal(t, int64(20), tr.To)
	assert.Equal(t, "go", tr.Event)

	page, _ := g.Get(20)
	require.True(t, page.IsPublishable())
	assert.Equal(t, []string{"csrf"}, page.Publish.ExcludeParams)
	assert.Equal(t, "news", page.Publish.Site)
	assert.Equal(t, "world", page.Publish.Section)
	assert.Equal(t, "page", page.Publish.Page)
	assert.Equal(t, graph.DefaultPublisher, page.Publish.Publisher)
}

func TestBuild_PublishAttributeSpellings(t *testing.T) {
	def := &domain.Definition{States: []domain.StateDef{
		{ID: 1, Type: "page", Attributes: map[string]string{"Publish": "True", "excludeParams": "a, b"}},
		{ID: 2, Type: "page", Attributes: map[string]string{"publish": "false", "exclude_params": "c"}},
		{ID: 3, Type: "page"},
	}}
	g, report := build(t, def)
	require.True(t, report.OK(), "issues: %v", report.Issues)

	s1, _ := g.Get(1)
	assert.True(t, s1.IsPublishable())
	assert.Equal(t, []string{"a", "b"}, s1.Publish.ExcludeParams)
	assert.Equal(t, "state1", s1.Publish.Page)

	s2, _ := g.Get(2)
	assert.NotNil(t, s2.Publish)
	assert.False(t, s2.IsPublishable())

	s3, _ := g.Get(3)
	assert.Nil(t, s3.Publish)
}

func TestBuild_SkipsBadItems(t *testing.T) {
	def := &domain.Definition{
		States: []domain.StateDef{
			{ID: 1, Name: "ok", Type: "start", Transitions: []domain.TransitionDef{
				{To: 2, Name: "next"},
				{To: 99, Name: "dangling"},
				{To: 2, Name: "NEXT"},
				{To: 2, Name: ""},
			}, Groups: []string{"missing"}},
			{ID: 2, Name: "end", Type: "stop"},
			{ID: 3, Name: "weird", Type: "teleport"},
			{ID: 4, Name: "noaction", Type: "action"},
			{ID: 5, Name: "badaction", Type: "action", Attributes: map[string]string{"action": "nope"}},
			{ID: 2, Name: "dup", Type: "stop"},
			{ID: 0, Name: "zero"},
			{ID: 6, Name: "badpub", Attributes: map[string]string{"publish": "maybe"}},
			{ID: 7, Name: "pre", Prerequisites: []domain.PrerequisiteDef{{State: 42, Event: "x"}, {State: 1}}},
		},
		Transitions: []domain.TransitionDef{{From: 77, To: 1, Name: "orphan"}},
	}

	g, report := build(t, def)
	assert.False(t, report.OK())

	// Surviving states: 1, 2, 7
	assert.Equal(t, 3, g.Len())
	for _, id := range []int64{3, 4, 5, 6} {
		_, ok := g.Get(id)
		assert.False(t, ok, "state %d should be skipped", id)
	}

	s1, _ := g.Get(1)
	assert.Equal(t, []string{"next"}, s1.Events())

	s7, _ := g.Get(7)
	assert.False(t, s7.HasPrerequisites())

	// dangling, dup event, empty event, missing group, unknown kind, missing action attr,
	// unknown action, dup id, zero id, bad publish flag, 2 bad prerequisites, orphan transition
	assert.Len(t, report.Issues, 13)
}

func TestBuild_TransitionGroups(t *testing.T) {
	b := dsl.New()
	b.Group("nav",
		domain.TransitionDef{To: 1, Name: "home"},
		domain.TransitionDef{To: 3, Name: "help", PublishKeys: []string{"Topic"}},
	)
	b.State(1, "home").Start().Uses("nav").On("go", 2)
	b.State(2, "list").Uses("NAV")
	b.State(3, "help")

	g, report := build(t, b.Definition())
	require.True(t, report.OK(), "issues: %v", report.Issues)

	home, _ := g.Get(1)
	list, _ := g.Get(2)
	assert.Equal(t, []string{"go", "help", "home"}, home.Events())
	assert.Equal(t, []string{"help", "home"}, list.Events())

	h1, _ := home.Transition("help")
	h2, _ := list.Transition("help")
	assert.Equal(t, int64(1), h1.From)
	assert.Equal(t, int64(2), h2.From, "group transitions are cloned with the referencing source")
	assert.Equal(t, []string{"topic"}, h2.PublishKeyParams)
	assert.NotSame(t, h1, h2)
}

func TestBuild_TopLevelTransitionsAndPrerequisites(t *testing.T) {
	def := &domain.Definition{
		States: []domain.StateDef{
			{ID: 1, Type: "start"},
			{ID: 2, Type: "page", Prerequisites: []domain.PrerequisiteDef{{Name: "login", State: 1, Event: "Auth"}}},
		},
		Transitions: []domain.TransitionDef{{From: 1, To: 2, Name: "go", ContentProvider: "static"}},
	}
	g, report := build(t, def)
	require.True(t, report.OK(), "issues: %v", report.Issues)

	s1, _ := g.Get(1)
	tr, ok := s1.Transition("go")
	require.True(t, ok)
	assert.Equal(t, "static", tr.ContentProvider)

	s2, _ := g.Get(2)
	require.True(t, s2.HasPrerequisites())
	assert.Equal(t, "auth", s2.Prerequisites[0].StartEvent)
}

func TestBuiltinActions(t *testing.T) {
	b := dsl.New()
	b.State(1, "router").Action("route").Attr("param", "view").Attr("default", "list")
	b.State(2, "setter").Action("set").Attr("set.Lang", "pt").Attr("event", "done")
	b.State(3, "emitter").Action("emit").Attr("event", "fire")
	b.State(4, "badroute").Action("route")

	g, report := build(t, b.Definition())
	require.True(t, report.OK(), "issues: %v", report.Issues)
	ctx := context.Background()

	run := func(id int64, req *domain.Request) (string, error) {
		s, ok := g.Get(id)
		require.True(t, ok)
		req.Current = s
		return s.Behavior.Execute(ctx, req)
	}

	next, err := run(1, domain.NewRequest(map[string]string{"View": "detail"}))
	require.NoError(t, err)
	assert.Equal(t, "detail", next)

	next, err = run(1, domain.NewRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "list", next)

	req := domain.NewRequest(nil)
	next, err = run(2, req)
	require.NoError(t, err)
	assert.Equal(t, "done", next)
	v, _ := req.Param("lang")
	assert.Equal(t, "pt", v)

	next, err = run(3, domain.NewRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "fire", next)

	_, err = run(4, domain.NewRequest(nil))
	assert.Error(t, err)
}
