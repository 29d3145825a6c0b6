package cli

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/adapters/file"
	"github.com/aretw0/arbor/pkg/adapters/sqlite"
	"github.com/aretw0/arbor/pkg/config"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const graphYAML = `
states:
  - id: 10
    name: home
    type: start
    transitions:
      - name: go
        to: 20
  - id: 20
    name: catalog
    attributes:
      publish: true
      exclude-params: session
      site: shop
      content: "<h1>Catalog</h1>"
`

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "graph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(graphYAML), 0o644))

	cfg := config.Default()
	cfg.Graph.Path = path
	cfg.Index.Path = filepath.Join(dir, "index")
	cfg.Publish.Root = filepath.Join(dir, "public")
	cfg.Publish.Server = "node-a"
	return cfg
}

func TestBuild_PublishesToDiskAndPersistsIndex(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	app, err := Build(cfg, logging.NewNop())
	require.NoError(t, err)
	require.NoError(t, app.Start(ctx))

	resp, err := app.Controller.Handle(ctx, arbor.Request{StartState: 10, Event: "go", Params: map[string]string{"page": "1", "session": "x"}})
	require.NoError(t, err)
	assert.Equal(t, "10_go_1", resp.Key)
	require.NoError(t, app.Close(ctx))

	files, err := filepath.Glob(filepath.Join(cfg.Publish.Root, "shop", "*.html"))
	require.NoError(t, err)
	assert.Len(t, files, 1)

	again, err := Build(cfg, logging.NewNop())
	require.NoError(t, err)
	require.NoError(t, again.Start(ctx))
	defer again.Close(ctx)
	assert.Equal(t, 1, again.Controller.CacheStats().Entries)

	resp, err = again.Controller.Handle(ctx, arbor.Request{StartState: 10, Event: "go", Params: map[string]string{"page": "1", "session": "y"}})
	require.NoError(t, err)
	assert.True(t, resp.FromCache)
	assert.Equal(t, "<h1>Catalog</h1>", string(resp.Content))
}

func TestBuild_SQLiteBackends(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	dsn := filepath.Join(t.TempDir(), "arbor.db")
	g, _, err := LoadGraph(ctx, cfg.Graph, nil)
	require.NoError(t, err)
	require.Equal(t, 2, g.Len())

	db, err := sqlite.Open(dsn)
	require.NoError(t, err)
	loader, _, err := NewLoader(cfg.Graph)
	require.NoError(t, err)
	def, err := loader.Load(ctx)
	require.NoError(t, err)
	require.NoError(t, db.Import(ctx, def))
	require.NoError(t, db.Close())

	cfg.Graph = config.Graph{Source: config.SourceSQLite, DSN: dsn}
	cfg.Index = config.Index{Backend: config.BackendSQLite, Path: dsn}

	app, err := Build(cfg, logging.NewNop())
	require.NoError(t, err)
	require.NoError(t, app.Start(ctx))
	_, err = app.Controller.Handle(ctx, arbor.Request{StartState: 10, Event: "go"})
	require.NoError(t, err)
	require.NoError(t, app.Close(ctx))
}

func TestNewLoader_Unknown(t *testing.T) {
	_, _, err := NewLoader(config.Graph{Source: "xml"})
	assert.ErrorIs(t, err, config.ErrInvalid)
	_, _, err = NewIndexStore(config.Index{Backend: "etcd"})
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestValidateAndMermaid(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	res, err := Validate(ctx, cfg.Graph, nil)
	require.NoError(t, err)
	assert.True(t, res.OK())
	report := FormatValidation(res)
	assert.Contains(t, report, "states: **2**")
	assert.Contains(t, report, "Graph is valid.")

	out, err := Mermaid(ctx, cfg.Graph, nil, []domain.Hop{{From: 10, To: 20, Event: "go"}})
	require.NoError(t, err)
	assert.Contains(t, out, `s10 -- "go" --> s20`)
	assert.Contains(t, out, "class s20 current;")

	_, err = Validate(ctx, config.Graph{Source: config.SourceYAML, Path: filepath.Join(t.TempDir(), "missing.yaml")}, nil)
	assert.Error(t, err)
}

func TestIndexStats_LeavesStoredIndexUntouched(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	store := file.NewIndexStore(cfg.Index.Path)
	last := time.Now().Add(-time.Minute)
	require.NoError(t, store.Save(ctx, "node-a", []domain.IndexEntry{
		{Key: "10_go_1", StartState: 10, PublishedState: 20, Event: "go", Site: "shop", Path: "shop/10_go_1_catalog.html", LastPublished: &last, Hits: 2},
		{Key: "10_go_2", StartState: 10, PublishedState: 20, Event: "go", Site: "shop"},
	}))

	app, err := Build(cfg, logging.NewNop())
	require.NoError(t, err)
	stats, err := IndexStats(ctx, app)
	require.NoError(t, err)
	require.NoError(t, app.Close(ctx))

	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, 1, stats.Published)
	assert.Equal(t, int64(2), stats.Hits)

	entries, err := store.Load(ctx, "node-a")
	require.NoError(t, err)
	assert.Len(t, entries, 2, "the unpublished record is neither swept nor dropped")
}

func TestFormatStats(t *testing.T) {
	ctx := context.Background()
	app, err := Build(testConfig(t), logging.NewNop())
	require.NoError(t, err)
	require.NoError(t, app.Start(ctx))
	defer app.Close(ctx)

	out := FormatStats(app.Controller.CacheStats())
	assert.Contains(t, out, "| server | node-a |")
	assert.Contains(t, out, "| entries | 0 |")
}

func TestServeListener(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	app, err := Build(testConfig(t), logging.NewNop())
	require.NoError(t, err)
	require.NoError(t, app.Start(ctx))
	defer app.Close(context.Background())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- ServeListener(ctx, app, ln) }()

	base := "http://" + ln.Addr().String()
	resp, err := http.Get(base + "/page/10/go?page=3")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<h1>Catalog</h1>", string(body))

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "arbor_request_duration_seconds")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("server did not stop")
	}
}
