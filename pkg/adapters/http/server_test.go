package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/dsl"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/publish"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHandler(t *testing.T, opts ...Option) (http.Handler, *arbor.Controller) {
	t.Helper()
	b := dsl.New()
	b.State(10, "home").Start().On("go", 20).On("loop", 30)
	b.State(20, "catalog").Publish("session").Site("shop", "books").Attr("content", "<h1>Catalog</h1>")
	b.State(30, "spin").Attr("next", "again").On("again", 30)

	c, err := arbor.New(b.Build(), arbor.WithMaxHops(50))
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return NewHandler(c, opts...), c
}

func do(h http.Handler, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestPage_PublishThenHit(t *testing.T) {
	h, _ := newHandler(t)

	first := do(h, http.MethodGet, "/page/10/go?page=2&session=s1")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "miss", first.Header().Get(HeaderCache))
	assert.Equal(t, "10_go_2", first.Header().Get(HeaderKey))
	assert.Equal(t, "20", first.Header().Get(HeaderState))
	assert.Equal(t, "<h1>Catalog</h1>", first.Body.String())

	second := do(h, http.MethodGet, "/page/10?event=go&page=2&session=s2")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "hit", second.Header().Get(HeaderCache))
	assert.Equal(t, "10_go_2", second.Header().Get(HeaderKey))
	assert.Equal(t, "<h1>Catalog</h1>", second.Body.String())
}

func TestPage_FormBody(t *testing.T) {
	h, _ := newHandler(t)

	form := url.Values{"page": {"3"}}
	req := httptest.NewRequest(http.MethodPost, "/page/10/go", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "10_go_3", w.Header().Get(HeaderKey))
}

func TestPage_Errors(t *testing.T) {
	h, _ := newHandler(t)

	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/page/abc").Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/page/99/go").Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/page/10/nowhere").Code)
	assert.Equal(t, http.StatusLoopDetected, do(h, http.MethodGet, "/page/10/loop").Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(&domain.ExecutionError{StateID: 1, Err: errors.New("boom")}))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(context.Canceled))
	assert.Equal(t, http.StatusNotFound, statusFor(&domain.StateNotFoundError{ID: 4}))
}

func TestAdmin_Cache(t *testing.T) {
	h, c := newHandler(t)
	require.Equal(t, http.StatusOK, do(h, http.MethodGet, "/page/10/go?page=1").Code)
	require.Equal(t, http.StatusOK, do(h, http.MethodGet, "/page/10/go?page=2").Code)

	w := do(h, http.MethodGet, "/admin/cache")
	require.Equal(t, http.StatusOK, w.Code)
	var stats publish.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, 2, stats.Published)

	w = do(h, http.MethodDelete, "/admin/cache?key=10_go_1,missing")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"removed":1}`, w.Body.String())

	w = do(h, http.MethodDelete, "/admin/cache?site=shop")
	assert.JSONEq(t, `{"removed":1}`, w.Body.String())
	assert.Equal(t, 0, c.CacheStats().Entries)

	do(h, http.MethodGet, "/page/10/go?page=1")
	w = do(h, http.MethodDelete, "/admin/cache")
	assert.JSONEq(t, `{"removed":1}`, w.Body.String())
}

func TestAdmin_Graph(t *testing.T) {
	h, _ := newHandler(t)

	w := do(h, http.MethodGet, "/admin/graph")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		States []arbor.StateInfo `json:"states"`
		Issues []graph.Issue     `json:"issues"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.States, 3)
	assert.Equal(t, int64(10), resp.States[0].ID)
	assert.True(t, resp.States[1].Publish)
	assert.Equal(t, "shop", resp.States[1].Site)
	assert.Empty(t, resp.Issues)

	assert.Equal(t, http.StatusNoContent, do(h, http.MethodPost, "/admin/graph/reload").Code)
}

func TestMetricsAndInfo(t *testing.T) {
	h, _ := newHandler(t, WithMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("arbor_up 1\n"))
	})))

	assert.Equal(t, "arbor_up 1\n", do(h, http.MethodGet, "/metrics").Body.String())
	assert.JSONEq(t, `{"status":"ok"}`, do(h, http.MethodGet, "/health").Body.String())

	w := do(h, http.MethodGet, "/info")
	var info Info
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, strings.TrimSpace(arbor.Version), info.Version)
	assert.Equal(t, 3, info.States)
	assert.Equal(t, http.StatusOK, do(h, http.MethodOptions, "/page/10").Code)
}
