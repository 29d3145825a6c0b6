// Package http exposes the controller over HTTP: the page route that walks the
// graph or serves published content, and admin routes for the publish cache
// and the graph.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/publish"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Request headers carrying the site and section of a page request.
const (
	HeaderSite    = "X-Arbor-Site"
	HeaderSection = "X-Arbor-Section"
)

// Response headers describing how a page was produced.
const (
	HeaderCache = "X-Arbor-Cache"
	HeaderKey   = "X-Arbor-Key"
	HeaderState = "X-Arbor-State"
)

// Controller is the part of arbor.Controller the server needs.
type Controller interface {
	Handle(ctx context.Context, r arbor.Request) (*arbor.Response, error)
	Reload(ctx context.Context) error
	States(ctx context.Context) ([]*domain.State, error)
	Report() *graph.Report
	CacheStats() publish.Stats
	ResetCache(site string, keys ...string) int
}

// Server serves a Controller.
type Server struct {
	Controller Controller
	metrics    http.Handler
	logger     *slog.Logger
}

// Option configures the handler.
type Option func(*Server)

// WithMetricsHandler mounts h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithLogger sets the request error logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler creates the HTTP handler for c.
func NewHandler(c Controller, opts ...Option) http.Handler {
	s := &Server{
		Controller: c,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)

	r.Get("/page/{state}", s.Page)
	r.Post("/page/{state}", s.Page)
	r.Get("/page/{state}/{event}", s.Page)
	r.Post("/page/{state}/{event}", s.Page)

	r.Route("/admin", func(r chi.Router) {
		r.Get("/cache", s.GetCacheStats)
		r.Delete("/cache", s.ResetCache)
		r.Get("/graph", s.GetGraph)
		r.Post("/graph/reload", s.ReloadGraph)
	})

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+HeaderSite+", "+HeaderSection)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Page handles GET|POST /page/{state}[/{event}].
// Without a path event, the "event" parameter is fired.
func (s *Server) Page(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "state"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid state id", http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form body", http.StatusBadRequest)
		return
	}

	params := make(map[string]string, len(r.Form))
	for k, v := range r.Form {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}

	resp, err := s.Controller.Handle(r.Context(), arbor.Request{
		StartState: id,
		Event:      chi.URLParam(r, "event"),
		Site:       r.Header.Get(HeaderSite),
		Section:    r.Header.Get(HeaderSection),
		Params:     params,
	})
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("page request failed", "state_id", id, "err", err)
		}
		http.Error(w, err.Error(), status)
		return
	}

	cache := "miss"
	if resp.FromCache {
		cache = "hit"
	}
	w.Header().Set(HeaderCache, cache)
	if resp.Key != "" {
		w.Header().Set(HeaderKey, resp.Key)
	}
	if resp.State != nil {
		w.Header().Set(HeaderState, strconv.FormatInt(resp.State.ID, 10))
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(resp.Content)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrStateNotFound), errors.Is(err, domain.ErrNoTransition):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrHopLimit):
		return http.StatusLoopDetected
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// GetCacheStats handles GET /admin/cache.
func (s *Server) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, s.Controller.CacheStats())
}

// ResetCache handles DELETE /admin/cache?site=..&key=..
// Keys may be repeated or comma separated.
func (s *Server) ResetCache(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var keys []string
	for _, v := range q["key"] {
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
	}
	removed := s.Controller.ResetCache(q.Get("site"), keys...)
	writeJSON(w, s.logger, map[string]int{"removed": removed})
}

type graphResponse struct {
	States []arbor.StateInfo `json:"states"`
	Issues []graph.Issue     `json:"issues"`
}

// GetGraph handles GET /admin/graph.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	states, err := s.Controller.States(r.Context())
	if err != nil {
		http.Error(w, "Graph unavailable: "+err.Error(), http.StatusServiceUnavailable)
		s.logger.Error("graph inspect failed", "err", err)
		return
	}
	resp := graphResponse{States: make([]arbor.StateInfo, 0, len(states)), Issues: []graph.Issue{}}
	for _, st := range states {
		resp.States = append(resp.States, arbor.Describe(st))
	}
	if rep := s.Controller.Report(); rep != nil {
		resp.Issues = append(resp.Issues, rep.Issues...)
	}
	writeJSON(w, s.logger, resp)
}

// ReloadGraph handles POST /admin/graph/reload.
func (s *Server) ReloadGraph(w http.ResponseWriter, r *http.Request) {
	if err := s.Controller.Reload(r.Context()); err != nil {
		http.Error(w, "Reload failed: "+err.Error(), http.StatusInternalServerError)
		s.logger.Error("graph reload failed", "err", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, map[string]string{"status": "ok"})
}

// Info is the body of GET /info.
type Info struct {
	App     string `json:"app"`
	Version string `json:"version"`
	States  int    `json:"states"`
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	states, err := s.Controller.States(r.Context())
	if err != nil {
		s.logger.Error("graph load failed", "err", err)
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, s.logger, Info{
		App:     "arbor-http",
		Version: strings.TrimSpace(arbor.Version),
		States:  len(states),
	})
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("response encode failed", "err", err)
	}
}
