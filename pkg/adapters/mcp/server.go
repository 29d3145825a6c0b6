// Package mcp exposes operational tooling for a running controller as an MCP
// server: publish cache statistics and resets, graph listing and page rendering.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/publish"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// GraphURI is the resource exposing the loaded graph.
const GraphURI = "arbor://graph"

// Controller is the part of arbor.Controller the MCP server needs.
type Controller interface {
	Handle(ctx context.Context, r arbor.Request) (*arbor.Response, error)
	States(ctx context.Context) ([]*domain.State, error)
	CacheStats() publish.Stats
	ResetCache(site string, keys ...string) int
}

// ResetResponse reports a cache reset.
type ResetResponse struct {
	Removed int `json:"removed" jsonschema_description:"Number of publish records removed"`
}

// StatesResponse lists the loaded states.
type StatesResponse struct {
	States []arbor.StateInfo `json:"states" jsonschema_description:"Loaded states ordered by id"`
}

// PageResponse is the outcome of render_page.
type PageResponse struct {
	Content   string       `json:"content" jsonschema_description:"Rendered or published content"`
	StateID   int64        `json:"state_id" jsonschema_description:"Final state of the walk"`
	Key       string       `json:"key,omitempty" jsonschema_description:"Publish cache key, if the target publishes"`
	FromCache bool         `json:"from_cache" jsonschema_description:"Whether the content came from the publish cache"`
	Trace     []domain.Hop `json:"trace,omitempty" jsonschema_description:"Transitions taken"`
}

// Server wraps a Controller and exposes it as an MCP server.
type Server struct {
	ctrl      Controller
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP server instance.
func NewServer(ctrl Controller, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		ctrl:      ctrl,
		logger:    logger,
		mcpServer: server.NewMCPServer("arbor-mcp", strings.TrimSpace(arbor.Version)),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio serves on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves over SSE on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr string) error {
	baseURL := "http://localhost" + addr
	if !strings.HasPrefix(addr, ":") {
		baseURL = "http://" + addr
	}
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())
	httpServer := &http.Server{Addr: addr, Handler: mux}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("cache_stats",
		mcp.WithDescription("Show publish cache statistics for this server."),
		mcp.WithOutputSchema[publish.Stats](),
	), mcp.NewStructuredToolHandler(s.handleCacheStats))

	s.mcpServer.AddTool(mcp.NewTool("cache_reset",
		mcp.WithDescription("Drop publish records. Keys win over site; with neither, the whole cache is cleared."),
		mcp.WithString("site", mcp.Description("Only drop records published for this site")),
		mcp.WithString("keys", mcp.Description("Comma separated cache keys to drop")),
		mcp.WithOutputSchema[ResetResponse](),
	), mcp.NewStructuredToolHandler(s.handleCacheReset))

	s.mcpServer.AddTool(mcp.NewTool("list_states",
		mcp.WithDescription("List the states of the loaded graph with their transitions."),
		mcp.WithOutputSchema[StatesResponse](),
	), mcp.NewStructuredToolHandler(s.handleListStates))

	s.mcpServer.AddTool(mcp.NewTool("render_page",
		mcp.WithDescription("Walk the graph from a start state and return the page, using the publish cache."),
		mcp.WithNumber("state_id", mcp.Required(), mcp.Description("Start state id")),
		mcp.WithString("event", mcp.Description("Event fired on the start state")),
		mcp.WithString("params", mcp.Description("JSON object of request parameters")),
		mcp.WithOutputSchema[PageResponse](),
	), mcp.NewStructuredToolHandler(s.handleRenderPage))
}

func (s *Server) handleCacheStats(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (publish.Stats, error) {
	return s.ctrl.CacheStats(), nil
}

func (s *Server) handleCacheReset(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ResetResponse, error) {
	site, _ := args["site"].(string)
	raw, _ := args["keys"].(string)
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return ResetResponse{Removed: s.ctrl.ResetCache(site, keys...)}, nil
}

func (s *Server) handleListStates(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (StatesResponse, error) {
	states, err := s.ctrl.States(ctx)
	if err != nil {
		return StatesResponse{}, fmt.Errorf("list states failed: %w", err)
	}
	resp := StatesResponse{States: make([]arbor.StateInfo, 0, len(states))}
	for _, st := range states {
		resp.States = append(resp.States, arbor.Describe(st))
	}
	return resp, nil
}

func (s *Server) handleRenderPage(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (PageResponse, error) {
	id, ok := args["state_id"].(float64)
	if !ok || id <= 0 {
		return PageResponse{}, fmt.Errorf("state_id must be a positive number")
	}
	event, _ := args["event"].(string)
	params := map[string]string{}
	if raw, ok := args["params"].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			return PageResponse{}, fmt.Errorf("params must be a JSON object of strings: %w", err)
		}
	}

	resp, err := s.ctrl.Handle(ctx, arbor.Request{StartState: int64(id), Event: event, Params: params})
	if err != nil {
		s.logger.Warn("MCP render_page failed", "state_id", int64(id), "err", err)
		return PageResponse{}, fmt.Errorf("render failed: %w", err)
	}
	out := PageResponse{
		Content:   string(resp.Content),
		Key:       resp.Key,
		FromCache: resp.FromCache,
		Trace:     resp.Trace,
	}
	if resp.State != nil {
		out.StateID = resp.State.ID
	}
	return out, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(GraphURI, "Loaded state graph",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		resp, err := s.handleListStates(ctx, mcp.CallToolRequest{}, nil)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(resp)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      GraphURI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}
