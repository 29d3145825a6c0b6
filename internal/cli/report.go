package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/arbor/internal/presentation/graph"
	"github.com/aretw0/arbor/internal/validator"
	"github.com/aretw0/arbor/pkg/config"
	"github.com/aretw0/arbor/pkg/domain"
	arborgraph "github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/publish"
)

// LoadGraph reads and builds the graph selected by cfg without starting anything.
func LoadGraph(ctx context.Context, cfg config.Graph, logger *slog.Logger) (*arborgraph.Graph, *arborgraph.Report, error) {
	loader, closer, err := NewLoader(cfg)
	if err != nil {
		return nil, nil, err
	}
	if closer != nil {
		defer closer.Close()
	}
	def, err := loader.Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load graph definition: %w", err)
	}
	g, report := arborgraph.Build(def, arborgraph.NewKinds(arborgraph.NewActions()), logger)
	return g, report, nil
}

// Validate loads the graph and checks it.
func Validate(ctx context.Context, cfg config.Graph, logger *slog.Logger) (validator.Result, error) {
	g, report, err := LoadGraph(ctx, cfg, logger)
	if err != nil {
		return validator.Result{}, err
	}
	return validator.Validate(g, report), nil
}

// Mermaid loads the graph and renders it as a Mermaid flowchart.
func Mermaid(ctx context.Context, cfg config.Graph, logger *slog.Logger, trace []domain.Hop) (string, error) {
	g, _, err := LoadGraph(ctx, cfg, logger)
	if err != nil {
		return "", err
	}
	return graph.GenerateMermaid(g.States(), graph.OverlayFromTrace(trace)), nil
}

// IndexStats reads the persisted publish index of app without sweeping or
// persisting it. app must not be started.
func IndexStats(ctx context.Context, app *App) (publish.Stats, error) {
	if _, err := app.Controller.Manager().Load(ctx); err != nil {
		return publish.Stats{}, fmt.Errorf("load publish index: %w", err)
	}
	return app.Controller.CacheStats(), nil
}

// FormatValidation renders a validation result as markdown.
func FormatValidation(res validator.Result) string {
	var sb strings.Builder
	sb.WriteString("# Graph validation\n\n")
	fmt.Fprintf(&sb, "- states: **%d**\n", res.States)
	fmt.Fprintf(&sb, "- publishing states: **%d**\n", res.Publishing)
	fmt.Fprintf(&sb, "- start states: %s\n", joinIDs(res.Starts))

	if len(res.Issues) > 0 {
		sb.WriteString("\n## Skipped items\n\n")
		sb.WriteString("| state | event | reason |\n|---|---|---|\n")
		for _, is := range res.Issues {
			fmt.Fprintf(&sb, "| %d | %s | %s |\n", is.StateID, is.Event, is.Reason)
		}
	}
	if len(res.Unreachable) > 0 {
		sb.WriteString("\n## Unreachable states\n\n")
		for _, id := range res.Unreachable {
			fmt.Fprintf(&sb, "- %d\n", id)
		}
	}
	if res.OK() {
		sb.WriteString("\nGraph is valid.\n")
	}
	return sb.String()
}

// FormatStats renders publish cache statistics as markdown.
func FormatStats(s publish.Stats) string {
	var sb strings.Builder
	sb.WriteString("# Publish cache\n\n")
	sb.WriteString("| metric | value |\n|---|---|\n")
	fmt.Fprintf(&sb, "| server | %s |\n", s.Server)
	fmt.Fprintf(&sb, "| entries | %d |\n", s.Entries)
	fmt.Fprintf(&sb, "| published | %d |\n", s.Published)
	fmt.Fprintf(&sb, "| writing | %d |\n", s.Writing)
	fmt.Fprintf(&sb, "| hits | %d |\n", s.Hits)
	fmt.Fprintf(&sb, "| evicted | %d |\n", s.Evicted)
	return sb.String()
}

func joinIDs(ids []int64) string {
	if len(ids) == 0 {
		return "none"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ", ")
}
