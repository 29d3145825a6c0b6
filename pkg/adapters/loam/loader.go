// Package loam loads graph definitions from a directory of documents, one per
// state, using the loam document store. Frontmatter carries the state fields and
// the document body becomes the "content" attribute.
package loam

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/loam"
)

// WatchPattern selects the documents that trigger a reload.
const WatchPattern = "**/*.{md,json,yaml,yml}"

// Loader adapts a loam repository to ports.DefinitionLoader.
type Loader struct {
	Repo *loam.TypedRepository[StateMetadata]
}

// New creates a loader over an existing typed repository.
func New(repo *loam.TypedRepository[StateMetadata]) *Loader {
	return &Loader{Repo: repo}
}

// Open initializes a read-only, strict loam repository at dir.
// Strict mode keeps numeric frontmatter as json.Number so large ids survive.
func Open(dir string) (*Loader, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	repo, err := loam.Init(abs,
		loam.WithStrict(true),
		loam.WithReadOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return New(loam.NewTypedRepository[StateMetadata](repo)), nil
}

// Load lists every document and converts it to a definition.
// Documents are taken in path order. Two documents declaring the same state
// id are both passed on, so the graph keeps the first and reports the other.
func (l *Loader) Load(ctx context.Context) (*domain.Definition, error) {
	docs, err := l.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })

	def := &domain.Definition{}
	for _, doc := range docs {
		meta := doc.Data
		if meta.Group != "" && meta.ID == 0 {
			def.Groups = append(def.Groups, domain.GroupDef{
				Name:        meta.Group,
				Transitions: convertTransitions(meta.Transitions),
			})
			continue
		}
		def.States = append(def.States, toStateDef(doc.ID, meta, doc.Content))
	}

	sort.SliceStable(def.States, func(i, j int) bool { return def.States[i].ID < def.States[j].ID })
	sort.Slice(def.Groups, func(i, j int) bool { return def.Groups[i].Name < def.Groups[j].Name })
	return def, nil
}

func toStateDef(docID string, meta StateMetadata, body string) domain.StateDef {
	name := meta.Name
	if name == "" {
		name = trimExtension(docID)
	}
	attrs := make(map[string]string, len(meta.Attributes)+1)
	for k, v := range meta.Attributes {
		attrs[k] = stringify(v)
	}
	if _, ok := attrs["content"]; !ok {
		if body = strings.TrimSpace(body); body != "" {
			attrs["content"] = body
		}
	}

	sd := domain.StateDef{
		ID:          meta.ID,
		Name:        name,
		Type:        meta.Type,
		Attributes:  attrs,
		Transitions: convertTransitions(meta.Transitions),
		Groups:      meta.Groups,
	}
	for _, p := range meta.Prerequisites {
		sd.Prerequisites = append(sd.Prerequisites, domain.PrerequisiteDef{Name: p.Name, State: p.State, Event: p.Event})
	}
	return sd
}

func convertTransitions(src []TransitionMeta) []domain.TransitionDef {
	if len(src) == 0 {
		return nil
	}
	out := make([]domain.TransitionDef, 0, len(src))
	for _, t := range src {
		name := t.Name
		if name == "" {
			name = t.On
		}
		out = append(out, domain.TransitionDef{
			To:              t.To,
			Name:            name,
			PublishKeys:     t.PublishKeys,
			ContentProvider: t.ContentProvider,
		})
	}
	return out
}

// stringify flattens a frontmatter scalar or list into an attribute value.
// Lists are joined with commas, matching the exclude-params format.
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, stringify(item))
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(val, ",")
	default:
		return fmt.Sprintf("%v", val)
	}
}

func trimExtension(id string) string {
	return filepath.ToSlash(strings.TrimSuffix(id, filepath.Ext(id)))
}

// Watch implements ports.Watchable.
func (l *Loader) Watch(ctx context.Context) (<-chan struct{}, error) {
	events, err := l.Repo.Watch(ctx, WatchPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to start loam watcher: %w", err)
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				// Coalesce bursts: a pending signal already triggers a full reload.
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}()
	return ch, nil
}
