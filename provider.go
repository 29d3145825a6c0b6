package arbor

import (
	"context"
	"fmt"

	"github.com/aretw0/arbor/pkg/domain"
)

// DefaultProvider renders the "content" attribute of the final state.
const DefaultProvider = "static"

// ContentProvider renders the final state of a walk.
// Rendering and templating live outside arbor; providers adapt them.
type ContentProvider interface {
	Render(ctx context.Context, req *domain.Request, state *domain.State) ([]byte, error)
}

// ContentProviderFunc adapts a function to ContentProvider.
type ContentProviderFunc func(ctx context.Context, req *domain.Request, state *domain.State) ([]byte, error)

// Render calls f.
func (f ContentProviderFunc) Render(ctx context.Context, req *domain.Request, state *domain.State) ([]byte, error) {
	return f(ctx, req, state)
}

func staticProvider(_ context.Context, _ *domain.Request, state *domain.State) ([]byte, error) {
	content, ok := state.Attributes["content"]
	if !ok {
		return nil, fmt.Errorf("state %s has no content attribute", state)
	}
	return []byte(content), nil
}

// providerFor picks the provider name: the final state's "provider" attribute,
// then the hint on the first transition, then DefaultProvider.
func providerFor(final *domain.State, first *domain.Transition) string {
	if name := final.Attr("provider", ""); name != "" {
		return name
	}
	if first != nil && first.ContentProvider != "" {
		return first.ContentProvider
	}
	return DefaultProvider
}
