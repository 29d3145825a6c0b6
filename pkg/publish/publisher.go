package publish

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/registry"
)

// Publisher coordinates key derivation, rule evaluation and artifact writing
// for one content type.
type Publisher struct {
	name    string
	content ContentPublisher
	rules   Rules
	manager *Manager
	states  ports.StateResolver
}

// NewPublisher creates a publisher backed by content and the manager's cache.
func NewPublisher(name string, content ContentPublisher, manager *Manager, states ports.StateResolver, rules ...Rule) *Publisher {
	return &Publisher{
		name:    name,
		content: content,
		rules:   rules,
		manager: manager,
		states:  states,
	}
}

// Name returns the registry name.
func (p *Publisher) Name() string {
	return p.name
}

// Key derives the cache key.
func (p *Publisher) Key(req *domain.Request, start *domain.State, event string, t *domain.Transition, target *domain.State) string {
	return p.content.Key(req, start, event, t, target)
}

// UsePublishedContent reports whether the artifact published under key can be
// served for req. Records whose published state left the graph are evicted.
func (p *Publisher) UsePublishedContent(key string, req *domain.Request) bool {
	if p.usable(key, req) {
		return true
	}
	p.manager.observer.CacheMiss(p.name)
	return false
}

func (p *Publisher) usable(key string, req *domain.Request) bool {
	rec, ok := p.manager.Lookup(key)
	if !ok {
		return false
	}
	st, ok := p.states.Get(rec.PublishedStateID)
	if !ok {
		p.manager.logger.Warn("evicting orphaned publish record", "key", key, "state_id", rec.PublishedStateID)
		p.manager.Evict(key)
		return false
	}
	if !st.IsPublishable() || rec.Writing() || rec.Path() == "" {
		return false
	}
	if !rec.At(Location(req, st)) {
		return false
	}
	if p.content.IsExpired(rec) {
		return false
	}
	return p.rules.UsePublishedContent(req)
}

// ShouldBePublished reports whether fresh content for target is stored.
func (p *Publisher) ShouldBePublished(req *domain.Request, target *domain.State) bool {
	if !target.IsPublishable() {
		return false
	}
	return p.rules.ShouldBePublished(req)
}

// Serve returns the published content for key and counts the hit.
func (p *Publisher) Serve(ctx context.Context, key string) ([]byte, error) {
	rec, ok := p.manager.Lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrRecordNotFound, key)
	}
	data, err := p.content.Read(ctx, rec)
	if err != nil {
		p.manager.observer.CacheMiss(p.name)
		return nil, err
	}
	rec.Hit()
	p.manager.observer.CacheHit(p.name)
	return data, nil
}

// Publish stores content under key, creating the record if absent.
// A record bound to another site or section is left alone and
// domain.ErrSiteConflict is returned.
func (p *Publisher) Publish(ctx context.Context, req *domain.Request, key string, start *domain.State, event string, target *domain.State, content []byte) ([]byte, error) {
	site, section := Location(req, target)
	rec, _ := p.manager.CreateAt(key, start.ID, domain.NormalizeEvent(event), target.ID, site, section)
	if !rec.At(site, section) {
		return nil, fmt.Errorf("%w: %q is published under %q/%q", domain.ErrSiteConflict, key, rec.Site, rec.Section)
	}
	out, err := p.content.Publish(ctx, req, rec, target, content)
	if err == nil {
		p.manager.restore(rec)
	}
	if !errors.Is(err, domain.ErrWriteInFlight) {
		p.manager.observer.Published(p.name, err)
	}
	return out, err
}

// Expired implements ExpiryResolver for records of this publisher.
func (p *Publisher) Expired(rec *domain.PublishRecord) (bool, error) {
	return p.content.IsExpired(rec), nil
}

// Set resolves the publisher of a state by its configured publisher name.
// It is resolved once at startup and reused.
type Set struct {
	states     ports.StateResolver
	publishers *registry.Registry[*Publisher]
}

// NewSet creates an empty publisher set.
func NewSet(states ports.StateResolver) *Set {
	return &Set{
		states:     states,
		publishers: registry.New[*Publisher]("publisher"),
	}
}

// Add registers p under its name.
func (s *Set) Add(p *Publisher) {
	s.publishers.Register(p.Name(), p)
}

// Names returns the registered publisher names.
func (s *Set) Names() []string {
	return s.publishers.Names()
}

// For returns the publisher configured on target.
func (s *Set) For(target *domain.State) (*Publisher, error) {
	if target.Publish == nil {
		return nil, fmt.Errorf("state %d is not publishable", target.ID)
	}
	return s.publishers.Lookup(target.Publish.Publisher)
}

// Expired implements ExpiryResolver. Records whose state or publisher cannot
// be resolved are reported as errors so the sweep evicts them.
func (s *Set) Expired(rec *domain.PublishRecord) (bool, error) {
	st, ok := s.states.Get(rec.PublishedStateID)
	if !ok {
		return true, fmt.Errorf("%w: %d", domain.ErrStateNotFound, rec.PublishedStateID)
	}
	if !st.IsPublishable() {
		return true, nil
	}
	p, err := s.For(st)
	if err != nil {
		return true, err
	}
	return p.Expired(rec)
}

// BuildRules builds a rule chain from registry names, in order.
func BuildRules(reg *registry.Registry[Rule], names []string) (Rules, error) {
	rules := make(Rules, 0, len(names))
	for _, n := range names {
		r, err := reg.Lookup(n)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}
