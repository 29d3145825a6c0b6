package publish

import (
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/registry"
)

// Rule can veto reuse of published content or publishing of fresh content.
// Rules are pure predicates over the request.
type Rule interface {
	UsePublishedContent(req *domain.Request) bool
	ShouldBePublished(req *domain.Request) bool
}

// Rules is an ordered rule chain combined with logical AND.
// Every rule is evaluated.
type Rules []Rule

// UsePublishedContent reports whether no rule vetoes cache reuse.
func (rs Rules) UsePublishedContent(req *domain.Request) bool {
	ok := true
	for _, r := range rs {
		if !r.UsePublishedContent(req) {
			ok = false
		}
	}
	return ok
}

// ShouldBePublished reports whether no rule vetoes publishing.
func (rs Rules) ShouldBePublished(req *domain.Request) bool {
	ok := true
	for _, r := range rs {
		if !r.ShouldBePublished(req) {
			ok = false
		}
	}
	return ok
}

// DynamicRule bypasses the cache entirely when the "dynamic" flag is set.
type DynamicRule struct{}

func (DynamicRule) UsePublishedContent(req *domain.Request) bool {
	return !req.Flag(ParamDynamic)
}

func (DynamicRule) ShouldBePublished(req *domain.Request) bool {
	return !req.Flag(ParamDynamic)
}

// ForceRepublishRule regenerates and republishes when the "republish" flag is set.
type ForceRepublishRule struct{}

func (ForceRepublishRule) UsePublishedContent(req *domain.Request) bool {
	return !req.Flag(ParamRepublish)
}

func (ForceRepublishRule) ShouldBePublished(*domain.Request) bool {
	return true
}

// NewRules returns a rule registry with "dynamic" and "republish" registered.
func NewRules() *registry.Registry[Rule] {
	rules := registry.New[Rule]("publish rule")
	rules.Register("dynamic", DynamicRule{})
	rules.Register("republish", ForceRepublishRule{})
	return rules
}
