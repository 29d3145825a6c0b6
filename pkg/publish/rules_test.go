package publish_test

import (
	"testing"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/publish"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedRule struct {
	use, store bool
	calls      *int
}

func (r fixedRule) UsePublishedContent(*domain.Request) bool {
	if r.calls != nil {
		*r.calls++
	}
	return r.use
}

func (r fixedRule) ShouldBePublished(*domain.Request) bool {
	if r.calls != nil {
		*r.calls++
	}
	return r.store
}

func TestRules_VetoComposition(t *testing.T) {
	calls := 0
	rules := publish.Rules{
		fixedRule{use: false, store: true, calls: &calls},
		fixedRule{use: true, store: true, calls: &calls},
	}
	req := domain.NewRequest(nil)

	assert.False(t, rules.UsePublishedContent(req))
	assert.Equal(t, 2, calls, "every rule is evaluated")
	assert.True(t, rules.ShouldBePublished(req))

	assert.True(t, publish.Rules(nil).UsePublishedContent(req))
}

func TestBuiltinRules(t *testing.T) {
	plain := domain.NewRequest(map[string]string{"a": "1"})
	dynamic := domain.NewRequest(map[string]string{"dynamic": "yes"})
	republish := domain.NewRequest(map[string]string{"Republish": ""})

	d := publish.DynamicRule{}
	assert.True(t, d.UsePublishedContent(plain))
	assert.False(t, d.UsePublishedContent(dynamic))
	assert.False(t, d.ShouldBePublished(dynamic))

	f := publish.ForceRepublishRule{}
	assert.True(t, f.UsePublishedContent(plain))
	assert.False(t, f.UsePublishedContent(republish))
	assert.True(t, f.ShouldBePublished(republish))
}

func TestBuildRules(t *testing.T) {
	reg := publish.NewRules()
	rules, err := publish.BuildRules(reg, []string{"Dynamic", "republish"})
	require.NoError(t, err)
	assert.Len(t, rules, 2)

	_, err = publish.BuildRules(reg, []string{"nope"})
	assert.Error(t, err)
}
