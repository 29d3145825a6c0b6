package registry_test

import (
	"testing"

	"github.com/aretw0/arbor/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := registry.New[int]("widget")

	_, err := r.Lookup("missing")
	require.ErrorIs(t, err, registry.ErrUnknown)
	assert.Contains(t, err.Error(), `widget "missing"`)

	r.Register("Alpha", 1)
	r.Register("beta", 2)

	v, err := r.Lookup(" ALPHA ")
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.True(t, r.Has("Beta"))

	r.Register("alpha", 3)
	v, _ = r.Lookup("alpha")
	assert.Equal(t, 3, v, "re-registering overwrites")

	assert.Equal(t, []string{"alpha", "beta"}, r.Names())
}
