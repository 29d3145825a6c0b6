package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunIndexStoreContract runs a suite of tests to verify that an IndexStore implementation
// adheres to the defined interface contract.
func RunIndexStoreContract(t *testing.T, store IndexStore) {
	ctx := context.Background()
	server := "contract-" + time.Now().Format("20060102150405")
	published := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	entries := []domain.IndexEntry{
		{StartState: 10, PublishedState: 20, Key: "10_go_1_2", Event: "go", Site: "site", Section: "a", Path: "site/a/10_go_1_2_page.html", LastPublished: &published, Hits: 3, Server: server},
		{StartState: 10, PublishedState: 21, Key: "10_list_", Event: "list", Server: server},
	}

	t.Run("Load Missing", func(t *testing.T) {
		_, err := store.Load(ctx, "missing-"+server)
		assert.ErrorIs(t, err, domain.ErrIndexNotFound)
	})

	t.Run("Save and Load", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, server, entries))

		loaded, err := store.Load(ctx, server)
		require.NoError(t, err)
		require.Len(t, loaded, 2)

		byKey := make(map[string]domain.IndexEntry)
		for _, e := range loaded {
			byKey[e.Key] = e
		}

		first := byKey["10_go_1_2"]
		assert.Equal(t, int64(10), first.StartState)
		assert.Equal(t, int64(20), first.PublishedState)
		assert.Equal(t, "go", first.Event)
		assert.Equal(t, "site", first.Site)
		assert.Equal(t, "a", first.Section)
		assert.Equal(t, "site/a/10_go_1_2_page.html", first.Path)
		assert.Equal(t, int64(3), first.Hits)
		require.NotNil(t, first.LastPublished)
		assert.True(t, published.Equal(*first.LastPublished))

		second := byKey["10_list_"]
		assert.Nil(t, second.LastPublished)
		assert.Empty(t, second.Path)
		assert.Empty(t, second.Site)
	})

	t.Run("Save Replaces", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, server, entries[:1]))
		loaded, err := store.Load(ctx, server)
		require.NoError(t, err)
		assert.Len(t, loaded, 1)
	})

	t.Run("Partitioned By Server", func(t *testing.T) {
		other := server + "-other"
		require.NoError(t, store.Save(ctx, other, entries[1:]))

		mine, err := store.Load(ctx, server)
		require.NoError(t, err)
		theirs, err := store.Load(ctx, other)
		require.NoError(t, err)
		require.Len(t, mine, 1)
		require.Len(t, theirs, 1)
		assert.Equal(t, "10_go_1_2", mine[0].Key)
		assert.Equal(t, "10_list_", theirs[0].Key)
	})

	t.Run("Save Empty", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, server, nil))
		loaded, err := store.Load(ctx, server)
		require.NoError(t, err)
		assert.Empty(t, loaded)
	})
}
