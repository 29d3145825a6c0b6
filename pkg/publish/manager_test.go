package publish_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/publish"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func timeNow() time.Time {
	return time.Now()
}

type expiryFunc func(*domain.PublishRecord) (bool, error)

func (f expiryFunc) Expired(rec *domain.PublishRecord) (bool, error) {
	return f(rec)
}

func TestManager_StartLoadsAndSweeps(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	last := time.Now().Add(-time.Minute)
	require.NoError(t, store.Save(ctx, "node-1", []domain.IndexEntry{
		{Key: "fresh", StartState: 1, PublishedState: 2, Event: "go", Path: "a.html", LastPublished: &last, Hits: 3, Server: "node-1"},
		{Key: "stale", StartState: 1, PublishedState: 2, Event: "go"},
		{Key: ""},
	}))

	m := publish.NewManager(
		publish.WithIndexStore(store),
		publish.WithServer("node-1"),
		publish.WithExpiry(expiryFunc(func(rec *domain.PublishRecord) (bool, error) {
			_, ok := rec.LastPublished()
			return !ok, nil
		})),
	)
	require.NoError(t, m.Start(ctx))
	defer m.Close(ctx)

	rec, ok := m.Lookup("fresh")
	require.True(t, ok)
	assert.Equal(t, int64(3), rec.Hits())
	assert.Equal(t, "a.html", rec.Path())

	_, ok = m.Lookup("stale")
	assert.False(t, ok, "initial sweep evicts unpublished records")
	assert.Equal(t, 1, m.Stats().Entries)

	assert.Error(t, m.Start(ctx), "second start")
}

func TestManager_LoadDoesNotSweep(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.Save(ctx, "node-1", []domain.IndexEntry{{Key: "stale", StartState: 1, PublishedState: 2, Event: "go"}}))

	m := publish.NewManager(
		publish.WithIndexStore(store),
		publish.WithServer("node-1"),
		publish.WithExpiry(expiryFunc(func(*domain.PublishRecord) (bool, error) { return true, nil })),
	)
	n, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, m.Stats().Entries)
	require.NoError(t, m.Close(ctx))

	entries, err := store.Load(ctx, "node-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

type failingStore struct{}

func (failingStore) Save(context.Context, string, []domain.IndexEntry) error {
	return errors.New("store offline")
}

func (failingStore) Load(context.Context, string) ([]domain.IndexEntry, error) {
	return nil, errors.New("store offline")
}

func TestManager_StoreFailures(t *testing.T) {
	ctx := context.Background()
	m := publish.NewManager(publish.WithIndexStore(failingStore{}))
	require.NoError(t, m.Start(ctx), "a broken store does not prevent serving")

	m.Create("k", 1, "go", 2)
	assert.Error(t, m.Persist(ctx))
	assert.Error(t, m.Close(ctx), "final persist error is returned")
	assert.NoError(t, m.Close(ctx), "close is idempotent")
	assert.Error(t, m.Start(ctx), "closed manager cannot restart")
}

func TestManager_SweepRules(t *testing.T) {
	ctx := context.Background()
	m := publish.NewManager(publish.WithExpiry(expiryFunc(func(rec *domain.PublishRecord) (bool, error) {
		switch rec.Key {
		case "expired", "writing":
			return true, nil
		case "corrupt":
			return false, errors.New("bad record")
		case "panics":
			panic("boom")
		}
		return false, nil
	})))

	for _, k := range []string{"expired", "writing", "corrupt", "panics", "fresh"} {
		m.Create(k, 1, "go", 2)
	}
	rec, _ := m.Lookup("writing")
	lease, ok := rec.TryAcquire()
	require.True(t, ok)

	assert.Equal(t, 3, m.Sweep(ctx))
	assert.ElementsMatch(t, []string{"writing", "fresh"}, m.Cache().Keys())

	lease.Release()
	assert.Equal(t, 1, m.Sweep(ctx))
	assert.Equal(t, []string{"fresh"}, m.Cache().Keys())

	stats := m.Stats()
	assert.Equal(t, int64(4), stats.Evicted)
	assert.False(t, stats.LastSweep.IsZero())
}

func TestManager_PersistAndClose(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	m := publish.NewManager(publish.WithIndexStore(store), publish.WithServer("node-a"))
	require.NoError(t, m.Start(ctx))

	rec, created := m.Create("b", 1, "go", 2)
	require.True(t, created)
	rec.MarkPublished("b.html", time.Now())
	rec.Hit()
	m.Create("a", 1, "go", 2)

	require.NoError(t, m.Persist(ctx))
	entries, err := store.Load(ctx, "node-a")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Key)
	assert.Equal(t, "b", entries[1].Key)
	assert.Equal(t, "node-a", entries[1].Server)
	assert.Equal(t, int64(1), entries[1].Hits)
	assert.NotNil(t, entries[1].LastPublished)
	assert.Nil(t, entries[0].LastPublished)

	m.Create("c", 1, "go", 2)
	require.NoError(t, m.Close(ctx))
	entries, err = store.Load(ctx, "node-a")
	require.NoError(t, err)
	assert.Len(t, entries, 3, "close persists one last time")
}

func TestManager_BackgroundLoops(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	swept := make(chan struct{}, 100)
	m := publish.NewManager(
		publish.WithIndexStore(store),
		publish.WithSweepInterval(5*time.Millisecond),
		publish.WithPersistInterval(5*time.Millisecond),
		publish.WithExpiry(expiryFunc(func(*domain.PublishRecord) (bool, error) {
			select {
			case swept <- struct{}{}:
			default:
			}
			return false, nil
		})),
	)
	m.Create("k", 1, "go", 2)
	require.NoError(t, m.Start(ctx))

	assert.Eventually(t, func() bool { return len(swept) > 2 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return store.Saves() > 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, m.Close(ctx))
}

func TestManager_Resets(t *testing.T) {
	m := publish.NewManager()

	for i := 0; i < 6; i++ {
		site := []string{"shop", "blog"}[i%2]
		m.CreateAt(fmt.Sprintf("k%d", i), 1, "go", 20, site, "books")
	}
	m.Create("nowhere", 1, "go", 99)

	assert.Equal(t, 3, m.ResetSite("SHOP"))
	assert.Equal(t, 4, m.Stats().Entries)
	assert.Equal(t, 0, m.ResetSite("shop"))

	assert.Equal(t, 2, m.ResetKeys("k1", "K3", "nope"))
	assert.Equal(t, 2, m.ResetAll())
	assert.Equal(t, 0, m.Stats().Entries)
}

func TestManager_CreateAtKeepsExistingLocation(t *testing.T) {
	m := publish.NewManager()
	first, created := m.CreateAt("k", 1, "go", 2, "alpha", "")
	require.True(t, created)
	second, created := m.CreateAt("k", 1, "go", 2, "beta", "")
	assert.False(t, created)
	assert.Same(t, first, second)
	assert.Equal(t, "alpha", second.Site)
}

func TestManager_CreateIsInsertIfAbsent(t *testing.T) {
	m := publish.NewManager()
	first, created := m.Create("k", 1, "go", 2)
	require.True(t, created)
	second, created := m.Create("K", 3, "other", 4)
	assert.False(t, created)
	assert.Same(t, first, second)
	assert.NotEmpty(t, m.Server())
}

func TestManager_CloseWithoutStartKeepsIndex(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.Save(ctx, "node-a", []domain.IndexEntry{{Key: "k", StartState: 1, Event: "go", PublishedState: 2}}))

	m := publish.NewManager(publish.WithIndexStore(store), publish.WithServer("node-a"))
	require.NoError(t, m.Close(ctx))

	entries, err := store.Load(ctx, "node-a")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
