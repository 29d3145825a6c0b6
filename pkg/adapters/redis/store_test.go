package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/arbor/pkg/adapters/redis"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := newClient(t)
	ports.RunIndexStoreContract(t, redis.NewFromClient(client))
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client, redis.WithTTL(time.Minute), redis.WithPrefix("test:"))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "node-1", []domain.IndexEntry{{Key: "k", Server: "node-1"}}))
	assert.True(t, mr.Exists("test:index:node-1"))

	servers, err := store.Servers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"node-1"}, servers)

	mr.FastForward(2 * time.Minute)
	_, err = store.Load(ctx, "node-1")
	assert.ErrorIs(t, err, domain.ErrIndexNotFound)
}

func TestRedisStore_CorruptValue(t *testing.T) {
	mr, client := newClient(t)
	require.NoError(t, mr.Set("arbor:index:node-1", "not json"))

	_, err := redis.NewFromClient(client).Load(context.Background(), "node-1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrIndexNotFound)
}

func TestLocker(t *testing.T) {
	mr, client := newClient(t)
	locker := redis.NewLocker(client, "test:")
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:lock:k"))

	short, cancel := context.WithTimeout(ctx, 120*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(short, "k", time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "held lock blocks other owners")

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("test:lock:k"))

	unlock2, err := locker.Lock(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.NoError(t, unlock(ctx), "stale unlock is a no-op")
	assert.True(t, mr.Exists("test:lock:k"), "stale unlock leaves the new owner's lock")
	require.NoError(t, unlock2(ctx))
}

func TestLocker_ExpiresWithTTL(t *testing.T) {
	mr, client := newClient(t)
	locker := redis.NewLocker(client, "")
	ctx := context.Background()

	_, err := locker.Lock(ctx, "k", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	unlock, err := locker.Lock(ctx, "k", time.Second)
	require.NoError(t, err)
	require.NoError(t, unlock(ctx))
}
