package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupCachedStoreTest wires a memory store behind a cache backed by miniredis
func setupCachedStoreTest(t *testing.T) (*CachedStore, *MemoryStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	backing := NewMemoryStore()
	return NewCachedStore(backing, CacheConfig{Size: 4, TTL: time.Minute, Redis: client}), backing, mr
}

func TestCachedStore_ReadThrough(t *testing.T) {
	ctx := context.Background()
	cached, backing, mr := setupCachedStoreTest(t)

	require.NoError(t, backing.Replace(ctx, NewRecord("a1", map[string]interface{}{"name": "alpha"})))

	rec, err := cached.FindByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "alpha", rec.Fields["name"])
	assert.Equal(t, 1, cached.Len())
	assert.True(t, mr.Exists("plughost:catalog:a1"))

	// Changes behind the cache's back stay invisible until invalidation
	require.NoError(t, backing.Replace(ctx, NewRecord("a1", map[string]interface{}{"name": "changed"})))
	rec, err = cached.FindByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "alpha", rec.Fields["name"])
}

func TestCachedStore_WritesInvalidate(t *testing.T) {
	ctx := context.Background()
	cached, _, mr := setupCachedStoreTest(t)

	require.NoError(t, cached.Replace(ctx, NewRecord("a1", map[string]interface{}{"name": "alpha"})))
	_, err := cached.FindByID(ctx, "a1")
	require.NoError(t, err)

	require.NoError(t, cached.SetEnabled(ctx, "a1", false))
	assert.False(t, mr.Exists("plughost:catalog:a1"))
	assert.Equal(t, 0, cached.Len())

	rec, err := cached.FindByID(ctx, "a1")
	require.NoError(t, err)
	assert.False(t, rec.Enabled)

	require.NoError(t, cached.Delete(ctx, "a1"))
	_, err = cached.FindByID(ctx, "a1")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestCachedStore_RedisSharedBetweenInstances(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	backing := NewMemoryStore()
	require.NoError(t, backing.Replace(ctx, NewRecord("a1", map[string]interface{}{"name": "alpha"})))

	first := NewCachedStore(backing, CacheConfig{Redis: client})
	_, err := first.FindByID(ctx, "a1")
	require.NoError(t, err)

	// A second instance over an empty store is served from redis
	second := NewCachedStore(NewMemoryStore(), CacheConfig{Redis: client})
	rec, err := second.FindByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "alpha", rec.Fields["name"])
}

func TestCachedStore_RedisDown(t *testing.T) {
	ctx := context.Background()
	cached, backing, mr := setupCachedStoreTest(t)
	mr.Close()

	require.NoError(t, backing.Replace(ctx, NewRecord("a1", map[string]interface{}{"name": "alpha"})))

	rec, err := cached.FindByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "alpha", rec.Fields["name"])

	require.NoError(t, cached.Delete(ctx, "a1"))
}

func TestCachedStore_CorruptRedisEntry(t *testing.T) {
	ctx := context.Background()
	cached, backing, mr := setupCachedStoreTest(t)

	require.NoError(t, backing.Replace(ctx, NewRecord("a1", map[string]interface{}{"name": "alpha"})))
	require.NoError(t, mr.Set("plughost:catalog:a1", "{not json"))

	rec, err := cached.FindByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "alpha", rec.Fields["name"])
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	client.Close()

	_, err = NewRedisClient(context.Background(), "invalid://url")
	assert.Error(t, err)
}
