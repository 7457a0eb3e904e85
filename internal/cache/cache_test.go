package cache

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return WrapRedis(client, "test:"), mr
}

func TestRedisClient_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedis(t)

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "k1", []byte("v1"), time.Minute))
	assert.True(t, mr.Exists("test:k1"))

	got, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	require.NoError(t, c.Delete(ctx, "k1"))
	_, err = c.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisClient_TTL(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedis(t)

	require.NoError(t, c.Set(ctx, "short", []byte("x"), time.Second))
	mr.FastForward(2 * time.Second)

	_, err := c.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisClient_DeleteByPrefix(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedis(t)

	require.NoError(t, c.Set(ctx, "resp:a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "resp:b", []byte("2"), time.Minute))
	require.NoError(t, c.Set(ctx, "other:c", []byte("3"), time.Minute))

	require.NoError(t, c.DeleteByPrefix(ctx, "resp:"))

	assert.False(t, mr.Exists("test:resp:a"))
	assert.False(t, mr.Exists("test:resp:b"))
	assert.True(t, mr.Exists("test:other:c"))
	require.NoError(t, c.Ping(ctx))
}

func TestRedisClient_DeleteByPrefixBatches(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedis(t)

	for i := 0; i < scanBatch*5+7; i++ {
		require.NoError(t, c.Set(ctx, Key("resp", strconv.Itoa(i)), []byte("x"), time.Minute))
		if i%50 == 0 {
			require.NoError(t, c.Set(ctx, Key("keep", strconv.Itoa(i)), []byte("x"), 0))
		}
	}

	require.NoError(t, c.DeleteByPrefix(ctx, "resp:"))
	keys := mr.Keys()
	assert.Len(t, keys, (scanBatch*5+7+49)/50)
	for _, k := range keys {
		assert.True(t, strings.HasPrefix(k, "test:keep:"), k)
	}
}

func TestNewRedisClient(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	c, err := NewRedisClient(ctx, RedisConfig{Addr: mr.Addr(), Prefix: "p:"})
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	assert.True(t, mr.Exists("p:k"))

	_, err = NewRedisClient(ctx, RedisConfig{Addr: "127.0.0.1:1", ConnectAttempts: 2, ConnectBackoff: time.Millisecond})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping 127.0.0.1:1")
}

func TestMemoryClient(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(2, time.Minute)

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Minute))
	require.NoError(t, c.Set(ctx, "c", []byte("3"), time.Minute))

	// capacity 2: "a" was least recently used
	_, err = c.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Equal(t, 2, c.Len())

	got, err := c.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), got)
}

func TestMemoryClient_PerEntryTTL(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(10, time.Hour)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Second))
	now = now.Add(2 * time.Second)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryClient_DeleteByPrefix(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(10, time.Minute)

	require.NoError(t, c.Set(ctx, "resp:1", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "keep", []byte("2"), time.Minute))
	require.NoError(t, c.DeleteByPrefix(ctx, "resp:"))

	_, err := c.Get(ctx, "resp:1")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "keep")
	assert.NoError(t, err)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "a:b:c", Key("a", "b", "c"))
	assert.Equal(t, "", Key())
}
