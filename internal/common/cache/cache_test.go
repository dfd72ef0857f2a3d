package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func exerciseCache(t *testing.T, c Cache) {
	ctx := context.Background()

	_, found := c.Get(ctx, "missing")
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, "item-1", "/products/1", time.Minute))
	v, found := c.Get(ctx, "item-1")
	assert.True(t, found)
	assert.Equal(t, "/products/1", v)

	exists, err := c.Exists(ctx, "item-1")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, c.Delete(ctx, "item-1"))
	_, found = c.Get(ctx, "item-1")
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, "a", "1", 0))
	require.NoError(t, c.Set(ctx, "b", "2", 0))
	require.NoError(t, c.Clear(ctx))
	exists, err = c.Exists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalCache(t *testing.T) {
	exerciseCache(t, NewLocalCache(time.Minute, time.Minute))
}

func TestLocalCache_Expiry(t *testing.T) {
	c := NewLocalCache(time.Minute, time.Minute)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", "v", 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)
	_, found := c.Get(ctx, "k")
	assert.False(t, found)
}

func TestRedisCache(t *testing.T) {
	client, _ := setupRedis(t)
	exerciseCache(t, NewRedisCache(client, "test:", time.Minute))
}

func TestRedisCache_PrefixAndTTL(t *testing.T) {
	client, mr := setupRedis(t)
	c := NewRedisCache(client, "test:", time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	assert.True(t, mr.Exists("test:k"))
	assert.Equal(t, time.Minute, mr.TTL("test:k"))

	mr.FastForward(2 * time.Minute)
	_, found := c.Get(ctx, "k")
	assert.False(t, found)
}

func TestRedisCache_ClearOnlyPrefix(t *testing.T) {
	client, mr := setupRedis(t)
	c := NewRedisCache(client, "test:", time.Minute)
	ctx := context.Background()

	require.NoError(t, mr.Set("other", "keep"))
	require.NoError(t, c.Set(ctx, "k", "v", 0))
	require.NoError(t, c.Clear(ctx))

	assert.False(t, mr.Exists("test:k"))
	assert.True(t, mr.Exists("other"))
}

func TestTwoTierCache(t *testing.T) {
	client, _ := setupRedis(t)
	exerciseCache(t, NewTwoTierCache(time.Minute, 10*time.Second, time.Minute, client, "test:"))
}

func TestTwoTierCache_ReadsThroughL2(t *testing.T) {
	client, mr := setupRedis(t)
	c := NewTwoTierCache(time.Minute, 10*time.Second, time.Minute, client, "test:")
	ctx := context.Background()

	require.NoError(t, mr.Set("test:shared", "/from/redis"))

	v, found := c.Get(ctx, "shared")
	require.True(t, found)
	assert.Equal(t, "/from/redis", v)

	// now served from L1 even after Redis loses it
	mr.Del("test:shared")
	v, found = c.Get(ctx, "shared")
	assert.True(t, found)
	assert.Equal(t, "/from/redis", v)
}

func TestNew(t *testing.T) {
	client, _ := setupRedis(t)

	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"local", Config{Type: TypeLocal, TTL: time.Minute}, false},
		{"redis", Config{Type: TypeRedis, TTL: time.Minute, RedisClient: client}, false},
		{"two tier", Config{Type: TypeTwoTier, TTL: time.Minute, RedisClient: client}, false},
		{"redis without client", Config{Type: TypeRedis}, true},
		{"two tier without client", Config{Type: TypeTwoTier}, true},
		{"unknown", Config{Type: "memcached"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, c)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, c)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, TypeLocal, cfg.Type)
	assert.Greater(t, cfg.TTL, cfg.LocalTTL)
}
