package rediscache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPattern(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"", "*"},
		{"blaze:", "blaze:*"},
		{"blaze:sqlite:select:", "blaze:sqlite:select:*"},
		{"a*b?[c]", `a\*b\?\[c\]*`},
		{`x\y`, `x\\y*`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, pattern(tt.prefix), tt.prefix)
	}
}

func TestOptions(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()
	c := New(client)
	assert.Equal(t, DefaultPrefix, c.prefix)
	assert.EqualValues(t, 100, c.count)
	c = New(client, WithPrefix("app:"), WithScanCount(10))
	assert.Equal(t, "app:", c.prefix)
	assert.EqualValues(t, 10, c.count)
}

// TestRedis runs against the server at BLAZE_REDIS_ADDR.
func TestRedis(t *testing.T) {
	addr := os.Getenv("BLAZE_REDIS_ADDR")
	if addr == "" {
		t.Skip("BLAZE_REDIS_ADDR is not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(ctx).Err())

	c := New(client, WithPrefix("blaze-test:"))
	require.NoError(t, c.Clear(ctx))

	v, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, c.Set(ctx, "sqlite:select:a", []byte("select 1"), 0))
	require.NoError(t, c.Set(ctx, "sqlite:select:b", []byte("select 2"), time.Minute))
	require.NoError(t, c.Set(ctx, "sqlite:set:a", []byte("select 3"), 0))
	v, err = c.Get(ctx, "sqlite:select:a")
	require.NoError(t, err)
	assert.Equal(t, []byte("select 1"), v)
	ttl, err := client.TTL(ctx, "blaze-test:sqlite:select:b").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, c.DeletePrefix(ctx, "sqlite:select:"))
	v, err = c.Get(ctx, "sqlite:select:b")
	require.NoError(t, err)
	assert.Nil(t, v)
	v, err = c.Get(ctx, "sqlite:set:a")
	require.NoError(t, err)
	assert.NotNil(t, v)

	require.NoError(t, c.Delete(ctx, "sqlite:set:a"))
	n, err := client.Exists(ctx, "blaze-test:sqlite:set:a").Result()
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, c.Clear(ctx))
}
