package blaze

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	v, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, c.Set(ctx, "postgres:select:a", []byte("a"), 0))
	require.NoError(t, c.Set(ctx, "postgres:select:b", []byte("b"), time.Minute))
	require.NoError(t, c.Set(ctx, "mysql:select:a", []byte("c"), 0))

	v, err = c.Get(ctx, "postgres:select:b")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), v)

	now = now.Add(2 * time.Minute)
	v, err = c.Get(ctx, "postgres:select:b")
	require.NoError(t, err)
	assert.Nil(t, v, "expired entry")
	v, err = c.Get(ctx, "postgres:select:a")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), v, "entries without ttl never expire")

	require.NoError(t, c.DeletePrefix(ctx, CacheKey{Dialect: "postgres", Operation: "select"}.Prefix()))
	assert.Equal(t, 1, c.Len())

	require.NoError(t, c.Delete(ctx, "mysql:select:a"))
	assert.Equal(t, 0, c.Len())

	require.NoError(t, c.Set(ctx, "x", []byte("x"), 0))
	require.NoError(t, c.Clear(ctx))
	assert.Equal(t, 0, c.Len())
}

func TestCacheKey(t *testing.T) {
	k := CacheKey{Dialect: "postgres", Operation: "select", Shape: "select d.id from Document d"}
	assert.Equal(t, "postgres:select:select d.id from Document d", k.String())
	assert.Equal(t, "postgres:select:", k.Prefix())

	k.Namespace = "app"
	assert.Equal(t, "app:postgres:select:select d.id from Document d", k.String())
	assert.Equal(t, "app:postgres:", CacheKey{Namespace: "app", Dialect: "postgres"}.Prefix())
}
