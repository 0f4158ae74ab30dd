// Package rediscache provides a blaze.Cache backed by Redis, so that
// rendered statements are shared between processes.
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	m, err := view.NewManager(mm, drv,
//		view.WithCache(rediscache.New(client), time.Hour),
//	)
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/syssam/blaze"
)

// DefaultPrefix is prepended to every key unless WithPrefix is used.
const DefaultPrefix = "blaze:"

// Cache implements blaze.Cache with a Redis client.
type Cache struct {
	client redis.UniversalClient
	prefix string
	count  int64
}

var _ blaze.Cache = (*Cache)(nil)

// Option configures a Cache.
type Option func(*Cache)

// WithPrefix sets the namespace of the keys. Clear only removes keys of the
// namespace.
func WithPrefix(prefix string) Option {
	return func(c *Cache) {
		c.prefix = prefix
	}
}

// WithScanCount sets the COUNT hint of the SCAN calls used to delete keys
// by prefix. The default is 100.
func WithScanCount(n int64) Option {
	return func(c *Cache) {
		c.count = n
	}
}

// New returns a cache using client. The client may be a single node,
// a failover or a cluster client.
func New(client redis.UniversalClient, opts ...Option) *Cache {
	c := &Cache{client: client, prefix: DefaultPrefix, count: 100}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns nil, nil for missing keys.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("rediscache: get: %w", err)
	}
	return v, nil
}

// Set stores the value. A zero ttl stores it without expiration.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("rediscache: set: %w", err)
	}
	return nil
}

// Delete removes the key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("rediscache: delete: %w", err)
	}
	return nil
}

// DeletePrefix removes the keys starting with prefix. Keys are found with
// SCAN, which does not block the server; on cluster clients every master
// is scanned.
func (c *Cache) DeletePrefix(ctx context.Context, prefix string) error {
	match := pattern(c.prefix + prefix)
	if cc, ok := c.client.(*redis.ClusterClient); ok {
		return cc.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
			return c.scanDelete(ctx, node, match)
		})
	}
	return c.scanDelete(ctx, c.client, match)
}

// Clear removes every key of the namespace.
func (c *Cache) Clear(ctx context.Context) error {
	return c.DeletePrefix(ctx, "")
}

func (c *Cache) scanDelete(ctx context.Context, client redis.Cmdable, match string) error {
	var cursor uint64
	for {
		keys, next, err := client.Scan(ctx, cursor, match, c.count).Result()
		if err != nil {
			return fmt.Errorf("rediscache: scan: %w", err)
		}
		if len(keys) > 0 {
			// Keys of one node can hash to different slots.
			pipe := client.Pipeline()
			for _, k := range keys {
				pipe.Del(ctx, k)
			}
			if _, err := pipe.Exec(ctx); err != nil {
				return fmt.Errorf("rediscache: delete: %w", err)
			}
		}
		if cursor = next; cursor == 0 {
			return nil
		}
	}
}

// pattern returns the MATCH pattern of the keys starting with prefix.
func pattern(prefix string) string {
	var b strings.Builder
	for _, r := range prefix {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('*')
	return b.String()
}
