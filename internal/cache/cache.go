// Package cache is a thin Redis layer for report payloads.
//
// The cache is optional: a nil *Cache is valid everywhere and simply
// loads fresh values, so the server runs without Redis configured.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cache wraps a Redis client with request coalescing: concurrent misses
// on the same key share one trip to the loader.
type Cache struct {
	rdb *redis.Client
	sf  singleflight.Group
}

// New creates a Cache talking to the Redis instance at addr. An empty
// password disables AUTH.
func New(addr, password string, db int) *Cache {
	return &Cache{
		rdb: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
	}
}

// Ping checks connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache: ping: %w", err)
	}
	return nil
}

// Close releases the client's connections.
func (c *Cache) Close() error {
	return c.rdb.Close()
}

// Invalidate drops the given keys. Missing keys are not an error.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) error {
	if c == nil || len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache: invalidating %d keys: %w", len(keys), err)
	}
	return nil
}

// GetOrLoad returns the cached bytes under key, or runs load and caches
// its result for ttl. Concurrent callers missing on the same key are
// coalesced into a single load. A failed Set is ignored: serving the
// loaded value matters more than caching it.
func (c *Cache) GetOrLoad(ctx context.Context, key string, ttl time.Duration, load func(context.Context) ([]byte, error)) ([]byte, error) {
	if c == nil {
		return load(ctx)
	}

	if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		return b, nil
	}

	v, err, _ := c.sf.Do(key, func() (any, error) {
		b, err := load(ctx)
		if err != nil {
			return nil, err
		}
		_ = c.rdb.Set(ctx, key, b, ttl).Err()
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// GetOrLoadJSON is GetOrLoad for a JSON-encoded value of type T. It is
// a function rather than a method because methods cannot introduce type
// parameters.
func GetOrLoadJSON[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var zero T
	if c == nil {
		return load(ctx)
	}

	b, err := c.GetOrLoad(ctx, key, ttl, func(ctx context.Context) ([]byte, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		return zero, err
	}

	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		return zero, fmt.Errorf("cache: decoding %s: %w", key, err)
	}
	return out, nil
}
