// Package cache provides caching infrastructure: a Redis read-through cache
// in front of the tenant registry and LISTEN/NOTIFY driven invalidation.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"docengine/internal/core/tenant"
	"docengine/pkg/logger"
)

// RedisClient is the subset of go-redis used by the cache. Satisfied by *redis.Client.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

// TenantCache shares resolved tenants between server instances.
// Redis failures fall through to the wrapped registry.
type TenantCache struct {
	next   tenant.Registry
	client RedisClient
	ttl    time.Duration
	prefix string
}

var _ tenant.Registry = (*TenantCache)(nil)

// NewTenantCache wraps next with a Redis cache.
func NewTenantCache(next tenant.Registry, client RedisClient, ttl time.Duration) *TenantCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &TenantCache{next: next, client: client, ttl: ttl, prefix: "docengine:tenant:"}
}

func (c *TenantCache) key(schema string) string {
	return c.prefix + schema
}

// Get returns the tenant from Redis, or loads and stores it.
// Unknown tenants are never cached.
func (c *TenantCache) Get(ctx context.Context, schema string) (*tenant.Tenant, error) {
	raw, err := c.client.Get(ctx, c.key(schema)).Bytes()
	switch {
	case err == nil:
		var t tenant.Tenant
		if jsonErr := json.Unmarshal(raw, &t); jsonErr == nil {
			return &t, nil
		}
		logger.Warn(ctx, "discarding malformed cached tenant", "schema", schema)
	case !errors.Is(err, redis.Nil):
		logger.Warn(ctx, "tenant cache read failed", "schema", schema, "error", err)
	}

	t, err := c.next.Get(ctx, schema)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(t); err == nil {
		if err := c.client.Set(ctx, c.key(schema), b, c.ttl).Err(); err != nil {
			logger.Warn(ctx, "tenant cache write failed", "schema", schema, "error", err)
		}
	}
	return t, nil
}

// ListActive is always served by the wrapped registry.
func (c *TenantCache) ListActive(ctx context.Context) ([]*tenant.Tenant, error) {
	return c.next.ListActive(ctx)
}

// Invalidate drops a cached tenant.
func (c *TenantCache) Invalidate(ctx context.Context, schema string) {
	if err := c.client.Del(ctx, c.key(schema)).Err(); err != nil {
		logger.Warn(ctx, "tenant cache invalidation failed", "schema", schema, "error", err)
	}
}

// Flush drops every cached tenant. Keys are found with SCAN on the cache prefix.
func (c *TenantCache) Flush(ctx context.Context) {
	var (
		cursor  uint64
		removed int64
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.prefix+"*", 100).Result()
		if err != nil {
			logger.Warn(ctx, "tenant cache flush failed", "removed", removed, "error", err)
			return
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				logger.Warn(ctx, "tenant cache flush failed", "removed", removed, "error", err)
				return
			}
			removed += n
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	logger.Info(ctx, "tenant cache flushed", "removed", removed)
}

// LocalCache is the in-process tenant cache, satisfied by *tenant.Resolver.
type LocalCache interface {
	Invalidate(schema string)
	Flush()
}

// Invalidator drops a changed tenant from local and, when shared is not nil,
// from the Redis cache. An empty schema drops every tenant from both.
func Invalidator(local LocalCache, shared *TenantCache) InvalidationListener {
	return func(ctx context.Context, schema string) {
		if schema == "" {
			local.Flush()
			if shared != nil {
				shared.Flush(ctx)
			}
			return
		}
		local.Invalidate(schema)
		if shared != nil {
			shared.Invalidate(ctx, schema)
		}
	}
}
