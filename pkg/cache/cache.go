// Package cache provides a Redis read-through cache for the per-tenant
// lookups the violation detector preloads on every flush (entity profiles,
// cloud identities, cloud resources), grounded on pkg/alert.Deduplicator's
// Redis-hot-path/DB-fallback/cache-warm shape.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a preloaded snapshot is trusted before the
// next flush re-reads the database. Short enough that a profile update from
// the builder, or a newly discovered identity, is visible within one TTL
// window.
const DefaultTTL = 30 * time.Second

// Cache wraps a Redis client with typed read-through helpers keyed by
// (namespace, organization_id).
type Cache struct {
	rdb    *redis.Client
	logger *slog.Logger
	ttl    time.Duration
}

// New builds a Cache backed by rdb. A nil rdb makes every GetOrLoad call
// fall straight through to loader, so the cache layer is safe to omit in
// tests and in deployments that don't configure Redis.
func New(rdb *redis.Client, logger *slog.Logger) *Cache {
	return &Cache{rdb: rdb, logger: logger, ttl: DefaultTTL}
}

func key(namespace string, orgID uuid.UUID) string {
	return fmt.Sprintf("riskguard:%s:%s", namespace, orgID)
}

// GetOrLoad returns the cached value for (namespace, orgID) if present and
// unexpired, otherwise calls loader, caches the result, and returns it.
// Redis errors are logged and treated as a cache miss — correctness never
// depends on the cache being available.
func GetOrLoad[T any](ctx context.Context, c *Cache, namespace string, orgID uuid.UUID, loader func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if c == nil || c.rdb == nil {
		return loader(ctx)
	}

	k := key(namespace, orgID)

	raw, err := c.rdb.Get(ctx, k).Bytes()
	if err == nil {
		var v T
		if unmarshalErr := json.Unmarshal(raw, &v); unmarshalErr == nil {
			return v, nil
		}
		c.logger.Warn("cache: discarding unparseable cached value", "key", k)
	} else if err != redis.Nil {
		c.logger.Warn("cache: redis lookup failed, loading from source", "key", k, "error", err)
	}

	v, err := loader(ctx)
	if err != nil {
		return zero, err
	}

	if encoded, err := json.Marshal(v); err != nil {
		c.logger.Warn("cache: failed to encode value for caching", "key", k, "error", err)
	} else if err := c.rdb.Set(ctx, k, encoded, c.ttl).Err(); err != nil {
		c.logger.Warn("cache: failed to warm cache", "key", k, "error", err)
	}

	return v, nil
}

// Invalidate drops the cached snapshot for (namespace, orgID), used after a
// write that the next flush must observe immediately (e.g. the flusher's
// profile-linkage updates).
func (c *Cache) Invalidate(ctx context.Context, namespace string, orgID uuid.UUID) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, key(namespace, orgID)).Err(); err != nil {
		c.logger.Warn("cache: invalidate failed", "key", key(namespace, orgID), "error", err)
	}
}
