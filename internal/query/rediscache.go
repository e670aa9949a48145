package query

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/gcregistry/registry/internal/domain/certificate"
)

// RedisCache implements Cache against a Redis client, storing each filter's
// result set as a JSON array under its cache key.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache builds a RedisCache.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) ([]certificate.GranularCertificateBundle, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var bundles []certificate.GranularCertificateBundle
	if err := json.Unmarshal(raw, &bundles); err != nil {
		return nil, false, err
	}
	return bundles, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key string, bundles []certificate.GranularCertificateBundle, ttl time.Duration) error {
	raw, err := json.Marshal(bundles)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, ttl).Err()
}

// Invalidate drops a single cache key. Nothing in the registry calls it on
// commit; cached entries expire through their TTL.
func (c *RedisCache) Invalidate(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}
