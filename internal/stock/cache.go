package stock

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const consolidationCacheKey = "stock:consolidated"

// ConsolidationCache fronts the consolidated view with a short-TTL Redis
// entry, invalidated on every committed movement.
type ConsolidationCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewConsolidationCache constructs the cache.
func NewConsolidationCache(client *redis.Client, ttl time.Duration) *ConsolidationCache {
	return &ConsolidationCache{client: client, ttl: ttl}
}

// Get returns the cached consolidation if present.
func (c *ConsolidationCache) Get(ctx context.Context) (Consolidation, bool, error) {
	if c == nil || c.client == nil {
		return Consolidation{}, false, nil
	}
	payload, err := c.client.Get(ctx, consolidationCacheKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Consolidation{}, false, nil
		}
		return Consolidation{}, false, err
	}
	var result Consolidation
	if err := json.Unmarshal(payload, &result); err != nil {
		return Consolidation{}, false, err
	}
	return result, true, nil
}

// Set stores the consolidation with the configured TTL.
func (c *ConsolidationCache) Set(ctx context.Context, result Consolidation) error {
	if c == nil || c.client == nil {
		return nil
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, consolidationCacheKey, payload, c.ttl).Err()
}

// Invalidate drops the cached view.
func (c *ConsolidationCache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, consolidationCacheKey).Err()
}
