// internal/resolver/cache.go
package resolver

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"poultry-workflow/internal/common/logger"
	"poultry-workflow/internal/models"
)

const cacheKeyPrefix = "reviewer:"

// Cached is a read-through Redis decorator over another Resolver. Identity
// lookups sit on the hot path of every claim and decision; role changes take
// effect within the TTL. Cache failures degrade to the backing resolver.
type Cached struct {
	next   Resolver
	client *redis.Client
	ttl    time.Duration
	log    logger.Logger
}

func NewCached(next Resolver, client *redis.Client, ttl time.Duration, log logger.Logger) *Cached {
	return &Cached{next: next, client: client, ttl: ttl, log: log}
}

func (c *Cached) Resolve(ctx context.Context, reviewerID string) (*models.Reviewer, error) {
	key := cacheKeyPrefix + reviewerID

	if payload, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var reviewer models.Reviewer
		if err := json.Unmarshal(payload, &reviewer); err == nil {
			return &reviewer, nil
		}
		// Corrupt entry; drop it and fall through to the backing resolver.
		c.client.Del(ctx, key)
	} else if err != redis.Nil {
		c.log.WithError(err).Warn("Reviewer cache read failed", map[string]interface{}{
			"reviewerId": reviewerID,
		})
	}

	reviewer, err := c.next.Resolve(ctx, reviewerID)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(reviewer); err == nil {
		if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.log.WithError(err).Warn("Reviewer cache write failed", map[string]interface{}{
				"reviewerId": reviewerID,
			})
		}
	}
	return reviewer, nil
}

// Invalidate drops one reviewer from the cache, for use when identity
// administrators change a role mid-shift.
func (c *Cached) Invalidate(ctx context.Context, reviewerID string) error {
	return c.client.Del(ctx, cacheKeyPrefix+reviewerID).Err()
}
