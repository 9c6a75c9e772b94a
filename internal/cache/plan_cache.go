// internal/cache/plan_cache.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bargain-service/internal/domain/membership"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultPlanTTL = 10 * time.Minute

type PlanSource interface {
	FindByID(ctx context.Context, id int64) (*membership.Plan, error)
	FindBySlug(ctx context.Context, slug string) (*membership.Plan, error)
	List(ctx context.Context) ([]*membership.Plan, error)
}

// PlanCache is a read-through Redis cache in front of the plan table. Plans
// only change through migrations, so entries simply expire. Redis failures
// fall through to the source.
type PlanCache struct {
	source PlanSource
	client redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

func NewPlanCache(source PlanSource, client redis.Cmdable, ttl time.Duration, logger *zap.Logger) *PlanCache {
	if ttl <= 0 {
		ttl = defaultPlanTTL
	}
	return &PlanCache{source: source, client: client, ttl: ttl, logger: logger}
}

func (c *PlanCache) FindByID(ctx context.Context, id int64) (*membership.Plan, error) {
	key := fmt.Sprintf("plans:id:%d", id)

	var plan membership.Plan
	if c.get(ctx, key, &plan) {
		return &plan, nil
	}

	found, err := c.source.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, found)
	return found, nil
}

func (c *PlanCache) FindBySlug(ctx context.Context, slug string) (*membership.Plan, error) {
	key := "plans:slug:" + slug

	var plan membership.Plan
	if c.get(ctx, key, &plan) {
		return &plan, nil
	}

	found, err := c.source.FindBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, found)
	return found, nil
}

func (c *PlanCache) List(ctx context.Context) ([]*membership.Plan, error) {
	const key = "plans:all"

	var plans []*membership.Plan
	if c.get(ctx, key, &plans) {
		return plans, nil
	}

	found, err := c.source.List(ctx)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, found)
	return found, nil
}

// Invalidate drops every cached plan entry.
func (c *PlanCache) Invalidate(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, "plans:*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan plan cache: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *PlanCache) get(ctx context.Context, key string, out interface{}) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.logger.Warn("plan cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Warn("plan cache entry unreadable", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *PlanCache) set(ctx context.Context, key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("plan cache write failed", zap.String("key", key), zap.Error(err))
	}
}
