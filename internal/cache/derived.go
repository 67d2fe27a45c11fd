package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/apparelworks/demandplan/internal/config"
	"github.com/apparelworks/demandplan/internal/domain"
)

const (
	planKeyPrefix     = "plan:"
	planScanBatchSize = 100
)

// PlanCache holds derived planning artifacts. Every key embeds the settings
// hash, so a configuration change naturally misses and the stale rows age out
// by TTL. InvalidateAll force-drops everything after a data reload.
type PlanCache interface {
	GetSummaries(ctx context.Context, entityType domain.EntityType, settingsHash string) ([]domain.SkuSummary, bool, error)
	SetSummaries(ctx context.Context, entityType domain.EntityType, settingsHash string, summaries []domain.SkuSummary) error
	GetSeasonalIndices(ctx context.Context, settingsHash string) ([]domain.SeasonalIndex, bool, error)
	SetSeasonalIndices(ctx context.Context, settingsHash string, indices []domain.SeasonalIndex) error
	GetPriorities(ctx context.Context, view string, settingsHash string) ([]domain.PriorityRow, bool, error)
	SetPriorities(ctx context.Context, view string, settingsHash string, rows []domain.PriorityRow) error
	GetMonthly(ctx context.Context, entityType domain.EntityType, settingsHash string) ([]domain.MonthlyBucket, bool, error)
	SetMonthly(ctx context.Context, entityType domain.EntityType, settingsHash string, buckets []domain.MonthlyBucket) error
	InvalidateAll(ctx context.Context) error
}

type redisPlanCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopPlanCache struct{}

// NewPlanCache builds a Redis-backed cache, or a no-op cache when caching is
// disabled in the configuration.
func NewPlanCache(cfg config.CacheConfig) (PlanCache, error) {
	if !cfg.Enabled {
		return &noopPlanCache{}, nil
	}

	client, ttl, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}

	return &redisPlanCache{client: client, ttl: ttl}, nil
}

func NewNoopPlanCache() PlanCache {
	return &noopPlanCache{}
}

func summaryKey(entityType domain.EntityType, hash string) string {
	return fmt.Sprintf("%ssummary:%s:%s", planKeyPrefix, entityType, hash)
}

func seasonalKey(hash string) string {
	return fmt.Sprintf("%sseasonal:%s", planKeyPrefix, hash)
}

func priorityKey(view, hash string) string {
	return fmt.Sprintf("%spriority:%s:%s", planKeyPrefix, view, hash)
}

func monthlyKey(entityType domain.EntityType, hash string) string {
	return fmt.Sprintf("%smonthly:%s:%s", planKeyPrefix, entityType, hash)
}

func (c *redisPlanCache) get(ctx context.Context, key string, out any) (bool, error) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get failed: %w", err)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return true, nil
}

func (c *redisPlanCache) set(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisPlanCache) GetSummaries(ctx context.Context, entityType domain.EntityType, hash string) ([]domain.SkuSummary, bool, error) {
	var summaries []domain.SkuSummary
	ok, err := c.get(ctx, summaryKey(entityType, hash), &summaries)
	return summaries, ok, err
}

func (c *redisPlanCache) SetSummaries(ctx context.Context, entityType domain.EntityType, hash string, summaries []domain.SkuSummary) error {
	return c.set(ctx, summaryKey(entityType, hash), summaries)
}

func (c *redisPlanCache) GetSeasonalIndices(ctx context.Context, hash string) ([]domain.SeasonalIndex, bool, error) {
	var indices []domain.SeasonalIndex
	ok, err := c.get(ctx, seasonalKey(hash), &indices)
	return indices, ok, err
}

func (c *redisPlanCache) SetSeasonalIndices(ctx context.Context, hash string, indices []domain.SeasonalIndex) error {
	return c.set(ctx, seasonalKey(hash), indices)
}

func (c *redisPlanCache) GetPriorities(ctx context.Context, view, hash string) ([]domain.PriorityRow, bool, error) {
	var rows []domain.PriorityRow
	ok, err := c.get(ctx, priorityKey(view, hash), &rows)
	return rows, ok, err
}

func (c *redisPlanCache) SetPriorities(ctx context.Context, view, hash string, rows []domain.PriorityRow) error {
	return c.set(ctx, priorityKey(view, hash), rows)
}

func (c *redisPlanCache) GetMonthly(ctx context.Context, entityType domain.EntityType, hash string) ([]domain.MonthlyBucket, bool, error) {
	var buckets []domain.MonthlyBucket
	ok, err := c.get(ctx, monthlyKey(entityType, hash), &buckets)
	return buckets, ok, err
}

func (c *redisPlanCache) SetMonthly(ctx context.Context, entityType domain.EntityType, hash string, buckets []domain.MonthlyBucket) error {
	return c.set(ctx, monthlyKey(entityType, hash), buckets)
}

func (c *redisPlanCache) InvalidateAll(ctx context.Context) error {
	return deleteKeysWithPrefix(ctx, c.client, planKeyPrefix, planScanBatchSize)
}

func (c *noopPlanCache) GetSummaries(context.Context, domain.EntityType, string) ([]domain.SkuSummary, bool, error) {
	return nil, false, nil
}

func (c *noopPlanCache) SetSummaries(context.Context, domain.EntityType, string, []domain.SkuSummary) error {
	return nil
}

func (c *noopPlanCache) GetSeasonalIndices(context.Context, string) ([]domain.SeasonalIndex, bool, error) {
	return nil, false, nil
}

func (c *noopPlanCache) SetSeasonalIndices(context.Context, string, []domain.SeasonalIndex) error {
	return nil
}

func (c *noopPlanCache) GetPriorities(context.Context, string, string) ([]domain.PriorityRow, bool, error) {
	return nil, false, nil
}

func (c *noopPlanCache) SetPriorities(context.Context, string, string, []domain.PriorityRow) error {
	return nil
}

func (c *noopPlanCache) GetMonthly(context.Context, domain.EntityType, string) ([]domain.MonthlyBucket, bool, error) {
	return nil, false, nil
}

func (c *noopPlanCache) SetMonthly(context.Context, domain.EntityType, string, []domain.MonthlyBucket) error {
	return nil
}

func (c *noopPlanCache) InvalidateAll(context.Context) error {
	return nil
}
