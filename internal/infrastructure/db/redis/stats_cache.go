package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/metacode/fiches-api/internal/core/domain"
)

const (
	defaultStatsTTL = 5 * time.Minute
	generationKey   = "stats:gen"
)

// StatsCache stores creation statistics in Redis.
// Key format: stats:<generation>:<period>
//
// Invalidate increments stats:gen. Entries of older generations are never
// read again and expire with their TTL.
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStatsCache creates a StatsCache wrapping the given Redis client. Entries
// expire after ttl (defaultStatsTTL when ttl <= 0).
func NewStatsCache(client *redis.Client, ttl time.Duration) *StatsCache {
	if ttl <= 0 {
		ttl = defaultStatsTTL
	}
	return &StatsCache{client: client, ttl: ttl}
}

// Generation returns the current cache generation, 0 before the first
// invalidation.
func (c *StatsCache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("stats cache generation: %w", err)
	}
	return gen, nil
}

// Get returns the cached buckets for period in generation gen; ok is false on a miss.
func (c *StatsCache) Get(ctx context.Context, gen int64, period domain.Period) ([]domain.StatBucket, bool, error) {
	raw, err := c.client.Get(ctx, c.key(gen, period)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("stats cache get: %w", err)
	}

	var buckets []domain.StatBucket
	if err := json.Unmarshal(raw, &buckets); err != nil {
		return nil, false, fmt.Errorf("stats cache decode: %w", err)
	}
	return buckets, true, nil
}

// Set stores buckets for period under generation gen (expires after the
// configured TTL).
func (c *StatsCache) Set(ctx context.Context, gen int64, period domain.Period, buckets []domain.StatBucket) error {
	raw, err := json.Marshal(buckets)
	if err != nil {
		return fmt.Errorf("stats cache encode: %w", err)
	}
	return c.client.Set(ctx, c.key(gen, period), raw, c.ttl).Err()
}

// Invalidate moves the cache to a new generation.
func (c *StatsCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, generationKey).Err(); err != nil {
		return fmt.Errorf("stats cache invalidate: %w", err)
	}
	return nil
}

func (c *StatsCache) key(gen int64, period domain.Period) string {
	return fmt.Sprintf("stats:%d:%s", gen, period)
}
