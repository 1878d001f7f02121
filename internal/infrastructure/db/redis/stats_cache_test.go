package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/metacode/fiches-api/internal/core/domain"
)

func unreachableCache(t *testing.T) *StatsCache {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return NewStatsCache(client, 0)
}

func TestStatsCache_KeyPerPeriod(t *testing.T) {
	c := NewStatsCache(nil, time.Minute)
	assert.Equal(t, "stats:0:week", c.key(0, domain.PeriodWeek))
	assert.Equal(t, "stats:7:year", c.key(7, domain.PeriodYear))
}

func TestNewStatsCache_DefaultTTL(t *testing.T) {
	assert.Equal(t, defaultStatsTTL, NewStatsCache(nil, 0).ttl)
	assert.Equal(t, time.Second, NewStatsCache(nil, time.Second).ttl)
}

func TestConfig_Options(t *testing.T) {
	opts := Config{Addr: "cache:6379", DB: 2}.options()
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, clientName, opts.ClientName)
	assert.Equal(t, defaultTimeout, opts.DialTimeout)

	opts = Config{Timeout: time.Second}.options()
	assert.Equal(t, time.Second, opts.ReadTimeout)
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect(context.Background(), Config{Addr: "127.0.0.1:1", Timeout: 100 * time.Millisecond})
	assert.ErrorContains(t, err, "redis ping 127.0.0.1:1")
}

func TestStatsCache_UnreachableServerIsAnError(t *testing.T) {
	c := unreachableCache(t)
	ctx := context.Background()

	_, err := c.Generation(ctx)
	assert.Error(t, err)

	buckets, ok, err := c.Get(ctx, 0, domain.PeriodDay)
	assert.Error(t, err, "a connection failure must not look like a miss")
	assert.False(t, ok)
	assert.Nil(t, buckets)

	assert.Error(t, c.Set(ctx, 0, domain.PeriodDay, []domain.StatBucket{{Bucket: "2025-01-01", Total: 1}}))
	assert.Error(t, c.Invalidate(ctx))
}
