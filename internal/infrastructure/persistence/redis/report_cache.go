package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTLReport bounds how long a cached report survives without invalidation.
const TTLReport = 10 * time.Minute

// ReportCache stores analytics reports as one Redis hash per scope key, one
// field per report window. Invalidate drops the whole hash, which is the
// award.AggregateCache contract.
type ReportCache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewReportCache creates a ReportCache on the shared client. ttl <= 0 uses TTLReport.
func NewReportCache(c *Cache, ttl time.Duration) *ReportCache {
	return newReportCache(c.client, c.config.KeyPrefix, ttl)
}

func newReportCache(client redis.Cmdable, prefix string, ttl time.Duration) *ReportCache {
	if ttl <= 0 {
		ttl = TTLReport
	}
	return &ReportCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *ReportCache) key(scopeKey string) string {
	return buildKey(c.prefix, "report", scopeKey)
}

// Load reads one report. A missing hash or field is a miss, not an error.
func (c *ReportCache) Load(ctx context.Context, scopeKey, field string, dest any) (bool, error) {
	if scopeKey == "" {
		return false, ErrCacheKeyEmpty
	}
	raw, err := c.client.HGet(ctx, c.key(scopeKey), field).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("hget %s: %w", scopeKey, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return true, nil
}

// Store writes one report and refreshes the hash TTL.
func (c *ReportCache) Store(ctx context.Context, scopeKey, field string, value any) error {
	if scopeKey == "" {
		return ErrCacheKeyEmpty
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	key := c.key(scopeKey)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, field, raw)
		pipe.Expire(ctx, key, c.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("hset %s: %w", scopeKey, err)
	}
	return nil
}

// Invalidate drops every report cached under the scope key.
func (c *ReportCache) Invalidate(ctx context.Context, scopeKey string) error {
	if scopeKey == "" {
		return ErrCacheKeyEmpty
	}
	if err := c.client.Del(ctx, c.key(scopeKey)).Err(); err != nil {
		return fmt.Errorf("del %s: %w", scopeKey, err)
	}
	return nil
}
