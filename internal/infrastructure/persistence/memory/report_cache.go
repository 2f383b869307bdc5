package memory

import (
	"context"
	"encoding/json"
	"sync"
)

// ReportCache is an in-memory report cache grouped by scope key.
// It implements both the query-side report cache and award.AggregateCache.
type ReportCache struct {
	mu     sync.RWMutex
	scopes map[string]map[string][]byte
}

// NewReportCache creates an empty cache.
func NewReportCache() *ReportCache {
	return &ReportCache{scopes: make(map[string]map[string][]byte)}
}

// Load decodes the cached value into dest.
func (c *ReportCache) Load(_ context.Context, scopeKey, field string, dest any) (bool, error) {
	c.mu.RLock()
	raw, ok := c.scopes[scopeKey][field]
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Store encodes value under the scope key.
func (c *ReportCache) Store(_ context.Context, scopeKey, field string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fields, ok := c.scopes[scopeKey]
	if !ok {
		fields = make(map[string][]byte)
		c.scopes[scopeKey] = fields
	}
	fields[field] = raw
	return nil
}

// Invalidate drops every field under the scope key.
func (c *ReportCache) Invalidate(_ context.Context, scopeKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.scopes, scopeKey)
	return nil
}

// Len returns the number of cached fields under the scope key.
func (c *ReportCache) Len(scopeKey string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.scopes[scopeKey])
}
