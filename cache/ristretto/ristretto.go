package ristretto

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/caasmo/identity/cache"
)

// Cache adapts a ristretto cache to the generic cache.Cache interface.
// Keys are strings; the rate limiter keys entries by identity and window
// bucket.
type Cache[V any] struct {
	cache *ristretto.Cache[string, V]
}

func (rc *Cache[V]) Get(key string) (V, bool) {
	return rc.cache.Get(key)
}

func (rc *Cache[V]) Set(key string, value V, cost int64) bool {
	return rc.cache.Set(key, value, cost)
}

func (rc *Cache[V]) SetWithTTL(key string, value V, cost int64, ttl time.Duration) bool {
	return rc.cache.SetWithTTL(key, value, cost, ttl)
}

// sizing presets, keyed by level name. NumCounters should be roughly 10x
// the expected number of live items.
var levels = map[string]struct {
	numCounters int64
	maxCost     int64
}{
	"small":      {numCounters: 1e4, maxCost: 1 << 20}, // 1MB
	"medium":     {numCounters: 1e5, maxCost: 1 << 24}, // 16MB
	"large":      {numCounters: 1e6, maxCost: 1 << 27}, // 128MB
	"very-large": {numCounters: 1e7, maxCost: 1 << 30}, // 1GB
}

func New[V any](level string) (cache.Cache[string, V], error) {
	sizing, ok := levels[level]
	if !ok {
		return nil, fmt.Errorf("ristretto: unknown cache size level %q", level)
	}

	c, err := ristretto.NewCache(&ristretto.Config[string, V]{
		NumCounters: sizing.numCounters,
		MaxCost:     sizing.maxCost,
		BufferItems: 64, // number of keys per Get buffer
	})
	if err != nil {
		return nil, err
	}

	return &Cache[V]{cache: c}, nil
}
