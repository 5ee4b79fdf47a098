// Package ristretto is the in-process L1 of the escalation-response cache,
// built on dgraph-io/ristretto. The tiered cache fronts the shared NATS KV
// L2 with it so repeat hotspot rounds on one host skip the bus entirely.
package ristretto

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache holds hot escalation responses keyed per (provider, doc, page,
// entity type).
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// New creates the L1 cache. maxCostBytes caps the total size of cached
// responses; cmd wiring derives it from cache.l1_max_size_mb.
func New(maxCostBytes int64) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxCostBytes / 100 * 10, // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

// Get returns the cached response for key, reporting a miss as ok=false.
func (c *Cache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	val, found := c.c.Get(key)
	if !found {
		return nil, false, nil
	}
	return val, true, nil
}

// Set stores a response under key for the TTL; cost equals the value size.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.c.SetWithTTL(key, value, int64(len(value)), ttl)
	return nil
}

// Delete evicts key.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Close releases the cache's internal buffers. Runs on daemon shutdown.
func (c *Cache) Close() {
	c.c.Close()
}
