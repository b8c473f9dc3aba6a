package statscache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/firesight-in/firesight/internal/domain/detection"
)

// MemoryCache is an in-process statistics cache with TTL expiry.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	clock   clockwork.Clock
}

type memoryEntry struct {
	stats     detection.Statistics
	expiresAt time.Time
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache(clock clockwork.Clock) *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), clock: clock}
}

func (c *MemoryCache) Get(_ context.Context, key string) (detection.Statistics, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.clock.Now().After(entry.expiresAt) {
		return detection.Statistics{}, false, nil
	}
	return entry.stats, true, nil
}

func (c *MemoryCache) Save(_ context.Context, key string, stats detection.Statistics, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{stats: stats, expiresAt: c.clock.Now().Add(ttl)}
	return nil
}

var _ detection.StatsCache = (*MemoryCache)(nil)
