package scanner

import (
	"sync"
	"time"
)

// resultCache holds the single most recent scan result so repeated scans
// within the TTL window do not re-rank from scratch.
type resultCache struct {
	mu  sync.RWMutex
	ttl time.Duration
	cur *cachedResult
}

func newResultCache(ttl time.Duration) *resultCache {
	return &resultCache{ttl: ttl}
}

func (c *resultCache) get() *Result {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.cur == nil || time.Now().After(c.cur.expiresAt) {
		return nil
	}
	return c.cur.result
}

func (c *resultCache) set(result *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cur = &cachedResult{result: result, expiresAt: time.Now().Add(c.ttl)}
}
