package events

import (
	"sync"
	"time"

	"github.com/brandforge/siteharvest/internal/extract"
)

// DedupCache is a TTL-keyed seen-set. Insertion and expiry are driven by an
// injected clock so sweeping can be unit-tested without real timers.
type DedupCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   extract.Clock
	entries map[string]time.Time
}

// NewDedupCache builds a cache whose entries expire after ttl.
func NewDedupCache(ttl time.Duration, clk extract.Clock) *DedupCache {
	return &DedupCache{
		ttl:     ttl,
		clock:   clk,
		entries: make(map[string]time.Time),
	}
}

// Seen records key and reports whether it was already present within the TTL
// window. An expired entry counts as unseen and is refreshed.
func (c *DedupCache) Seen(key string) bool {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.entries[key]
	if ok && now.Sub(at) < c.ttl {
		return true
	}
	c.entries[key] = now
	return false
}

// Sweep purges entries older than the TTL and returns how many were removed.
func (c *DedupCache) Sweep() int {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, at := range c.entries {
		if now.Sub(at) >= c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the current entry count, expired or not.
func (c *DedupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
