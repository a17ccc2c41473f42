package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/brandforge/siteharvest/internal/clock"
)

func TestDedupCacheSeenWithinTTL(t *testing.T) {
	t.Parallel()

	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	cache := NewDedupCache(10*time.Second, clk)

	assert.False(t, cache.Seen("progress|discovery|100"))
	assert.True(t, cache.Seen("progress|discovery|100"))

	clk.Advance(9 * time.Second)
	assert.True(t, cache.Seen("progress|discovery|100"))
}

func TestDedupCacheExpiredEntryRefreshes(t *testing.T) {
	t.Parallel()

	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	cache := NewDedupCache(10*time.Second, clk)

	assert.False(t, cache.Seen("k"))
	clk.Advance(11 * time.Second)
	assert.False(t, cache.Seen("k"), "expired entry counts as unseen")
	assert.True(t, cache.Seen("k"), "refreshed entry suppresses again")
}

func TestDedupCacheSweep(t *testing.T) {
	t.Parallel()

	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	cache := NewDedupCache(10*time.Second, clk)

	cache.Seen("a")
	cache.Seen("b")
	clk.Advance(5 * time.Second)
	cache.Seen("c")
	assert.Equal(t, 3, cache.Len())

	clk.Advance(5 * time.Second)
	removed := cache.Sweep()
	assert.Equal(t, 2, removed, "only entries past the TTL are purged")
	assert.Equal(t, 1, cache.Len())

	clk.Advance(5 * time.Second)
	assert.Equal(t, 1, cache.Sweep())
	assert.Equal(t, 0, cache.Len())
}
