package governance

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(cfg RateLimiterConfig) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(cfg)
	rl.now = clock.Now
	return rl, clock
}

func TestRateLimiter_BurstThenRefill(t *testing.T) {
	rl, clock := newTestLimiter(RateLimiterConfig{RequestsPerSecond: 2, BurstSize: 3})

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("10.0.0.1"), "request %d within burst", i)
	}
	assert.False(t, rl.Allow("10.0.0.1"))

	clock.Advance(500 * time.Millisecond)
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	rl, _ := newTestLimiter(RateLimiterConfig{RequestsPerSecond: 1, BurstSize: 1})

	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
}

func TestRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{})

	assert.Equal(t, 100, rl.Limit())
	assert.Equal(t, 100, rl.config.BurstSize)
	assert.Equal(t, defaultMaxKeys, rl.config.MaxKeys)
	assert.Equal(t, defaultIdleTTL, rl.config.IdleTTL)
}

func TestRateLimiter_EvictsIdleKeys(t *testing.T) {
	rl, clock := newTestLimiter(RateLimiterConfig{
		RequestsPerSecond: 1,
		BurstSize:         1,
		MaxKeys:           2,
		IdleTTL:           time.Second,
	})

	require.True(t, rl.Allow("a"))
	require.True(t, rl.Allow("b"))

	clock.Advance(2 * time.Second)
	require.True(t, rl.Allow("c"))

	stats := rl.Stats()
	assert.Len(t, stats, 1)
	assert.Contains(t, stats, "c")
}

func TestRateLimiter_EvictsOldestWhenNoneIdle(t *testing.T) {
	rl, clock := newTestLimiter(RateLimiterConfig{
		RequestsPerSecond: 1,
		BurstSize:         1,
		MaxKeys:           2,
		IdleTTL:           time.Hour,
	})

	require.True(t, rl.Allow("a"))
	clock.Advance(time.Millisecond)
	require.True(t, rl.Allow("b"))
	clock.Advance(time.Millisecond)
	require.True(t, rl.Allow("c"))

	stats := rl.Stats()
	assert.Len(t, stats, 2)
	assert.NotContains(t, stats, "a")
}

func TestRateLimiter_Stats(t *testing.T) {
	rl, _ := newTestLimiter(RateLimiterConfig{RequestsPerSecond: 5, BurstSize: 10})
	require.True(t, rl.Allow("client"))

	stats := rl.Stats()["client"]
	assert.Equal(t, 5, stats.Limit)
	assert.Equal(t, 10, stats.BurstSize)
	assert.InDelta(t, 9.0, stats.Available, 0.001)
	assert.Equal(t, "2025-01-01T00:00:00Z", stats.LastRefillTime)
}

func TestRateLimiter_Concurrent(t *testing.T) {
	rl, _ := newTestLimiter(RateLimiterConfig{RequestsPerSecond: 1, BurstSize: 50})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if rl.Allow(fmt.Sprintf("key-%d", i%2)) {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 100, allowed)
}
