package governance

import (
	"sync"
	"time"
)

// RateLimiterConfig defines the token bucket shared by every client key.
type RateLimiterConfig struct {
	RequestsPerSecond int
	BurstSize         int
	// MaxKeys bounds the number of tracked clients; idle buckets are evicted first.
	MaxKeys int
	// IdleTTL is how long an untouched bucket is kept once MaxKeys is reached.
	IdleTTL time.Duration
}

const (
	defaultMaxKeys = 10000
	defaultIdleTTL = time.Minute
)

// RateLimiter implements token bucket rate limiting per client key.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucket
	config  RateLimiterConfig
	now     func() time.Time
}

// NewRateLimiter creates a rate limiter with the provided configuration.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 100
	}
	if config.BurstSize <= 0 {
		config.BurstSize = config.RequestsPerSecond
	}
	if config.MaxKeys <= 0 {
		config.MaxKeys = defaultMaxKeys
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = defaultIdleTTL
	}
	return &RateLimiter{
		buckets: make(map[string]*tokenBucket),
		config:  config,
		now:     time.Now,
	}
}

// Allow checks if a request from key should be admitted.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	now := rl.now()
	bucket, exists := rl.buckets[key]
	if !exists {
		if len(rl.buckets) >= rl.config.MaxKeys {
			rl.evictIdle(now)
		}
		bucket = newTokenBucket(rl.config.RequestsPerSecond, rl.config.BurstSize, now)
		rl.buckets[key] = bucket
	}
	rl.mu.Unlock()

	return bucket.take(now)
}

// Limit returns the sustained rate in requests per second.
func (rl *RateLimiter) Limit() int {
	return rl.config.RequestsPerSecond
}

// Stats returns current rate limit statistics for all tracked keys.
func (rl *RateLimiter) Stats() map[string]RateLimitStats {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	stats := make(map[string]RateLimitStats, len(rl.buckets))
	for key, bucket := range rl.buckets {
		stats[key] = bucket.stats(now)
	}
	return stats
}

// evictIdle drops buckets untouched for IdleTTL, or the oldest one when none are idle.
// Callers hold rl.mu.
func (rl *RateLimiter) evictIdle(now time.Time) {
	var oldestKey string
	var oldest time.Time
	for key, bucket := range rl.buckets {
		last := bucket.lastSeen()
		if now.Sub(last) > rl.config.IdleTTL {
			delete(rl.buckets, key)
			continue
		}
		if oldestKey == "" || last.Before(oldest) {
			oldestKey, oldest = key, last
		}
	}
	if len(rl.buckets) >= rl.config.MaxKeys && oldestKey != "" {
		delete(rl.buckets, oldestKey)
	}
}

// RateLimitStats exposes current state of a rate limit bucket.
type RateLimitStats struct {
	Limit          int     `json:"limit"`
	BurstSize      int     `json:"burstSize"`
	Available      float64 `json:"available"`
	LastRefillTime string  `json:"lastRefillTime"`
}

// tokenBucket implements a token bucket algorithm for rate limiting.
type tokenBucket struct {
	mu         sync.Mutex
	rate       float64   // tokens per second
	capacity   float64   // maximum burst size
	tokens     float64   // current available tokens
	lastRefill time.Time // last time tokens were refilled
}

// newTokenBucket creates a full token bucket with the specified rate and capacity.
func newTokenBucket(rps, burstSize int, now time.Time) *tokenBucket {
	return &tokenBucket{
		rate:       float64(rps),
		capacity:   float64(burstSize),
		tokens:     float64(burstSize),
		lastRefill: now,
	}
}

// take attempts to consume one token from the bucket.
func (tb *tokenBucket) take(now time.Time) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(now)

	if tb.tokens >= 1.0 {
		tb.tokens -= 1.0
		return true
	}

	return false
}

// refill adds tokens to the bucket based on elapsed time.
func (tb *tokenBucket) refill(now time.Time) {
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}

	tb.tokens += elapsed * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}

	tb.lastRefill = now
}

func (tb *tokenBucket) lastSeen() time.Time {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.lastRefill
}

func (tb *tokenBucket) stats(now time.Time) RateLimitStats {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(now)

	return RateLimitStats{
		Limit:          int(tb.rate),
		BurstSize:      int(tb.capacity),
		Available:      tb.tokens,
		LastRefillTime: tb.lastRefill.Format(time.RFC3339),
	}
}
