package api

import (
	"sync"
	"time"
)

// RateLimitConfig holds configuration for the rate limiter.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active.
	Enabled bool
	// AuthRequestsPerMin is the max requests per minute for token exchange.
	AuthRequestsPerMin int
	// APIRequestsPerMin is the max requests per minute for general API endpoints.
	APIRequestsPerMin int
}

// DefaultRateLimitConfig returns sensible defaults for rate limiting.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:            true,
		AuthRequestsPerMin: 10,
		APIRequestsPerMin:  120,
	}
}

// RateLimiter counts requests per key over fixed one-minute windows.
type RateLimiter struct {
	mu        sync.Mutex
	counts    map[string]int
	deadlines map[string]time.Time
	config    RateLimitConfig
	lastSweep time.Time
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		counts:    make(map[string]int),
		deadlines: make(map[string]time.Time),
		config:    cfg,
		lastSweep: time.Now(),
	}
}

// Allow reports whether a request for the given key fits under the limit,
// counting it when it does. A fresh window opens when the previous one for
// the key has expired.
func (rl *RateLimiter) Allow(key string, limit int) bool {
	if !rl.config.Enabled || limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.sweepLocked(now)

	if deadline, ok := rl.deadlines[key]; !ok || now.After(deadline) {
		rl.counts[key] = 1
		rl.deadlines[key] = now.Add(time.Minute)
		return true
	}
	if rl.counts[key] >= limit {
		return false
	}
	rl.counts[key]++
	return true
}

// sweepLocked drops expired windows so idle clients do not accumulate.
// Runs at most once per sweep interval, piggybacked on Allow.
func (rl *RateLimiter) sweepLocked(now time.Time) {
	if now.Sub(rl.lastSweep) < 5*time.Minute {
		return
	}
	rl.lastSweep = now
	for key, deadline := range rl.deadlines {
		if now.After(deadline) {
			delete(rl.deadlines, key)
			delete(rl.counts, key)
		}
	}
}
