package cache

import (
	"sync"
	"time"
)

// RateLimiter counts calls per key over a fixed window. Venue adapters
// use it to stay under exchange request quotas.
type RateLimiter struct {
	mu       sync.Mutex
	counters map[string]*windowCounter
	limit    int
	window   time.Duration
}

type windowCounter struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter allows limit calls per key within each window
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		counters: make(map[string]*windowCounter),
		limit:    limit,
		window:   window,
	}
}

// Allow reports whether another call under key fits in the current window
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	counter, ok := rl.counters[key]
	if !ok || now.Sub(counter.windowStart) > rl.window {
		rl.counters[key] = &windowCounter{count: 1, windowStart: now}
		rl.pruneLocked(now)
		return true
	}

	if counter.count < rl.limit {
		counter.count++
		return true
	}
	return false
}

// Reset clears the counter for a key
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.counters, key)
}

// pruneLocked drops counters whose window is long gone
func (rl *RateLimiter) pruneLocked(now time.Time) {
	for key, counter := range rl.counters {
		if now.Sub(counter.windowStart) > rl.window*2 {
			delete(rl.counters, key)
		}
	}
}
