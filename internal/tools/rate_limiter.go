package tools

import (
	"fmt"
	"sync"
	"time"
)

// RateLimiter caps tool executions per key (session tag) within a sliding
// window. A nil *RateLimiter means no limiting.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	max     int
	window  time.Duration
}

// NewRateLimiter returns a limiter allowing maxPerHour executions per key.
// Zero or negative disables limiting.
func NewRateLimiter(maxPerHour int) *RateLimiter {
	if maxPerHour <= 0 {
		return nil
	}
	return &RateLimiter{
		windows: make(map[string][]time.Time),
		max:     maxPerHour,
		window:  time.Hour,
	}
}

// Allow records one execution for key, or returns an error when the window
// is full.
func (rl *RateLimiter) Allow(key string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	entries := rl.windows[key]
	start := 0
	for start < len(entries) && entries[start].Before(cutoff) {
		start++
	}
	entries = entries[start:]

	if len(entries) >= rl.max {
		return fmt.Errorf("tool rate limit exceeded: %d actions/hour for %s", rl.max, key)
	}

	rl.windows[key] = append(entries, now)
	return nil
}

// Cleanup drops keys whose entries have all aged out. Call periodically.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.window)
	for key, entries := range rl.windows {
		start := 0
		for start < len(entries) && entries[start].Before(cutoff) {
			start++
		}
		if start == len(entries) {
			delete(rl.windows, key)
		} else {
			rl.windows[key] = entries[start:]
		}
	}
}
