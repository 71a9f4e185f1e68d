package gateway

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter enforces per-connection request rates with token buckets.
type RateLimiter struct {
	limiters sync.Map // key → *limiterEntry
	rate     rate.Limit
	burst    int
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter builds a limiter refilling perSec tokens per second with
// the given burst. perSec <= 0 disables limiting.
func NewRateLimiter(perSec, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 5
	}
	r := rate.Limit(0)
	if perSec > 0 {
		r = rate.Limit(perSec)
	}
	rl := &RateLimiter{rate: r, burst: burst}
	go rl.cleanupLoop()
	return rl
}

// Allow reports whether a request under key may proceed.
func (rl *RateLimiter) Allow(key string) bool {
	if rl.rate == 0 {
		return true
	}
	entry := rl.entry(key)
	if !entry.limiter.Allow() {
		slog.Warn("gateway rate limited", "key", key)
		return false
	}
	entry.lastSeen = time.Now()
	return true
}

// Enabled reports whether limiting is active.
func (rl *RateLimiter) Enabled() bool { return rl.rate > 0 }

func (rl *RateLimiter) entry(key string) *limiterEntry {
	if v, ok := rl.limiters.Load(key); ok {
		return v.(*limiterEntry)
	}
	e := &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst), lastSeen: time.Now()}
	actual, _ := rl.limiters.LoadOrStore(key, e)
	return actual.(*limiterEntry)
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-10 * time.Minute)
		rl.limiters.Range(func(key, value any) bool {
			if value.(*limiterEntry).lastSeen.Before(cutoff) {
				rl.limiters.Delete(key)
			}
			return true
		})
	}
}
