package cron

import (
	"math/rand/v2"
	"time"
)

// RetryConfig bounds retries for failed job executions.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second}
}

// ExecuteWithRetry runs fn until it succeeds or retries are exhausted,
// sleeping an exponentially growing jittered delay between attempts.
// Returns the last result, the number of attempts made, and the last error.
func ExecuteWithRetry(fn func() (string, error), cfg RetryConfig) (string, int, error) {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(backoffWithJitter(cfg.BaseDelay, cfg.MaxDelay, attempt-1))
		}
		result, err := fn()
		if err == nil {
			return result, attempt + 1, nil
		}
		lastErr = err
	}
	return "", cfg.MaxRetries + 1, lastErr
}

// backoffWithJitter returns base*2^attempt capped at max, with ±25% jitter.
func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	d := base << attempt
	if d > max || d <= 0 {
		d = max
	}
	jitter := time.Duration(rand.Int64N(int64(d) / 2))
	return d - d/4 + jitter
}

// maxOutputBytes caps run-log summaries so one chatty job cannot bloat the
// history.
const maxOutputBytes = 16 * 1024

// TruncateOutput clips s to maxOutputBytes with a marker suffix.
func TruncateOutput(s string) string {
	if len(s) <= maxOutputBytes {
		return s
	}
	return s[:maxOutputBytes] + "...[truncated]"
}
