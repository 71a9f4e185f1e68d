package providers

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryConfig controls exponential backoff for transient provider failures.
type RetryConfig struct {
	MaxRetries int           // retry attempts after the first try (0 = no retry)
	BaseDelay  time.Duration // initial backoff delay
	MaxDelay   time.Duration // backoff ceiling
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// withRetry runs fn, retrying transient errors with backoff + jitter.
// Non-transient errors return immediately. Exhausted retries surface as a
// ProtocolError so callers treat the failure as terminal.
func withRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var err error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		delay := backoffWithJitter(cfg.BaseDelay, cfg.MaxDelay, attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return &ProtocolError{Reason: "retries exhausted", Err: err}
}

// backoffWithJitter computes delay = min(base * 2^attempt, max) ± 25% jitter.
func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	delay := base << uint(attempt)
	if delay > max || delay <= 0 {
		delay = max
	}

	quarter := delay / 4
	if quarter > 0 {
		jitter := time.Duration(rand.Int64N(int64(quarter*2))) - quarter
		delay += jitter
	}
	return delay
}
