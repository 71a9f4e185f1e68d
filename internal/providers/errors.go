package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// TransientError marks a retryable failure: network errors, timeouts,
// 5xx and 429 responses. The client retries these with backoff.
type TransientError struct {
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transient provider error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient provider error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ProtocolError marks a non-retryable failure: a response the client cannot
// parse into the expected shape, a 4xx rejection, or retries exhausted.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider protocol error: %s: %v", e.Reason, e.Err)
	}
	return "provider protocol error: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}

// retryable classifies an HTTP status code.
func retryableStatus(code int) bool {
	return code == 429 || code >= 500
}

// wrapTransport classifies a transport-level error from the HTTP client.
// Context cancellation passes through untouched so callers see ctx.Err().
func wrapTransport(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &TransientError{Err: err}
}
