package scheduler

import "errors"

var (
	// ErrQueueFull is returned when an invocation is rejected because the
	// session queue is full (drop=new policy).
	ErrQueueFull = errors.New("session queue is full")

	// ErrQueueDropped is returned when a queued invocation is evicted to
	// make room (drop=old policy).
	ErrQueueDropped = errors.New("invocation dropped from queue")
)
