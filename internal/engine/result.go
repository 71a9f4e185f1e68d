package engine

import "errors"

// StopReason says why a run ended.
type StopReason string

const (
	StopDone          StopReason = "done"
	StopMaxCycles     StopReason = "max_cycles_exceeded"
	StopProtocolError StopReason = "protocol_error"
	StopToolNotFound  StopReason = "tool_not_found"
	StopCancelled     StopReason = "cancelled"
)

// ErrMaxCyclesExceeded is returned when the loop hits its cycle cap with the
// model still asking for tools.
var ErrMaxCyclesExceeded = errors.New("engine: max cycles exceeded")

// ErrToolNotFound is returned when the model names a tool the registry never
// held. The request is structurally invalid against the definitions the
// model was given, so it is not fed back for recovery.
var ErrToolNotFound = errors.New("engine: tool not found")

// CycleResult is what a finished run reports to its caller. The conversation
// holds the full transcript either way; FinalText is the last assistant
// message when the run completed normally.
type CycleResult struct {
	FinalText string
	Cycles    int
	Stop      StopReason
}

// Completed reports whether the model produced a final answer.
func (r *CycleResult) Completed() bool { return r.Stop == StopDone }
