// Package engine drives the agent loop: call the model, stream text to the
// sink, resolve tool calls (gating sensitive ones on human approval), feed
// results back, repeat until the model answers in plain text or a bound is
// hit.
package engine

// ToolEventType enumerates the lifecycle points of one tool call.
type ToolEventType string

const (
	ToolRequested        ToolEventType = "requested"
	ToolAwaitingApproval ToolEventType = "awaiting_approval"
	ToolApproved         ToolEventType = "approved"
	ToolDenied           ToolEventType = "denied"
	ToolExecuted         ToolEventType = "executed"
	ToolErrored          ToolEventType = "errored"
)

// ToolEvent is one discrete lifecycle notification.
type ToolEvent struct {
	Type   ToolEventType `json:"type"`
	CallID string        `json:"call_id"`
	Tool   string        `json:"tool"`
	Detail string        `json:"detail,omitempty"`
}

// StreamSink consumes incremental output from a running cycle. Text deltas
// arrive in model emission order; tool events are discrete and may
// interleave with deltas of later cycles. Implementations must not block
// for long — the engine calls them inline.
type StreamSink interface {
	OnTextDelta(delta string)
	OnToolEvent(ev ToolEvent)
}

// NopSink discards everything. Useful for cron-driven cycles with no
// audience.
type NopSink struct{}

func (NopSink) OnTextDelta(string)    {}
func (NopSink) OnToolEvent(ToolEvent) {}

// SinkFuncs adapts plain functions to the StreamSink interface.
type SinkFuncs struct {
	Text  func(delta string)
	Event func(ev ToolEvent)
}

func (s SinkFuncs) OnTextDelta(delta string) {
	if s.Text != nil {
		s.Text(delta)
	}
}

func (s SinkFuncs) OnToolEvent(ev ToolEvent) {
	if s.Event != nil {
		s.Event(ev)
	}
}
