package protocol

// Event names pushed from server to clients.
const (
	EventChat             = "chat"
	EventRun              = "run"
	EventCron             = "cron"
	EventApprovalRequest  = "approval.requested"
	EventApprovalResolved = "approval.resolved"
	EventShutdown         = "shutdown"
)

// Chat event subtypes (in payload.type).
const (
	ChatEventDelta   = "delta"   // streamed text fragment
	ChatEventMessage = "message" // complete final answer
)

// Run event subtypes (in payload.type).
const (
	RunEventStarted    = "started"
	RunEventCompleted  = "completed"
	RunEventFailed     = "failed"
	RunEventToolCall   = "tool.call"
	RunEventToolResult = "tool.result"
)

// ChatPayload carries streamed text for EventChat.
type ChatPayload struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// RunPayload carries agent run lifecycle and tool activity for EventRun.
type RunPayload struct {
	Type   string `json:"type"`
	CallID string `json:"call_id,omitempty"`
	Tool   string `json:"tool,omitempty"`
	Detail string `json:"detail,omitempty"`
	Stop   string `json:"stop,omitempty"`
	Cycles int    `json:"cycles,omitempty"`
}

// ApprovalPayload describes a pending or resolved approval request.
type ApprovalPayload struct {
	CallID    string `json:"call_id"`
	Tool      string `json:"tool,omitempty"`
	Prompt    string `json:"prompt,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	DecidedBy string `json:"decided_by,omitempty"`
}
