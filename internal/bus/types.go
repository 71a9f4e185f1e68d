package bus

import "context"

// InboundMessage is a user message arriving from a channel, normalized
// before it reaches the run scheduler.
type InboundMessage struct {
	Channel      string   // "discord", "gateway", "cli"
	ChatID       string   // channel-native conversation id
	SenderID     string
	SenderName   string
	Session      string // conversation session key the message maps to
	Content      string
	Media        []string // local paths of downloaded attachments
	ReceivedAtMS int64
}

// OutboundMessage is agent output destined for a channel.
type OutboundMessage struct {
	Channel string
	ChatID  string
	Content string
}

// MessageHandler delivers an outbound message on a specific channel.
type MessageHandler func(ctx context.Context, msg OutboundMessage) error

// Event is a runtime notification fanned out to subscribers (websocket
// clients, the CLI). Payload shape depends on Type.
type Event struct {
	Type    string `json:"type"`
	Session string `json:"session,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// EventHandler receives broadcast events. Handlers must not block.
type EventHandler func(Event)
