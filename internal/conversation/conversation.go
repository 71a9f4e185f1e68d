// Package conversation holds the append-only message log for one session and
// its durable JSON persistence. A conversation is owned by exactly one engine
// run at a time; the scheduler enforces that upstream.
package conversation

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/majordomo-ai/majordomo/internal/providers"
)

// ErrOrderViolation is returned when a tool message references a tool call
// that the immediately preceding assistant message did not issue. Feeding
// such a message to the model corrupts its context, so the append is refused.
var ErrOrderViolation = errors.New("conversation: tool message without matching pending tool call")

// Message is one conversation entry. It mirrors the provider wire shape plus
// the timestamp required by the persisted record.
type Message struct {
	Role       string               `json:"role"`
	Content    string               `json:"content"`
	Name       string               `json:"name,omitempty"`
	ToolCalls  []providers.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string               `json:"tool_call_id,omitempty"`
	Timestamp  time.Time            `json:"timestamp"`
}

// Wire converts to the provider wire type, dropping the timestamp.
func (m Message) Wire() providers.Message {
	return providers.Message{
		Role:       m.Role,
		Content:    m.Content,
		Name:       m.Name,
		ToolCalls:  m.ToolCalls,
		ToolCallID: m.ToolCallID,
	}
}

// Conversation is an ordered, append-only message log.
type Conversation struct {
	mu       sync.RWMutex
	session  string
	messages []Message
	pending  map[string]bool // tool call IDs awaiting a tool result
}

// New creates a conversation seeded with system messages.
func New(session string, systemMessages ...string) *Conversation {
	c := &Conversation{session: session, pending: make(map[string]bool)}
	for _, s := range systemMessages {
		c.messages = append(c.messages, Message{Role: "system", Content: s, Timestamp: time.Now()})
	}
	return c
}

// Session returns the session tag this conversation belongs to.
func (c *Conversation) Session() string { return c.session }

// Append adds a message to the end of the log and returns its index.
// Appending a tool message whose ToolCallID was not issued by the most
// recent assistant message fails with ErrOrderViolation. An assistant
// message that issues tool calls resets the pending set; every one of its
// calls must be answered before the next assistant turn.
func (c *Conversation) Append(msg Message) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	switch msg.Role {
	case "assistant":
		c.pending = make(map[string]bool, len(msg.ToolCalls))
		for _, tc := range msg.ToolCalls {
			c.pending[tc.ID] = true
		}
	case "tool":
		if !c.pending[msg.ToolCallID] {
			return 0, fmt.Errorf("%w: %q", ErrOrderViolation, msg.ToolCallID)
		}
		delete(c.pending, msg.ToolCallID)
	}

	c.messages = append(c.messages, msg)
	return len(c.messages) - 1, nil
}

// History returns a snapshot copy of the log. The snapshot is exactly what
// the engine sends to the model; callers may not mutate past entries through
// it.
func (c *Conversation) History() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// WireHistory returns the history converted to provider messages.
func (c *Conversation) WireHistory() []providers.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]providers.Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = m.Wire()
	}
	return out
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Clear drops everything except system messages.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.messages[:0]
	for _, m := range c.messages {
		if m.Role == "system" {
			kept = append(kept, m)
		}
	}
	c.messages = kept
	c.pending = make(map[string]bool)
}

// Truncate keeps system messages plus at most the last keepLastN other
// messages. The cut never splits an assistant/tool pair: when it would land
// on a tool result, it moves back to include the assistant message that
// issued the call.
func (c *Conversation) Truncate(keepLastN int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if keepLastN < 0 {
		keepLastN = 0
	}

	var system, rest []Message
	for _, m := range c.messages {
		if m.Role == "system" {
			system = append(system, m)
		} else {
			rest = append(rest, m)
		}
	}

	cut := len(rest) - keepLastN
	if cut <= 0 {
		return
	}
	// Extend backward while the first kept message is a tool result, so its
	// issuing assistant message stays in the window.
	for cut > 0 && cut < len(rest) && rest[cut].Role == "tool" {
		cut--
	}

	c.messages = append(system, rest[cut:]...)
}

// EstimateTokens approximates the token footprint of the history using the
// cl100k_base encoding, falling back to a chars/4 heuristic when the
// encoding is unavailable (e.g. offline first run).
func (c *Conversation) EstimateTokens() int {
	history := c.History()

	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		total := 0
		for _, m := range history {
			total += len(m.Content) / 4
		}
		return total
	}

	total := 0
	for _, m := range history {
		total += len(enc.Encode(m.Content, nil, nil))
		for _, tc := range m.ToolCalls {
			total += len(enc.Encode(tc.Function.Arguments, nil, nil))
		}
	}
	return total
}
