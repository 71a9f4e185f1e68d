package conversation

import (
	"errors"
	"testing"

	"github.com/majordomo-ai/majordomo/internal/providers"
)

func assistantWithCalls(ids ...string) Message {
	var calls []providers.ToolCall
	for _, id := range ids {
		calls = append(calls, providers.ToolCall{
			ID:   id,
			Type: "function",
			Function: providers.ToolCallFunc{Name: "exec", Arguments: "{}"},
		})
	}
	return Message{Role: "assistant", Content: "", ToolCalls: calls}
}

func TestAppend_Order(t *testing.T) {
	c := New("s1", "sys")

	idx, err := c.Append(Message{Role: "user", Content: "hi"})
	if err != nil {
		t.Fatalf("append user: %v", err)
	}
	if idx != 1 {
		t.Errorf("index = %d, want 1", idx)
	}
	if c.Len() != 2 {
		t.Errorf("len = %d, want 2", c.Len())
	}
}

func TestAppend_ToolRequiresPendingCall(t *testing.T) {
	c := New("s1")

	_, err := c.Append(Message{Role: "tool", Content: "out", ToolCallID: "call_1"})
	if !errors.Is(err, ErrOrderViolation) {
		t.Fatalf("expected ErrOrderViolation, got %v", err)
	}

	if _, err := c.Append(assistantWithCalls("call_1")); err != nil {
		t.Fatalf("append assistant: %v", err)
	}
	if _, err := c.Append(Message{Role: "tool", Content: "out", ToolCallID: "call_1"}); err != nil {
		t.Fatalf("append matching tool result: %v", err)
	}

	// Same ID cannot be answered twice.
	_, err = c.Append(Message{Role: "tool", Content: "again", ToolCallID: "call_1"})
	if !errors.Is(err, ErrOrderViolation) {
		t.Fatalf("expected ErrOrderViolation on duplicate answer, got %v", err)
	}
}

func TestAppend_NewAssistantResetsPending(t *testing.T) {
	c := New("s1")
	c.Append(assistantWithCalls("old_call"))
	c.Append(Message{Role: "tool", Content: "x", ToolCallID: "old_call"})
	c.Append(assistantWithCalls("new_call"))

	_, err := c.Append(Message{Role: "tool", Content: "late", ToolCallID: "old_call"})
	if !errors.Is(err, ErrOrderViolation) {
		t.Fatalf("stale tool call id accepted: %v", err)
	}
}

func TestHistory_SnapshotIsolation(t *testing.T) {
	c := New("s1", "sys")
	c.Append(Message{Role: "user", Content: "original"})

	snap := c.History()
	snap[1].Content = "mutated"

	if got := c.History()[1].Content; got != "original" {
		t.Errorf("mutating a snapshot leaked into the log: %q", got)
	}
}

func TestClear_KeepsSystem(t *testing.T) {
	c := New("s1", "sys-a", "sys-b")
	c.Append(Message{Role: "user", Content: "hi"})
	c.Append(Message{Role: "assistant", Content: "hello"})
	c.Clear()

	h := c.History()
	if len(h) != 2 {
		t.Fatalf("len = %d, want 2 system messages", len(h))
	}
	for _, m := range h {
		if m.Role != "system" {
			t.Errorf("unexpected role %q after clear", m.Role)
		}
	}
}

func TestTruncate_NeverSplitsPairs(t *testing.T) {
	c := New("s1", "sys")
	c.Append(Message{Role: "user", Content: "q1"})
	c.Append(assistantWithCalls("c1", "c2"))
	c.Append(Message{Role: "tool", Content: "r1", ToolCallID: "c1"})
	c.Append(Message{Role: "tool", Content: "r2", ToolCallID: "c2"})
	c.Append(Message{Role: "assistant", Content: "done"})

	// keepLastN=3 would cut inside the assistant/tool group; the cut must
	// move back to include the issuing assistant message.
	c.Truncate(3)

	h := c.History()
	if h[0].Role != "system" {
		t.Fatalf("system message dropped")
	}
	first := h[1]
	if first.Role == "tool" {
		t.Fatalf("truncation left an orphan tool message first: %+v", first)
	}
	if first.Role != "assistant" || len(first.ToolCalls) != 2 {
		t.Errorf("expected assistant with calls first, got %+v", first)
	}
}

func TestTruncate_KeepAll(t *testing.T) {
	c := New("s1", "sys")
	c.Append(Message{Role: "user", Content: "q"})
	before := c.Len()
	c.Truncate(10)
	if c.Len() != before {
		t.Errorf("truncate with large keepLastN changed length")
	}
}
