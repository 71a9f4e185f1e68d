package discord

import (
	"strings"
	"testing"
	"time"
)

func TestPendingHistory_RecordAndBuildContext(t *testing.T) {
	ph := NewPendingHistory()
	ts := time.Date(2026, 3, 1, 14, 30, 0, 0, time.UTC)

	ph.Record("chan1", HistoryEntry{Sender: "alice", Body: "anyone seen the deploy?", Timestamp: ts}, 10)
	ph.Record("chan1", HistoryEntry{Sender: "bob", Body: "it went out an hour ago", Timestamp: ts}, 10)

	got := ph.BuildContext("chan1", "what's the deploy status?", 10)
	if !strings.Contains(got, "alice [14:30]: anyone seen the deploy?") {
		t.Errorf("missing first entry:\n%s", got)
	}
	if !strings.Contains(got, "bob [14:30]: it went out an hour ago") {
		t.Errorf("missing second entry:\n%s", got)
	}
	if !strings.HasSuffix(got, "[Your current message]\nwhat's the deploy status?") {
		t.Errorf("current message not appended:\n%s", got)
	}
}

func TestPendingHistory_EmptyPassthrough(t *testing.T) {
	ph := NewPendingHistory()

	if got := ph.BuildContext("chan1", "hello", 10); got != "hello" {
		t.Errorf("BuildContext with no backlog = %q, want passthrough", got)
	}
	if got := ph.BuildContext("", "hello", 10); got != "hello" {
		t.Errorf("BuildContext with empty key = %q, want passthrough", got)
	}
}

func TestPendingHistory_DisabledByLimit(t *testing.T) {
	ph := NewPendingHistory()
	ph.Record("chan1", HistoryEntry{Sender: "alice", Body: "hi"}, 0)

	if got := ph.BuildContext("chan1", "hello", 0); got != "hello" {
		t.Errorf("BuildContext with limit 0 = %q, want passthrough", got)
	}
}

func TestPendingHistory_TrimsToLimit(t *testing.T) {
	ph := NewPendingHistory()
	for i := 0; i < 5; i++ {
		ph.Record("chan1", HistoryEntry{Sender: "alice", Body: string(rune('a' + i))}, 3)
	}

	got := ph.BuildContext("chan1", "now", 3)
	if strings.Contains(got, "alice: a") || strings.Contains(got, "alice: b") {
		t.Errorf("oldest entries not trimmed:\n%s", got)
	}
	for _, want := range []string{"alice: c", "alice: d", "alice: e"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q:\n%s", want, got)
		}
	}
}

func TestPendingHistory_Clear(t *testing.T) {
	ph := NewPendingHistory()
	ph.Record("chan1", HistoryEntry{Sender: "alice", Body: "hi"}, 10)
	ph.Clear("chan1")

	if got := ph.BuildContext("chan1", "hello", 10); got != "hello" {
		t.Errorf("backlog survived Clear: %q", got)
	}
}

func TestPendingHistory_NoTimestamp(t *testing.T) {
	ph := NewPendingHistory()
	ph.Record("chan1", HistoryEntry{Sender: "alice", Body: "hi"}, 10)

	got := ph.BuildContext("chan1", "hello", 10)
	if !strings.Contains(got, "alice: hi") || strings.Contains(got, "[00:00]") {
		t.Errorf("zero timestamp should be omitted:\n%s", got)
	}
}

func TestApprovalTracker_PutTake(t *testing.T) {
	tr := newApprovalTracker()
	tr.put("msg1", "call1")

	callID, ok := tr.take("msg1")
	if !ok || callID != "call1" {
		t.Fatalf("take = %q, %v; want call1, true", callID, ok)
	}

	// Consumed on take; a second reaction on the same message is a no-op.
	if _, ok := tr.take("msg1"); ok {
		t.Error("take succeeded twice for the same message")
	}
}

func TestApprovalTracker_UnknownMessage(t *testing.T) {
	tr := newApprovalTracker()
	if _, ok := tr.take("nope"); ok {
		t.Error("take returned ok for untracked message")
	}
}

func TestClampMessage(t *testing.T) {
	if got := clampMessage("short"); got != "short" {
		t.Errorf("clampMessage(short) = %q", got)
	}

	long := strings.Repeat("x", maxMessageChars+500)
	got := clampMessage(long)
	if len(got) > maxMessageChars {
		t.Errorf("clamped length = %d, want <= %d", len(got), maxMessageChars)
	}
	if !strings.HasSuffix(got, "… (truncated)") {
		t.Errorf("clamped message missing truncation marker: %q", got[len(got)-30:])
	}
}
