package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestReadEmailTool_ListsUnreadByDefault(t *testing.T) {
	var gotQuery mailQuery

	tool := NewReadEmailTool(IMAPConfig{Host: "imap.example.com", Port: 993})
	tool.fetch = func(_ IMAPConfig, q mailQuery) ([]EmailSummary, error) {
		gotQuery = q
		return []EmailSummary{
			{From: "billing@example.com", Subject: "Invoice overdue", Date: time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)},
			{From: "carol@example.com", Subject: "Lunch?", Date: time.Date(2026, 8, 26, 8, 0, 0, 0, time.UTC)},
		}, nil
	}

	res := tool.Execute(context.Background(), map[string]interface{}{})
	if res.IsError {
		t.Fatalf("read failed: %+v", res)
	}
	if !gotQuery.unreadOnly {
		t.Error("default query should be unread only")
	}
	if gotQuery.limit != 10 {
		t.Errorf("default limit = %d, want 10", gotQuery.limit)
	}
	if !strings.Contains(res.ForLLM, "Invoice overdue") || !strings.Contains(res.ForLLM, "carol@example.com") {
		t.Errorf("listing missing messages: %q", res.ForLLM)
	}
	// Newest first.
	if strings.Index(res.ForLLM, "Lunch?") > strings.Index(res.ForLLM, "Invoice overdue") {
		t.Errorf("listing not newest-first: %q", res.ForLLM)
	}
}

func TestReadEmailTool_PassesFilters(t *testing.T) {
	var gotQuery mailQuery

	tool := NewReadEmailTool(IMAPConfig{Host: "imap.example.com", Port: 993})
	tool.fetch = func(_ IMAPConfig, q mailQuery) ([]EmailSummary, error) {
		gotQuery = q
		return nil, nil
	}

	res := tool.Execute(context.Background(), map[string]interface{}{
		"sender":      "boss@example.com",
		"subject":     "budget",
		"unread_only": false,
		"limit":       float64(3),
	})
	if res.IsError {
		t.Fatalf("read failed: %+v", res)
	}
	want := mailQuery{sender: "boss@example.com", subject: "budget", unreadOnly: false, limit: 3}
	if gotQuery != want {
		t.Errorf("query = %+v, want %+v", gotQuery, want)
	}
	if !strings.Contains(res.ForLLM, "No matching email") {
		t.Errorf("empty filtered listing = %q", res.ForLLM)
	}
}

func TestReadEmailTool_EmptyInbox(t *testing.T) {
	tool := NewReadEmailTool(IMAPConfig{Host: "imap.example.com"})
	tool.fetch = func(IMAPConfig, mailQuery) ([]EmailSummary, error) { return nil, nil }

	res := tool.Execute(context.Background(), map[string]interface{}{})
	if res.IsError || !strings.Contains(res.ForLLM, "No unread email") {
		t.Errorf("result = %+v", res)
	}
}

func TestReadEmailTool_FetchError(t *testing.T) {
	tool := NewReadEmailTool(IMAPConfig{Host: "imap.example.com"})
	tool.fetch = func(IMAPConfig, mailQuery) ([]EmailSummary, error) {
		return nil, errors.New("login: authentication failed")
	}

	res := tool.Execute(context.Background(), map[string]interface{}{})
	if !res.IsError || !strings.Contains(res.ForLLM, "authentication failed") {
		t.Errorf("result = %+v", res)
	}
}

func TestReadEmailTool_Unconfigured(t *testing.T) {
	res := NewReadEmailTool(IMAPConfig{}).Execute(context.Background(), map[string]interface{}{})
	if !res.IsError || !strings.Contains(res.ForLLM, "not configured") {
		t.Errorf("result = %+v", res)
	}
}

func TestReadEmailTool_NotSensitive(t *testing.T) {
	if NewReadEmailTool(IMAPConfig{}).Sensitive() {
		t.Error("read_email must not require approval")
	}
}
