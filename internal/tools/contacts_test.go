package tools

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/majordomo-ai/majordomo/internal/memory"
)

func contactsStore(t *testing.T) *memory.Store {
	t.Helper()
	s, err := memory.Open(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestContactsTools_AddThenSearch(t *testing.T) {
	store := contactsStore(t)
	ctx := context.Background()

	add := NewContactsAddTool(store)
	res := add.Execute(ctx, map[string]interface{}{
		"name":  "Dana Whitfield",
		"email": "dana@example.com",
		"phone": "555-0142",
	})
	if res.IsError {
		t.Fatalf("add: %+v", res)
	}

	search := NewContactsSearchTool(store)
	res = search.Execute(ctx, map[string]interface{}{"query": "whitfield"})
	if res.IsError {
		t.Fatalf("search: %+v", res)
	}
	if !strings.Contains(res.ForLLM, "dana@example.com") || !strings.Contains(res.ForLLM, "555-0142") {
		t.Errorf("search result = %q", res.ForLLM)
	}

	res = search.Execute(ctx, map[string]interface{}{"query": "nobody-by-that-name"})
	if res.IsError || !strings.Contains(res.ForLLM, "No contacts match") {
		t.Errorf("miss result = %+v", res)
	}
}

func TestContactsAddTool_RequiresName(t *testing.T) {
	add := NewContactsAddTool(contactsStore(t))
	res := add.Execute(context.Background(), map[string]interface{}{"email": "x@y.z"})
	if !res.IsError {
		t.Error("nameless contact accepted")
	}
}

func TestContactsSearchTool_RequiresQuery(t *testing.T) {
	search := NewContactsSearchTool(contactsStore(t))
	if res := search.Execute(context.Background(), map[string]interface{}{}); !res.IsError {
		t.Error("empty query accepted")
	}
}
