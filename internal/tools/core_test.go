package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestUpdateCoreTool_Append(t *testing.T) {
	path := filepath.Join(t.TempDir(), "CORE.txt")
	os.WriteFile(path, []byte("# Core"), 0o644)

	tool := NewUpdateCoreTool(path)
	res := tool.Execute(context.Background(), map[string]interface{}{
		"op": "append", "text": "User prefers metric units",
	})
	if res.IsError {
		t.Fatalf("append failed: %+v", res)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "User prefers metric units") {
		t.Errorf("file = %q", data)
	}
	// Appended notes are dated.
	if !strings.Contains(string(data), "- [") {
		t.Errorf("no date marker: %q", data)
	}
}

func TestUpdateCoreTool_Replace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "CORE.txt")
	os.WriteFile(path, []byte("likes coffee\nlikes tea\n"), 0o644)

	tool := NewUpdateCoreTool(path)
	res := tool.Execute(context.Background(), map[string]interface{}{
		"op": "replace", "old_text": "likes tea", "new_text": "prefers green tea",
	})
	if res.IsError {
		t.Fatalf("replace failed: %+v", res)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "prefers green tea") || strings.Contains(string(data), "likes tea") {
		t.Errorf("file = %q", data)
	}
}

func TestUpdateCoreTool_ReplaceRequiresUniqueMatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "CORE.txt")
	os.WriteFile(path, []byte("note\nnote\n"), 0o644)

	tool := NewUpdateCoreTool(path)
	res := tool.Execute(context.Background(), map[string]interface{}{
		"op": "replace", "old_text": "note", "new_text": "x",
	})
	if !res.IsError || !strings.Contains(res.ForLLM, "2 places") {
		t.Errorf("ambiguous replace accepted: %+v", res)
	}

	res = tool.Execute(context.Background(), map[string]interface{}{
		"op": "replace", "old_text": "absent", "new_text": "x",
	})
	if !res.IsError {
		t.Error("missing old_text accepted")
	}
}

func TestUpdateCoreTool_UnknownOp(t *testing.T) {
	tool := NewUpdateCoreTool(filepath.Join(t.TempDir(), "CORE.txt"))
	res := tool.Execute(context.Background(), map[string]interface{}{"op": "truncate"})
	if !res.IsError {
		t.Error("unknown op accepted")
	}
}
