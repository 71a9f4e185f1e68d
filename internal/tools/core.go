package tools

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// UpdateCoreTool lets the model edit its own core document, the persistent
// notes injected into every system prompt. Appends are dated; replace takes
// an exact old/new pair so a stale model view cannot clobber the file.
type UpdateCoreTool struct {
	path string
}

func NewUpdateCoreTool(path string) *UpdateCoreTool {
	return &UpdateCoreTool{path: path}
}

func (t *UpdateCoreTool) Name() string { return "update_core" }

func (t *UpdateCoreTool) Description() string {
	return "Update the core document of persistent notes. Use op=append to add a note, op=replace with old_text/new_text to amend one."
}

func (t *UpdateCoreTool) Sensitive() bool { return false }

func (t *UpdateCoreTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"op": map[string]interface{}{
				"type":        "string",
				"description": "Operation to perform.",
				"enum":        []string{"append", "replace"},
			},
			"text": map[string]interface{}{
				"type":        "string",
				"description": "Note to append (op=append).",
			},
			"old_text": map[string]interface{}{
				"type":        "string",
				"description": "Exact text to replace (op=replace).",
			},
			"new_text": map[string]interface{}{
				"type":        "string",
				"description": "Replacement text (op=replace).",
			},
		},
		"required": []string{"op"},
	}
}

func (t *UpdateCoreTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	op, _ := args["op"].(string)
	switch op {
	case "append":
		text, _ := args["text"].(string)
		if strings.TrimSpace(text) == "" {
			return ErrorResult("text is required for append")
		}
		return t.append(text)
	case "replace":
		oldText, _ := args["old_text"].(string)
		newText, _ := args["new_text"].(string)
		if oldText == "" {
			return ErrorResult("old_text is required for replace")
		}
		return t.replace(oldText, newText)
	default:
		return ErrorResult(fmt.Sprintf("unknown op %q", op))
	}
}

func (t *UpdateCoreTool) append(text string) *Result {
	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return ErrorResult(fmt.Sprintf("open core document: %v", err)).WithError(err)
	}
	defer f.Close()

	entry := fmt.Sprintf("\n- [%s] %s", time.Now().Format("2006-01-02"), strings.TrimSpace(text))
	if _, err := f.WriteString(entry); err != nil {
		return ErrorResult(fmt.Sprintf("write core document: %v", err)).WithError(err)
	}
	return UserResult("Core note added.")
}

func (t *UpdateCoreTool) replace(oldText, newText string) *Result {
	data, err := os.ReadFile(t.path)
	if err != nil {
		return ErrorResult(fmt.Sprintf("read core document: %v", err)).WithError(err)
	}
	content := string(data)
	n := strings.Count(content, oldText)
	if n == 0 {
		return ErrorResult("old_text not found in core document")
	}
	if n > 1 {
		return ErrorResult(fmt.Sprintf("old_text matches %d places; provide more context", n))
	}
	content = strings.Replace(content, oldText, newText, 1)
	if err := os.WriteFile(t.path, []byte(content), 0o644); err != nil {
		return ErrorResult(fmt.Sprintf("write core document: %v", err)).WithError(err)
	}
	return UserResult("Core note updated.")
}
