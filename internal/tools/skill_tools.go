package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/majordomo-ai/majordomo/internal/skills"
)

// ListSkillsTool enumerates the skill catalog.
type ListSkillsTool struct {
	lib *skills.Library
}

func NewListSkillsTool(lib *skills.Library) *ListSkillsTool {
	return &ListSkillsTool{lib: lib}
}

func (t *ListSkillsTool) Name() string { return "list_skills" }

func (t *ListSkillsTool) Description() string {
	return "List the available skills with their descriptions."
}

func (t *ListSkillsTool) Sensitive() bool { return false }

func (t *ListSkillsTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

func (t *ListSkillsTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	list := t.lib.List()
	if len(list) == 0 {
		return NewResult("No skills installed.")
	}
	var sb strings.Builder
	for _, s := range list {
		fmt.Fprintf(&sb, "- %s: %s\n", s.Name, s.Description)
	}
	return NewResult(sb.String())
}

// ReadSkillTool loads one skill's full instructions.
type ReadSkillTool struct {
	lib *skills.Library
}

func NewReadSkillTool(lib *skills.Library) *ReadSkillTool {
	return &ReadSkillTool{lib: lib}
}

func (t *ReadSkillTool) Name() string { return "read_skill" }

func (t *ReadSkillTool) Description() string {
	return "Load the full instructions of a named skill before applying it."
}

func (t *ReadSkillTool) Sensitive() bool { return false }

func (t *ReadSkillTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Skill name as shown by list_skills.",
			},
		},
		"required": []string{"name"},
	}
}

func (t *ReadSkillTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	name, _ := args["name"].(string)
	if name == "" {
		return ErrorResult("name is required")
	}
	body, ok := t.lib.Load(name)
	if !ok {
		return ErrorResult(fmt.Sprintf("skill %q not found", name))
	}
	return NewResult(body)
}
