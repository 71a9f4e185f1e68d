package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/majordomo-ai/majordomo/internal/memory"
)

// MemorySaveTool writes a note into the long-term store.
type MemorySaveTool struct {
	store *memory.Store
}

func NewMemorySaveTool(store *memory.Store) *MemorySaveTool {
	return &MemorySaveTool{store: store}
}

func (t *MemorySaveTool) Name() string { return "memory_save" }

func (t *MemorySaveTool) Description() string {
	return "Save a fact to long-term memory. Use for things worth remembering across conversations: preferences, dates, decisions, people."
}

func (t *MemorySaveTool) Sensitive() bool { return false }

func (t *MemorySaveTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"text": map[string]interface{}{
				"type":        "string",
				"description": "The fact to remember, phrased so it stands alone.",
			},
			"tags": map[string]interface{}{
				"type":        "string",
				"description": "Optional comma-separated tags.",
			},
		},
		"required": []string{"text"},
	}
}

func (t *MemorySaveTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	text, _ := args["text"].(string)
	tags, _ := args["tags"].(string)

	id, err := t.store.Save(ctx, SessionFromContext(ctx), text, tags)
	if err != nil {
		return ErrorResult(fmt.Sprintf("memory save failed: %v", err)).WithError(err)
	}
	return NewResult("Saved memory " + id)
}

// MemorySearchTool recalls notes by full-text search.
type MemorySearchTool struct {
	store *memory.Store
}

func NewMemorySearchTool(store *memory.Store) *MemorySearchTool {
	return &MemorySearchTool{store: store}
}

func (t *MemorySearchTool) Name() string { return "memory_search" }

func (t *MemorySearchTool) Description() string {
	return "Search long-term memory before answering questions about prior work, preferences, dates, or people. Returns the most relevant notes."
}

func (t *MemorySearchTool) Sensitive() bool { return false }

func (t *MemorySearchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Natural language search query.",
			},
			"max_results": map[string]interface{}{
				"type":        "number",
				"description": "Maximum notes to return (default 6).",
			},
		},
		"required": []string{"query"},
	}
}

func (t *MemorySearchTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	query, _ := args["query"].(string)
	if query == "" {
		return ErrorResult("query is required")
	}
	limit := 0
	if mr, ok := args["max_results"].(float64); ok {
		limit = int(mr)
	}

	hits, err := t.store.Search(ctx, query, limit)
	if err != nil {
		return ErrorResult(fmt.Sprintf("memory search failed: %v", err)).WithError(err)
	}
	if len(hits) == 0 {
		return NewResult("No memory results for: " + query)
	}

	data, _ := json.MarshalIndent(map[string]interface{}{
		"results": hits,
		"count":   len(hits),
	}, "", "  ")
	return NewResult(string(data))
}
