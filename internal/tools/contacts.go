package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/majordomo-ai/majordomo/internal/memory"
)

// ContactsAddTool creates an address-book entry.
type ContactsAddTool struct {
	store *memory.Store
}

func NewContactsAddTool(store *memory.Store) *ContactsAddTool {
	return &ContactsAddTool{store: store}
}

func (t *ContactsAddTool) Name() string { return "contacts_add" }

func (t *ContactsAddTool) Description() string {
	return "Add a person to the address book with their name and optional email and phone."
}

func (t *ContactsAddTool) Sensitive() bool { return false }

func (t *ContactsAddTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{
				"type":        "string",
				"description": "The person's full name.",
			},
			"email": map[string]interface{}{
				"type":        "string",
				"description": "Email address, if known.",
			},
			"phone": map[string]interface{}{
				"type":        "string",
				"description": "Phone number, if known.",
			},
		},
		"required": []string{"name"},
	}
}

func (t *ContactsAddTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	name, _ := args["name"].(string)
	email, _ := args["email"].(string)
	phone, _ := args["phone"].(string)

	id, err := t.store.AddContact(ctx, memory.Contact{Name: name, Email: email, Phone: phone})
	if err != nil {
		return ErrorResult(fmt.Sprintf("contact add failed: %v", err)).WithError(err)
	}
	return NewResult(fmt.Sprintf("Added contact %s (%s)", name, id))
}

// ContactsSearchTool looks people up by name, email, or phone.
type ContactsSearchTool struct {
	store *memory.Store
}

func NewContactsSearchTool(store *memory.Store) *ContactsSearchTool {
	return &ContactsSearchTool{store: store}
}

func (t *ContactsSearchTool) Name() string { return "contacts_search" }

func (t *ContactsSearchTool) Description() string {
	return "Search the address book by name, email address, or phone number. Use before sending email to resolve a person to an address."
}

func (t *ContactsSearchTool) Sensitive() bool { return false }

func (t *ContactsSearchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Partial name, email, or phone number.",
			},
			"max_results": map[string]interface{}{
				"type":        "number",
				"description": "Maximum contacts to return (default 10).",
			},
		},
		"required": []string{"query"},
	}
}

func (t *ContactsSearchTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	query, _ := args["query"].(string)
	if query == "" {
		return ErrorResult("query is required")
	}
	limit := 0
	if mr, ok := args["max_results"].(float64); ok {
		limit = int(mr)
	}

	contacts, err := t.store.SearchContacts(ctx, query, limit)
	if err != nil {
		return ErrorResult(fmt.Sprintf("contact search failed: %v", err)).WithError(err)
	}
	if len(contacts) == 0 {
		return NewResult("No contacts match: " + query)
	}

	data, _ := json.MarshalIndent(map[string]interface{}{
		"contacts": contacts,
		"count":    len(contacts),
	}, "", "  ")
	return NewResult(string(data))
}
