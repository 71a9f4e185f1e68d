package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/titanous/json5"
)

// ParseArguments decodes a raw tool-call argument string into a map.
// Models occasionally emit JSON5-isms (trailing commas, unquoted keys), so a
// strict JSON parse is tried first and json5 is the fallback. An empty
// string means "no arguments".
func ParseArguments(raw string) (map[string]interface{}, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return map[string]interface{}{}, nil
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &args); err == nil {
		return args, nil
	}
	if err := json5.Unmarshal([]byte(trimmed), &args); err != nil {
		return nil, fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	return args, nil
}

// ValidateArguments checks args against a tool's declared JSON schema:
// required properties must be present and declared primitive types must
// match. It is deliberately shallow — deep schema features stay the
// provider's concern — but catches the failures models actually produce.
func ValidateArguments(schema, args map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	props, _ := schema["properties"].(map[string]interface{})

	if required, ok := schema["required"].([]interface{}); ok {
		for _, r := range required {
			name, _ := r.(string)
			if _, present := args[name]; !present {
				return fmt.Errorf("missing required argument %q", name)
			}
		}
	}
	if required, ok := schema["required"].([]string); ok {
		for _, name := range required {
			if _, present := args[name]; !present {
				return fmt.Errorf("missing required argument %q", name)
			}
		}
	}

	for name, val := range args {
		propSchema, ok := props[name].(map[string]interface{})
		if !ok {
			continue
		}
		declared, _ := propSchema["type"].(string)
		if declared == "" || val == nil {
			continue
		}
		if !typeMatches(declared, val) {
			return fmt.Errorf("argument %q: expected %s, got %T", name, declared, val)
		}
	}
	return nil
}

func typeMatches(declared string, val interface{}) bool {
	switch declared {
	case "string":
		_, ok := val.(string)
		return ok
	case "number":
		switch val.(type) {
		case float64, int, int64:
			return true
		}
		return false
	case "integer":
		switch v := val.(type) {
		case int, int64:
			return true
		case float64:
			return v == float64(int64(v))
		}
		return false
	case "boolean":
		_, ok := val.(bool)
		return ok
	case "array":
		_, ok := val.([]interface{})
		return ok
	case "object":
		_, ok := val.(map[string]interface{})
		return ok
	}
	return true
}
