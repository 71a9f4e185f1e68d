package providers

// Schema dialects. Strict inference servers (some llama.cpp and vLLM builds)
// reject JSON Schema keywords they don't implement; cleaning strips those
// before the request goes out.
const (
	DialectDefault = ""       // pass schemas through untouched
	DialectStrict  = "strict" // remove $ref/$defs/additionalProperties/examples/default
)

var strictUnsupportedKeys = []string{"$ref", "$defs", "additionalProperties", "examples", "default"}

// CleanToolSchemas returns a copy of tools with dialect-incompatible JSON
// Schema fields removed from each tool's parameters. The original slice is
// returned unchanged for the default dialect.
func CleanToolSchemas(dialect string, tools []ToolDefinition) []ToolDefinition {
	removeKeys := unsupportedKeys(dialect)
	if removeKeys == nil || len(tools) == 0 {
		return tools
	}

	cleaned := make([]ToolDefinition, len(tools))
	for i, t := range tools {
		cleaned[i] = ToolDefinition{
			Type: t.Type,
			Function: ToolFunctionSchema{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  cleanSchema(t.Function.Parameters, removeKeys),
			},
		}
	}
	return cleaned
}

func unsupportedKeys(dialect string) []string {
	if dialect == DialectStrict {
		return strictUnsupportedKeys
	}
	return nil
}

// cleanSchema recursively removes unsupported keys from a JSON Schema map.
func cleanSchema(schema map[string]interface{}, removeKeys []string) map[string]interface{} {
	if schema == nil {
		return nil
	}

	result := make(map[string]interface{}, len(schema))
	for k, v := range schema {
		if contains(removeKeys, k) {
			continue
		}
		switch val := v.(type) {
		case map[string]interface{}:
			result[k] = cleanSchema(val, removeKeys)
		case []interface{}:
			result[k] = cleanSchemaSlice(val, removeKeys)
		default:
			result[k] = v
		}
	}
	return result
}

// cleanSchemaSlice recurses into arrays such as "anyOf"/"oneOf"/"allOf".
func cleanSchemaSlice(items []interface{}, removeKeys []string) []interface{} {
	result := make([]interface{}, len(items))
	for i, item := range items {
		if m, ok := item.(map[string]interface{}); ok {
			result[i] = cleanSchema(m, removeKeys)
		} else {
			result[i] = item
		}
	}
	return result
}

func contains(keys []string, k string) bool {
	for _, key := range keys {
		if key == k {
			return true
		}
	}
	return false
}
