package providers

import "testing"

func strictTool() []ToolDefinition {
	return []ToolDefinition{{
		Type: "function",
		Function: ToolFunctionSchema{
			Name:        "send_email",
			Description: "desc",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"subject": map[string]interface{}{
						"type":    "string",
						"default": "hello",
					},
				},
				"$defs":                map[string]interface{}{"Addr": "x"},
				"additionalProperties": false,
				"examples":             []interface{}{"a"},
			},
		},
	}}
}

func TestCleanToolSchemas_Strict(t *testing.T) {
	cleaned := CleanToolSchemas(DialectStrict, strictTool())
	if len(cleaned) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(cleaned))
	}

	params := cleaned[0].Function.Parameters
	for _, key := range []string{"$defs", "additionalProperties", "examples"} {
		if _, ok := params[key]; ok {
			t.Errorf("expected key %q removed", key)
		}
	}
	if _, ok := params["type"]; !ok {
		t.Error("expected 'type' to remain")
	}

	props := params["properties"].(map[string]interface{})
	subject := props["subject"].(map[string]interface{})
	if _, ok := subject["default"]; ok {
		t.Error("expected nested 'default' removed")
	}
}

func TestCleanToolSchemas_DefaultDialectUntouched(t *testing.T) {
	tools := strictTool()
	cleaned := CleanToolSchemas(DialectDefault, tools)
	if &cleaned[0] != &tools[0] {
		t.Error("default dialect should return the original slice")
	}
	if _, ok := cleaned[0].Function.Parameters["$defs"]; !ok {
		t.Error("default dialect must not strip keys")
	}
}

func TestCleanToolSchemas_OriginalNotMutated(t *testing.T) {
	tools := strictTool()
	CleanToolSchemas(DialectStrict, tools)
	if _, ok := tools[0].Function.Parameters["$defs"]; !ok {
		t.Error("cleaning must not mutate the input schema")
	}
}
