package tools

import "testing"

func TestParseArguments(t *testing.T) {
	args, err := ParseArguments(`{"a": 1, "b": "x"}`)
	if err != nil {
		t.Fatalf("strict json: %v", err)
	}
	if args["b"] != "x" {
		t.Errorf("args = %+v", args)
	}

	// Empty means no arguments, not an error.
	args, err = ParseArguments("  ")
	if err != nil || len(args) != 0 {
		t.Errorf("empty: args=%v err=%v", args, err)
	}

	// Unquoted keys parse through the json5 fallback.
	args, err = ParseArguments(`{command: "ls -la"}`)
	if err != nil {
		t.Fatalf("json5 fallback: %v", err)
	}
	if args["command"] != "ls -la" {
		t.Errorf("args = %+v", args)
	}

	if _, err := ParseArguments(`{{not json at all`); err == nil {
		t.Error("garbage accepted")
	}
}

func TestValidateArguments(t *testing.T) {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name":  map[string]interface{}{"type": "string"},
			"count": map[string]interface{}{"type": "integer"},
			"deep":  map[string]interface{}{"type": "object"},
		},
		"required": []string{"name"},
	}

	cases := []struct {
		label string
		args  map[string]interface{}
		ok    bool
	}{
		{"valid", map[string]interface{}{"name": "x"}, true},
		{"missing required", map[string]interface{}{"count": 1.0}, false},
		{"wrong type", map[string]interface{}{"name": 7.0}, false},
		{"whole float as integer", map[string]interface{}{"name": "x", "count": 3.0}, true},
		{"fractional float as integer", map[string]interface{}{"name": "x", "count": 3.5}, false},
		{"object arg", map[string]interface{}{"name": "x", "deep": map[string]interface{}{"k": "v"}}, true},
		{"undeclared arg passes", map[string]interface{}{"name": "x", "extra": true}, true},
	}

	for _, tc := range cases {
		err := ValidateArguments(schema, tc.args)
		if tc.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tc.label, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("%s: expected error", tc.label)
		}
	}

	if err := ValidateArguments(nil, map[string]interface{}{"anything": 1}); err != nil {
		t.Errorf("nil schema should accept: %v", err)
	}
}
