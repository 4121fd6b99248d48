package providers

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseStructuredJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "plain object",
			input: `{"confidence": 0.85}`,
			want:  `{"confidence":0.85}`,
		},
		{
			name:  "fenced json block",
			input: "```json\n{\"ok\": true}\n```",
			want:  `{"ok":true}`,
		},
		{
			name:  "fence without language",
			input: "```\n{\"ok\": true}\n```",
			want:  `{"ok":true}`,
		},
		{
			name:  "prose around object",
			input: "Here is the analysis:\n{\"pages\": 12}\nLet me know if you need more.",
			want:  `{"pages":12}`,
		},
		{
			name:  "array payload",
			input: "Result: [1, 2, 3] done",
			want:  `[1,2,3]`,
		},
		{
			name:    "no json at all",
			input:   "I could not produce a structured answer.",
			wantErr: true,
		},
		{
			name:    "empty",
			input:   "   ",
			wantErr: true,
		},
		{
			name:    "truncated object",
			input:   `{"confidence": 0.8`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStructuredJSON(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestValidateStructuredJSON(t *testing.T) {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"confidence": {"type": "number", "minimum": 0, "maximum": 1}
		},
		"required": ["confidence"]
	}`)

	if err := ValidateStructuredJSON(schema, json.RawMessage(`{"confidence": 0.7}`)); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}

	err := ValidateStructuredJSON(schema, json.RawMessage(`{"confidence": 2.5}`))
	if err == nil {
		t.Fatal("out-of-range payload accepted")
	}
	if !strings.Contains(err.Error(), "does not match schema") {
		t.Errorf("unexpected error: %v", err)
	}

	if err := ValidateStructuredJSON(schema, json.RawMessage(`{}`)); err == nil {
		t.Fatal("missing required field accepted")
	}
}

func TestValidateStructuredJSONUnwrapsWrappers(t *testing.T) {
	inner := `{"type":"object","properties":{"n":{"type":"integer"}},"required":["n"]}`

	wrappers := []string{
		`{"name":"analysis","strict":true,"schema":` + inner + `}`,
		`{"type":"json_schema","json_schema":{"name":"analysis","schema":` + inner + `}}`,
		inner,
	}

	for i, wrapper := range wrappers {
		if err := ValidateStructuredJSON(json.RawMessage(wrapper), json.RawMessage(`{"n": 3}`)); err != nil {
			t.Errorf("wrapper %d: valid payload rejected: %v", i, err)
		}
		if err := ValidateStructuredJSON(json.RawMessage(wrapper), json.RawMessage(`{"n": "three"}`)); err == nil {
			t.Errorf("wrapper %d: invalid payload accepted", i)
		}
	}
}

func TestValidateStructuredJSONEmptyInputs(t *testing.T) {
	if err := ValidateStructuredJSON(nil, json.RawMessage(`{}`)); err != nil {
		t.Errorf("nil schema should be a no-op: %v", err)
	}
	if err := ValidateStructuredJSON(json.RawMessage(`{}`), nil); err != nil {
		t.Errorf("nil payload should be a no-op: %v", err)
	}
}
