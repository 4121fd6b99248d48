package providers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ParseStructuredJSON parses JSON from model output, with lightweight
// recovery for markdown code fences and surrounding prose.
func ParseStructuredJSON(content string) (json.RawMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty structured output")
	}

	for _, candidate := range jsonCandidates(content) {
		var parsed any
		if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
			continue
		}
		normalized, err := json.Marshal(parsed)
		if err != nil {
			return nil, fmt.Errorf("failed to normalize structured output: %w", err)
		}
		return normalized, nil
	}

	return nil, fmt.Errorf("failed to parse structured JSON")
}

// jsonCandidates orders decode attempts: the content as given, the
// content with markdown fences stripped, then the outermost
// brace-to-brace span for answers wrapped in prose.
func jsonCandidates(content string) []string {
	out := []string{content}
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		for _, have := range out {
			if s == have {
				return
			}
		}
		out = append(out, s)
	}
	add(stripCodeFences(content))
	add(outermostJSONSpan(content))
	return out
}

// stripCodeFences unwraps a ```-fenced block, dropping the opening
// fence with its info string and the closing fence.
func stripCodeFences(content string) string {
	rest, ok := strings.CutPrefix(strings.TrimSpace(content), "```")
	if !ok {
		return ""
	}
	nl := strings.IndexByte(rest, '\n')
	if nl < 0 {
		return ""
	}
	rest = strings.TrimSpace(rest[nl+1:])
	rest = strings.TrimSuffix(rest, "```")
	return strings.TrimSpace(rest)
}

// outermostJSONSpan cuts from the first { or [ to the matching last
// closer, which survives prose before and after the payload.
func outermostJSONSpan(content string) string {
	trimmed := strings.TrimSpace(content)
	start := strings.IndexAny(trimmed, "{[")
	if start < 0 {
		return ""
	}
	closer := "}"
	if trimmed[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(trimmed, closer)
	if end < start {
		return ""
	}
	return strings.TrimSpace(trimmed[start : end+1])
}

// ValidateStructuredJSON validates parsed JSON against the canonical
// schema. Wrapper layouts ({"name","strict","schema":...}) are
// unwrapped first.
func ValidateStructuredJSON(schemaRaw, parsed json.RawMessage) error {
	if len(schemaRaw) == 0 || len(parsed) == 0 {
		return nil
	}

	schemaDoc, err := unwrapSchemaEnvelope(schemaRaw)
	if err != nil {
		return err
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(schemaDoc)); err != nil {
		return fmt.Errorf("failed to load structured schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("failed to compile structured schema: %w", err)
	}

	var doc any
	if err := json.Unmarshal(parsed, &doc); err != nil {
		return fmt.Errorf("failed to decode structured JSON for validation: %w", err)
	}

	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("structured output does not match schema: %w", err)
	}
	return nil
}

// unwrapSchemaEnvelope unwraps provider envelope layouts down to
// the bare schema document. Anything that is not a recognized envelope
// is handed to the compiler as is.
func unwrapSchemaEnvelope(schemaRaw json.RawMessage) (json.RawMessage, error) {
	var envelope struct {
		Schema     json.RawMessage `json:"schema"`
		JSONSchema *struct {
			Schema json.RawMessage `json:"schema"`
		} `json:"json_schema"`
	}
	if err := json.Unmarshal(schemaRaw, &envelope); err != nil {
		// Not an object. Boolean and array schemas are legal documents,
		// so only malformed JSON is an error.
		var probe any
		if jErr := json.Unmarshal(schemaRaw, &probe); jErr != nil {
			return nil, fmt.Errorf("invalid structured schema JSON: %w", jErr)
		}
		return schemaRaw, nil
	}
	if len(envelope.Schema) > 0 {
		return envelope.Schema, nil
	}
	if envelope.JSONSchema != nil && len(envelope.JSONSchema.Schema) > 0 {
		return envelope.JSONSchema.Schema, nil
	}
	return schemaRaw, nil
}
