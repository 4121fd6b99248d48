package structure

import (
	"encoding/json"

	"github.com/sluice-dev/sluice/internal/providers"
)

// Input contains the data needed for a structure analysis request.
type Input struct {
	DocumentID string
	TotalLines int
	TotalWords int
	Sample     string

	// SystemPromptOverride uses a config-level system prompt when set.
	SystemPromptOverride string
	// UserPromptOverride uses a config-level user template when set.
	UserPromptOverride string
}

// BuildRequest creates the structure analysis chat request.
func BuildRequest(input Input) *providers.ChatRequest {
	systemPrompt := input.SystemPromptOverride
	if systemPrompt == "" {
		systemPrompt = SystemPrompt()
	}

	data := UserPromptData{
		DocumentID: input.DocumentID,
		TotalLines: input.TotalLines,
		TotalWords: input.TotalWords,
		Sample:     input.Sample,
	}
	userPrompt := UserPromptWithOverride(data, input.UserPromptOverride)

	return &providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		ResponseFormat: buildResponseFormat(),
		Temperature:    0.1,
		MaxTokens:      4096,
	}
}

// ParseResult parses the validated response JSON into a Result.
func ParseResult(raw json.RawMessage) (*Result, error) {
	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func buildResponseFormat() *providers.ResponseFormat {
	jsonSchema, _ := json.Marshal(AnalysisSchema["json_schema"])
	return &providers.ResponseFormat{
		Type:       "json_schema",
		JSONSchema: jsonSchema,
	}
}
