package boundary

import (
	"encoding/json"

	"github.com/sluice-dev/sluice/internal/providers"
)

// Input contains the data needed for a boundary detection request.
type Input struct {
	DocumentID   string
	TotalLines   int
	HintStart    int
	HintEnd      int
	StartExcerpt string
	EndExcerpt   string

	SystemPromptOverride string
	UserPromptOverride   string
}

// BuildRequest creates the boundary detection chat request.
func BuildRequest(input Input) *providers.ChatRequest {
	systemPrompt := input.SystemPromptOverride
	if systemPrompt == "" {
		systemPrompt = SystemPrompt()
	}

	data := UserPromptData{
		DocumentID:   input.DocumentID,
		TotalLines:   input.TotalLines,
		HintStart:    input.HintStart,
		HintEnd:      input.HintEnd,
		StartExcerpt: input.StartExcerpt,
		EndExcerpt:   input.EndExcerpt,
	}
	userPrompt := UserPromptWithOverride(data, input.UserPromptOverride)

	return &providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		ResponseFormat: buildResponseFormat(),
		Temperature:    0.1,
		MaxTokens:      1024,
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
	jsonSchema, _ := json.Marshal(DetectionSchema["json_schema"])
	return &providers.ResponseFormat{
		Type:       "json_schema",
		JSONSchema: jsonSchema,
	}
}
