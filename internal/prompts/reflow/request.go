package reflow

import (
	"encoding/json"

	"github.com/sluice-dev/sluice/internal/providers"
)

// Input contains the data needed for a reflow request.
type Input struct {
	ChunkIndex int
	ChunkCount int
	WordCount  int
	Text       string

	SystemPromptOverride string
	UserPromptOverride   string
}

// BuildRequest creates the paragraph reflow chat request.
func BuildRequest(input Input) *providers.ChatRequest {
	systemPrompt := input.SystemPromptOverride
	if systemPrompt == "" {
		systemPrompt = SystemPrompt()
	}

	data := UserPromptData{
		ChunkIndex: input.ChunkIndex,
		ChunkCount: input.ChunkCount,
		WordCount:  input.WordCount,
		Text:       input.Text,
	}
	userPrompt := UserPromptWithOverride(data, input.UserPromptOverride)

	return &providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		ResponseFormat: buildResponseFormat(),
		Temperature:    0.1,
		MaxTokens:      8192,
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
	jsonSchema, _ := json.Marshal(ReflowSchema["json_schema"])
	return &providers.ResponseFormat{
		Type:       "json_schema",
		JSONSchema: jsonSchema,
	}
}
