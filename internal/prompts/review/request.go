package review

import (
	"encoding/json"
	"fmt"

	"github.com/sluice-dev/sluice/internal/providers"
)

// Input contains the data needed for a final review request.
type Input struct {
	DocumentID      string
	OriginalLines   int
	OriginalWords   int
	CleanedLines    int
	CleanedWords    int
	RegionsRemoved  int
	PatternsApplied int
	WarningCount    int
	StartSample     string
	MiddleSample    string
	EndSample       string

	SystemPromptOverride string
	UserPromptOverride   string
}

// BuildRequest creates the final review chat request.
func BuildRequest(input Input) *providers.ChatRequest {
	systemPrompt := input.SystemPromptOverride
	if systemPrompt == "" {
		systemPrompt = SystemPrompt()
	}

	preservation := 0.0
	if input.OriginalWords > 0 {
		preservation = float64(input.CleanedWords) / float64(input.OriginalWords) * 100
	}

	data := UserPromptData{
		DocumentID:      input.DocumentID,
		OriginalLines:   input.OriginalLines,
		OriginalWords:   input.OriginalWords,
		CleanedLines:    input.CleanedLines,
		CleanedWords:    input.CleanedWords,
		PreservationPct: fmt.Sprintf("%.1f", preservation),
		RegionsRemoved:  input.RegionsRemoved,
		PatternsApplied: input.PatternsApplied,
		WarningCount:    input.WarningCount,
		StartSample:     input.StartSample,
		MiddleSample:    input.MiddleSample,
		EndSample:       input.EndSample,
	}
	userPrompt := UserPromptWithOverride(data, input.UserPromptOverride)

	return &providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		ResponseFormat: buildResponseFormat(),
		Temperature:    0.1,
		MaxTokens:      2048,
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
	jsonSchema, _ := json.Marshal(ReviewSchema["json_schema"])
	return &providers.ResponseFormat{
		Type:       "json_schema",
		JSONSchema: jsonSchema,
	}
}
