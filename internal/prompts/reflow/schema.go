package reflow

// ReflowSchema is the JSON schema for paragraph reflow output.
var ReflowSchema = map[string]any{
	"type": "json_schema",
	"json_schema": map[string]any{
		"name":   "paragraph_reflow",
		"strict": true,
		"schema": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"reflowed_text": map[string]any{
					"type":        "string",
					"description": "The chunk rejoined into paragraphs, words unchanged",
				},
				"paragraph_count": map[string]any{
					"type": "integer", "minimum": 0,
				},
				"joined_hyphens": map[string]any{
					"type": "integer", "minimum": 0,
					"description": "How many line-break hyphen splits were rejoined",
				},
				"confidence": map[string]any{
					"type": "number", "minimum": 0, "maximum": 1,
				},
			},
			"required":             []string{"reflowed_text", "paragraph_count", "joined_hyphens", "confidence"},
			"additionalProperties": false,
		},
	},
}

// Result represents the parsed reflow output.
type Result struct {
	ReflowedText   string  `json:"reflowed_text"`
	ParagraphCount int     `json:"paragraph_count"`
	JoinedHyphens  int     `json:"joined_hyphens"`
	Confidence     float64 `json:"confidence"`
}
