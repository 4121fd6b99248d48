package review

// ReviewSchema is the JSON schema for final review output.
var ReviewSchema = map[string]any{
	"type": "json_schema",
	"json_schema": map[string]any{
		"name":   "final_review",
		"strict": true,
		"schema": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"complete": map[string]any{
					"type":        "boolean",
					"description": "True when the cleaned text appears to retain the whole main content",
				},
				"readable": map[string]any{
					"type":        "boolean",
					"description": "True when paragraphs read cleanly without leftover artifacts",
				},
				"issues": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"severity": map[string]any{
								"type": "string",
								"enum": []string{"info", "warning", "error", "critical"},
							},
							"description": map[string]any{"type": "string"},
							"location": map[string]any{
								"type":        "string",
								"description": "Where the issue shows: start, middle, end, or metrics",
							},
						},
						"required":             []string{"severity", "description"},
						"additionalProperties": false,
					},
				},
				"summary": map[string]any{
					"type":        "string",
					"description": "One or two sentence overall judgment",
				},
				"confidence": map[string]any{
					"type": "number", "minimum": 0, "maximum": 1,
				},
			},
			"required":             []string{"complete", "readable", "issues", "summary", "confidence"},
			"additionalProperties": false,
		},
	},
}

// Result represents the parsed final review.
type Result struct {
	Complete   bool    `json:"complete"`
	Readable   bool    `json:"readable"`
	Issues     []Issue `json:"issues"`
	Summary    string  `json:"summary"`
	Confidence float64 `json:"confidence"`
}

// Issue is one problem the reviewer found.
type Issue struct {
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Location    string `json:"location,omitempty"`
}
