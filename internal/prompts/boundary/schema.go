package boundary

// DetectionSchema is the JSON schema for boundary detection output.
var DetectionSchema = map[string]any{
	"type": "json_schema",
	"json_schema": map[string]any{
		"name":   "boundary_detection",
		"strict": true,
		"schema": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"core_start_line": map[string]any{
					"type": "integer", "minimum": 1,
					"description": "First line of the main text",
				},
				"core_start_confidence": map[string]any{
					"type": "number", "minimum": 0, "maximum": 1,
				},
				"core_end_line": map[string]any{
					"type": "integer", "minimum": 1,
					"description": "Last line of the main text",
				},
				"core_end_confidence": map[string]any{
					"type": "number", "minimum": 0, "maximum": 1,
				},
				"back_matter_start_line": map[string]any{
					"type":        []string{"integer", "null"},
					"description": "First line of back matter, null when none exists",
				},
				"back_matter_confidence": map[string]any{
					"type": "number", "minimum": 0, "maximum": 1,
				},
				"notes": map[string]any{
					"type":        "string",
					"description": "Short observation about the boundary evidence",
				},
			},
			"required": []string{
				"core_start_line", "core_start_confidence",
				"core_end_line", "core_end_confidence",
				"back_matter_start_line", "back_matter_confidence",
			},
			"additionalProperties": false,
		},
	},
}

// Result represents the parsed boundary detection.
type Result struct {
	CoreStartLine        int     `json:"core_start_line"`
	CoreStartConfidence  float64 `json:"core_start_confidence"`
	CoreEndLine          int     `json:"core_end_line"`
	CoreEndConfidence    float64 `json:"core_end_confidence"`
	BackMatterStartLine  *int    `json:"back_matter_start_line"`
	BackMatterConfidence float64 `json:"back_matter_confidence"`
	Notes                string  `json:"notes,omitempty"`
}
