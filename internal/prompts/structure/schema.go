package structure

// AnalysisSchema is the JSON schema for structure analysis output.
var AnalysisSchema = map[string]any{
	"type": "json_schema",
	"json_schema": map[string]any{
		"name":   "document_structure_analysis",
		"strict": true,
		"schema": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"content_type": map[string]any{
					"type": "string",
					"enum": []string{
						"novel", "non_fiction", "technical", "academic",
						"reference", "poetry", "drama", "mixed", "unknown",
					},
					"description": "Overall classification of the document",
				},
				"core_content": map[string]any{
					"type": []string{"object", "null"},
					"properties": map[string]any{
						"start_line": map[string]any{"type": "integer", "minimum": 1},
						"end_line":   map[string]any{"type": "integer", "minimum": 1},
					},
					"required":             []string{"start_line", "end_line"},
					"additionalProperties": false,
					"description":          "First through last line of the main text, null if indeterminate",
				},
				"regions": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"type": map[string]any{
								"type": "string",
								"enum": []string{
									"cover", "title_page", "copyright_page", "dedication",
									"epigraph", "table_of_contents", "list_of_figures",
									"list_of_tables", "foreword", "preface", "acknowledgments",
									"introduction", "prologue", "part_heading", "chapter_heading",
									"section_heading", "body_text", "footnote_block", "epilogue",
									"afterword", "appendix", "endnotes", "glossary",
									"bibliography", "index", "about_author", "colophon",
									"advertisement", "page_artifact", "ocr_noise", "unknown",
								},
							},
							"start_line": map[string]any{"type": "integer", "minimum": 1},
							"end_line":   map[string]any{"type": "integer", "minimum": 1},
							"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
							"evidence": map[string]any{
								"type":        "string",
								"description": "Short quote or observation supporting the classification",
							},
							"overlaps_with": map[string]any{
								"type":        "array",
								"items":       map[string]any{"type": "integer", "minimum": 0},
								"description": "Zero-based indexes of other regions this one intentionally overlaps",
							},
						},
						"required":             []string{"type", "start_line", "end_line", "confidence"},
						"additionalProperties": false,
					},
				},
				"removal_patterns": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"kind": map[string]any{
								"type": "string",
								"enum": []string{
									"page_header", "page_footer", "page_number",
									"chapter_heading", "footnote_marker", "ocr_artifact",
									"separator",
								},
							},
							"style": map[string]any{
								"type":        "string",
								"description": "Free-form style note, e.g. 'arabic centered' or 'author name caps'",
							},
							"matcher": map[string]any{
								"type":        "string",
								"description": "Literal line text, or RE2 regex when is_regex is true",
							},
							"is_regex": map[string]any{"type": "boolean"},
							"samples": map[string]any{
								"type":     "array",
								"items":    map[string]any{"type": "string"},
								"minItems": 2,
							},
							"confidence":      map[string]any{"type": "number", "minimum": 0, "maximum": 1},
							"estimated_count": map[string]any{"type": "integer", "minimum": 0},
						},
						"required":             []string{"kind", "matcher", "is_regex", "samples", "confidence", "estimated_count"},
						"additionalProperties": false,
					},
				},
				"characteristics": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"has_dialogue":  map[string]any{"type": "boolean"},
						"has_footnotes": map[string]any{"type": "boolean"},
						"estimated_pages": map[string]any{
							"type":        []string{"integer", "null"},
							"description": "Printed page count if inferable from artifacts, null otherwise",
						},
						"ocr_quality": map[string]any{
							"type": "number", "minimum": 0, "maximum": 1,
							"description": "1.0 is clean text, lower for garbled or noisy extraction",
						},
					},
					"required":             []string{"has_dialogue", "has_footnotes", "ocr_quality"},
					"additionalProperties": false,
				},
				"confidence": map[string]any{
					"type": "number", "minimum": 0, "maximum": 1,
					"description": "Overall confidence in the structural analysis",
				},
				"warnings": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string"},
				},
			},
			"required": []string{
				"content_type", "core_content", "regions",
				"removal_patterns", "characteristics", "confidence",
			},
			"additionalProperties": false,
		},
	},
}

// Result represents the parsed structure analysis.
type Result struct {
	ContentType     string          `json:"content_type"`
	CoreContent     *LineSpan       `json:"core_content"`
	Regions         []RegionResult  `json:"regions"`
	RemovalPatterns []PatternResult `json:"removal_patterns"`
	Characteristics Characteristics `json:"characteristics"`
	Confidence      float64         `json:"confidence"`
	Warnings        []string        `json:"warnings,omitempty"`
}

// LineSpan is a 1-based inclusive line range in the AI response.
type LineSpan struct {
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`
}

// RegionResult is one structural region in the AI response.
type RegionResult struct {
	Type         string  `json:"type"`
	StartLine    int     `json:"start_line"`
	EndLine      int     `json:"end_line"`
	Confidence   float64 `json:"confidence"`
	Evidence     string  `json:"evidence,omitempty"`
	OverlapsWith []int   `json:"overlaps_with,omitempty"`
}

// PatternResult is one removal pattern in the AI response.
type PatternResult struct {
	Kind           string   `json:"kind"`
	Style          string   `json:"style,omitempty"`
	Matcher        string   `json:"matcher"`
	IsRegex        bool     `json:"is_regex"`
	Samples        []string `json:"samples"`
	Confidence     float64  `json:"confidence"`
	EstimatedCount int      `json:"estimated_count"`
}

// Characteristics are document-level traits in the AI response.
type Characteristics struct {
	HasDialogue    bool    `json:"has_dialogue"`
	HasFootnotes   bool    `json:"has_footnotes"`
	EstimatedPages *int    `json:"estimated_pages,omitempty"`
	OCRQuality     float64 `json:"ocr_quality"`
}
