package structure

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestBuildRequest(t *testing.T) {
	req := BuildRequest(Input{
		DocumentID: "doc-1",
		TotalLines: 1250,
		TotalWords: 98000,
		Sample:     "   1\tTHE GREAT WORK\n   2\tby A. Author",
	})

	if len(req.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(req.Messages))
	}
	if req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
		t.Error("message roles wrong")
	}
	if !strings.Contains(req.Messages[1].Content, "Total lines: 1250") {
		t.Error("user prompt missing line count")
	}
	if !strings.Contains(req.Messages[1].Content, "THE GREAT WORK") {
		t.Error("user prompt missing sample")
	}
	if req.ResponseFormat == nil || len(req.ResponseFormat.JSONSchema) == 0 {
		t.Fatal("response format not set")
	}
	if req.Temperature != 0.1 {
		t.Errorf("temperature = %v", req.Temperature)
	}

	// Schema wrapper must carry the inner schema for local validation.
	var wrapper map[string]any
	if err := json.Unmarshal(req.ResponseFormat.JSONSchema, &wrapper); err != nil {
		t.Fatalf("schema not valid JSON: %v", err)
	}
	if _, ok := wrapper["schema"]; !ok {
		t.Error("schema wrapper missing inner schema")
	}
}

func TestBuildRequestOverrides(t *testing.T) {
	req := BuildRequest(Input{
		DocumentID:           "doc-1",
		TotalLines:           10,
		Sample:               "sample lines",
		SystemPromptOverride: "custom system",
		UserPromptOverride:   "lines={{.TotalLines}}",
	})
	if req.Messages[0].Content != "custom system" {
		t.Error("system override ignored")
	}
	if req.Messages[1].Content != "lines=10" {
		t.Errorf("user override render = %q", req.Messages[1].Content)
	}

	// Broken override templates fall back to the embedded default.
	req = BuildRequest(Input{
		DocumentID:         "doc-1",
		TotalLines:         10,
		UserPromptOverride: "{{.Broken",
	})
	if !strings.Contains(req.Messages[1].Content, "Total lines: 10") {
		t.Error("broken override did not fall back")
	}
}

func TestParseResult(t *testing.T) {
	raw := json.RawMessage(`{
		"content_type": "academic",
		"core_content": {"start_line": 53, "end_line": 1150},
		"regions": [
			{"type": "title_page", "start_line": 1, "end_line": 4, "confidence": 0.95, "evidence": "title and author"},
			{"type": "bibliography", "start_line": 1151, "end_line": 1250, "confidence": 0.9}
		],
		"removal_patterns": [
			{"kind": "page_number", "matcher": "^\\d{1,3}$", "is_regex": true,
			 "samples": ["12", "13"], "confidence": 0.92, "estimated_count": 95}
		],
		"characteristics": {"has_dialogue": false, "has_footnotes": true, "estimated_pages": 98, "ocr_quality": 0.9},
		"confidence": 0.85,
		"warnings": []
	}`)

	result, err := ParseResult(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if result.ContentType != "academic" {
		t.Errorf("content type = %q", result.ContentType)
	}
	if result.CoreContent == nil || result.CoreContent.StartLine != 53 || result.CoreContent.EndLine != 1150 {
		t.Errorf("core content = %+v", result.CoreContent)
	}
	if len(result.Regions) != 2 || result.Regions[1].Type != "bibliography" {
		t.Errorf("regions = %+v", result.Regions)
	}
	if len(result.RemovalPatterns) != 1 || result.RemovalPatterns[0].EstimatedCount != 95 {
		t.Errorf("patterns = %+v", result.RemovalPatterns)
	}
	if result.Characteristics.EstimatedPages == nil || *result.Characteristics.EstimatedPages != 98 {
		t.Errorf("estimated pages = %v", result.Characteristics.EstimatedPages)
	}
	if result.Confidence != 0.85 {
		t.Errorf("confidence = %v", result.Confidence)
	}
}

func TestParseResultNullCore(t *testing.T) {
	raw := json.RawMessage(`{
		"content_type": "unknown",
		"core_content": null,
		"regions": [],
		"removal_patterns": [],
		"characteristics": {"has_dialogue": false, "has_footnotes": false, "ocr_quality": 0.5},
		"confidence": 0.3
	}`)
	result, err := ParseResult(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if result.CoreContent != nil {
		t.Error("null core content should stay nil")
	}
}
