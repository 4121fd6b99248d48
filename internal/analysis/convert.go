package analysis

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sluice-dev/sluice/internal/document"
	"github.com/sluice-dev/sluice/internal/hints"
	"github.com/sluice-dev/sluice/internal/prompts/structure"
	"github.com/sluice-dev/sluice/internal/textutil"
)

// hintsFromResult converts a structure analysis response into validated
// StructureHints. Ranges outside the document or patterns that fail to
// compile reject the whole response.
func hintsFromResult(documentID string, doc *document.Document, r *structure.Result) (*hints.StructureHints, error) {
	total := doc.LineCount()
	lines := doc.Lines()

	h := &hints.StructureHints{
		DocumentID:        documentID,
		ContentType:       hints.ContentType(r.ContentType),
		OverallConfidence: r.Confidence,
		Warnings:          append([]string(nil), r.Warnings...),
		Method:            hints.MethodAI,
		CreatedAt:         time.Now().UTC(),
	}

	if r.CoreContent != nil {
		core := document.LineRange{Start: r.CoreContent.StartLine, End: r.CoreContent.EndLine}
		if !core.Valid(total) {
			return nil, fmt.Errorf("%w: core content %s outside document (%d lines)",
				ErrInvalidResponse, core, total)
		}
		h.CoreContent = &core
	}

	ids := make([]string, len(r.Regions))
	for i := range r.Regions {
		ids[i] = uuid.NewString()
	}
	for i, reg := range r.Regions {
		region := hints.Region{
			ID:         ids[i],
			Type:       hints.RegionType(reg.Type),
			Lines:      document.LineRange{Start: reg.StartLine, End: reg.EndLine},
			Confidence: reg.Confidence,
			Method:     hints.MethodAI,
			Evidence:   reg.Evidence,
		}
		for _, idx := range reg.OverlapsWith {
			if idx >= 0 && idx < len(ids) && idx != i {
				region.OverlapsWith = append(region.OverlapsWith, ids[idx])
			}
		}
		h.Regions = append(h.Regions, region)
	}

	for _, p := range r.RemovalPatterns {
		h.Patterns = append(h.Patterns, hints.Pattern{
			Kind:           hints.PatternKind(p.Kind),
			Style:          p.Style,
			Matcher:        p.Matcher,
			Regex:          p.IsRegex,
			Samples:        append([]string(nil), p.Samples...),
			Confidence:     p.Confidence,
			EstimatedCount: p.EstimatedCount,
		})
	}

	h.Characteristics = hints.Characteristics{
		HasDialogue:    r.Characteristics.HasDialogue,
		HasFootnotes:   r.Characteristics.HasFootnotes,
		OCRQuality:     r.Characteristics.OCRQuality,
		AvgLineLength:  textutil.AvgLineLength(lines),
		BlankLineRatio: textutil.BlankRatio(lines),
	}
	if r.Characteristics.EstimatedPages != nil {
		h.Characteristics.EstimatedPages = *r.Characteristics.EstimatedPages
	}

	if err := h.Validate(total); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return h, nil
}
