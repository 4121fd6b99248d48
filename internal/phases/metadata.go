package phases

import (
	"context"
	"fmt"

	"github.com/sluice-dev/sluice/internal/document"
	"github.com/sluice-dev/sluice/internal/hints"
	"github.com/sluice-dev/sluice/internal/ledger"
	"github.com/sluice-dev/sluice/internal/phase"
	"github.com/sluice-dev/sluice/internal/recovery"
	"github.com/sluice-dev/sluice/internal/textutil"
)

// Metadata clears publication scaffolding that sits outside the core
// content: covers, copyright pages, colophons, advertisements, and
// page-level OCR noise regions. Front matter a reader might want, like
// prefaces and tables of contents, waits for the structural trim.
type Metadata struct{}

// metadataTypes are the region types this phase is allowed to remove.
var metadataTypes = map[hints.RegionType]bool{
	hints.RegionCover:         true,
	hints.RegionCopyrightPage: true,
	hints.RegionColophon:      true,
	hints.RegionAdvertisement: true,
	hints.RegionPageArtifact:  true,
	hints.RegionOCRNoise:      true,
}

// metadataMinConfidence keeps weakly detected regions in place for the
// structural phase to reconsider.
const metadataMinConfidence = 0.5

func (Metadata) Name() phase.Phase { return phase.Metadata }

func (Metadata) Run(ctx context.Context, env *Env, st *State) (*Outcome, error) {
	out := &Outcome{Doc: st.Doc}
	if st.Hints == nil {
		out.Summary = "no structure hints, nothing to remove"
		return out, nil
	}

	inWords := st.Doc.WordCount()
	core := st.Hints.CoreContent

	var ranges []document.LineRange
	var removed []ledger.RemovedRegion
	for _, r := range st.Hints.Regions {
		if !metadataTypes[r.Type] || r.Confidence < metadataMinConfidence {
			continue
		}
		if core != nil && r.Lines.Overlaps(*core) {
			continue
		}
		cur, ok := st.Origin.Window(r.Lines)
		if !ok {
			continue
		}
		removed = append(removed, ledger.RemovedRegion{
			RegionID:  r.ID,
			Type:      r.Type,
			Lines:     r.Lines,
			LineCount: cur.Len(),
			WordCount: textutil.WordCount(st.Doc.SliceText(cur)),
			Reason:    "publication metadata outside core content",
		})
		ranges = append(ranges, cur)
	}
	if len(ranges) == 0 {
		out.Summary = "no removable metadata regions"
		return out, nil
	}

	doc := st.Doc.RemoveRanges(ranges)
	out.Doc = doc
	out.Contribution.RemovedRegions = removed

	action, evs := guardLoss(env, phase.Metadata, "remove_metadata_regions", inWords, doc.WordCount())
	out.Recoveries = append(out.Recoveries, evs...)
	switch action {
	case recovery.ActionRollbackPhase:
		out.Rollback = true
		return out, nil
	case recovery.ActionContinueWithWarning, recovery.ActionSkipRemaining:
		out.Contribution.Warnings = append(out.Contribution.Warnings,
			lossWarning("remove_metadata_regions", inWords, doc.WordCount()))
	}

	out.Summary = fmt.Sprintf("removed %d metadata regions, %d lines", len(removed), st.Doc.LineCount()-doc.LineCount())
	env.logger().Debug("metadata regions removed",
		"document", st.DocumentID,
		"regions", len(removed),
		"lines_before", st.Doc.LineCount(),
		"lines_after", doc.LineCount())
	return out, nil
}
