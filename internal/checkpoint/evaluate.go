// Package checkpoint grades a phase's output against a fixed table of
// criteria. Evaluators are pure functions: identical inputs always
// produce identical outcomes, and nothing here touches the ledger or
// the clock.
package checkpoint

import (
	"fmt"

	"github.com/sluice-dev/sluice/internal/document"
	"github.com/sluice-dev/sluice/internal/hints"
	"github.com/sluice-dev/sluice/internal/ledger"
	"github.com/sluice-dev/sluice/internal/phase"
	"github.com/sluice-dev/sluice/internal/textutil"
)

// Input carries everything an evaluator may inspect. Before and After
// are the document metrics at phase entry and exit. Original is the
// untouched input document; removed-region line ranges and confirmed
// boundaries are recorded in its coordinates.
type Input struct {
	Phase    phase.Phase
	Before   document.Metrics
	After    document.Metrics
	Doc      *document.Document
	Original *document.Document
	Hints    *hints.StructureHints
	Led      *ledger.Ledger
}

// Evaluate runs the evaluator for the checkpoint type and returns the
// outcome. The caller stamps the timestamp when recording it.
func Evaluate(cp ledger.CheckpointType, in Input, t Thresholds) ledger.CheckpointOutcome {
	var criteria []ledger.CriterionResult
	switch cp {
	case ledger.CheckpointRecon:
		criteria = reconCriteria(in, t)
	case ledger.CheckpointSemantic:
		criteria = semanticCriteria(in, t)
	case ledger.CheckpointStructural:
		criteria = structuralCriteria(in, t)
	case ledger.CheckpointReference:
		criteria = referenceCriteria(in, t)
	case ledger.CheckpointOptimization:
		criteria = optimizationCriteria(in, t)
	case ledger.CheckpointFinal:
		criteria = finalCriteria(in, t)
	default:
		return ledger.CheckpointOutcome{
			Type: cp, Phase: in.Phase, Result: ledger.ResultSkipped,
			Action: ledger.ActionContinue, Summary: "no evaluator for checkpoint",
		}
	}

	result := aggregate(criteria)
	return ledger.CheckpointOutcome{
		Type:       cp,
		Phase:      in.Phase,
		Result:     result,
		Action:     actionFor(cp, result),
		Criteria:   criteria,
		Confidence: outcomeConfidence(criteria),
		Summary:    summarize(criteria, result),
	}
}

// aggregate derives the overall result from the worst severity among
// unmet criteria.
func aggregate(criteria []ledger.CriterionResult) ledger.Result {
	worst := ledger.Severity("")
	failed := false
	for _, c := range criteria {
		if c.Passed {
			continue
		}
		failed = true
		worst = ledger.Worse(worst, c.Severity)
	}
	if !failed {
		return ledger.ResultPassed
	}
	switch worst {
	case ledger.SeverityCritical:
		return ledger.ResultFailed
	case ledger.SeverityError:
		return ledger.ResultMarginal
	default:
		return ledger.ResultPassedWithWarnings
	}
}

// actionFor maps (checkpoint, result) to the orchestrator's next move.
// Reconnaissance always asks the user regardless of grade; the final
// review cannot roll anything back so a failure halts.
func actionFor(cp ledger.CheckpointType, result ledger.Result) ledger.RecommendedAction {
	if cp == ledger.CheckpointRecon {
		return ledger.ActionRequestUserDecision
	}
	switch result {
	case ledger.ResultFailed:
		if cp == ledger.CheckpointFinal {
			return ledger.ActionHaltPipeline
		}
		return ledger.ActionRollbackPhase
	case ledger.ResultMarginal:
		return ledger.ActionContinueWithCaution
	default:
		return ledger.ActionContinue
	}
}

// outcomeConfidence multiplies (1 - penalty) for every unmet criterion.
func outcomeConfidence(criteria []ledger.CriterionResult) float64 {
	conf := 1.0
	for _, c := range criteria {
		if !c.Passed {
			conf *= 1 - c.Severity.Penalty()
		}
	}
	return conf
}

func summarize(criteria []ledger.CriterionResult, result ledger.Result) string {
	passed := 0
	var firstFailure string
	for _, c := range criteria {
		if c.Passed {
			passed++
		} else if firstFailure == "" {
			firstFailure = c.Name
		}
	}
	if firstFailure == "" {
		return fmt.Sprintf("%d/%d criteria passed", passed, len(criteria))
	}
	return fmt.Sprintf("%d/%d criteria passed (%s: first failure %s)", passed, len(criteria), result, firstFailure)
}

func criterion(name string, passed bool, sev ledger.Severity, actual, expected, explain string) ledger.CriterionResult {
	return ledger.CriterionResult{
		Name: name, Passed: passed, Severity: sev,
		Actual: actual, Expected: expected, Explanation: explain,
	}
}

func pct(v float64) string { return fmt.Sprintf("%.1f%%", v*100) }

// reconCriteria checks the frozen structural map before anything runs.
func reconCriteria(in Input, t Thresholds) []ledger.CriterionResult {
	var out []ledger.CriterionResult

	conf := 0.0
	if in.Hints != nil {
		conf = in.Hints.OverallConfidence
	}
	out = append(out, criterion(
		"structure_confidence",
		conf >= t.MinReconConfidence,
		ledger.SeverityCritical,
		fmt.Sprintf("%.2f", conf),
		fmt.Sprintf(">= %.2f", t.MinReconConfidence),
		"reconnaissance must be confident enough to steer the run",
	))

	hasCore := in.Hints != nil && (in.Hints.CoreContent != nil || len(in.Hints.RegionsOfType(hints.RegionBodyText)) > 0)
	out = append(out, criterion(
		"core_content_present",
		hasCore,
		ledger.SeverityCritical,
		fmt.Sprintf("%t", hasCore),
		"true",
		"a core content range or body region must be identified",
	))

	overlap := findHighConfidenceOverlap(in.Hints, t.OverlapConfidence)
	out = append(out, criterion(
		"region_overlap",
		overlap == "",
		ledger.SeverityCritical,
		overlapActual(overlap),
		"none",
		fmt.Sprintf("regions above %.2f confidence must not silently overlap", t.OverlapConfidence),
	))

	return out
}

func overlapActual(overlap string) string {
	if overlap == "" {
		return "none"
	}
	return overlap
}

// findHighConfidenceOverlap returns a description of the first pair of
// high-confidence regions that overlap without declaring it, or "".
func findHighConfidenceOverlap(h *hints.StructureHints, minConf float64) string {
	if h == nil {
		return ""
	}
	declared := func(r hints.Region, id string) bool {
		for _, other := range r.OverlapsWith {
			if other == id {
				return true
			}
		}
		return false
	}
	for i, a := range h.Regions {
		if a.Confidence <= minConf {
			continue
		}
		for _, b := range h.Regions[i+1:] {
			if b.Confidence <= minConf || !a.Lines.Overlaps(b.Lines) {
				continue
			}
			if declared(a, b.ID) || declared(b, a.ID) {
				continue
			}
			return fmt.Sprintf("%s/%s", a.ID, b.ID)
		}
	}
	return ""
}

// semanticCriteria guards the artifact-cleaning pass.
func semanticCriteria(in Input, t Thresholds) []ledger.CriterionResult {
	var out []ledger.CriterionResult

	reduction := phaseReduction(in.Before, in.After)
	out = append(out, criterion(
		"word_reduction",
		reduction <= t.MaxSemanticReduction,
		ledger.SeverityError,
		pct(reduction),
		fmt.Sprintf("<= %s", pct(t.MaxSemanticReduction)),
		"artifact cleaning must not eat real content",
	))

	intruding := regionsIntersectingCore(in, phase.Semantic)
	out = append(out, criterion(
		"core_untouched",
		intruding == 0,
		ledger.SeverityCritical,
		fmt.Sprintf("%d", intruding),
		"0",
		"no region removal may reach into core content",
	))

	return out
}

// structuralCriteria guards the boundary and region-removal pass.
func structuralCriteria(in Input, t Thresholds) []ledger.CriterionResult {
	var out []ledger.CriterionResult

	stray := boundariesOutsideHint(in, t.BoundaryTolerance)
	out = append(out, criterion(
		"boundaries_in_range",
		stray == 0,
		ledger.SeverityCritical,
		fmt.Sprintf("%d", stray),
		"0",
		fmt.Sprintf("confirmed boundaries must sit within the hinted range, tolerance %d lines", t.BoundaryTolerance),
	))

	preservation := corePreservation(in)
	out = append(out, criterion(
		"core_preservation",
		preservation >= t.MinCorePreservation,
		ledger.SeverityCritical,
		pct(preservation),
		fmt.Sprintf(">= %s", pct(t.MinCorePreservation)),
		"core content words must survive structural trimming",
	))

	total := totalReduction(in)
	out = append(out, criterion(
		"total_reduction",
		total <= t.MaxStructuralReduction,
		ledger.SeverityError,
		pct(total),
		fmt.Sprintf("<= %s", pct(t.MaxStructuralReduction)),
		"cumulative loss after structural trimming must stay bounded",
	))

	return out
}

// referenceCriteria guards citation and footnote pattern application.
func referenceCriteria(in Input, t Thresholds) []ledger.CriterionResult {
	var out []ledger.CriterionResult

	lowQuality := 0
	outOfBand := 0
	for _, ap := range phasePatterns(in.Led, phase.Reference) {
		if ap.Quality < t.MinPatternQuality {
			lowQuality++
		}
		if ap.EstimatedCount > 0 {
			low := t.PatternCountLowRatio * float64(ap.EstimatedCount)
			high := t.PatternCountHighRatio * float64(ap.EstimatedCount)
			if c := float64(ap.MatchCount); c < low || c > high {
				outOfBand++
			}
		}
	}
	out = append(out, criterion(
		"pattern_quality",
		lowQuality == 0,
		ledger.SeverityError,
		fmt.Sprintf("%d", lowQuality),
		"0",
		fmt.Sprintf("applied patterns must score at least %.2f", t.MinPatternQuality),
	))
	out = append(out, criterion(
		"removal_count",
		outOfBand == 0,
		ledger.SeverityWarning,
		fmt.Sprintf("%d", outOfBand),
		"0",
		fmt.Sprintf("match counts should land within %.1fx-%.1fx of the estimate", t.PatternCountLowRatio, t.PatternCountHighRatio),
	))

	reduction := phaseReduction(in.Before, in.After)
	out = append(out, criterion(
		"reference_reduction",
		reduction <= t.MaxReferenceReduction,
		ledger.SeverityError,
		pct(reduction),
		fmt.Sprintf("<= %s", pct(t.MaxReferenceReduction)),
		"reference stripping must not take more than its share",
	))

	return out
}

// optimizationCriteria guards reflow and whitespace normalization.
func optimizationCriteria(in Input, t Thresholds) []ledger.CriterionResult {
	var out []ledger.CriterionResult

	drifted := 0
	for _, tr := range phaseTransformations(in.Led, phase.Optimization) {
		tolerance := t.OptimizeWordTolerance
		if tr.Op == ledger.OpReflow || tr.Op == ledger.OpDehyphenate {
			tolerance = t.ReflowWordTolerance
		}
		if tr.WordsBefore == 0 {
			continue
		}
		ratio := float64(tr.WordsAfter) / float64(tr.WordsBefore)
		if ratio < 1-tolerance || ratio > 1+tolerance {
			drifted++
		}
	}
	out = append(out, criterion(
		"word_ratio",
		drifted == 0,
		ledger.SeverityError,
		fmt.Sprintf("%d", drifted),
		"0",
		"every transformation must keep its word count within tolerance",
	))

	spanning := paragraphsSpanningHeadings(in)
	out = append(out, criterion(
		"paragraph_boundaries",
		spanning == 0,
		ledger.SeverityError,
		fmt.Sprintf("%d", spanning),
		"0",
		"reflow must not merge text across a chapter heading",
	))

	return out
}

// finalCriteria is the last gate before results are returned.
func finalCriteria(in Input, t Thresholds) []ledger.CriterionResult {
	var out []ledger.CriterionResult

	preservation := 1.0
	if in.Original != nil && in.Original.WordCount() > 0 {
		preservation = float64(in.After.Words) / float64(in.Original.WordCount())
	}
	out = append(out, criterion(
		"overall_preservation",
		preservation >= t.MinOverallPreservation,
		ledger.SeverityCritical,
		pct(preservation),
		fmt.Sprintf(">= %s", pct(t.MinOverallPreservation)),
		"the cleaned document must keep at least half the original words",
	))

	critical := 0
	if in.Led != nil {
		for _, f := range in.Led.Flags {
			if f.Severity == ledger.SeverityCritical {
				critical++
			}
		}
	}
	out = append(out, criterion(
		"critical_flags",
		critical == 0,
		ledger.SeverityCritical,
		fmt.Sprintf("%d", critical),
		"0",
		"unresolved critical flags block completion",
	))

	return out
}

func phaseReduction(before, after document.Metrics) float64 {
	if before.Words == 0 {
		return 0
	}
	removed := before.Words - after.Words
	if removed < 0 {
		return 0
	}
	return float64(removed) / float64(before.Words)
}

func totalReduction(in Input) float64 {
	if in.Original == nil || in.Original.WordCount() == 0 {
		return 0
	}
	removed := in.Original.WordCount() - in.After.Words
	if removed < 0 {
		return 0
	}
	return float64(removed) / float64(in.Original.WordCount())
}

func regionsIntersectingCore(in Input, p phase.Phase) int {
	if in.Led == nil || in.Hints == nil || in.Hints.CoreContent == nil {
		return 0
	}
	core := *in.Hints.CoreContent
	n := 0
	for _, r := range in.Led.RemovedRegions {
		if r.Phase == p && r.Lines.Overlaps(core) {
			n++
		}
	}
	return n
}

func boundariesOutsideHint(in Input, tolerance int) int {
	if in.Led == nil || in.Hints == nil || in.Hints.CoreContent == nil {
		return 0
	}
	core := *in.Hints.CoreContent
	stray := 0
	for _, b := range in.Led.Boundaries {
		if b.Phase != in.Phase {
			continue
		}
		var want int
		switch b.Kind {
		case ledger.BoundaryCoreStart:
			want = core.Start
		case ledger.BoundaryCoreEnd:
			want = core.End
		case ledger.BoundaryBackMatterStart:
			want = core.End + 1
		default:
			continue
		}
		if b.Line < want-tolerance || b.Line > want+tolerance {
			stray++
		}
	}
	return stray
}

// corePreservation measures how many of the hinted core range's words
// survived this phase's region removals. Removal ranges are recorded in
// original-document coordinates, so the overlap is computed there.
func corePreservation(in Input) float64 {
	if in.Led == nil || in.Hints == nil || in.Hints.CoreContent == nil || in.Original == nil {
		return 1
	}
	core := *in.Hints.CoreContent
	coreWords := textutil.WordCount(in.Original.SliceText(core))
	if coreWords == 0 {
		return 1
	}
	removed := 0
	for _, r := range in.Led.RemovedRegions {
		if r.Phase != in.Phase || !r.Lines.Overlaps(core) {
			continue
		}
		overlap := document.LineRange{Start: max(r.Lines.Start, core.Start), End: min(r.Lines.End, core.End)}
		removed += textutil.WordCount(in.Original.SliceText(overlap))
	}
	return 1 - float64(removed)/float64(coreWords)
}

func phasePatterns(l *ledger.Ledger, p phase.Phase) []ledger.AppliedPattern {
	if l == nil {
		return nil
	}
	var out []ledger.AppliedPattern
	for _, ap := range l.AppliedPatterns {
		if ap.Phase == p {
			out = append(out, ap)
		}
	}
	return out
}

func phaseTransformations(l *ledger.Ledger, p phase.Phase) []ledger.TransformationRecord {
	if l == nil {
		return nil
	}
	var out []ledger.TransformationRecord
	for _, tr := range l.Transformations {
		if tr.Phase == p {
			out = append(out, tr)
		}
	}
	return out
}

// paragraphsSpanningHeadings counts chapter-heading lines that reflow
// absorbed into a neighboring paragraph. The check is coordinate free:
// every line matching a hinted chapter-heading pattern must still stand
// apart from the text around it, and none may have vanished.
func paragraphsSpanningHeadings(in Input) int {
	if in.Doc == nil || in.Hints == nil {
		return 0
	}
	var matchers []func(string) bool
	for _, p := range in.Hints.PatternsOfKind(hints.PatternChapterHeading) {
		if p.Regex {
			re, err := p.Compile()
			if err != nil {
				continue
			}
			matchers = append(matchers, re.MatchString)
		} else {
			want := textutil.NormalizeLine(p.Matcher)
			matchers = append(matchers, func(line string) bool {
				return textutil.NormalizeLine(line) == want
			})
		}
	}
	if len(matchers) == 0 {
		return 0
	}
	matches := func(line string) bool {
		for _, m := range matchers {
			if m(line) {
				return true
			}
		}
		return false
	}

	countStandalone := func(d *document.Document) (total, merged int) {
		lines := d.Lines()
		for i, line := range lines {
			if !matches(line) {
				continue
			}
			total++
			prevBlank := i == 0 || lines[i-1] == ""
			if !prevBlank {
				merged++
			}
		}
		return total, merged
	}

	totalAfter, mergedAfter := countStandalone(in.Doc)
	spanning := mergedAfter
	if in.Original != nil {
		totalBefore, mergedBefore := countStandalone(in.Original)
		if lost := totalBefore - totalAfter; lost > 0 {
			spanning += lost
		}
		if mergedBefore > 0 && mergedAfter >= mergedBefore {
			// Headings that were already flush in the input are not
			// the reflow's doing.
			spanning -= mergedBefore
			if spanning < 0 {
				spanning = 0
			}
		}
	}
	return spanning
}
