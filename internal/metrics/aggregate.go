package metrics

import "sort"

// Summary aggregates a set of runs for reporting.
type Summary struct {
	Runs      int `json:"runs"`
	Completed int `json:"completed"`
	Halted    int `json:"halted"`
	Declined  int `json:"declined"`
	Failed    int `json:"failed"`

	TotalCostUSD float64 `json:"total_cost_usd"`
	TotalCalls   int     `json:"total_calls"`

	AvgPreservation float64 `json:"avg_preservation"`
	AvgReductionPct float64 `json:"avg_reduction_pct"`
	TotalSeconds    float64 `json:"total_seconds"`
}

// Summarize aggregates run records. Preservation and reduction average
// over finished runs only.
func Summarize(runs []RunMetrics) *Summary {
	s := &Summary{Runs: len(runs)}

	finished := 0
	for i := range runs {
		r := &runs[i]
		switch r.Status {
		case StatusCompleted:
			s.Completed++
		case StatusHalted:
			s.Halted++
		case StatusDeclined:
			s.Declined++
		case StatusFailed:
			s.Failed++
		}

		s.TotalCostUSD += r.AI.CostUSD
		s.TotalCalls += r.AI.Calls
		s.TotalSeconds += r.TotalSeconds

		if r.Status == StatusCompleted {
			finished++
			s.AvgPreservation += r.PreservationRatio()
			s.AvgReductionPct += r.ReductionPct()
		}
	}

	if finished > 0 {
		s.AvgPreservation /= float64(finished)
		s.AvgReductionPct /= float64(finished)
	}
	return s
}

// DurationStats summarizes run durations with percentiles.
type DurationStats struct {
	Count int     `json:"count"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// RunDurations computes duration statistics over finished runs.
func RunDurations(runs []RunMetrics) *DurationStats {
	var secs []float64
	for i := range runs {
		if runs[i].TotalSeconds > 0 {
			secs = append(secs, runs[i].TotalSeconds)
		}
	}

	stats := &DurationStats{Count: len(secs)}
	if len(secs) == 0 {
		return stats
	}

	sort.Float64s(secs)
	stats.Min = secs[0]
	stats.Max = secs[len(secs)-1]

	var sum float64
	for _, s := range secs {
		sum += s
	}
	stats.Avg = sum / float64(len(secs))

	stats.P50 = percentile(secs, 50)
	stats.P95 = percentile(secs, 95)
	stats.P99 = percentile(secs, 99)
	return stats
}

// percentile computes the p-th percentile of a sorted slice with
// linear interpolation.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	idx := (p / 100.0) * float64(len(sorted)-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	weight := idx - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}
