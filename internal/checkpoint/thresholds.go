package checkpoint

// Thresholds holds the policy constants behind every criterion. The
// values are tunable defaults, not structural invariants, so they load
// from configuration.
type Thresholds struct {
	// Reconnaissance
	MinReconConfidence float64 `mapstructure:"min_recon_confidence" yaml:"min_recon_confidence"`
	OverlapConfidence  float64 `mapstructure:"overlap_confidence" yaml:"overlap_confidence"`

	// Semantic
	MaxSemanticReduction float64 `mapstructure:"max_semantic_reduction" yaml:"max_semantic_reduction"`

	// Structural
	BoundaryTolerance      int     `mapstructure:"boundary_tolerance" yaml:"boundary_tolerance"`
	MinCorePreservation    float64 `mapstructure:"min_core_preservation" yaml:"min_core_preservation"`
	MaxStructuralReduction float64 `mapstructure:"max_structural_reduction" yaml:"max_structural_reduction"`

	// Reference
	MinPatternQuality     float64 `mapstructure:"min_pattern_quality" yaml:"min_pattern_quality"`
	PatternCountLowRatio  float64 `mapstructure:"pattern_count_low_ratio" yaml:"pattern_count_low_ratio"`
	PatternCountHighRatio float64 `mapstructure:"pattern_count_high_ratio" yaml:"pattern_count_high_ratio"`
	MaxReferenceReduction float64 `mapstructure:"max_reference_reduction" yaml:"max_reference_reduction"`

	// Optimization
	ReflowWordTolerance   float64 `mapstructure:"reflow_word_tolerance" yaml:"reflow_word_tolerance"`
	OptimizeWordTolerance float64 `mapstructure:"optimize_word_tolerance" yaml:"optimize_word_tolerance"`

	// Final review
	MinOverallPreservation float64 `mapstructure:"min_overall_preservation" yaml:"min_overall_preservation"`
}

// DefaultThresholds returns the stock policy.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinReconConfidence:     0.60,
		OverlapConfidence:      0.70,
		MaxSemanticReduction:   0.05,
		BoundaryTolerance:      5,
		MinCorePreservation:    0.95,
		MaxStructuralReduction: 0.25,
		MinPatternQuality:      0.60,
		PatternCountLowRatio:   0.5,
		PatternCountHighRatio:  2.0,
		MaxReferenceReduction:  0.15,
		ReflowWordTolerance:    0.15,
		OptimizeWordTolerance:  0.20,
		MinOverallPreservation: 0.50,
	}
}
