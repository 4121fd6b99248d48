package config

import (
	"time"

	"github.com/sluice-dev/sluice/internal/checkpoint"
	"github.com/sluice-dev/sluice/internal/confidence"
	"github.com/sluice-dev/sluice/internal/providers"
	"github.com/sluice-dev/sluice/internal/recovery"
)

// Config is the root configuration structure.
type Config struct {
	Provider   providers.Settings    `mapstructure:"provider" yaml:"provider"`
	Pipeline   PipelineConfig        `mapstructure:"pipeline" yaml:"pipeline"`
	Thresholds checkpoint.Thresholds `mapstructure:"thresholds" yaml:"thresholds"`
	Confidence confidence.Weights    `mapstructure:"confidence" yaml:"confidence"`
	Recovery   recovery.LossPolicy   `mapstructure:"recovery" yaml:"recovery"`
	Store      StoreConfig           `mapstructure:"store" yaml:"store"`
	Batch      BatchConfig           `mapstructure:"batch" yaml:"batch"`
	Prompts    PromptsConfig         `mapstructure:"prompts" yaml:"prompts"`
	Log        LogConfig             `mapstructure:"log" yaml:"log"`
}

// PipelineConfig tunes a single cleaning run.
type PipelineConfig struct {
	// AutoApprove answers the post-reconnaissance review without
	// prompting. Interactive runs leave it false.
	AutoApprove bool `mapstructure:"auto_approve" yaml:"auto_approve"`
	// HeuristicOnly runs detection on local heuristics and skips every
	// step that needs a model. Useful offline and in tests.
	HeuristicOnly bool `mapstructure:"heuristic_only" yaml:"heuristic_only"`
	// ReflowChunkLines is the paragraph-reflow chunk size in lines.
	ReflowChunkLines int `mapstructure:"reflow_chunk_lines" yaml:"reflow_chunk_lines"`
	// ReflowWorkers bounds concurrent reflow chunks in flight.
	ReflowWorkers int `mapstructure:"reflow_workers" yaml:"reflow_workers"`
}

// StoreConfig locates the run-state database.
type StoreConfig struct {
	// Path is the sqlite file. "~" expands to the home directory and
	// ":memory:" keeps state for the process lifetime only.
	Path string `mapstructure:"path" yaml:"path"`
}

// BatchConfig tunes multi-document runs.
type BatchConfig struct {
	// Workers is the number of documents cleaned concurrently.
	Workers int `mapstructure:"workers" yaml:"workers"`
	// StopOnError aborts the batch when any document fails.
	StopOnError bool `mapstructure:"stop_on_error" yaml:"stop_on_error"`
}

// PromptsConfig overrides embedded prompt templates by key.
type PromptsConfig struct {
	// Overrides maps prompt keys (e.g. "stages.structure.user") to
	// replacement template text.
	Overrides map[string]string `mapstructure:"overrides" yaml:"overrides"`
}

// LogConfig controls slog output.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level" yaml:"level"`
	// Format is "text" or "json".
	Format string `mapstructure:"format" yaml:"format"`
}

// DefaultConfig returns the stock configuration. Every checkpoint
// threshold and confidence weight ships here so a generated config file
// documents the full policy surface.
func DefaultConfig() *Config {
	return &Config{
		Provider: providers.Settings{
			Provider:          "openai",
			APIKey:            "${OPENAI_API_KEY}",
			Model:             "gpt-4o-mini",
			RequestsPerMinute: 60,
			MaxRetries:        3,
			Timeout:           120 * time.Second,
		},
		Pipeline: PipelineConfig{
			ReflowChunkLines: 120,
			ReflowWorkers:    4,
		},
		Thresholds: checkpoint.DefaultThresholds(),
		Confidence: confidence.DefaultWeights(),
		Recovery:   recovery.DefaultLossPolicy(),
		Store: StoreConfig{
			Path: "~/.sluice/sluice.db",
		},
		Batch: BatchConfig{
			Workers: 3,
		},
		Prompts: PromptsConfig{},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
