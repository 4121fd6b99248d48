package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sluice-dev/sluice/internal/cli"
	"github.com/sluice-dev/sluice/internal/config"
	"github.com/sluice-dev/sluice/internal/hints"
	"github.com/sluice-dev/sluice/internal/pipeline"
	"github.com/sluice-dev/sluice/internal/prompts"
	"github.com/sluice-dev/sluice/internal/prompts/boundary"
	"github.com/sluice-dev/sluice/internal/prompts/reflow"
	"github.com/sluice-dev/sluice/internal/prompts/review"
	"github.com/sluice-dev/sluice/internal/prompts/structure"
	"github.com/sluice-dev/sluice/internal/providers"
	"github.com/sluice-dev/sluice/internal/store"
	"github.com/sluice-dev/sluice/internal/svcctx"
	"github.com/sluice-dev/sluice/version"
)

var (
	cfgFile      string
	outputFormat string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "sluice",
	Short: "Checkpoint-gated cleaning for OCR-extracted documents",
	Long: `Sluice cleans raw OCR text through an ordered sequence of phases,
each gated by an automated quality checkpoint.

A run maps the document's structure first (reconnaissance), waits for
approval, then strips page artifacts, trims front and back matter,
removes citations and footnote markers, repairs hyphenation, reflows
paragraphs, and grades its own output. Every removal is recorded in an
audit ledger, confidence only ever falls, and a failed checkpoint rolls
the phase back instead of shipping damaged text.`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.sluice/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "", "log level override: debug, info, warn, or error",
	)

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		cli.SetFormat(outputFormat)
	}
}

// setup loads configuration, builds the logger, and (when asked) opens
// the run store. The services ride the command context from here on.
func setup(cmd *cobra.Command, needStore bool) (*svcctx.Services, error) {
	mgr, err := config.NewManager(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg := mgr.Get()
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	// Logs go to stderr so piped output stays machine-readable.
	logger := cfg.Log.Logger(os.Stderr)

	svcs := &svcctx.Services{
		Config: mgr,
		Logger: logger,
	}
	if needStore {
		path, err := cfg.StorePath()
		if err != nil {
			return nil, err
		}
		st, err := store.Open(path, logger)
		if err != nil {
			return nil, fmt.Errorf("opening run store: %w", err)
		}
		svcs.Store = st
	}

	cmd.SetContext(svcctx.WithServices(cmd.Context(), svcs))
	return svcs, nil
}

// buildLLM returns the configured chat client, or nil when the run is
// heuristic-only.
func buildLLM(cfg *config.Config, heuristicOnly bool, logger *slog.Logger) (providers.LLMClient, error) {
	if heuristicOnly || cfg.Pipeline.HeuristicOnly {
		logger.Info("running heuristic-only, no model calls will be made")
		return nil, nil
	}
	registry, err := providers.NewRegistryFromSettings(cfg.ProviderSettings(), logger)
	if err != nil {
		return nil, err
	}
	return registry.Default()
}

// buildResolver registers the embedded prompts for the four AI stages
// and layers config overrides on top.
func buildResolver(cfg *config.Config, logger *slog.Logger) *prompts.Resolver {
	r := prompts.NewResolver(logger)
	structure.RegisterPrompts(r)
	boundary.RegisterPrompts(r)
	reflow.RegisterPrompts(r)
	review.RegisterPrompts(r)
	r.SetOverrides(cfg.Prompts.Overrides)
	return r
}

// pipelineOptions assembles pipeline options from config plus the
// per-command pieces.
func pipelineOptions(cfg *config.Config, llm providers.LLMClient, st *store.Store, gate pipeline.DecisionGate, logger *slog.Logger) pipeline.Options {
	opts := pipeline.Options{
		LLM:              llm,
		Store:            st,
		Gate:             gate,
		Logger:           logger,
		Thresholds:       cfg.Thresholds,
		Weights:          cfg.Confidence,
		LossPolicy:       cfg.Recovery,
		ReflowChunkLines: cfg.Pipeline.ReflowChunkLines,
		ReflowWorkers:    cfg.Pipeline.ReflowWorkers,
	}
	if llm != nil {
		opts.Resolver = buildResolver(cfg, logger)
	}
	if cfg.Provider.Timeout > 0 {
		// The single coordinated retry gets double the normal budget.
		opts.RetryBudget = 2 * cfg.Provider.Timeout
	}
	return opts
}

// parseContentType maps the --type flag to a content type. Empty and
// "auto" leave detection to reconnaissance.
func parseContentType(s string) (hints.ContentType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return "", nil
	case "novel", "fiction":
		return hints.ContentNovel, nil
	case "non_fiction", "nonfiction":
		return hints.ContentNonFiction, nil
	case "technical":
		return hints.ContentTechnical, nil
	case "academic":
		return hints.ContentAcademic, nil
	case "reference":
		return hints.ContentReference, nil
	case "poetry":
		return hints.ContentPoetry, nil
	case "drama":
		return hints.ContentDrama, nil
	case "mixed":
		return hints.ContentMixed, nil
	default:
		return "", fmt.Errorf("unknown content type %q (want auto, novel, non_fiction, technical, academic, reference, poetry, drama, or mixed)", s)
	}
}
