package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sluice-dev/sluice/internal/batch"
	"github.com/sluice-dev/sluice/internal/cli"
	"github.com/sluice-dev/sluice/internal/metrics"
	"github.com/sluice-dev/sluice/internal/pipeline"
	"github.com/sluice-dev/sluice/internal/source"
)

var (
	batchType        string
	batchWorkers     int
	batchStopOnError bool
	batchInteractive bool
	batchHeuristic   bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Clean every document in a directory",
	Long: `Batch discovers cleanable files directly under a directory and runs
each through the pipeline on a bounded worker pool. A PDF and its OCR
text sidecar count as one document.

Plans are approved automatically unless --interactive asks for each
one; a document waiting at the prompt gives its pool slot to the next,
so one open question never stalls the batch. Cleaned text lands next to
each input as <name>.cleaned.txt.

Examples:
  sluice batch ./scans                 # clean everything, auto-approve
  sluice batch ./scans --workers 6     # wider pool
  sluice batch ./scans --interactive   # approve each plan by hand
  sluice batch ./scans --stop-on-error`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svcs, err := setup(cmd, true)
		if err != nil {
			return err
		}
		defer svcs.Store.Close()
		cfg := svcs.Config.Get()

		contentType, err := parseContentType(batchType)
		if err != nil {
			return err
		}

		paths, err := source.Discover(args[0])
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			return fmt.Errorf("no cleanable files in %s (want .txt, .md, or .pdf with an OCR sidecar)", args[0])
		}

		items := make([]batch.Item, 0, len(paths))
		for _, path := range paths {
			in, err := source.Load(path, svcs.Logger)
			if err != nil {
				svcs.Logger.Warn("skipping input", "path", path, "error", err)
				continue
			}
			items = append(items, batch.Item{
				DocumentID:  in.DocumentID,
				InputPath:   in.Path,
				Text:        in.Text,
				ContentType: contentType,
			})
		}
		if len(items) == 0 {
			return fmt.Errorf("none of the %d discovered files loaded", len(paths))
		}

		llm, err := buildLLM(cfg, batchHeuristic, svcs.Logger)
		if err != nil {
			return err
		}

		var gate pipeline.DecisionGate = pipeline.AutoApprove{}
		if batchInteractive {
			gate = newTerminalGate(os.Stdin, os.Stderr)
		}

		workers := cfg.Batch.Workers
		if batchWorkers > 0 {
			workers = batchWorkers
		}
		stopOnError := cfg.Batch.StopOnError || batchStopOnError

		runner := batch.New(
			pipelineOptions(cfg, llm, svcs.Store, gate, svcs.Logger),
			batch.Config{Workers: workers, StopOnError: stopOnError},
		)
		results, batchErr := runner.Run(cmd.Context(), items)

		reports := make([]runReport, 0, len(results))
		for _, r := range results {
			if r.Result == nil {
				reports = append(reports, runReport{
					DocumentID: r.Item.DocumentID,
					Status:     metrics.StatusFailed,
					Warnings:   []string{fmt.Sprintf("run never started: %v", r.Err)},
				})
				continue
			}
			outputPath := ""
			if r.Result.Completed() {
				outputPath = source.CleanedPath(r.Item.InputPath)
				if err := source.WriteCleaned(outputPath, r.Result.Text()); err != nil {
					svcs.Logger.Error("writing cleaned output failed",
						"path", outputPath, "error", err)
					outputPath = ""
				}
			}
			reports = append(reports, buildReport(r.Result, outputPath))
		}

		out := struct {
			Tally     batch.Tally `json:"tally" yaml:"tally"`
			Documents []runReport `json:"documents" yaml:"documents"`
		}{
			Tally:     batch.TallyOf(results),
			Documents: reports,
		}
		if err := cli.Output(out); err != nil {
			return err
		}
		return batchErr
	},
}

func init() {
	batchCmd.Flags().StringVarP(&batchType, "type", "t", "auto", "content type applied to every document")
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 0, "documents cleaned concurrently (default from config)")
	batchCmd.Flags().BoolVar(&batchStopOnError, "stop-on-error", false, "cancel the batch after the first failed run")
	batchCmd.Flags().BoolVar(&batchInteractive, "interactive", false, "ask before cleaning each document")
	batchCmd.Flags().BoolVar(&batchHeuristic, "heuristic", false, "run on local heuristics only, no model calls")

	rootCmd.AddCommand(batchCmd)
}
