package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sluice-dev/sluice/internal/cli"
	"github.com/sluice-dev/sluice/internal/pipeline"
	"github.com/sluice-dev/sluice/internal/source"
)

var (
	resumeYes       bool
	resumeHeuristic bool
	resumeDest      string
	resumeStdout    bool
)

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Continue an interrupted cleaning run",
	Long: `Resume picks up a stored run at the phase after its last completed
one. A run that was interrupted at the approval step keeps its
reconnaissance results and asks again instead of re-detecting.

Terminal runs (completed, declined, halted) cannot be resumed; use
'sluice runs list' to see what is resumable.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svcs, err := setup(cmd, true)
		if err != nil {
			return err
		}
		defer svcs.Store.Close()
		cfg := svcs.Config.Get()
		runID := args[0]

		llm, err := buildLLM(cfg, resumeHeuristic, svcs.Logger)
		if err != nil {
			return err
		}

		var gate pipeline.DecisionGate = pipeline.AutoApprove{}
		if !resumeYes && !cfg.Pipeline.AutoApprove {
			gate = newTerminalGate(os.Stdin, os.Stderr)
		}

		pipe := pipeline.New(pipelineOptions(cfg, llm, svcs.Store, gate, svcs.Logger))
		res, runErr := pipe.Resume(cmd.Context(), runID)
		if res == nil {
			return runErr
		}

		outputPath := ""
		if res.Completed() {
			if resumeStdout {
				fmt.Print(res.Text())
			} else {
				outputPath = resumeDest
				if outputPath == "" && res.Metrics.InputPath != "" {
					outputPath = source.CleanedPath(res.Metrics.InputPath)
				}
				if outputPath != "" {
					if err := source.WriteCleaned(outputPath, res.Text()); err != nil {
						return err
					}
				}
			}
		}

		if !resumeStdout {
			if err := cli.Output(buildReport(res, outputPath)); err != nil {
				return err
			}
		}
		return runErr
	},
}

func init() {
	resumeCmd.Flags().BoolVarP(&resumeYes, "yes", "y", false, "approve the cleaning plan without asking")
	resumeCmd.Flags().BoolVar(&resumeHeuristic, "heuristic", false, "run on local heuristics only, no model calls")
	resumeCmd.Flags().StringVar(&resumeDest, "dest", "", "write cleaned text to this path (default: next to the original input)")
	resumeCmd.Flags().BoolVar(&resumeStdout, "stdout", false, "print cleaned text to stdout instead of writing a file")

	rootCmd.AddCommand(resumeCmd)
}
