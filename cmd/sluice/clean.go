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
	cleanType      string
	cleanYes       bool
	cleanHeuristic bool
	cleanDest      string
	cleanStdout    bool
)

var cleanCmd = &cobra.Command{
	Use:   "clean <input>",
	Short: "Clean one document through the phased pipeline",
	Long: `Clean runs a single document through the full cleaning sequence.

The input is a .txt or .md file of extracted text, or a .pdf with an
OCR text sidecar next to it (same name, .txt extension). After
reconnaissance the detected structure is shown and the run waits for
approval; --yes skips the question. The cleaned text is written next to
the input as <name>.cleaned.txt unless --dest or --stdout says
otherwise, and a run report with confidence, warnings, and recovery
events goes to stdout.

Examples:
  sluice clean book.txt                  # interactive approval
  sluice clean book.txt --yes            # approve automatically
  sluice clean scan.pdf --type academic  # declare the content type
  sluice clean book.txt --heuristic      # no model calls
  sluice clean book.txt --stdout > clean.txt`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svcs, err := setup(cmd, true)
		if err != nil {
			return err
		}
		defer svcs.Store.Close()
		cfg := svcs.Config.Get()

		contentType, err := parseContentType(cleanType)
		if err != nil {
			return err
		}

		in, err := source.Load(args[0], svcs.Logger)
		if err != nil {
			return err
		}

		llm, err := buildLLM(cfg, cleanHeuristic, svcs.Logger)
		if err != nil {
			return err
		}

		var gate pipeline.DecisionGate = pipeline.AutoApprove{}
		if !cleanYes && !cfg.Pipeline.AutoApprove {
			gate = newTerminalGate(os.Stdin, os.Stderr)
		}

		pipe := pipeline.New(pipelineOptions(cfg, llm, svcs.Store, gate, svcs.Logger))
		res, runErr := pipe.Run(cmd.Context(), pipeline.Request{
			DocumentID:  in.DocumentID,
			InputPath:   in.Path,
			Text:        in.Text,
			ContentType: contentType,
		})
		if res == nil {
			return runErr
		}

		outputPath := ""
		if res.Completed() {
			if cleanStdout {
				fmt.Print(res.Text())
			} else {
				outputPath = cleanDest
				if outputPath == "" {
					outputPath = source.CleanedPath(in.Path)
				}
				if err := source.WriteCleaned(outputPath, res.Text()); err != nil {
					return err
				}
			}
		}

		if !cleanStdout {
			if err := cli.Output(buildReport(res, outputPath)); err != nil {
				return err
			}
		}
		return runErr
	},
}

func init() {
	cleanCmd.Flags().StringVarP(&cleanType, "type", "t", "auto", "content type: auto, novel, non_fiction, technical, academic, reference, poetry, drama, or mixed")
	cleanCmd.Flags().BoolVarP(&cleanYes, "yes", "y", false, "approve the cleaning plan without asking")
	cleanCmd.Flags().BoolVar(&cleanHeuristic, "heuristic", false, "run on local heuristics only, no model calls")
	cleanCmd.Flags().StringVar(&cleanDest, "dest", "", "write cleaned text to this path (default: <input>.cleaned.txt)")
	cleanCmd.Flags().BoolVar(&cleanStdout, "stdout", false, "print cleaned text to stdout instead of writing a file")

	rootCmd.AddCommand(cleanCmd)
}
