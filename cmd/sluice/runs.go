package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/sluice-dev/sluice/internal/cli"
	"github.com/sluice-dev/sluice/internal/metrics"
	"github.com/sluice-dev/sluice/internal/store"
)

var (
	runsLimit  int
	runsStatus string
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect stored cleaning runs",
}

// runRow is the list view of one stored run.
type runRow struct {
	RunID      string  `json:"run_id" yaml:"run_id"`
	Document   string  `json:"document" yaml:"document"`
	Status     string  `json:"status" yaml:"status"`
	Cursor     string  `json:"cursor,omitempty" yaml:"cursor,omitempty"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
	Updated    string  `json:"updated" yaml:"updated"`
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		svcs, err := setup(cmd, true)
		if err != nil {
			return err
		}
		defer svcs.Store.Close()

		var runs []*store.Run
		if runsStatus != "" {
			runs, err = svcs.Store.ListRunsByStatus(cmd.Context(), metrics.RunStatus(runsStatus))
		} else {
			runs, err = svcs.Store.ListRuns(cmd.Context(), runsLimit)
		}
		if err != nil {
			return err
		}

		rows := make([]runRow, 0, len(runs))
		for _, r := range runs {
			doc := r.InputPath
			if doc == "" {
				doc = r.DocumentID
			}
			rows = append(rows, runRow{
				RunID:      r.RunID,
				Document:   doc,
				Status:     string(r.Status),
				Cursor:     string(r.Cursor),
				Confidence: r.Confidence,
				Updated:    r.UpdatedAt.Format(time.RFC3339),
			})
		}
		return cli.Output(rows)
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run with its metrics and audit trail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svcs, err := setup(cmd, true)
		if err != nil {
			return err
		}
		defer svcs.Store.Close()
		ctx := cmd.Context()
		runID := args[0]

		state, err := svcs.Store.LoadRunState(ctx, runID)
		if err != nil {
			return err
		}

		detail := struct {
			Run         runRow              `json:"run" yaml:"run"`
			Metrics     *metrics.RunMetrics `json:"metrics,omitempty" yaml:"metrics,omitempty"`
			Checkpoints []string            `json:"checkpoints,omitempty" yaml:"checkpoints,omitempty"`
			Warnings    []string            `json:"warnings,omitempty" yaml:"warnings,omitempty"`
			Recoveries  []string            `json:"recoveries,omitempty" yaml:"recoveries,omitempty"`
		}{
			Run: runRow{
				RunID:      state.Run.RunID,
				Document:   state.Run.InputPath,
				Status:     string(state.Run.Status),
				Cursor:     string(state.Run.Cursor),
				Confidence: state.Run.Confidence,
				Updated:    state.Run.UpdatedAt.Format(time.RFC3339),
			},
		}
		if detail.Run.Document == "" {
			detail.Run.Document = state.Run.DocumentID
		}
		if m, err := svcs.Store.LoadMetrics(ctx, runID); err == nil {
			detail.Metrics = m
		}
		if led := state.Ledger; led != nil {
			for _, cp := range led.Checkpoints {
				detail.Checkpoints = append(detail.Checkpoints, string(cp.Type)+": "+string(cp.Result))
			}
			for _, w := range led.Warnings {
				detail.Warnings = append(detail.Warnings, formatWarning(w))
			}
			for _, ev := range led.Recoveries {
				detail.Recoveries = append(detail.Recoveries, formatRecovery(ev))
			}
		}
		return cli.Output(detail)
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete a run and everything stored for it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svcs, err := setup(cmd, true)
		if err != nil {
			return err
		}
		defer svcs.Store.Close()

		if err := svcs.Store.DeleteRun(cmd.Context(), args[0]); err != nil {
			return err
		}
		return cli.Output(map[string]string{"deleted": args[0]})
	},
}

var runsSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Aggregate statistics across stored runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		svcs, err := setup(cmd, true)
		if err != nil {
			return err
		}
		defer svcs.Store.Close()

		all, err := svcs.Store.ListMetrics(cmd.Context(), 0)
		if err != nil {
			return err
		}
		out := struct {
			Summary   *metrics.Summary       `json:"summary" yaml:"summary"`
			Durations *metrics.DurationStats `json:"durations" yaml:"durations"`
		}{
			Summary:   metrics.Summarize(all),
			Durations: metrics.RunDurations(all),
		}
		return cli.Output(out)
	},
}

func init() {
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 20, "most recent runs to list (0 for all)")
	runsListCmd.Flags().StringVar(&runsStatus, "status", "", "filter by status (running, awaiting_decision, completed, halted, declined, failed, cancelled)")

	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsDeleteCmd, runsSummaryCmd)
	rootCmd.AddCommand(runsCmd)
}
