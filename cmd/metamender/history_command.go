package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"metamender/internal/history"
	"metamender/internal/runlog"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List previous enrichment runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(ctx, func(store *history.Store) error {
				runs, err := store.ListRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded yet")
					return nil
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Run", "Started", "Provider", "Scanned", "Updated", "Skipped", "Failed", "Tokens", "Cost"},
					buildRunRows(runs),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show")

	cmd.AddCommand(newHistoryShowCommand(ctx))
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run and its per-item outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(ctx, func(store *history.Store) error {
				summary, err := store.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				outcomes, err := store.Outcomes(cmd.Context(), summary.RunID)
				if err != nil {
					return err
				}
				printRunDetail(cmd.OutOrStdout(), summary, outcomes)
				return nil
			})
		},
	}
}

func withHistory(ctx *commandContext, fn func(*history.Store) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	store, err := history.Open(cfg)
	if err != nil {
		return fmt.Errorf("open run history: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func buildRunRows(runs []runlog.Summary) [][]string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		id := shortID(run.RunID)
		if run.Interrupted {
			id += "*"
		}
		rows = append(rows, []string{
			id,
			formatDisplayTime(run.StartedAt),
			run.Provider + "/" + run.Model,
			fmt.Sprintf("%d", run.Scanned),
			fmt.Sprintf("%d", run.Updated),
			fmt.Sprintf("%d", run.Skipped),
			fmt.Sprintf("%d", run.Failed),
			fmt.Sprintf("%d", run.Tokens),
			formatCost(run.Cost),
		})
	}
	return rows
}

func printRunDetail(out io.Writer, summary runlog.Summary, outcomes []runlog.Outcome) {
	finished := "-"
	if !summary.FinishedAt.IsZero() {
		finished = formatDisplayTime(summary.FinishedAt)
	}
	fmt.Fprintln(out, renderKeyValues([][]string{
		{"Run", summary.RunID},
		{"Provider", summary.Provider + " / " + summary.Model},
		{"Started", formatDisplayTime(summary.StartedAt)},
		{"Finished", finished},
		{"Interrupted", yesNo(summary.Interrupted)},
		{"Scanned", fmt.Sprintf("%d", summary.Scanned)},
		{"Updated", fmt.Sprintf("%d", summary.Updated)},
		{"Skipped", formatBucket(summary.Skipped, summary.SkippedByReason)},
		{"Failed", formatBucket(summary.Failed, summary.FailedByKind)},
		{"Tokens", fmt.Sprintf("%d", summary.Tokens)},
		{"Approx. cost", formatCost(summary.Cost)},
		{"Log", summary.LogPath},
	}))
	if len(outcomes) == 0 {
		return
	}

	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		rows = append(rows, []string{
			runlog.Shorten(o.Name, 40),
			o.Kind,
			string(o.Status),
			o.Reason,
			fmt.Sprintf("%d", o.Tokens),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Item", "Kind", "Status", "Reason", "Tokens"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
	))
}

func shortID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDisplayTime(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
