package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	executionsLimit int
	executionsJSON  bool
)

var executionsCmd = &cobra.Command{
	Use:   "executions",
	Short: "List recorded job executions",
	Long: `List job executions from the execution history, newest first.

Example:
  reconcile executions --limit 5
  reconcile executions --json`,
	RunE: listExecutions,
}

func init() {
	executionsCmd.Flags().IntVar(&executionsLimit, "limit", 20, "maximum number of executions, 0 for all")
	executionsCmd.Flags().BoolVar(&executionsJSON, "json", false, "print JSON instead of a table")
}

func listExecutions(cmd *cobra.Command, args []string) error {
	repo, err := openRepository(cfg.Batch)
	if err != nil {
		return err
	}
	defer repo.Close()

	recs, err := repo.JobExecutions(cmd.Context(), executionsLimit)
	if err != nil {
		return fmt.Errorf("list executions: %w", err)
	}

	out := cmd.OutOrStdout()
	if executionsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tSTARTED\tDURATION\tTRANSACTIONS\tMESSAGE")
	for _, rec := range recs {
		duration := "-"
		if !rec.EndTime.IsZero() {
			duration = rec.EndTime.Sub(rec.StartTime).Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.ID,
			rec.Status,
			rec.StartTime.Local().Format(time.DateTime),
			duration,
			rec.Parameters["transactionFile"],
			rec.ExitMessage,
		)
	}
	return tw.Flush()
}
