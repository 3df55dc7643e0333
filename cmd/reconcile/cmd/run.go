package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/reconcile/internal/batch"
	"github.com/JonMunkholm/reconcile/internal/config"
	"github.com/JonMunkholm/reconcile/internal/reconcile"
)

var (
	runTransactions string
	runSummary      string
	runParamsFile   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the reconciliation job once",
	Long: `Run imports the transaction file, applies it to the account balances and
writes the summary file.

Running again with the same files resumes the same job instance: steps that
already completed are skipped, except the import, which is safe to repeat.

The first SIGINT or SIGTERM stops the run after the current chunk; a second
one cancels it. The command exits non-zero unless the run completed.

Example:
  reconcile run --transactions in/transactions.csv --summary out/summary.csv
  reconcile run --params job.yaml`,
	RunE: runJob,
}

func init() {
	runCmd.Flags().StringVar(&runTransactions, "transactions", "", "transaction file to import")
	runCmd.Flags().StringVar(&runSummary, "summary", "", "summary file to write")
	runCmd.Flags().StringVar(&runParamsFile, "params", "", "YAML job parameter file; flags override its values")
}

func runJob(cmd *cobra.Command, args []string) error {
	params, err := jobParameters()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	repo, err := openRepository(cfg.Batch)
	if err != nil {
		return err
	}
	defer repo.Close()

	svc := reconcile.NewService(store, repo, cfg.Batch)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		sig, ok := <-sigCh
		if !ok {
			return
		}
		slog.Info("stopping run after the current chunk", "signal", sig.String())
		svc.StopAll("interrupted by " + sig.String())
		if sig, ok = <-sigCh; ok {
			slog.Warn("cancelling run", "signal", sig.String())
			cancel()
		}
	}()

	rec, runErr := svc.Run(ctx, params)
	if rec.ID != "" {
		printRecord(cmd, rec)
	}
	if runErr != nil {
		return fmt.Errorf("%s: %w", reconcile.FormatUserError(runErr), runErr)
	}
	if rec.Status != batch.StatusCompleted {
		return fmt.Errorf("job %s: %s", rec.Status, rec.ExitMessage)
	}
	return nil
}

func jobParameters() (config.JobParameters, error) {
	var params config.JobParameters
	if runParamsFile != "" {
		p, err := config.LoadParameters(runParamsFile)
		if err != nil {
			return params, err
		}
		params = p
	}
	if runTransactions != "" {
		params.TransactionFile = runTransactions
	}
	if runSummary != "" {
		params.SummaryFile = runSummary
	}
	if err := params.Validate(); err != nil {
		return params, fmt.Errorf("job parameters: %w", err)
	}
	return params, nil
}

func printRecord(cmd *cobra.Command, rec batch.JobRecord) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "execution %s: %s\n", rec.ID, rec.Status)
	if rec.ExitMessage != "" {
		fmt.Fprintf(out, "  %s\n", rec.ExitMessage)
	}
	for _, s := range rec.Steps {
		note := ""
		if s.JobExecutionID != rec.ID {
			note = " (completed earlier, skipped)"
		}
		fmt.Fprintf(out, "  %-20s %-9s read=%d written=%d commits=%d%s\n",
			s.StepName, s.Status, s.ReadCount, s.WriteCount, s.CommitCount, note)
	}
}
