// Package cmd provides the commands of the reconcile CLI.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/reconcile/internal/config"
	"github.com/JonMunkholm/reconcile/internal/logging"
)

var (
	envFiles []string
	logLevel string

	// cfg is loaded before every subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile account balances from a transaction file",
	Long: `reconcile imports a delimited transaction file into the ledger store,
applies the imported transactions to the balances of their accounts and
exports the balances to a summary file.

The transaction file holds rows of account,timestamp,amount followed by a
single-field footer with the number of rows. A footer that does not match
stops the run before any balance changes.

Configuration comes from environment variables, optionally loaded from .env
files. Example:
  reconcile migrate --seed accounts.csv
  reconcile run --transactions in/transactions.csv --summary out/summary.csv
  reconcile executions --limit 5`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadEnvFiles(); err != nil {
			return err
		}

		loaded, err := config.Load()
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.Logging.Level = logLevel
		}
		logging.Setup(loaded.Logging.Level, loaded.Logging.Format)
		cfg = loaded

		slog.Debug("configuration loaded", "config", cfg.String())
		return nil
	},
}

// Execute runs the CLI and reports a failure on stderr.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "env files to load (default .env if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(executionsCmd)
	rootCmd.AddCommand(migrateCmd)
}

// loadEnvFiles loads the requested env files, overriding the process
// environment. Without --env-file a missing .env is not an error.
func loadEnvFiles() error {
	if len(envFiles) > 0 {
		if err := godotenv.Overload(envFiles...); err != nil {
			return fmt.Errorf("load env files: %w", err)
		}
		return nil
	}
	if err := godotenv.Overload(); err == nil {
		slog.Debug("loaded .env file")
	}
	return nil
}
