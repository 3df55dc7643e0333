package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/reconcile/internal/flatfile"
	"github.com/JonMunkholm/reconcile/internal/ledger"
)

var migrateSeed string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the ledger schema and optionally seed account summaries",
	Long: `Migrate creates the ledger tables if they do not exist.

With --seed it also loads account summaries from a file of
account,balance rows, creating missing accounts and resetting the balance
of existing ones. Imports reject transactions for accounts that are not
seeded.

Example:
  reconcile migrate --seed accounts.csv`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrateSeed, "seed", "", "file of account,balance rows to load")
}

const seedBatchSize = 500

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()
	slog.Info("ledger schema ready", "driver", cfg.Database.Driver)

	if migrateSeed == "" {
		return nil
	}

	r := flatfile.NewReader(flatfile.FileOpener(migrateSeed), cfg.Batch.DelimiterRune(), migrateSeed)
	if err := r.Open(ctx); err != nil {
		return err
	}
	defer r.Close()

	var (
		pending []ledger.AccountSummary
		total   int
	)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := store.UpsertSummaries(ctx, pending); err != nil {
			return fmt.Errorf("seed account summaries: %w", err)
		}
		total += len(pending)
		pending = pending[:0]
		return nil
	}

	for {
		rec, err := r.Read(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		s, err := parseSeedRecord(rec)
		if err != nil {
			return fmt.Errorf("%s: %w", migrateSeed, err)
		}
		pending = append(pending, s)
		if len(pending) == seedBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	slog.Info("account summaries seeded", "file", migrateSeed, "accounts", total)
	fmt.Fprintf(cmd.OutOrStdout(), "seeded %d account summaries\n", total)
	return nil
}

func parseSeedRecord(rec flatfile.Record) (ledger.AccountSummary, error) {
	if rec.Len() != 2 {
		return ledger.AccountSummary{}, fmt.Errorf("line %d: want account,balance, got %d fields", rec.Line, rec.Len())
	}
	account := strings.TrimSpace(rec.Fields[0])
	if account == "" {
		return ledger.AccountSummary{}, fmt.Errorf("line %d: account number is empty", rec.Line)
	}
	balance, err := decimal.NewFromString(strings.TrimSpace(rec.Fields[1]))
	if err != nil {
		return ledger.AccountSummary{}, fmt.Errorf("line %d: balance %q: %w", rec.Line, rec.Fields[1], err)
	}
	return ledger.AccountSummary{AccountNumber: account, CurrentBalance: balance}, nil
}
