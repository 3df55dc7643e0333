// Package sqlite implements the ledger stores on an embedded SQLite
// database.
//
// Amounts and balances are stored as canonical decimal text and summed in
// Go, so no precision is lost to SQLite's floating point affinity.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/reconcile/internal/ledger"
)

// timestampLayout is the stored timestamp form, always UTC.
const timestampLayout = "2006-01-02 15:04:05"

// Store is a ledger.Store backed by a SQLite file.
type Store struct {
	db   *sql.DB
	path string
}

var _ ledger.Store = (*Store)(nil)

// Open opens or creates the database at path with foreign keys and WAL
// journaling enabled.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer at a time; a single connection also serializes the chunk
	// transactions.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) TransactionsByAccountNumber(ctx context.Context, accountNumber string) ([]ledger.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, selectTransactionsByAccount, accountNumber)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	txns := []ledger.Transaction{}
	for rows.Next() {
		var (
			tx             ledger.Transaction
			ts, amountText string
		)
		if err := rows.Scan(&tx.AccountNumber, &tx.Sequence, &ts, &amountText); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if tx.Timestamp, err = time.ParseInLocation(timestampLayout, ts, time.UTC); err != nil {
			return nil, fmt.Errorf("transaction timestamp %q: %w", ts, err)
		}
		if tx.Amount, err = decimal.NewFromString(amountText); err != nil {
			return nil, fmt.Errorf("transaction amount %q: %w", amountText, err)
		}
		txns = append(txns, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txns, nil
}

func (s *Store) InsertTransactions(ctx context.Context, txns []ledger.Transaction) error {
	return s.transaction(ctx, "insert transactions", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, insertTransaction)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, t := range txns {
			_, err := stmt.ExecContext(ctx,
				t.AccountNumber,
				t.Sequence,
				t.Timestamp.UTC().Format(timestampLayout),
				t.Amount.String(),
			)
			if err != nil {
				return fmt.Errorf("row %d of %d: %w", i+1, len(txns), err)
			}
		}
		return nil
	})
}

func (s *Store) DeleteTransactions(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, deleteTransactions); err != nil {
		return classify("delete transactions", err)
	}
	return nil
}

func (s *Store) SummariesWithTransactions(ctx context.Context, afterAccount string, limit int) ([]ledger.AccountSummary, error) {
	rows, err := s.db.QueryContext(ctx, selectSummariesWithTransactions, afterAccount, limit)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	summaries := []ledger.AccountSummary{}
	for rows.Next() {
		var (
			sum         ledger.AccountSummary
			balanceText string
		)
		if err := rows.Scan(&sum.ID, &sum.AccountNumber, &balanceText); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		if sum.CurrentBalance, err = decimal.NewFromString(balanceText); err != nil {
			return nil, fmt.Errorf("summary balance %q: %w", balanceText, err)
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summaries: %w", err)
	}
	return summaries, nil
}

func (s *Store) UpdateSummaries(ctx context.Context, summaries []ledger.AccountSummary) error {
	return s.execEach(ctx, "update summaries", updateSummaryBalance, summaries, func(sum ledger.AccountSummary) []any {
		return []any{sum.CurrentBalance.String(), sum.AccountNumber}
	})
}

func (s *Store) UpsertSummaries(ctx context.Context, summaries []ledger.AccountSummary) error {
	return s.execEach(ctx, "upsert summaries", upsertSummary, summaries, func(sum ledger.AccountSummary) []any {
		return []any{sum.AccountNumber, sum.CurrentBalance.String()}
	})
}

func (s *Store) execEach(ctx context.Context, op, query string, summaries []ledger.AccountSummary, args func(ledger.AccountSummary) []any) error {
	return s.transaction(ctx, op, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, sum := range summaries {
			if _, err := stmt.ExecContext(ctx, args(sum)...); err != nil {
				return fmt.Errorf("account %s: %w", sum.AccountNumber, err)
			}
		}
		return nil
	})
}

// transaction executes fn within a transaction. If fn returns an error, the
// transaction is rolled back. Otherwise, the transaction is committed.
func (s *Store) transaction(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin transaction: %w", op, err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%s: %v, rollback error: %w", op, err, rbErr)
		}
		return classify(op, err)
	}

	if err := tx.Commit(); err != nil {
		return classify(op, fmt.Errorf("commit: %w", err))
	}
	return nil
}
