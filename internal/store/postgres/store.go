// Package postgres implements the ledger stores on PostgreSQL with pgx.
//
// Every write call runs in its own database transaction, so a chunk handed
// to the store is either committed completely or not at all.
package postgres

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/reconcile/internal/ledger"
	"github.com/JonMunkholm/reconcile/internal/logging"
)

// PoolOptions sizes the connection pool.
type PoolOptions struct {
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DBTX is the query surface shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store is a ledger.Store backed by a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ ledger.Store = (*Store)(nil)

// Open connects to databaseURL and verifies the connection.
func Open(ctx context.Context, databaseURL string, opts PoolOptions) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	// config.Validate bounds both sizes to int32.
	if opts.MaxConns > 0 {
		poolConfig.MaxConns = int32(opts.MaxConns)
	}
	if opts.MinConns > 0 {
		poolConfig.MinConns = int32(opts.MinConns)
	}
	if opts.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(databaseURL); err == nil {
		logging.FromContext(ctx).Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	}
	return &Store{pool: pool}, nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) TransactionsByAccountNumber(ctx context.Context, accountNumber string) ([]ledger.Transaction, error) {
	rows, err := s.pool.Query(ctx, selectTransactionsByAccount, accountNumber)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	txns := []ledger.Transaction{}
	for rows.Next() {
		var (
			tx     ledger.Transaction
			amount pgtype.Numeric
		)
		if err := rows.Scan(&tx.AccountNumber, &tx.Sequence, &tx.Timestamp, &amount); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if tx.Amount, err = FromNumeric(amount); err != nil {
			return nil, fmt.Errorf("transaction amount: %w", err)
		}
		tx.Timestamp = tx.Timestamp.UTC()
		txns = append(txns, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txns, nil
}

func (s *Store) InsertTransactions(ctx context.Context, txns []ledger.Transaction) error {
	return s.inTx(ctx, "insert transactions", func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, t := range txns {
			b.Queue(insertTransaction, t.AccountNumber, t.Sequence, t.Timestamp.UTC(), ToNumeric(t.Amount))
		}
		return execBatch(ctx, tx, b)
	})
}

func (s *Store) DeleteTransactions(ctx context.Context) error {
	tag, err := s.pool.Exec(ctx, deleteTransactions)
	if err != nil {
		return classify("delete transactions", err)
	}
	logging.FromContext(ctx).Debug("transactions deleted", "rows", tag.RowsAffected())
	return nil
}

func (s *Store) SummariesWithTransactions(ctx context.Context, afterAccount string, limit int) ([]ledger.AccountSummary, error) {
	rows, err := s.pool.Query(ctx, selectSummariesWithTransactions, afterAccount, limit)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	summaries := []ledger.AccountSummary{}
	for rows.Next() {
		var (
			sum     ledger.AccountSummary
			balance pgtype.Numeric
		)
		if err := rows.Scan(&sum.ID, &sum.AccountNumber, &balance); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		if sum.CurrentBalance, err = FromNumeric(balance); err != nil {
			return nil, fmt.Errorf("summary balance: %w", err)
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summaries: %w", err)
	}
	return summaries, nil
}

func (s *Store) UpdateSummaries(ctx context.Context, summaries []ledger.AccountSummary) error {
	return s.inTx(ctx, "update summaries", func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, sum := range summaries {
			b.Queue(updateSummaryBalance, ToNumeric(sum.CurrentBalance), sum.AccountNumber)
		}
		return execBatch(ctx, tx, b)
	})
}

func (s *Store) UpsertSummaries(ctx context.Context, summaries []ledger.AccountSummary) error {
	return s.inTx(ctx, "upsert summaries", func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, sum := range summaries {
			b.Queue(upsertSummary, sum.AccountNumber, ToNumeric(sum.CurrentBalance))
		}
		return execBatch(ctx, tx, b)
	})
}

// inTx runs fn in a transaction, committing when fn succeeds.
func (s *Store) inTx(ctx context.Context, op string, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("%s: begin transaction: %w", op, err)
	}
	defer tx.Rollback(ctx) // No-op if committed

	if err := fn(tx); err != nil {
		return classify(op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(op, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// execBatch sends b and returns the first statement error.
func execBatch(ctx context.Context, db DBTX, b *pgx.Batch) error {
	br := db.SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("statement %d of %d: %w", i+1, b.Len(), err)
		}
	}
	return br.Close()
}
