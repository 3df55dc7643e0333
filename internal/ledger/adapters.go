package ledger

import (
	"context"
	"fmt"
	"io"

	"github.com/JonMunkholm/reconcile/internal/batch"
	"github.com/JonMunkholm/reconcile/internal/logging"
)

// SummaryReader pages through the summaries referenced by a transaction in
// account number order. Each page is a separate query, so no cursor is held
// open while the step commits its chunks.
type SummaryReader struct {
	store    AccountSummaryStore
	pageSize int

	page  []AccountSummary
	next  int
	after string
	last  bool
	read  int64
}

// NewSummaryReader returns a reader fetching pageSize summaries per query.
func NewSummaryReader(store AccountSummaryStore, pageSize int) *SummaryReader {
	if pageSize <= 0 {
		pageSize = batch.DefaultChunkSize
	}
	return &SummaryReader{store: store, pageSize: pageSize}
}

// Open rewinds the reader to the first summary.
func (r *SummaryReader) Open(context.Context) error {
	r.page, r.next, r.after, r.last, r.read = nil, 0, "", false, 0
	return nil
}

func (r *SummaryReader) Close() error {
	r.page = nil
	return nil
}

// Read implements batch.Reader.
func (r *SummaryReader) Read(ctx context.Context, _ *batch.StepExecution) (AccountSummary, bool, error) {
	if r.next >= len(r.page) {
		if r.last {
			return AccountSummary{}, false, io.EOF
		}
		page, err := r.store.SummariesWithTransactions(ctx, r.after, r.pageSize)
		if err != nil {
			return AccountSummary{}, false, fmt.Errorf("read summaries after %q: %w", r.after, err)
		}
		r.page, r.next = page, 0
		r.last = len(page) < r.pageSize
		if len(page) == 0 {
			return AccountSummary{}, false, io.EOF
		}
		r.after = page[len(page)-1].AccountNumber
	}

	s := r.page[r.next]
	r.next++
	r.read++
	return s, true, nil
}

// Position returns the number of summaries read.
func (r *SummaryReader) Position() int64 {
	return r.read
}

// TransactionWriter inserts each chunk of transactions in one store
// transaction.
type TransactionWriter struct {
	Store TransactionStore

	// Truncate clears stored transactions when the step opens, so a re-run
	// imports the file into an empty table.
	Truncate bool
}

func (w *TransactionWriter) Open(ctx context.Context) error {
	if !w.Truncate {
		return nil
	}
	if err := w.Store.DeleteTransactions(ctx); err != nil {
		return fmt.Errorf("truncate transactions: %w", err)
	}
	logging.FromContext(ctx).Info("stored transactions cleared before import")
	return nil
}

func (w *TransactionWriter) Close() error {
	return nil
}

// Write implements batch.Writer.
func (w *TransactionWriter) Write(ctx context.Context, chunk []Transaction) error {
	return w.Store.InsertTransactions(ctx, chunk)
}

// SummaryWriter stores each chunk of updated balances in one store
// transaction.
type SummaryWriter struct {
	Store AccountSummaryStore
}

// Write implements batch.Writer.
func (w *SummaryWriter) Write(ctx context.Context, chunk []AccountSummary) error {
	return w.Store.UpdateSummaries(ctx, chunk)
}
