package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/reconcile/internal/batch"
	"github.com/JonMunkholm/reconcile/internal/flatfile"
	"github.com/JonMunkholm/reconcile/internal/logging"
)

// RecordSource yields tokenized input records, io.EOF at end of input.
type RecordSource interface {
	Read(ctx context.Context) (flatfile.Record, error)
}

// TransactionDecoder turns the records of a transaction file into
// Transactions. A record with more than one field is a data row; a record
// with a single field is the count footer, which must equal the number of
// data rows decoded before it. A mismatch requests a stop of the step
// rather than failing it, so chunks already committed stay committed.
type TransactionDecoder struct {
	source RecordSource

	// RequireFooter requests a stop when the input ends without a footer.
	RequireFooter bool

	footerLine int64
}

// NewTransactionDecoder returns a decoder reading from source with
// RequireFooter set.
func NewTransactionDecoder(source RecordSource) *TransactionDecoder {
	return &TransactionDecoder{source: source, RequireFooter: true}
}

// Read implements batch.Reader.
func (d *TransactionDecoder) Read(ctx context.Context, exec *batch.StepExecution) (Transaction, bool, error) {
	rec, err := d.source.Read(ctx)
	if errors.Is(err, io.EOF) {
		d.endOfInput(ctx, exec)
		return Transaction{}, false, io.EOF
	}
	if err != nil {
		return Transaction{}, false, err
	}

	if d.footerLine > 0 {
		return Transaction{}, false, &flatfile.MalformedRecordError{
			Line: rec.Line,
			Err:  fmt.Errorf("%w at line %d", errRecordAfterFooter, d.footerLine),
		}
	}

	if rec.Len() > 1 {
		tx, err := decodeDataRow(rec)
		if err != nil {
			return Transaction{}, false, err
		}
		tx.Sequence = exec.IncrementRecordsRead()
		return tx, true, nil
	}

	return Transaction{}, false, d.footer(ctx, exec, rec)
}

func (d *TransactionDecoder) footer(ctx context.Context, exec *batch.StepExecution, rec flatfile.Record) error {
	raw := strings.TrimSpace(rec.Fields[0])
	expected, err := strconv.ParseInt(raw, 10, 64)
	if err == nil && expected < 0 {
		err = errNegativeCount
	}
	if err != nil {
		return &FieldParseError{Line: rec.Line, Field: 0, Kind: KindFooterCount, Value: rec.Fields[0], Err: err}
	}

	d.footerLine = rec.Line
	exec.SetExpectedCount(expected)

	if read := exec.RecordsRead(); read != expected {
		reason := fmt.Sprintf("footer declares %d records, %d read", expected, read)
		logging.FromContext(ctx).Warn("record count mismatch, stopping step",
			"expected", expected,
			"read", read,
			"line", rec.Line,
		)
		exec.RequestStop(reason)
	}
	return nil
}

func (d *TransactionDecoder) endOfInput(ctx context.Context, exec *batch.StepExecution) {
	if d.footerLine > 0 || !d.RequireFooter || exec.StopRequested() {
		return
	}
	read := exec.RecordsRead()
	logging.FromContext(ctx).Warn("input ended without a count footer, stopping step", "read", read)
	exec.RequestStop(fmt.Sprintf("input ended after %d records without a count footer", read))
}

func decodeDataRow(rec flatfile.Record) (Transaction, error) {
	if rec.Len() < 3 {
		return Transaction{}, &FieldParseError{Line: rec.Line, Field: -1, Kind: KindFieldCount, Err: errTooFewFields}
	}

	account := strings.TrimSpace(rec.Fields[0])
	if account == "" {
		return Transaction{}, &FieldParseError{Line: rec.Line, Field: 0, Kind: KindAccount, Value: rec.Fields[0], Err: errEmptyAccount}
	}

	ts, err := time.ParseInLocation(TimestampLayout, strings.TrimSpace(rec.Fields[1]), time.UTC)
	if err != nil {
		return Transaction{}, &FieldParseError{Line: rec.Line, Field: 1, Kind: KindTimestamp, Value: rec.Fields[1], Err: err}
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(rec.Fields[2]))
	if err != nil {
		return Transaction{}, &FieldParseError{Line: rec.Line, Field: 2, Kind: KindAmount, Value: rec.Fields[2], Err: err}
	}

	return Transaction{AccountNumber: account, Timestamp: ts, Amount: amount}, nil
}

// Open opens the underlying source when it holds a resource.
func (d *TransactionDecoder) Open(ctx context.Context) error {
	d.footerLine = 0
	if s, ok := d.source.(batch.Stream); ok {
		return s.Open(ctx)
	}
	return nil
}

// Close closes the underlying source when it holds a resource.
func (d *TransactionDecoder) Close() error {
	if s, ok := d.source.(batch.Stream); ok {
		return s.Close()
	}
	return nil
}

// Position returns the source line of the last record read.
func (d *TransactionDecoder) Position() int64 {
	if p, ok := d.source.(batch.Positioned); ok {
		return p.Position()
	}
	return 0
}

// BytesRead returns the bytes consumed by the source, or 0 when it does not
// track them.
func (d *TransactionDecoder) BytesRead() int64 {
	if m, ok := d.source.(batch.Metered); ok {
		return m.BytesRead()
	}
	return 0
}

// Progress returns the consumed share of the source as a percentage.
func (d *TransactionDecoder) Progress() int {
	if m, ok := d.source.(batch.Metered); ok {
		return m.Progress()
	}
	return 0
}
