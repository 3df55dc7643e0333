package ledger

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/reconcile/internal/batch"
	"github.com/JonMunkholm/reconcile/internal/flatfile"
)

func decodeAll(t *testing.T, d *TransactionDecoder, exec *batch.StepExecution) ([]Transaction, error) {
	t.Helper()
	var out []Transaction
	for {
		tx, ok, err := d.Read(context.Background(), exec)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		if ok {
			out = append(out, tx)
		}
	}
}

func TestTransactionDecoder_FooterMatches(t *testing.T) {
	d := NewTransactionDecoder(records(
		"A1,2024-01-01 10:00:00,100.00",
		"A1,2024-01-01 11:00:00,50.00",
		"A2,2024-01-02 09:30:15,-0.25",
		"3",
	))
	exec := batch.NewStepExecution("import", nil)

	txns, err := decodeAll(t, d, exec)
	if err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if exec.StopRequested() {
		t.Errorf("stop requested: %s", exec.StopReason())
	}
	if len(txns) != 3 {
		t.Fatalf("decoded %d transactions, want 3", len(txns))
	}
	if exec.RecordsRead() != 3 || exec.ExpectedCount() != 3 {
		t.Errorf("read/expected = %d/%d, want 3/3", exec.RecordsRead(), exec.ExpectedCount())
	}

	want := Transaction{
		AccountNumber: "A2",
		Timestamp:     time.Date(2024, 1, 2, 9, 30, 15, 0, time.UTC),
		Amount:        decimal.RequireFromString("-0.25"),
		Sequence:      3,
	}
	got := txns[2]
	if got.AccountNumber != want.AccountNumber || !got.Timestamp.Equal(want.Timestamp) ||
		!got.Amount.Equal(want.Amount) || got.Sequence != want.Sequence {
		t.Errorf("txns[2] = %+v, want %+v", got, want)
	}
	for i, tx := range txns {
		if tx.Sequence != int64(i+1) {
			t.Errorf("txns[%d].Sequence = %d", i, tx.Sequence)
		}
	}
}

func TestTransactionDecoder_FooterMismatchRequestsStop(t *testing.T) {
	d := NewTransactionDecoder(records(
		"A1,2024-01-01 10:00:00,100.00",
		"A1,2024-01-01 11:00:00,50.00",
		"3",
	))
	exec := batch.NewStepExecution("import", nil)

	txns, err := decodeAll(t, d, exec)
	if err != nil {
		t.Fatalf("footer mismatch must not be an error, got %v", err)
	}
	if len(txns) != 2 {
		t.Errorf("decoded %d transactions, want 2", len(txns))
	}
	if !exec.StopRequested() {
		t.Fatal("stop not requested on count mismatch")
	}
	if reason := exec.StopReason(); !strings.Contains(reason, "declares 3") {
		t.Errorf("stop reason = %q", reason)
	}
}

func TestTransactionDecoder_FooterIsNotAnItem(t *testing.T) {
	d := NewTransactionDecoder(records("0"))
	exec := batch.NewStepExecution("import", nil)

	tx, ok, err := d.Read(context.Background(), exec)
	if err != nil || ok {
		t.Fatalf("Read(footer) = %+v, %v, %v; want no item", tx, ok, err)
	}
	if _, _, err := d.Read(context.Background(), exec); !errors.Is(err, io.EOF) {
		t.Errorf("Read() after footer = %v, want io.EOF", err)
	}
	if exec.StopRequested() {
		t.Error("empty file with zero footer must not stop")
	}
}

func TestTransactionDecoder_RecordAfterFooter(t *testing.T) {
	d := NewTransactionDecoder(records(
		"A1,2024-01-01 10:00:00,1",
		"1",
		"A2,2024-01-01 10:00:00,1",
	))
	_, err := decodeAll(t, d, batch.NewStepExecution("import", nil))

	var mre *flatfile.MalformedRecordError
	if !errors.As(err, &mre) {
		t.Fatalf("error = %v, want MalformedRecordError", err)
	}
	if mre.Line != 3 {
		t.Errorf("line = %d, want 3", mre.Line)
	}
}

func TestTransactionDecoder_MissingFooter(t *testing.T) {
	t.Run("required", func(t *testing.T) {
		d := NewTransactionDecoder(records("A1,2024-01-01 10:00:00,1"))
		exec := batch.NewStepExecution("import", nil)
		if _, err := decodeAll(t, d, exec); err != nil {
			t.Fatal(err)
		}
		if !exec.StopRequested() {
			t.Error("stop not requested for input without footer")
		}
	})

	t.Run("optional", func(t *testing.T) {
		d := NewTransactionDecoder(records("A1,2024-01-01 10:00:00,1"))
		d.RequireFooter = false
		exec := batch.NewStepExecution("import", nil)
		if _, err := decodeAll(t, d, exec); err != nil {
			t.Fatal(err)
		}
		if exec.StopRequested() {
			t.Errorf("stop requested: %s", exec.StopReason())
		}
	})
}

func TestTransactionDecoder_ParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		kind  ParseErrorKind
		field int
	}{
		{name: "bad timestamp", line: "A1,2024-13-01 10:00:00,1.00", kind: KindTimestamp, field: 1},
		{name: "date only", line: "A1,2024-01-01,1.00", kind: KindTimestamp, field: 1},
		{name: "bad amount", line: "A1,2024-01-01 10:00:00,ten", kind: KindAmount, field: 2},
		{name: "empty account", line: " ,2024-01-01 10:00:00,1.00", kind: KindAccount, field: 0},
		{name: "two fields", line: "A1,2024-01-01 10:00:00", kind: KindFieldCount, field: -1},
		{name: "bad footer", line: "three", kind: KindFooterCount, field: 0},
		{name: "negative footer", line: "-1", kind: KindFooterCount, field: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewTransactionDecoder(records(tt.line))
			_, err := decodeAll(t, d, batch.NewStepExecution("import", nil))

			var fpe *FieldParseError
			if !errors.As(err, &fpe) {
				t.Fatalf("error = %v, want FieldParseError", err)
			}
			if fpe.Kind != tt.kind || fpe.Field != tt.field || fpe.Line != 1 {
				t.Errorf("got kind=%s field=%d line=%d, want kind=%s field=%d line=1",
					fpe.Kind, fpe.Field, fpe.Line, tt.kind, tt.field)
			}
		})
	}
}

func TestTransactionDecoder_ExtraFieldsIgnored(t *testing.T) {
	d := NewTransactionDecoder(records("A1,2024-01-01 10:00:00,1.00,memo", "1"))
	txns, err := decodeAll(t, d, batch.NewStepExecution("import", nil))
	if err != nil {
		t.Fatal(err)
	}
	if len(txns) != 1 || !txns[0].Amount.Equal(decimal.NewFromInt(1)) {
		t.Errorf("txns = %+v", txns)
	}
}

func TestTransactionDecoder_DelegatesStreamAndPosition(t *testing.T) {
	input := "A1,2024-01-01 10:00:00,1\n1\n"
	src := flatfile.NewReader(func(context.Context) (io.ReadCloser, int64, error) {
		return io.NopCloser(strings.NewReader(input)), int64(len(input)), nil
	}, 0, "transactions")
	d := NewTransactionDecoder(src)

	ctx := context.Background()
	if err := d.Open(ctx); err != nil {
		t.Fatal(err)
	}
	exec := batch.NewStepExecution("import", nil)
	if _, ok, err := d.Read(ctx, exec); err != nil || !ok {
		t.Fatalf("Read() = %v, %v", ok, err)
	}
	if d.Position() != 1 {
		t.Errorf("Position() = %d, want 1", d.Position())
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := src.Read(ctx); !errors.Is(err, flatfile.ErrNotOpen) {
		t.Errorf("source still open after Close: %v", err)
	}
}

func TestImportStep_MismatchFlushesCommittedChunks(t *testing.T) {
	store := newMemStore(AccountSummary{AccountNumber: "A1"})
	step := &batch.ChunkStep[Transaction, Transaction]{
		StepName:  "importTransactions",
		ChunkSize: 2,
		Reader: NewTransactionDecoder(records(
			"A1,2024-01-01 10:00:00,1",
			"A1,2024-01-01 10:00:01,2",
			"A1,2024-01-01 10:00:02,3",
			"4",
		)),
		Writer: &TransactionWriter{Store: store},
	}

	exec := batch.NewStepExecution(step.Name(), nil)
	if err := step.Execute(context.Background(), exec); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if exec.Status() != batch.StatusStopped {
		t.Errorf("status = %s, want STOPPED", exec.Status())
	}
	if len(store.txns) != 3 {
		t.Errorf("stored %d transactions, want 3 from the flushed chunks", len(store.txns))
	}
	if rec := exec.Snapshot(); rec.CommitCount != 2 || rec.ExpectedCount != 4 || rec.RecordsRead != 3 {
		t.Errorf("commits/expected/read = %d/%d/%d, want 2/4/3", rec.CommitCount, rec.ExpectedCount, rec.RecordsRead)
	}
}
