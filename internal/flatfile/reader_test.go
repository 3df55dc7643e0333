package flatfile

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func stringOpener(s string) Opener {
	return func(context.Context) (io.ReadCloser, int64, error) {
		return io.NopCloser(strings.NewReader(s)), int64(len(s)), nil
	}
}

func readAll(t *testing.T, r *Reader) ([]Record, error) {
	t.Helper()
	ctx := context.Background()
	if err := r.Open(ctx); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer r.Close()

	var out []Record
	for {
		rec, err := r.Read(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

func TestReader_ReadsRecords(t *testing.T) {
	input := "A1,2024-01-01 10:00:00,100.00\n" +
		"\n" +
		"A2,2024-01-01 11:00:00,-5.50\n" +
		"2\n"

	recs, err := readAll(t, NewReader(stringOpener(input), 0, "transactions"))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	want := []Record{
		{Fields: []string{"A1", "2024-01-01 10:00:00", "100.00"}, Line: 1},
		{Fields: []string{"A2", "2024-01-01 11:00:00", "-5.50"}, Line: 3},
		{Fields: []string{"2"}, Line: 4},
	}
	if !reflect.DeepEqual(recs, want) {
		t.Errorf("records = %#v\nwant %#v", recs, want)
	}
	if recs[2].Len() != 1 {
		t.Errorf("footer Len() = %d, want 1", recs[2].Len())
	}
}

func TestReader_Delimiter(t *testing.T) {
	recs, err := readAll(t, NewReader(stringOpener("A1;2024-01-01 10:00:00;1,50\n1\n"), ';', "t"))
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || len(recs[0].Fields) != 3 || recs[0].Fields[2] != "1,50" {
		t.Errorf("records = %v", recs)
	}
}

func TestReader_SkipsBOM(t *testing.T) {
	recs, err := readAll(t, NewReader(stringOpener("\xEF\xBB\xBFA1,x,1\n"), 0, "t"))
	if err != nil {
		t.Fatal(err)
	}
	if recs[0].Fields[0] != "A1" {
		t.Errorf("first field = %q, want A1", recs[0].Fields[0])
	}
}

func TestReader_MalformedRecords(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantLine int64
	}{
		{name: "bare quote", input: "A1,2024-01-01 10:00:00,1\nA2,20\"24,1\n", wantLine: 2},
		{name: "unterminated quote", input: "A1,\"2024-01-01,1\n", wantLine: 1},
		{name: "invalid utf8", input: "A1,x,1\nA\xff,x,1\n", wantLine: 2},
		{name: "nul byte", input: "A1,x\x00y,1\n", wantLine: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readAll(t, NewReader(stringOpener(tt.input), 0, "t"))
			var mre *MalformedRecordError
			if !errors.As(err, &mre) {
				t.Fatalf("error = %v, want MalformedRecordError", err)
			}
			if mre.Line != tt.wantLine {
				t.Errorf("line = %d, want %d", mre.Line, tt.wantLine)
			}
		})
	}
}

func TestReader_PositionAndBytes(t *testing.T) {
	input := "A1,x,1\nA2,x,2\n"
	r := NewReader(stringOpener(input), 0, "t")
	ctx := context.Background()
	if err := r.Open(ctx); err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if _, err := r.Read(ctx); err != nil {
		t.Fatal(err)
	}
	if r.Position() != 1 {
		t.Errorf("Position() = %d, want 1", r.Position())
	}
	r.Read(ctx)
	if _, err := r.Read(ctx); err != io.EOF {
		t.Fatalf("Read() at end = %v, want io.EOF", err)
	}
	if r.Position() != 2 {
		t.Errorf("Position() = %d, want 2", r.Position())
	}
	if r.BytesRead() != int64(len(input)) {
		t.Errorf("BytesRead() = %d, want %d", r.BytesRead(), len(input))
	}
	if r.Progress() != 100 {
		t.Errorf("Progress() = %d, want 100", r.Progress())
	}
}

func TestReader_NotOpen(t *testing.T) {
	r := NewReader(stringOpener("1\n"), 0, "t")
	if _, err := r.Read(context.Background()); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Read() before Open error = %v, want ErrNotOpen", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close() before Open error = %v", err)
	}
}

func TestReader_CancelledContext(t *testing.T) {
	r := NewReader(stringOpener("1\n"), 0, "t")
	if err := r.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Read(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Read() error = %v, want context.Canceled", err)
	}
}

func TestFileOpener(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "transactions.csv")
	if err := os.WriteFile(path, []byte("A1,x,1\n1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	recs, err := readAll(t, NewReader(FileOpener(path), 0, path))
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Errorf("records = %d, want 2", len(recs))
	}

	r := NewReader(FileOpener(filepath.Join(dir, "missing.csv")), 0, "missing")
	if err := r.Open(context.Background()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Open() missing file error = %v, want os.ErrNotExist", err)
	}
}
