package flatfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/JonMunkholm/reconcile/internal/logging"
)

// DefaultDelimiter separates fields when none is configured.
const DefaultDelimiter = ','

// ErrNotOpen is returned by Read before Open or after Close.
var ErrNotOpen = errors.New("flatfile: reader is not open")

// Opener acquires the input resource. size is the resource length in bytes,
// or 0 when unknown.
type Opener func(ctx context.Context) (rc io.ReadCloser, size int64, err error)

// FileOpener opens path on the local file system.
func FileOpener(path string) Opener {
	return func(_ context.Context) (io.ReadCloser, int64, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, 0, fmt.Errorf("open %s: %w", path, err)
		}
		var size int64
		if info, err := f.Stat(); err == nil {
			size = info.Size()
		}
		return f, size, nil
	}
}

// Record is one tokenized input line.
type Record struct {
	Fields []string
	Line   int64 // 1-based line number in the resource
}

// Len returns the number of fields.
func (r Record) Len() int {
	return len(r.Fields)
}

// MalformedRecordError reports a line that cannot be tokenized: unbalanced
// quoting, invalid UTF-8 or NUL bytes from binary or truncated input.
type MalformedRecordError struct {
	Line int64
	Err  error
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record at line %d: %v", e.Line, e.Err)
}

func (e *MalformedRecordError) Unwrap() error {
	return e.Err
}

var (
	errInvalidUTF8 = errors.New("invalid UTF-8")
	errNULByte     = errors.New("NUL byte in field")
)

// Reader is a delimited record source. Blank lines are skipped.
type Reader struct {
	open      Opener
	delimiter rune
	name      string

	rc      io.ReadCloser
	counter *CountingReader
	csv     *csv.Reader
	line    int64
}

// NewReader returns a Reader over the resource acquired by open. A zero
// delimiter selects DefaultDelimiter. name identifies the resource in logs.
func NewReader(open Opener, delimiter rune, name string) *Reader {
	if delimiter == 0 {
		delimiter = DefaultDelimiter
	}
	return &Reader{open: open, delimiter: delimiter, name: name}
}

// Open acquires the resource and prepares the tokenizer.
func (r *Reader) Open(ctx context.Context) error {
	rc, size, err := r.open(ctx)
	if err != nil {
		return err
	}

	in, counter := wrapInput(rc, size)
	cr := csv.NewReader(in)
	cr.Comma = r.delimiter
	cr.FieldsPerRecord = -1 // data rows and the footer differ in width
	cr.ReuseRecord = false

	r.rc, r.counter, r.csv, r.line = rc, counter, cr, 0

	logging.FromContext(ctx).Debug("input opened", "resource", r.name, "bytes", size)
	return nil
}

// Read returns the next record, or io.EOF once the input is exhausted.
func (r *Reader) Read(ctx context.Context) (Record, error) {
	if r.csv == nil {
		return Record{}, ErrNotOpen
	}
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	fields, err := r.csv.Read()
	if err == io.EOF {
		return Record{}, io.EOF
	}
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return Record{}, &MalformedRecordError{Line: int64(pe.StartLine), Err: pe.Err}
		}
		return Record{}, fmt.Errorf("read %s: %w", r.name, err)
	}

	line, _ := r.csv.FieldPos(0)
	r.line = int64(line)

	for _, f := range fields {
		if !utf8.ValidString(f) {
			return Record{}, &MalformedRecordError{Line: r.line, Err: errInvalidUTF8}
		}
		if strings.IndexByte(f, 0) >= 0 {
			return Record{}, &MalformedRecordError{Line: r.line, Err: errNULByte}
		}
	}
	return Record{Fields: fields, Line: r.line}, nil
}

// Position returns the line number of the last record read.
func (r *Reader) Position() int64 {
	return r.line
}

// BytesRead returns the number of bytes consumed from the resource.
func (r *Reader) BytesRead() int64 {
	if r.counter == nil {
		return 0
	}
	return r.counter.BytesRead
}

// Progress returns the consumed share of the resource as a percentage.
func (r *Reader) Progress() int {
	if r.counter == nil {
		return 0
	}
	return r.counter.Progress()
}

// Close releases the resource. It is safe to call more than once.
func (r *Reader) Close() error {
	if r.rc == nil {
		return nil
	}
	err := r.rc.Close()
	r.rc, r.csv = nil, nil
	return err
}
