package flatfile

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Creator acquires the output resource, truncating anything already there.
type Creator func(ctx context.Context) (io.WriteCloser, error)

// FileCreator creates or truncates path, creating missing parent
// directories.
func FileCreator(path string) Creator {
	return func(_ context.Context) (io.WriteCloser, error) {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create directory for %s: %w", path, err)
			}
		}
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", path, err)
		}
		return f, nil
	}
}

// LineAggregator renders an item as the fields of one output line.
type LineAggregator[T any] func(item T) []string

// Writer appends one delimited line per item. Each Write call is flushed
// before it returns.
type Writer[T any] struct {
	create    Creator
	delimiter rune
	line      LineAggregator[T]
	name      string

	wc    io.WriteCloser
	buf   *bufio.Writer
	csv   *csv.Writer
	lines int64
}

// NewWriter returns a Writer over the resource acquired by create. A zero
// delimiter selects DefaultDelimiter.
func NewWriter[T any](create Creator, delimiter rune, line LineAggregator[T], name string) *Writer[T] {
	if delimiter == 0 {
		delimiter = DefaultDelimiter
	}
	return &Writer[T]{create: create, delimiter: delimiter, line: line, name: name}
}

// Open creates the output resource.
func (w *Writer[T]) Open(ctx context.Context) error {
	if w.line == nil {
		return errors.New("flatfile: writer has no line aggregator")
	}
	wc, err := w.create(ctx)
	if err != nil {
		return err
	}
	w.wc = wc
	w.buf = bufio.NewWriter(wc)
	w.csv = csv.NewWriter(w.buf)
	w.csv.Comma = w.delimiter
	w.lines = 0
	return nil
}

// Write renders and flushes chunk.
func (w *Writer[T]) Write(ctx context.Context, chunk []T) error {
	if w.csv == nil {
		return errors.New("flatfile: writer is not open")
	}
	for _, item := range chunk {
		if err := w.csv.Write(w.line(item)); err != nil {
			return fmt.Errorf("write %s: %w", w.name, err)
		}
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("write %s: %w", w.name, err)
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", w.name, err)
	}
	w.lines += int64(len(chunk))
	return nil
}

// Lines returns the number of lines written since Open.
func (w *Writer[T]) Lines() int64 {
	return w.lines
}

// Close flushes and releases the resource. It is safe to call more than
// once.
func (w *Writer[T]) Close() error {
	if w.wc == nil {
		return nil
	}
	var flushErr error
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		flushErr = err
	} else if err := w.buf.Flush(); err != nil {
		flushErr = err
	}
	closeErr := w.wc.Close()
	w.wc, w.buf, w.csv = nil, nil, nil
	return errors.Join(flushErr, closeErr)
}
