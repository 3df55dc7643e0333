package flatfile

// stream.go provides the byte-level wrappers applied to every input before
// it is tokenized:
//
//   - BOMSkippingReader: Removes the UTF-8 BOM (0xEF 0xBB 0xBF) that Windows
//     programs put in front of exported files
//   - CountingReader: Tracks bytes consumed for progress logging
//
// Use wrapInput to apply both in the correct order.

import (
	"bufio"
	"bytes"
	"io"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// BOMSkippingReader wraps an io.Reader and skips the UTF-8 BOM if present.
type BOMSkippingReader struct {
	reader  *bufio.Reader
	checked bool
}

// NewBOMSkippingReader creates a new BOM-skipping reader.
func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{reader: bufio.NewReader(r)}
}

// Read implements io.Reader. On the first read, it checks for and skips the BOM.
func (r *BOMSkippingReader) Read(p []byte) (int, error) {
	if !r.checked {
		r.checked = true

		// Peek returns fewer bytes at EOF; a short file simply has no BOM.
		head, err := r.reader.Peek(len(utf8BOM))
		if err != nil && err != io.EOF {
			return 0, err
		}
		if bytes.Equal(head, utf8BOM) {
			if _, err := r.reader.Discard(len(utf8BOM)); err != nil {
				return 0, err
			}
		}
	}
	return r.reader.Read(p)
}

// CountingReader wraps an io.Reader to track bytes read.
type CountingReader struct {
	reader    io.Reader
	BytesRead int64
	Total     int64 // If known (0 if unknown)
}

// NewCountingReader creates a counting reader with optional total size.
func NewCountingReader(r io.Reader, total int64) *CountingReader {
	return &CountingReader{
		reader: r,
		Total:  total,
	}
}

// Read implements io.Reader.
func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.BytesRead += int64(n)
	return n, err
}

// Progress returns the read progress as a percentage (0-100).
// Returns 0 if total is unknown.
func (r *CountingReader) Progress() int {
	if r.Total <= 0 {
		return 0
	}
	return int(r.BytesRead * 100 / r.Total)
}

// wrapInput counts the raw bytes consumed from the resource and strips the
// BOM. Counting sits below BOM removal so the count matches the file size.
func wrapInput(r io.Reader, totalSize int64) (io.Reader, *CountingReader) {
	counter := NewCountingReader(r, totalSize)
	return NewBOMSkippingReader(counter), counter
}
