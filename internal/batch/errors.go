package batch

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by a Repository when no execution matches.
var ErrNotFound = errors.New("execution not found")

// ErrNoWriter is returned when a step is executed without a Writer.
var ErrNoWriter = errors.New("step has no writer")

// ChunkWriteError reports that a Writer rejected a chunk. The chunk was not
// committed; chunks written before it stay committed.
type ChunkWriteError struct {
	Step  string
	Chunk int // 1-based chunk number within the step run
	Size  int
	Err   error
}

func (e *ChunkWriteError) Error() string {
	return fmt.Sprintf("step %s: write chunk %d (%d items): %v", e.Step, e.Chunk, e.Size, e.Err)
}

func (e *ChunkWriteError) Unwrap() error {
	return e.Err
}

// ProcessError reports that a Processor failed on an item.
type ProcessError struct {
	Step string
	Item int64 // 1-based position of the item among those read
	Err  error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("step %s: process item %d: %v", e.Step, e.Item, e.Err)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}
