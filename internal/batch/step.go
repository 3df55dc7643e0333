package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/JonMunkholm/reconcile/internal/logging"
)

// DefaultChunkSize is the number of accepted items committed per chunk when
// a step does not configure one.
const DefaultChunkSize = 100

// Reader produces the items of a step. Read returns io.EOF once the input
// is exhausted. A call that consumed input without producing an item returns
// ok == false and a nil error; the engine then keeps reading.
type Reader[T any] interface {
	Read(ctx context.Context, exec *StepExecution) (item T, ok bool, err error)
}

// Processor transforms an item. Returning ok == false filters the item out.
type Processor[T, U any] interface {
	Process(ctx context.Context, item T) (out U, ok bool, err error)
}

// Writer commits one chunk. A call must either commit every item or none.
type Writer[U any] interface {
	Write(ctx context.Context, chunk []U) error
}

// Stream is implemented by readers, processors and writers that hold
// resources for the duration of a step.
type Stream interface {
	Open(ctx context.Context) error
	Close() error
}

// Positioned is implemented by readers that expose a restart cursor. The
// position is recorded in the step execution after every committed chunk.
type Positioned interface {
	Position() int64
}

// Metered is implemented by readers that track how much of their input has
// been consumed. The byte count is recorded after every committed chunk.
type Metered interface {
	BytesRead() int64
	// Progress returns the consumed share of the input as a percentage, or
	// 0 when the input size is unknown.
	Progress() int
}

// Step is one stage of a Job.
type Step interface {
	Name() string
	AllowStartIfComplete() bool
	// Execute runs the step to a terminal status recorded in exec. The error
	// is non-nil exactly when the step ends FAILED.
	Execute(ctx context.Context, exec *StepExecution) error
}

// ChunkStep drives a read→process→write loop in chunks of ChunkSize
// accepted items. When Processor is nil, items are passed to the Writer
// unchanged, which requires T to be assignable to U.
type ChunkStep[T, U any] struct {
	StepName  string
	ChunkSize int

	// AllowRestart lets the step run again in a job instance where it has
	// already completed.
	AllowRestart bool

	Reader    Reader[T]
	Processor Processor[T, U]
	Writer    Writer[U]
}

func (s *ChunkStep[T, U]) Name() string {
	return s.StepName
}

func (s *ChunkStep[T, U]) AllowStartIfComplete() bool {
	return s.AllowRestart
}

func (s *ChunkStep[T, U]) chunkSize() int {
	if s.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return s.ChunkSize
}

// Execute runs the step. See Step.
func (s *ChunkStep[T, U]) Execute(ctx context.Context, exec *StepExecution) error {
	ctx = logging.ContextWithStep(ctx, s.StepName)
	logger := logging.FromContext(ctx)

	exec.start()
	if err := exec.save(ctx); err != nil {
		logger.Warn("save step execution", "error", err)
	}
	start := time.Now()
	logger.Info("step started", "chunk_size", s.chunkSize())

	status, runErr := s.run(ctx, exec)

	msg := ""
	switch status {
	case StatusFailed:
		msg = runErr.Error()
	case StatusStopped:
		msg = exec.StopReason()
	}
	exec.finish(status, msg)

	// The final save uses a fresh context so a cancelled run is still
	// recorded.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := exec.save(saveCtx); err != nil {
		logger.Warn("save step execution", "error", err)
	}

	rec := exec.Snapshot()
	attrs := []any{
		"status", status,
		"read", rec.ReadCount,
		"filtered", rec.FilterCount,
		"written", rec.WriteCount,
		"commits", rec.CommitCount,
		"duration_ms", time.Since(start).Milliseconds(),
	}
	switch status {
	case StatusFailed:
		logger.Error("step failed", append(attrs, "error", runErr)...)
		return runErr
	case StatusStopped:
		logger.Info("step stopped", append(attrs, "reason", msg)...)
	default:
		logger.Info("step completed", attrs...)
	}
	return nil
}

func (s *ChunkStep[T, U]) run(ctx context.Context, exec *StepExecution) (Status, error) {
	if s.Reader == nil {
		return StatusFailed, fmt.Errorf("step %s: no reader", s.StepName)
	}
	if s.Writer == nil {
		return StatusFailed, fmt.Errorf("step %s: %w", s.StepName, ErrNoWriter)
	}

	opened, err := s.open(ctx)
	if err != nil {
		closeStreams(opened)
		return StatusFailed, err
	}

	status, err := s.loop(ctx, exec)

	if closeErr := closeStreams(opened); closeErr != nil && err == nil {
		return StatusFailed, fmt.Errorf("step %s: close: %w", s.StepName, closeErr)
	}
	return status, err
}

func (s *ChunkStep[T, U]) loop(ctx context.Context, exec *StepExecution) (Status, error) {
	logger := logging.FromContext(ctx)

	for chunkNum := 1; ; chunkNum++ {
		chunk, exhausted, err := s.readChunk(ctx, exec)
		if err != nil {
			return StatusFailed, err
		}

		if len(chunk) > 0 {
			if err := s.Writer.Write(ctx, chunk); err != nil {
				return StatusFailed, &ChunkWriteError{
					Step:  s.StepName,
					Chunk: chunkNum,
					Size:  len(chunk),
					Err:   err,
				}
			}
			s.committed(exec, len(chunk))
			if err := exec.save(ctx); err != nil {
				logger.Warn("save step execution", "error", err)
			}
			attrs := []any{"chunk", chunkNum, "size", len(chunk)}
			if m, ok := s.Reader.(Metered); ok {
				attrs = append(attrs, "bytes", m.BytesRead(), "progress", m.Progress())
			}
			logger.Debug("chunk committed", attrs...)
		}

		if exec.StopRequested() {
			return StatusStopped, nil
		}
		if exhausted {
			return StatusCompleted, nil
		}
	}
}

// readChunk reads until the chunk is full, the input ends, or a stop is
// requested. exhausted is true when the reader returned io.EOF.
func (s *ChunkStep[T, U]) readChunk(ctx context.Context, exec *StepExecution) (chunk []U, exhausted bool, err error) {
	size := s.chunkSize()
	chunk = make([]U, 0, size)

	for len(chunk) < size {
		if err := ctx.Err(); err != nil {
			return nil, false, fmt.Errorf("step %s: %w", s.StepName, err)
		}

		item, ok, err := s.Reader.Read(ctx, exec)
		if errors.Is(err, io.EOF) {
			return chunk, true, nil
		}
		if err != nil {
			return nil, false, fmt.Errorf("step %s: read: %w", s.StepName, err)
		}

		if ok {
			var n int64
			exec.update(func(r *StepRecord) {
				r.ReadCount++
				n = r.ReadCount
			})

			out, keep, err := s.process(ctx, item)
			if err != nil {
				return nil, false, &ProcessError{Step: s.StepName, Item: n, Err: err}
			}
			if keep {
				chunk = append(chunk, out)
			} else {
				exec.update(func(r *StepRecord) { r.FilterCount++ })
			}
		}

		if exec.StopRequested() {
			return chunk, false, nil
		}
	}
	return chunk, false, nil
}

func (s *ChunkStep[T, U]) process(ctx context.Context, item T) (U, bool, error) {
	if s.Processor != nil {
		return s.Processor.Process(ctx, item)
	}
	out, ok := any(item).(U)
	if !ok {
		var zero U
		return zero, false, fmt.Errorf("item of type %T is not assignable to %T and no processor is configured", item, zero)
	}
	return out, true, nil
}

func (s *ChunkStep[T, U]) committed(exec *StepExecution, n int) {
	var pos, bytes int64 = -1, -1
	if p, ok := s.Reader.(Positioned); ok {
		pos = p.Position()
	}
	if m, ok := s.Reader.(Metered); ok {
		bytes = m.BytesRead()
	}
	exec.update(func(r *StepRecord) {
		r.WriteCount += int64(n)
		r.CommitCount++
		if pos >= 0 {
			r.Checkpoint = pos
		}
		if bytes >= 0 {
			r.BytesRead = bytes
		}
	})
}

// open opens every Stream among the reader, processor and writer, in that
// order. On failure it returns the streams opened so far.
func (s *ChunkStep[T, U]) open(ctx context.Context) ([]Stream, error) {
	candidates := []any{s.Reader, s.Processor, s.Writer}
	opened := make([]Stream, 0, len(candidates))
	for _, c := range candidates {
		st, ok := c.(Stream)
		if !ok || st == nil {
			continue
		}
		if err := st.Open(ctx); err != nil {
			return opened, fmt.Errorf("step %s: open: %w", s.StepName, err)
		}
		opened = append(opened, st)
	}
	return opened, nil
}

// closeStreams closes streams in reverse order and returns the first error.
func closeStreams(streams []Stream) error {
	var first error
	for i := len(streams) - 1; i >= 0; i-- {
		if err := streams[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
