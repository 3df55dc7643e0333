package reconcile

// limiter.go bounds how many job runs execute at once.
//
// Each run holds one slot of a semaphore for its whole duration. Background
// starts fail fast with ErrTooManyRuns when no slot is free; foreground runs
// wait up to the configured time for one. WaitForDrain lets shutdown block
// until the running jobs have finished recording their status.

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrTooManyRuns is returned when every run slot is occupied.
var ErrTooManyRuns = errors.New("too many concurrent job runs, try again later")

// DefaultMaxConcurrentRuns is the run limit used when none is configured.
const DefaultMaxConcurrentRuns = 1

// DefaultRunWait is how long a foreground run waits for a free slot.
const DefaultRunWait = 30 * time.Second

// RunLimiter is a counting semaphore over job runs.
type RunLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int64
}

// NewRunLimiter allows at most maxConcurrent runs. Acquire waits up to
// maxWait for a slot.
func NewRunLimiter(maxConcurrent int, maxWait time.Duration) *RunLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentRuns
	}
	if maxWait <= 0 {
		maxWait = DefaultRunWait
	}
	return &RunLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire takes a slot, waiting up to the limiter's wait time. It returns
// ErrTooManyRuns when the wait expires and ctx's error when ctx ends first.
// Every successful Acquire must be paired with Release.
func (l *RunLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTooManyRuns
	}
}

// TryAcquire takes a slot if one is free.
func (l *RunLimiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return true
	default:
		return false
	}
}

// Release returns a slot taken by Acquire or TryAcquire.
func (l *RunLimiter) Release() {
	l.active.Add(-1)
	<-l.slots
}

// ActiveCount returns the number of slots held.
func (l *RunLimiter) ActiveCount() int {
	return int(l.active.Load())
}

// WaitForDrain blocks until no slot is held or ctx ends.
func (l *RunLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for l.ActiveCount() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// RunLimiterStatus is a snapshot of the limiter for the operations API.
type RunLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current slot usage.
func (l *RunLimiter) Status() RunLimiterStatus {
	return RunLimiterStatus{
		Active:        l.ActiveCount(),
		Available:     cap(l.slots) - len(l.slots),
		MaxConcurrent: cap(l.slots),
	}
}
