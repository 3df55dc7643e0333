package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunLimiter_Defaults(t *testing.T) {
	l := NewRunLimiter(0, 0)
	if got := l.Status().MaxConcurrent; got != DefaultMaxConcurrentRuns {
		t.Errorf("MaxConcurrent = %d, want %d", got, DefaultMaxConcurrentRuns)
	}
	if l.maxWait != DefaultRunWait {
		t.Errorf("maxWait = %v, want %v", l.maxWait, DefaultRunWait)
	}
}

func TestRunLimiter_AcquireRelease(t *testing.T) {
	l := NewRunLimiter(2, 50*time.Millisecond)
	ctx := context.Background()

	if err := l.Acquire(ctx); err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	if !l.TryAcquire() {
		t.Fatal("TryAcquire() = false with one slot free")
	}
	if got := l.Status(); got.Active != 2 || got.Available != 0 {
		t.Errorf("Status() = %+v, want 2 active and 0 available", got)
	}
	if l.TryAcquire() {
		t.Error("TryAcquire() = true with no slot free")
	}
	if err := l.Acquire(ctx); !errors.Is(err, ErrTooManyRuns) {
		t.Errorf("Acquire() on a full limiter error = %v, want ErrTooManyRuns", err)
	}

	l.Release()
	l.Release()
	if got := l.ActiveCount(); got != 0 {
		t.Errorf("after Release, ActiveCount = %d, want 0", got)
	}
}

func TestRunLimiter_AcquireCancelled(t *testing.T) {
	l := NewRunLimiter(1, time.Minute)
	if !l.TryAcquire() {
		t.Fatal("TryAcquire() = false on an idle limiter")
	}
	defer l.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Acquire(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire() error = %v, want context.Canceled", err)
	}
}

func TestRunLimiter_WaitForDrain(t *testing.T) {
	l := NewRunLimiter(1, time.Second)
	if err := l.WaitForDrain(context.Background()); err != nil {
		t.Fatalf("WaitForDrain() on an idle limiter error = %v", err)
	}

	l.TryAcquire()
	go func() {
		time.Sleep(20 * time.Millisecond)
		l.Release()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.WaitForDrain(ctx); err != nil {
		t.Errorf("WaitForDrain() error = %v", err)
	}

	l.TryAcquire()
	defer l.Release()
	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	if err := l.WaitForDrain(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForDrain() with a held slot error = %v, want DeadlineExceeded", err)
	}
}
