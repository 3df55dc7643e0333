package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JonMunkholm/reconcile/internal/batch"
	"github.com/JonMunkholm/reconcile/internal/config"
	"github.com/JonMunkholm/reconcile/internal/ledger"
	"github.com/JonMunkholm/reconcile/internal/logging"
)

// ErrUnknownExecution is returned for an execution id that is neither
// running nor recorded.
var ErrUnknownExecution = errors.New("unknown job execution")

// ErrInvalidParameters wraps job parameter validation failures.
var ErrInvalidParameters = errors.New("invalid job parameters")

// ErrInstanceRunning is returned when a run is requested for a job instance
// that already has a running execution.
var ErrInstanceRunning = errors.New("job instance is already running")

// ErrExecutionFinished is returned when stopping an execution that has
// already ended.
var ErrExecutionFinished = errors.New("job execution already finished")

// Service runs reconciliation jobs against one store and execution
// repository.
type Service struct {
	store      ledger.Store
	repo       batch.Repository
	opts       JobOptions
	limiter    *RunLimiter
	runTimeout time.Duration

	mu     sync.RWMutex
	active map[string]*run
}

type run struct {
	exec *batch.JobExecution
	done chan struct{}
}

// NewService creates a service configured by cfg.
func NewService(store ledger.Store, repo batch.Repository, cfg config.BatchConfig) *Service {
	return &Service{
		store:      store,
		repo:       repo,
		opts:       JobOptionsFrom(cfg),
		limiter:    NewRunLimiter(cfg.MaxConcurrentRuns, DefaultRunWait),
		runTimeout: cfg.RunTimeout,
		active:     make(map[string]*run),
	}
}

// LimiterStatus reports run slot usage.
func (s *Service) LimiterStatus() RunLimiterStatus {
	return s.limiter.Status()
}

// Run executes a job in the calling goroutine and returns its final record.
// The error is non-nil when the run could not start or ended FAILED; a
// STOPPED run returns a nil error.
func (s *Service) Run(ctx context.Context, params config.JobParameters) (batch.JobRecord, error) {
	if err := params.Validate(); err != nil {
		return batch.JobRecord{}, fmt.Errorf("%w: %w", ErrInvalidParameters, err)
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return batch.JobRecord{}, err
	}
	defer s.limiter.Release()

	r, err := s.register(params)
	if err != nil {
		return batch.JobRecord{}, err
	}
	defer s.unregister(r)

	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	err = s.newJob(params).Execute(ctx, r.exec)
	return r.exec.Snapshot(), err
}

// Start launches a job in the background and returns its execution id
// without waiting. It fails with ErrTooManyRuns when no run slot is free and
// with ErrInstanceRunning when the same parameters are already running.
// The run does not inherit ctx's cancellation; use Stop to end it early.
func (s *Service) Start(ctx context.Context, params config.JobParameters) (string, error) {
	if err := params.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidParameters, err)
	}
	if !s.limiter.TryAcquire() {
		return "", ErrTooManyRuns
	}

	r, err := s.register(params)
	if err != nil {
		s.limiter.Release()
		return "", err
	}
	logger := logging.WithFields(ctx, "execution_id", r.exec.ID())
	logger.Info("job run started in background",
		"transaction_file", params.TransactionFile,
		"summary_file", params.SummaryFile,
	)

	runCtx := context.WithoutCancel(ctx)
	var cancel context.CancelFunc = func() {}
	if s.runTimeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, s.runTimeout)
	}

	go func() {
		defer s.unregister(r)
		defer s.limiter.Release()
		defer cancel()
		defer func() {
			if p := recover(); p != nil {
				logger.Error("panic in job run", "panic", p)
			}
		}()

		if err := s.newJob(params).Execute(runCtx, r.exec); err != nil {
			logger.Warn("background job run failed", "error", err)
		}
	}()

	return r.exec.ID(), nil
}

// Stop requests a running execution to stop. The current step ends STOPPED
// after flushing its buffered chunk and no later step starts. Stopping a
// recorded execution that has ended returns ErrExecutionFinished.
func (s *Service) Stop(ctx context.Context, id, reason string) error {
	s.mu.RLock()
	r, ok := s.active[id]
	s.mu.RUnlock()
	if ok {
		r.exec.Stop(reason)
		return nil
	}

	rec, err := s.Execution(ctx, id)
	if err != nil {
		return err
	}
	if rec.Status.IsTerminal() {
		return fmt.Errorf("%w: %s ended %s", ErrExecutionFinished, id, rec.Status)
	}
	// Recorded as running by a process that no longer holds it.
	return fmt.Errorf("%w: %s is recorded as %s but not running", ErrUnknownExecution, id, rec.Status)
}

// StopAll requests every running execution to stop.
func (s *Service) StopAll(reason string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.active {
		r.exec.Stop(reason)
	}
}

// Wait blocks until the execution with id is no longer running and returns
// its final record.
func (s *Service) Wait(ctx context.Context, id string) (batch.JobRecord, error) {
	s.mu.RLock()
	r, ok := s.active[id]
	s.mu.RUnlock()
	if ok {
		select {
		case <-r.done:
			return r.exec.Snapshot(), nil
		case <-ctx.Done():
			return batch.JobRecord{}, ctx.Err()
		}
	}
	return s.Execution(ctx, id)
}

// Shutdown stops every running execution and waits for them to finish.
func (s *Service) Shutdown(ctx context.Context) error {
	s.StopAll("shutdown")
	return s.limiter.WaitForDrain(ctx)
}

// Execution returns the live state of a running execution or the recorded
// state of a finished one.
func (s *Service) Execution(ctx context.Context, id string) (batch.JobRecord, error) {
	s.mu.RLock()
	r, ok := s.active[id]
	s.mu.RUnlock()
	if ok {
		return r.exec.Snapshot(), nil
	}

	rec, err := s.repo.JobExecution(ctx, id)
	if errors.Is(err, batch.ErrNotFound) {
		return batch.JobRecord{}, fmt.Errorf("%w: %s", ErrUnknownExecution, id)
	}
	if err != nil {
		return batch.JobRecord{}, fmt.Errorf("load execution %s: %w", id, err)
	}
	return rec, nil
}

// Executions returns up to limit executions, newest first. Running
// executions report their live state.
func (s *Service) Executions(ctx context.Context, limit int) ([]batch.JobRecord, error) {
	recs, err := s.repo.JobExecutions(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, rec := range recs {
		if r, ok := s.active[rec.ID]; ok {
			recs[i] = r.exec.Snapshot()
		}
	}
	return recs, nil
}

// Running returns the ids of the executions currently running.
func (s *Service) Running() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	return ids
}

func (s *Service) newJob(params config.JobParameters) *batch.Job {
	return NewJob(s.store, s.repo, params, s.opts)
}

func (s *Service) register(params config.JobParameters) (*run, error) {
	r := &run{
		exec: batch.NewJobExecution(JobName, Parameters(params)),
		done: make(chan struct{}),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := r.exec.InstanceKey()
	for id, other := range s.active {
		if other.exec.InstanceKey() == key {
			return nil, fmt.Errorf("%w: execution %s", ErrInstanceRunning, id)
		}
	}
	s.active[r.exec.ID()] = r
	return r, nil
}

func (s *Service) unregister(r *run) {
	s.mu.Lock()
	delete(s.active, r.exec.ID())
	s.mu.Unlock()
	close(r.done)
}
