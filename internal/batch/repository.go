package batch

import (
	"context"
	"sort"
	"sync"
)

// Repository persists job and step executions so a later run of the same job
// instance can tell which steps already completed.
type Repository interface {
	// SaveJobExecution inserts or replaces a job execution.
	SaveJobExecution(ctx context.Context, rec JobRecord) error

	// SaveStepExecution inserts or replaces a step execution.
	SaveStepExecution(ctx context.Context, rec StepRecord) error

	// LastStepExecution returns the most recently started execution of
	// stepName within the job instance, or ErrNotFound.
	LastStepExecution(ctx context.Context, instanceKey, stepName string) (StepRecord, error)

	// JobExecution returns a job execution by id, or ErrNotFound.
	JobExecution(ctx context.Context, id string) (JobRecord, error)

	// JobExecutions returns up to limit job executions, newest first.
	// A limit <= 0 returns all of them.
	JobExecutions(ctx context.Context, limit int) ([]JobRecord, error)
}

// MemoryRepository is a Repository that keeps executions in process memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	jobs  map[string]JobRecord
	steps map[string]StepRecord
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		jobs:  make(map[string]JobRecord),
		steps: make(map[string]StepRecord),
	}
}

func (m *MemoryRepository) SaveJobExecution(_ context.Context, rec JobRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[rec.ID] = rec
	return nil
}

func (m *MemoryRepository) SaveStepExecution(_ context.Context, rec StepRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps[rec.ID] = rec
	return nil
}

func (m *MemoryRepository) LastStepExecution(_ context.Context, instanceKey, stepName string) (StepRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		last  StepRecord
		found bool
	)
	for _, rec := range m.steps {
		if rec.InstanceKey != instanceKey || rec.StepName != stepName {
			continue
		}
		if !found || rec.StartTime.After(last.StartTime) {
			last, found = rec, true
		}
	}
	if !found {
		return StepRecord{}, ErrNotFound
	}
	return last, nil
}

func (m *MemoryRepository) JobExecution(_ context.Context, id string) (JobRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.jobs[id]
	if !ok {
		return JobRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryRepository) JobExecutions(_ context.Context, limit int) ([]JobRecord, error) {
	m.mu.RLock()
	out := make([]JobRecord, 0, len(m.jobs))
	for _, rec := range m.jobs {
		out = append(out, rec)
	}
	m.mu.RUnlock()

	SortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SortNewestFirst orders job records by start time, newest first.
func SortNewestFirst(recs []JobRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].StartTime.After(recs[j].StartTime)
	})
}
