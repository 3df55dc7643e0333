package batch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Parameters are the identifying job parameters (file paths and the like).
// Two runs with equal parameters belong to the same job instance.
type Parameters map[string]string

// InstanceKey returns a stable key for the job instance identified by name
// and params.
func (p Parameters) InstanceKey(jobName string) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	h.Write([]byte(jobName))
	for _, k := range keys {
		h.Write([]byte{0})
		h.Write([]byte(k + "=" + p[k]))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// StepRecord is the persisted state of one step execution.
type StepRecord struct {
	ID             string    `json:"id"`
	JobExecutionID string    `json:"job_execution_id"`
	InstanceKey    string    `json:"instance_key"`
	StepName       string    `json:"step_name"`
	Status         Status    `json:"status"`
	ReadCount      int64     `json:"read_count"`
	FilterCount    int64     `json:"filter_count"`
	WriteCount     int64     `json:"write_count"`
	CommitCount    int64     `json:"commit_count"`
	RecordsRead    int64     `json:"records_read"`
	ExpectedCount  int64     `json:"expected_count"`
	Checkpoint     int64     `json:"checkpoint"`
	BytesRead      int64     `json:"bytes_read,omitempty"`
	ExitMessage    string    `json:"exit_message,omitempty"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time,omitempty"`
}

// Duration returns how long the step ran, or has been running.
func (r StepRecord) Duration() time.Duration {
	if r.StartTime.IsZero() {
		return 0
	}
	if r.EndTime.IsZero() {
		return time.Since(r.StartTime)
	}
	return r.EndTime.Sub(r.StartTime)
}

// StepExecution is the state of a single step run. It is owned by the
// engine running the step; the termination flag may be set from any
// goroutine.
type StepExecution struct {
	mu     sync.RWMutex
	record StepRecord

	stop       atomic.Bool
	stopReason atomic.Value // string

	repo Repository
}

// NewStepExecution creates an execution for stepName. repo may be nil, in
// which case chunk commits are not persisted.
func NewStepExecution(stepName string, repo Repository) *StepExecution {
	return &StepExecution{
		record: StepRecord{
			ID:       uuid.New().String(),
			StepName: stepName,
			Status:   StatusStarting,
		},
		repo: repo,
	}
}

// ID returns the execution id.
func (e *StepExecution) ID() string {
	return e.record.ID
}

// StepName returns the name of the step being executed.
func (e *StepExecution) StepName() string {
	return e.record.StepName
}

// Status returns the current status.
func (e *StepExecution) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.record.Status
}

// Snapshot returns a copy of the current state.
func (e *StepExecution) Snapshot() StepRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.record
}

// RequestStop sets the termination flag. The engine finishes writing the
// buffered chunk and ends the step as STOPPED. Only the first reason is kept.
func (e *StepExecution) RequestStop(reason string) {
	if e.stop.CompareAndSwap(false, true) {
		e.stopReason.Store(reason)
	}
}

// StopRequested reports whether the termination flag is set.
func (e *StepExecution) StopRequested() bool {
	return e.stop.Load()
}

// StopReason returns the reason given to the first RequestStop call.
func (e *StepExecution) StopReason() string {
	if v, ok := e.stopReason.Load().(string); ok {
		return v
	}
	return ""
}

// IncrementRecordsRead counts one data record decoded by the reader and
// returns the new total.
func (e *StepExecution) IncrementRecordsRead() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record.RecordsRead++
	return e.record.RecordsRead
}

// RecordsRead returns the number of data records decoded so far.
func (e *StepExecution) RecordsRead() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.record.RecordsRead
}

// SetExpectedCount records the number of data records the input declares.
func (e *StepExecution) SetExpectedCount(n int64) {
	e.mu.Lock()
	e.record.ExpectedCount = n
	e.mu.Unlock()
}

// ExpectedCount returns the declared number of data records.
func (e *StepExecution) ExpectedCount() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.record.ExpectedCount
}

func (e *StepExecution) update(fn func(r *StepRecord)) {
	e.mu.Lock()
	fn(&e.record)
	e.mu.Unlock()
}

func (e *StepExecution) start() {
	e.update(func(r *StepRecord) {
		r.Status = StatusStarted
		r.StartTime = time.Now().UTC()
	})
}

func (e *StepExecution) finish(status Status, msg string) {
	e.update(func(r *StepRecord) {
		r.Status = status
		r.ExitMessage = msg
		r.EndTime = time.Now().UTC()
	})
}

func (e *StepExecution) save(ctx context.Context) error {
	if e.repo == nil {
		return nil
	}
	return e.repo.SaveStepExecution(ctx, e.Snapshot())
}

// JobRecord is the persisted state of one job execution.
type JobRecord struct {
	ID          string       `json:"id"`
	JobName     string       `json:"job_name"`
	InstanceKey string       `json:"instance_key"`
	Parameters  Parameters   `json:"parameters"`
	Status      Status       `json:"status"`
	ExitMessage string       `json:"exit_message,omitempty"`
	StartTime   time.Time    `json:"start_time"`
	EndTime     time.Time    `json:"end_time,omitempty"`
	Steps       []StepRecord `json:"steps"`
}

// JobExecution tracks one run of a Job.
type JobExecution struct {
	mu      sync.RWMutex
	record  JobRecord
	steps   []*StepExecution
	current *StepExecution

	stop atomic.Bool
}

// NewJobExecution creates an execution of jobName with params.
func NewJobExecution(jobName string, params Parameters) *JobExecution {
	cp := make(Parameters, len(params))
	for k, v := range params {
		cp[k] = v
	}
	return &JobExecution{
		record: JobRecord{
			ID:          uuid.New().String(),
			JobName:     jobName,
			InstanceKey: cp.InstanceKey(jobName),
			Parameters:  cp,
			Status:      StatusStarting,
		},
	}
}

// ID returns the execution id.
func (e *JobExecution) ID() string {
	return e.record.ID
}

// InstanceKey returns the key of the job instance this execution belongs to.
func (e *JobExecution) InstanceKey() string {
	return e.record.InstanceKey
}

// Status returns the current job status.
func (e *JobExecution) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.record.Status
}

// Stop requests the running step to stop and prevents later steps from
// starting.
func (e *JobExecution) Stop(reason string) {
	e.stop.Store(true)

	e.mu.RLock()
	current := e.current
	e.mu.RUnlock()

	if current != nil {
		current.RequestStop(reason)
	}
}

// StopRequested reports whether Stop was called.
func (e *JobExecution) StopRequested() bool {
	return e.stop.Load()
}

// Snapshot returns a copy of the current state, including the step records
// of every step run or skipped so far, in job order.
func (e *JobExecution) Snapshot() JobRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rec := e.record
	rec.Parameters = make(Parameters, len(e.record.Parameters))
	for k, v := range e.record.Parameters {
		rec.Parameters[k] = v
	}
	rec.Steps = make([]StepRecord, 0, len(e.record.Steps)+1)
	rec.Steps = append(rec.Steps, e.record.Steps...)
	if e.current != nil {
		rec.Steps = append(rec.Steps, e.current.Snapshot())
	}
	return rec
}

func (e *JobExecution) update(fn func(r *JobRecord)) {
	e.mu.Lock()
	fn(&e.record)
	e.mu.Unlock()
}

func (e *JobExecution) begin(step *StepExecution) {
	step.update(func(r *StepRecord) {
		r.JobExecutionID = e.record.ID
		r.InstanceKey = e.record.InstanceKey
	})

	e.mu.Lock()
	e.current = step
	e.steps = append(e.steps, step)
	stopped := e.stop.Load()
	e.mu.Unlock()

	// Stop may have raced with the step being registered.
	if stopped {
		step.RequestStop("job stop requested")
	}
}

func (e *JobExecution) end(step *StepExecution) {
	e.mu.Lock()
	e.record.Steps = append(e.record.Steps, step.Snapshot())
	e.current = nil
	e.mu.Unlock()
}

func (e *JobExecution) skip(prior StepRecord) {
	e.mu.Lock()
	e.record.Steps = append(e.record.Steps, prior)
	e.mu.Unlock()
}
