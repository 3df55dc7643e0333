package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/reconcile/internal/logging"
)

// Job runs its steps strictly in order.
type Job struct {
	Name       string
	Steps      []Step
	Repository Repository // nil uses a fresh MemoryRepository
}

// Run creates an execution for params and executes it.
func (j *Job) Run(ctx context.Context, params Parameters) (*JobExecution, error) {
	exec := NewJobExecution(j.Name, params)
	return exec, j.Execute(ctx, exec)
}

// Execute runs exec to a terminal status. The returned error is non-nil when
// the job ends FAILED; a STOPPED job returns nil and callers inspect
// exec.Status().
func (j *Job) Execute(ctx context.Context, exec *JobExecution) error {
	if j.Repository == nil {
		j.Repository = NewMemoryRepository()
	}

	ctx = logging.ContextWithJobExecution(ctx, exec.ID())
	logger := logging.FromContext(ctx).With("job", j.Name)

	exec.update(func(r *JobRecord) {
		r.Status = StatusStarted
		r.StartTime = time.Now().UTC()
	})
	j.saveJob(ctx, exec)
	logger.Info("job started", "parameters", exec.Snapshot().Parameters)

	status, msg, err := j.runSteps(ctx, exec)

	exec.update(func(r *JobRecord) {
		r.Status = status
		r.ExitMessage = msg
		r.EndTime = time.Now().UTC()
	})
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	j.saveJob(saveCtx, exec)

	rec := exec.Snapshot()
	logger.Info("job finished",
		"status", status,
		"steps", len(rec.Steps),
		"duration_ms", rec.EndTime.Sub(rec.StartTime).Milliseconds(),
	)
	return err
}

func (j *Job) runSteps(ctx context.Context, exec *JobExecution) (Status, string, error) {
	logger := logging.FromContext(ctx).With("job", j.Name)

	for _, step := range j.Steps {
		if exec.StopRequested() {
			return StatusStopped, fmt.Sprintf("stop requested before step %s", step.Name()), nil
		}

		prior, err := j.Repository.LastStepExecution(ctx, exec.InstanceKey(), step.Name())
		switch {
		case err == nil && prior.Status == StatusCompleted && !step.AllowStartIfComplete():
			logger.Info("step already complete, skipping",
				"step", step.Name(),
				"prior_execution", prior.JobExecutionID,
			)
			exec.skip(prior)
			continue
		case err != nil && !errors.Is(err, ErrNotFound):
			err = fmt.Errorf("look up previous execution of %s: %w", step.Name(), err)
			return StatusFailed, err.Error(), err
		}

		stepExec := NewStepExecution(step.Name(), j.Repository)
		exec.begin(stepExec)
		stepErr := step.Execute(ctx, stepExec)
		exec.end(stepExec)
		j.saveJob(ctx, exec)

		switch stepExec.Status() {
		case StatusCompleted:
			continue
		case StatusStopped:
			return StatusStopped, fmt.Sprintf("step %s stopped: %s", step.Name(), stepExec.StopReason()), nil
		default:
			if stepErr == nil {
				stepErr = fmt.Errorf("step %s ended with status %s", step.Name(), stepExec.Status())
			}
			return StatusFailed, stepErr.Error(), stepErr
		}
	}
	return StatusCompleted, "", nil
}

func (j *Job) saveJob(ctx context.Context, exec *JobExecution) {
	if err := j.Repository.SaveJobExecution(ctx, exec.Snapshot()); err != nil {
		logging.FromContext(ctx).Warn("save job execution", "job", j.Name, "error", err)
	}
}
