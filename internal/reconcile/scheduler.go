package reconcile

// scheduler.go starts job runs on a fixed interval for the serve command.
//
// Parameters are re-read from the parameter file on every tick, so pointing
// the file at a new transaction file starts a new job instance. Ticks with
// unchanged parameters re-run the same instance: the import step runs again
// and the completed apply and export steps are skipped. A tick that finds
// every run slot occupied is skipped.

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/JonMunkholm/reconcile/internal/config"
)

// ScheduleOptions configure StartScheduler.
type ScheduleOptions struct {
	Interval   time.Duration
	ParamsFile string
}

// StartScheduler runs a job immediately and then every Interval until ctx
// is cancelled. It blocks; callers run it in its own goroutine.
func (s *Service) StartScheduler(ctx context.Context, opts ScheduleOptions) {
	if opts.Interval <= 0 {
		slog.Info("job scheduler disabled")
		return
	}
	slog.Info("job scheduler started",
		"interval", opts.Interval.String(),
		"params_file", opts.ParamsFile,
	)

	s.scheduledRun(ctx, opts)

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("job scheduler stopped")
			return
		case <-ticker.C:
			s.scheduledRun(ctx, opts)
		}
	}
}

// scheduledRun starts one background run and returns its id, or "" when the
// tick was skipped.
func (s *Service) scheduledRun(ctx context.Context, opts ScheduleOptions) string {
	params, err := config.LoadParameters(opts.ParamsFile)
	if err != nil {
		slog.Error("scheduled run skipped: load parameters", "error", err)
		return ""
	}

	id, err := s.Start(ctx, params)
	switch {
	case errors.Is(err, ErrTooManyRuns), errors.Is(err, ErrInstanceRunning):
		slog.Warn("scheduled run skipped: a run is already in progress", "reason", err)
		return ""
	case err != nil:
		slog.Error("scheduled run failed to start", "error", err)
		return ""
	}
	slog.Info("scheduled run started", "execution_id", id)
	return id
}
