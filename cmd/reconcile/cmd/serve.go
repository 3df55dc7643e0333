package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/reconcile/internal/reconcile"
	"github.com/JonMunkholm/reconcile/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the operations API and run scheduled jobs",
	Long: `Serve starts the HTTP operations server:

  GET  /healthz                   liveness and run slot usage
  GET  /api/executions            recorded executions (?limit=N)
  GET  /api/executions/{id}       one execution with its steps
  POST /api/jobs/run              start a run with {"transactionFile","summaryFile"}
  POST /api/executions/{id}/stop  stop a running execution

When SCHEDULE_INTERVAL is set, a run with the parameters in
SCHEDULE_PARAMS_FILE starts immediately and then on every interval.

On SIGINT or SIGTERM running jobs are stopped after their current chunk
and the server drains before exiting.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	repo, err := openRepository(cfg.Batch)
	if err != nil {
		return err
	}
	defer repo.Close()

	svc := reconcile.NewService(store, repo, cfg.Batch)
	server := web.NewServer(svc, cfg.Server)

	schedCtx, cancelSched := context.WithCancel(ctx)
	defer cancelSched()
	go svc.StartScheduler(schedCtx, reconcile.ScheduleOptions{
		Interval:   cfg.Schedule.Interval,
		ParamsFile: cfg.Schedule.ParamsFile,
	})

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down...")
	cancelSched()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()

	if ids := svc.Running(); len(ids) > 0 {
		slog.Info("waiting for job runs to stop", "executions", ids)
	}
	if err := svc.Shutdown(shutdownCtx); err != nil {
		slog.Warn("job runs did not stop in time", "error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		return err
	}
	slog.Info("server stopped")
	return nil
}
