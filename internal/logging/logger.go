// Package logging provides structured logging configuration using log/slog.
//
// Loggers obtained with FromContext carry the identifiers found in the
// context: chi's request id for HTTP-triggered work, and the job execution
// id and step name set by the batch engine. Every log line of a step run can
// therefore be correlated with its execution record.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const (
	ctxKeyJobExecution contextKey = "job_execution_id"
	ctxKeyStep         contextKey = "step"
)

// Setup configures the global slog logger based on level and format.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
func Setup(level, format string) {
	SetupWriter(os.Stdout, level, format)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(w io.Writer, level, format string) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler = slog.NewTextHandler(w, opts)
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// parseLevel maps a level name to a slog.Level. Unknown names fall back to
// info; "warning" is accepted for warn.
func parseLevel(level string) slog.Level {
	name := strings.ToLower(strings.TrimSpace(level))
	if name == "warning" {
		name = "warn"
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// ContextWithJobExecution returns a context whose loggers include the job
// execution id.
func ContextWithJobExecution(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyJobExecution, id)
}

// ContextWithStep returns a context whose loggers include the step name.
func ContextWithStep(ctx context.Context, step string) context.Context {
	return context.WithValue(ctx, ctxKeyStep, step)
}

// JobExecutionFromContext returns the job execution id stored in ctx.
func JobExecutionFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyJobExecution).(string); ok {
		return v
	}
	return ""
}

// FromContext returns the default logger enriched with the request id, job
// execution id and step name found in ctx.
//
// Usage:
//
//	logger := logging.FromContext(ctx)
//	logger.Info("chunk committed", "size", len(chunk))
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	// Chi's RequestID middleware stores the ID in context
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	if id := JobExecutionFromContext(ctx); id != "" {
		logger = logger.With("job_execution_id", id)
	}
	if step, ok := ctx.Value(ctxKeyStep).(string); ok && step != "" {
		logger = logger.With("step", step)
	}

	return logger
}

// WithFields returns a logger with additional structured fields.
//
// Usage:
//
//	runLogger := logging.WithFields(ctx, "transaction_file", path)
//	runLogger.Info("run requested")
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
