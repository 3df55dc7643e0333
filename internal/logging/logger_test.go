package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := parseLevel(tt.in); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFromContext_IncludesExecutionAndStep(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	SetupWriter(&buf, "info", "json")

	ctx := ContextWithJobExecution(context.Background(), "exec-1")
	ctx = ContextWithStep(ctx, "importTransactions")
	FromContext(ctx).Info("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line %q: %v", buf.String(), err)
	}
	if entry["job_execution_id"] != "exec-1" {
		t.Errorf("job_execution_id = %v, want exec-1", entry["job_execution_id"])
	}
	if entry["step"] != "importTransactions" {
		t.Errorf("step = %v, want importTransactions", entry["step"])
	}
	if _, ok := entry["request_id"]; ok {
		t.Errorf("request_id should be absent without chi middleware, got %v", entry["request_id"])
	}
}

func TestSetupWriter_LevelFilters(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	SetupWriter(&buf, "warn", "text")

	slog.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info line written at warn level: %q", buf.String())
	}
	slog.Warn("kept")
	if buf.Len() == 0 {
		t.Error("warn line not written")
	}
}
