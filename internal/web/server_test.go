package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/JonMunkholm/reconcile/internal/batch"
	"github.com/JonMunkholm/reconcile/internal/config"
	"github.com/JonMunkholm/reconcile/internal/reconcile"
)

type fakeJobs struct {
	started  []config.JobParameters
	stopped  map[string]string
	records  map[string]batch.JobRecord
	startErr error
	limit    int
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{
		stopped: make(map[string]string),
		records: map[string]batch.JobRecord{
			"run-1": {ID: "run-1", JobName: reconcile.JobName, Status: batch.StatusCompleted},
		},
	}
}

func (f *fakeJobs) Start(_ context.Context, p config.JobParameters) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	if err := p.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", reconcile.ErrInvalidParameters, err)
	}
	f.started = append(f.started, p)
	return "run-2", nil
}

func (f *fakeJobs) Stop(_ context.Context, id, reason string) error {
	switch id {
	case "run-1":
		f.stopped[id] = reason
		return nil
	case "run-0":
		return fmt.Errorf("%w: %s ended COMPLETED", reconcile.ErrExecutionFinished, id)
	default:
		return fmt.Errorf("%w: %s", reconcile.ErrUnknownExecution, id)
	}
}

func (f *fakeJobs) Execution(_ context.Context, id string) (batch.JobRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return batch.JobRecord{}, fmt.Errorf("%w: %s", reconcile.ErrUnknownExecution, id)
	}
	return rec, nil
}

func (f *fakeJobs) Executions(_ context.Context, limit int) ([]batch.JobRecord, error) {
	f.limit = limit
	return []batch.JobRecord{f.records["run-1"]}, nil
}

func (f *fakeJobs) LimiterStatus() reconcile.RunLimiterStatus {
	return reconcile.RunLimiterStatus{Active: 0, Available: 1, MaxConcurrent: 1}
}

func serve(t *testing.T, s *Server, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	s := NewServer(newFakeJobs(), config.ServerConfig{})
	rec := serve(t, s, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	got := decodeBody[HealthResponse](t, rec)
	if got.Status != "ok" || got.Runs.MaxConcurrent != 1 {
		t.Errorf("health = %+v", got)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestStartRun(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		startErr error
		want     int
		wantCode string
	}{
		{"accepted", `{"transactionFile":"in.csv","summaryFile":"out.csv"}`, nil, http.StatusAccepted, ""},
		{"missing summary file", `{"transactionFile":"in.csv"}`, nil, http.StatusBadRequest, "RUN003"},
		{"unknown field", `{"transactionFile":"in.csv","summaryFile":"o","extra":1}`, nil, http.StatusBadRequest, "RUN003"},
		{"bad json", `{`, nil, http.StatusBadRequest, "RUN003"},
		{"busy", `{"transactionFile":"in.csv","summaryFile":"out.csv"}`, reconcile.ErrTooManyRuns, http.StatusTooManyRequests, "RUN001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := newFakeJobs()
			jobs.startErr = tt.startErr
			s := NewServer(jobs, config.ServerConfig{})

			rec := serve(t, s, http.MethodPost, "/api/jobs/run", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
			if tt.wantCode == "" {
				got := decodeBody[RunResponse](t, rec)
				if got.ID != "run-2" || got.StatusURL != "/api/executions/run-2" {
					t.Errorf("response = %+v", got)
				}
				if len(jobs.started) != 1 || jobs.started[0].SummaryFile != "out.csv" {
					t.Errorf("started = %+v", jobs.started)
				}
				return
			}
			if got := decodeBody[ErrorResponse](t, rec); got.Code != tt.wantCode {
				t.Errorf("error code = %s, want %s", got.Code, tt.wantCode)
			}
			if tt.want == http.StatusTooManyRequests && rec.Header().Get("Retry-After") == "" {
				t.Error("Retry-After header missing")
			}
		})
	}
}

func TestExecutions(t *testing.T) {
	jobs := newFakeJobs()
	s := NewServer(jobs, config.ServerConfig{})

	rec := serve(t, s, http.MethodGet, "/api/executions?limit=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	if got := decodeBody[ExecutionList](t, rec); got.Count != 1 || got.Executions[0].ID != "run-1" {
		t.Errorf("list = %+v", got)
	}
	if jobs.limit != 5 {
		t.Errorf("limit passed = %d, want 5", jobs.limit)
	}

	if rec := serve(t, s, http.MethodGet, "/api/executions?limit=zero", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rec.Code)
	}

	rec = serve(t, s, http.MethodGet, "/api/executions/run-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	if got := decodeBody[batch.JobRecord](t, rec); got.Status != batch.StatusCompleted {
		t.Errorf("execution = %+v", got)
	}

	rec = serve(t, s, http.MethodGet, "/api/executions/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing execution status = %d, want 404", rec.Code)
	}
	if got := decodeBody[ErrorResponse](t, rec); got.Code != "RUN002" {
		t.Errorf("missing execution code = %s, want RUN002", got.Code)
	}
}

func TestStopExecution(t *testing.T) {
	jobs := newFakeJobs()
	s := NewServer(jobs, config.ServerConfig{})

	if rec := serve(t, s, http.MethodPost, "/api/executions/run-1/stop", `{"reason":"bad file"}`); rec.Code != http.StatusAccepted {
		t.Fatalf("stop status = %d, want 202", rec.Code)
	}
	if jobs.stopped["run-1"] != "bad file" {
		t.Errorf("stop reason = %q, want %q", jobs.stopped["run-1"], "bad file")
	}

	if rec := serve(t, s, http.MethodPost, "/api/executions/run-1/stop", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("stop without body status = %d, want 202", rec.Code)
	}
	if jobs.stopped["run-1"] != "stop requested via API" {
		t.Errorf("default stop reason = %q", jobs.stopped["run-1"])
	}

	if rec := serve(t, s, http.MethodPost, "/api/executions/other/stop", ""); rec.Code != http.StatusNotFound {
		t.Errorf("stop unknown status = %d, want 404", rec.Code)
	}

	rec := serve(t, s, http.MethodPost, "/api/executions/run-0/stop", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("stop finished status = %d, want 409", rec.Code)
	}
	if body := decodeBody[ErrorResponse](t, rec); body.Code != "RUN006" {
		t.Errorf("stop finished code = %q, want RUN006", body.Code)
	}
}

func TestAPIKeyRequired(t *testing.T) {
	s := NewServer(newFakeJobs(), config.ServerConfig{APIKeys: "secret"})

	if rec := serve(t, s, http.MethodGet, "/api/executions", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("no key status = %d, want 401", rec.Code)
	}
	if rec := serve(t, s, http.MethodGet, "/api/executions", "", "X-API-Key", "secret"); rec.Code != http.StatusOK {
		t.Errorf("valid key status = %d, want 200", rec.Code)
	}
	if rec := serve(t, s, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz with keys configured status = %d, want 200", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{reconcile.ErrInvalidParameters, http.StatusBadRequest},
		{fmt.Errorf("x: %w", reconcile.ErrUnknownExecution), http.StatusNotFound},
		{reconcile.ErrTooManyRuns, http.StatusTooManyRequests},
		{fmt.Errorf("%w: execution a", reconcile.ErrInstanceRunning), http.StatusConflict},
		{reconcile.ErrExecutionFinished, http.StatusConflict},
		{fmt.Errorf("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
