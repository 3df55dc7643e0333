package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/reconcile/internal/batch"
	"github.com/JonMunkholm/reconcile/internal/config"
	"github.com/JonMunkholm/reconcile/internal/reconcile"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

const defaultListLimit = 20

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status string                     `json:"status"`
	Runs   reconcile.RunLimiterStatus `json:"runs"`
}

// RunResponse is the body of an accepted run or stop request.
type RunResponse struct {
	ID        string `json:"id"`
	StatusURL string `json:"status_url"`
}

// ExecutionList is the body of GET /api/executions.
type ExecutionList struct {
	Executions []batch.JobRecord `json:"executions"`
	Count      int               `json:"count"`
}

type stopRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Runs: s.jobs.LimiterStatus()})
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.respondError(w, r, fmt.Errorf("%w: limit must be a positive integer", reconcile.ErrInvalidParameters))
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	recs, err := s.jobs.Executions(ctx, limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ExecutionList{Executions: recs, Count: len(recs)})
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	rec, err := s.jobs.Execution(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var params config.JobParameters
	if err := decodeJSON(r, &params); err != nil {
		s.respondError(w, r, err)
		return
	}

	id, err := s.jobs.Start(r.Context(), params)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, RunResponse{ID: id, StatusURL: "/api/executions/" + id})
}

func (s *Server) handleStopExecution(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, r, err)
		return
	}
	if req.Reason == "" {
		req.Reason = "stop requested via API"
	}

	id := chi.URLParam(r, "id")
	if err := s.jobs.Stop(r.Context(), id, req.Reason); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, RunResponse{ID: id, StatusURL: "/api/executions/" + id})
}

// decodeJSON decodes a bounded request body, rejecting unknown fields. An
// empty body returns an error wrapping io.EOF.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decode request body: %w", reconcile.ErrInvalidParameters, err)
	}
	return nil
}
