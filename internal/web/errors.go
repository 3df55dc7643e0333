package web

// errors.go turns handler errors into JSON responses.
//
// The technical error is logged with the request id; the client receives
// the operator message and code from reconcile.MapError. The status code is
// derived from the error so handlers only pass the error along.

import (
	"errors"
	"net/http"

	"github.com/JonMunkholm/reconcile/internal/logging"
	"github.com/JonMunkholm/reconcile/internal/reconcile"
)

// ErrorResponse is the body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor maps errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, reconcile.ErrInvalidParameters):
		return http.StatusBadRequest
	case errors.Is(err, reconcile.ErrUnknownExecution):
		return http.StatusNotFound
	case errors.Is(err, reconcile.ErrTooManyRuns):
		return http.StatusTooManyRequests
	case errors.Is(err, reconcile.ErrInstanceRunning), errors.Is(err, reconcile.ErrExecutionFinished):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := reconcile.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "30")
	}
	writeJSON(w, status, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}
