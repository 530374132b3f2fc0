package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/synthd/internal/osc"
	"github.com/nerrad567/synthd/internal/process"
	"github.com/nerrad567/synthd/internal/supervisor"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
	ErrCodeLaunchFailed = "launch_failed"
	ErrCodeUnavailable  = "unavailable"
	ErrCodeTimeout      = "timeout"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// classifyError maps an engine command error to an HTTP status and code.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, supervisor.ErrAlreadyRunning),
		errors.Is(err, supervisor.ErrNotRunning),
		errors.Is(err, supervisor.ErrNoTransport):
		return http.StatusConflict, ErrCodeConflict
	case isCodecError(err):
		return http.StatusBadRequest, ErrCodeValidation
	case errors.Is(err, process.ErrFileNotFound),
		errors.Is(err, process.ErrNotExecutable),
		errors.Is(err, process.ErrPermissionDenied),
		errors.Is(err, process.ErrStartFailed):
		return http.StatusUnprocessableEntity, ErrCodeLaunchFailed
	case errors.Is(err, supervisor.ErrClosed):
		return http.StatusServiceUnavailable, ErrCodeUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrCodeTimeout
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}

func isCodecError(err error) bool {
	for _, target := range []error{
		osc.ErrInvalidAddress,
		osc.ErrUnsupportedType,
		osc.ErrInvalidMessage,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// writeEngineError writes the mapped response for an engine command error.
func writeEngineError(w http.ResponseWriter, err error) {
	status, code := classifyError(err)
	writeError(w, status, code, err.Error())
}
