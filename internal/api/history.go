package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/nerrad567/synthd/internal/history"
	"github.com/nerrad567/synthd/internal/supervisor"
)

// History query bounds.
const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
	maxQueryParamLen    = 128
)

// handleListHistory returns lifecycle events, newest first.
//
// Query parameters: limit (1-500, default 50), offset, session, kind.
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "history is not enabled")
		return
	}

	q := r.URL.Query()

	limit, err := parseHistoryLimit(q.Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	offset, err := parseOffset(q.Get("offset"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	session := q.Get("session")
	if len(session) > maxQueryParamLen {
		writeBadRequest(w, "invalid session")
		return
	}

	kind := q.Get("kind")
	switch supervisor.UpdateKind(kind) {
	case "", supervisor.UpdateStatus, supervisor.UpdateTransportReplaced, supervisor.UpdateTransportLost:
	default:
		writeBadRequest(w, fmt.Sprintf("unknown kind %q", kind))
		return
	}

	result, err := s.history.List(r.Context(), history.Filter{
		Session: session,
		Kind:    kind,
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		s.logger.Error("listing lifecycle history", "error", err)
		writeInternalError(w, "failed to list history")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// parseHistoryLimit parses the limit query parameter with bounds enforcement.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid limit")
	}
	if limit > maxHistoryLimit {
		return 0, fmt.Errorf("limit exceeds maximum")
	}

	return limit, nil
}

func parseOffset(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	offset, err := strconv.Atoi(raw)
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("invalid offset")
	}
	return offset, nil
}
