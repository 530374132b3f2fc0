package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/nerrad567/synthd/internal/osc"
)

// SendResponse acknowledges a datagram handed to the engine socket.
type SendResponse struct {
	Status   string `json:"status"`
	Address  string `json:"address"`
	TypeTags string `json:"type_tags"`
}

// handleStatus returns a fresh supervisor snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.sup.Status(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleBoot launches the engine and returns the resulting snapshot.
func (s *Server) handleBoot(w http.ResponseWriter, r *http.Request) {
	if err := s.sup.Boot(r.Context()); err != nil {
		s.logger.Warn("boot via API failed", "error", err, "request_id", requestID(r))
		writeEngineError(w, err)
		return
	}
	s.handleStatus(w, r)
}

// handleQuit stops the engine and returns the resulting snapshot.
func (s *Server) handleQuit(w http.ResponseWriter, r *http.Request) {
	if err := s.sup.Quit(r.Context()); err != nil {
		writeEngineError(w, err)
		return
	}
	s.handleStatus(w, r)
}

// handleSend encodes the JSON message body as OSC and sends it.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var msg osc.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, ErrCodeValidation, fmt.Sprintf("invalid message: %v", err))
		return
	}

	tags, err := msg.TypeTags()
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if err := s.sup.SendMessage(r.Context(), msg.Address, msg.Args...); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SendResponse{
		Status:   "sent",
		Address:  msg.Address,
		TypeTags: tags,
	})
}
