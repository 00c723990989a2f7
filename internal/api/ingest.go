package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	apperrors "github.io/infrasutra/disposeme/internal/errors"
)

const maxRawMessageBytes = 25 << 20

type ingestRequest struct {
	MessageID string `json:"messageId"`
}

// handleIngest is the external-trigger seam: the message blob is already in
// the blob store and the trigger hands over its id. Errors are surfaced so
// the trigger's retry policy can redrive; processing is idempotent.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorize(w, r) {
		return
	}
	if !s.ingestLimiter.Allow() {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	var payload ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if verr := validMessageID(payload.MessageID); verr != nil {
		s.renderValidationError(w, r, verr)
		return
	}

	if err := s.ingestor.Process(r.Context(), payload.MessageID); err != nil {
		s.ingestError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleIngestRaw accepts a raw RFC 822 message, stores it under a fresh id
// and processes it. It exists for local triggers that have no blob store of
// their own.
func (s *Server) handleIngestRaw(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorize(w, r) {
		return
	}
	if !s.ingestLimiter.Allow() {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxRawMessageBytes+1))
	if err != nil {
		http.Error(w, "unable to read message", http.StatusBadRequest)
		return
	}
	if len(raw) == 0 {
		http.Error(w, "empty message", http.StatusBadRequest)
		return
	}
	if len(raw) > maxRawMessageBytes {
		http.Error(w, "message too large", http.StatusRequestEntityTooLarge)
		return
	}

	messageID := uuid.NewString()
	if err := s.blobs.Put(r.Context(), messageID, raw); err != nil {
		s.logger.Error("store raw message", "messageId", messageID, "error", err)
		http.Error(w, "unable to store message", http.StatusInternalServerError)
		return
	}

	if err := s.ingestor.Process(r.Context(), messageID); err != nil {
		s.ingestError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"messageId": messageID})
}

func (s *Server) ingestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperrors.ErrBlobNotFound):
		http.Error(w, "message blob not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrMalformedMessage):
		http.Error(w, "malformed message", http.StatusBadRequest)
	default:
		http.Error(w, "unable to process message", http.StatusInternalServerError)
	}
}
