package api

import (
	"net/http"

	apperrors "github.io/infrasutra/disposeme/internal/errors"
)

type errorPage struct {
	Status   int
	Title    string
	Messages []string
}

// User-visible failures carry fixed wording: no stack traces, no store
// identifiers.

func (s *Server) renderForbidden(w http.ResponseWriter, r *http.Request) {
	if responseType(r) == "json" {
		s.respondJSON(w, http.StatusForbidden, map[string]string{
			"message": "You are not allowed to visit that page.",
		})
		return
	}
	s.renderTemplate(w, http.StatusForbidden, "error.html", errorPage{
		Status: http.StatusForbidden,
		Title:  "Forbidden",
	})
}

func (s *Server) renderNotFound(w http.ResponseWriter, r *http.Request) {
	if responseType(r) == "json" {
		s.respondJSON(w, http.StatusNotFound, map[string]string{
			"message": "The page you are looking for was not found.",
		})
		return
	}
	s.renderTemplate(w, http.StatusNotFound, "error.html", errorPage{
		Status: http.StatusNotFound,
		Title:  "Not Found",
	})
}

func (s *Server) renderValidationError(w http.ResponseWriter, r *http.Request, verr *apperrors.ValidationError) {
	if responseType(r) == "json" {
		s.respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"errors": verr.Fields,
		})
		return
	}
	messages := make([]string, 0, len(verr.Fields))
	for _, field := range verr.Fields {
		messages = append(messages, field.Field+": "+field.Message)
	}
	s.renderTemplate(w, http.StatusUnprocessableEntity, "error.html", errorPage{
		Status:   http.StatusUnprocessableEntity,
		Title:    "Invalid Request",
		Messages: messages,
	})
}

func (s *Server) renderServerError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	if responseType(r) == "json" {
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{
			"message": "Something went wrong while processing the request.",
		})
		return
	}
	s.renderTemplate(w, http.StatusInternalServerError, "error.html", errorPage{
		Status: http.StatusInternalServerError,
		Title:  "Server Error",
	})
}
