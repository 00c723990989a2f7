// Package errors provides centralized error definitions for disposeme.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Message errors.
var (
	// ErrMalformedMessage indicates the raw message could not be parsed at all.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrMessageNotFound indicates no inbox entry matches the request.
	ErrMessageNotFound = errors.New("message not found")
)

// Blob store errors.
var (
	// ErrBlobNotFound indicates the raw message blob does not exist.
	ErrBlobNotFound = errors.New("blob not found")

	// ErrContentMissing indicates an inbox entry exists but its raw message
	// body could not be read. Distinct from ErrMessageNotFound because it
	// signals store inconsistency rather than a bad request.
	ErrContentMissing = errors.New("message content missing")
)

// Authorization errors.
var (
	// ErrUnauthorized indicates token resolution failed or the token did not match.
	ErrUnauthorized = errors.New("unauthorized")
)

// FieldError describes a single invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates field-level problems with caller input.
// It maps to a 422 response on the HTTP surface.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewValidationError builds a ValidationError from field/message pairs.
func NewValidationError(fields ...FieldError) *ValidationError {
	return &ValidationError{Fields: fields}
}
