package api

import (
	"fmt"
	"regexp"

	apperrors "github.io/infrasutra/disposeme/internal/errors"
	"github.io/infrasutra/disposeme/internal/inbox"
)

const (
	usernameMinLength = 3
	usernameMaxLength = 25
)

var (
	usernamePattern  = regexp.MustCompile(`^[a-zA-Z0-9.\-_+%]+$`)
	messageIDPattern = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)
	alphanumeric     = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
)

// validUsername normalizes a raw username path segment and checks it against
// format, length and blacklist rules. Blacklist matching happens after
// normalization on both sides, so case and dot tricks cannot route around it.
func (s *Server) validUsername(raw string) (string, *apperrors.ValidationError) {
	if raw == "" || !usernamePattern.MatchString(raw) {
		return "", apperrors.NewValidationError(apperrors.FieldError{
			Field:   "username",
			Message: "username contains invalid characters",
		})
	}
	normalized := inbox.Normalize(raw)
	if len(normalized) < usernameMinLength || len(normalized) > usernameMaxLength {
		return "", apperrors.NewValidationError(apperrors.FieldError{
			Field:   "username",
			Message: fmt.Sprintf("username must be %d to %d characters after normalization", usernameMinLength, usernameMaxLength),
		})
	}
	if _, blocked := s.blacklist[normalized]; blocked {
		return "", apperrors.NewValidationError(apperrors.FieldError{
			Field:   "username",
			Message: "username is not available",
		})
	}
	return normalized, nil
}

func validMessageID(id string) *apperrors.ValidationError {
	if id == "" || !messageIDPattern.MatchString(id) {
		return apperrors.NewValidationError(apperrors.FieldError{
			Field:   "id",
			Message: "message id must be alphanumeric",
		})
	}
	return nil
}

// validRequest validates the username/id pair used by show, download and
// delete, collecting all field errors instead of stopping at the first.
func (s *Server) validRequest(username, id string) (string, *apperrors.ValidationError) {
	normalized, verr := s.validUsername(username)
	iderr := validMessageID(id)
	if verr == nil && iderr == nil {
		return normalized, nil
	}
	combined := &apperrors.ValidationError{}
	if verr != nil {
		combined.Fields = append(combined.Fields, verr.Fields...)
	}
	if iderr != nil {
		combined.Fields = append(combined.Fields, iderr.Fields...)
	}
	return "", combined
}

func isAlphanumeric(value string) bool {
	return alphanumeric.MatchString(value)
}
