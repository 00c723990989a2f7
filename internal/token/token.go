// Package token resolves and checks the access credential that gates every
// inbox read and write.
package token

import (
	"crypto/hmac"
	"net/http"
	"time"

	apperrors "github.io/infrasutra/disposeme/internal/errors"
)

const (
	// Name is the credential carrier name, identical across header, query
	// parameter and cookie.
	Name = "x-api-key"
	// RememberCookie marks a session the user asked to keep across restarts.
	RememberCookie = "remember"
)

// FromRequest extracts the access token with fixed precedence: header first,
// then query parameter, then cookie. Returns "" when no carrier holds one.
// Page and feed deep-link rendering uses the same resolution so links always
// carry the credential the caller authenticated with.
func FromRequest(r *http.Request) string {
	if value := r.Header.Get(Name); value != "" {
		return value
	}
	if value := r.URL.Query().Get(Name); value != "" {
		return value
	}
	if cookie, err := r.Cookie(Name); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}

// Authorizer compares resolved tokens against the configured credential.
type Authorizer struct {
	secret []byte
}

func NewAuthorizer(secret string) *Authorizer {
	return &Authorizer{secret: []byte(secret)}
}

// Authorize resolves the request token and checks it in constant time.
func (a *Authorizer) Authorize(r *http.Request) error {
	value := FromRequest(r)
	if value == "" {
		return apperrors.ErrUnauthorized
	}
	if !hmac.Equal([]byte(value), a.secret) {
		return apperrors.ErrUnauthorized
	}
	return nil
}

// SetAuthCookie stores the credential in the cookie carrier. With remember
// set, the cookie (and a companion remember marker) survives for ttlDays;
// otherwise it is a session cookie.
func SetAuthCookie(w http.ResponseWriter, value string, remember bool, now time.Time, ttlDays int) {
	maxAge := 0
	var expires time.Time
	if remember {
		maxAge = ttlDays * 24 * 60 * 60
		expires = now.Add(time.Duration(maxAge) * time.Second)
		http.SetCookie(w, &http.Cookie{
			Name:     RememberCookie,
			Value:    "true",
			Path:     "/",
			MaxAge:   maxAge,
			Expires:  expires,
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteStrictMode,
		})
	}
	http.SetCookie(w, &http.Cookie{
		Name:     Name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		Expires:  expires,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearAuthCookies expires both the credential and the remember marker.
func ClearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{Name, RememberCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteStrictMode,
		})
	}
}
