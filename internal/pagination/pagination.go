// Package pagination provides utilities for handling inbox listing parameters
// in web APIs. It supports extracting cursor parameters from URL query
// strings, validating them, and clamping limits for store queries. The
// package includes configurable defaults and options for customizing listing
// behavior.
package pagination

import (
	"net/url"
	"strconv"
)

// Params represents listing parameters extracted from a request. Listing is
// cursor-based: SentAfter is an exclusive lower bound on the received
// timestamp rather than an offset.
type Params struct {
	SentAfter int64  // Exclusive lower bound on received time, unix seconds (0 = unbounded)
	Limit     int    // Maximum number of entries to return
	Type      string // Response rendering: "html" or "json"
}

const (
	// MaxLimit is the maximum number of entries allowed per listing
	MaxLimit int = 100
	// DefaultLimit is the default number of entries when not specified
	DefaultLimit int = 10
	// DefaultType is the default response rendering when not specified
	DefaultType = "html"
	// MaxSentAfter bounds the cursor to ten-digit unix timestamps
	MaxSentAfter int64 = 9999999999
)

// isValidType checks if the provided response type is valid.
// Valid types are: "html", "json".
func isValidType(responseType string) bool {
	switch responseType {
	case "html", "json":
		return true
	default:
		return false
	}
}

// Option is a function type for configuring listing parameters.
// It follows the functional options pattern for flexible configuration.
type Option func(*Params)

// WithDefaultLimit returns an Option that sets the default limit.
// The limit is only applied if it's greater than 0.
func WithDefaultLimit(limit int) Option {
	return func(p *Params) {
		if limit > 0 {
			p.Limit = limit
		}
	}
}

// WithDefaultType returns an Option that sets the default response type.
// If the type string is invalid, it returns a no-op option.
func WithDefaultType(responseType string) Option {
	if !isValidType(responseType) {
		return func(p *Params) {}
	}
	return func(p *Params) {
		p.Type = responseType
	}
}

// FromQuery extracts listing parameters from URL query values. It applies any
// provided options and validates the parameters, enforcing the maximum limit
// and the sentAfter range.
func FromQuery(q url.Values, opts ...Option) *Params {
	params := &Params{
		SentAfter: 0,
		Limit:     DefaultLimit,
		Type:      DefaultType,
	}

	for _, opt := range opts {
		opt(params)
	}

	if sentAfterStr := q.Get("sentAfter"); sentAfterStr != "" {
		if val, err := strconv.ParseInt(sentAfterStr, 10, 64); err == nil && val >= 0 && val <= MaxSentAfter {
			params.SentAfter = val
		}
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		if val, err := strconv.Atoi(limitStr); err == nil && val > 0 {
			params.Limit = val
		}
	}

	// enforce max limit
	if params.Limit > MaxLimit {
		params.Limit = MaxLimit
	}

	if typeStr := q.Get("type"); typeStr != "" && isValidType(typeStr) {
		params.Type = typeStr
	}

	return params
}
