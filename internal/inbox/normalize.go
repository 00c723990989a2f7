// Package inbox maps parsed messages onto the local usernames that should
// receive them.
package inbox

import (
	"net/url"
	"strings"
)

// Normalize canonicalizes a mailbox local part into a stable username:
// percent-decode, lower-case, drop the sub-addressing suffix (everything from
// the first '+'), remove all dots. It never fails and is idempotent; empty
// input stays empty. Whitespace is deliberately left alone.
func Normalize(raw string) string {
	if raw == "" {
		return raw
	}
	decoded := raw
	// PathUnescape keeps a literal '+' as-is, so percent-encoded
	// sub-addresses like "%2Btag" still decode before the suffix is dropped.
	if unescaped, err := url.PathUnescape(raw); err == nil {
		decoded = unescaped
	}
	lowered := strings.ToLower(decoded)
	if plus := strings.Index(lowered, "+"); plus >= 0 {
		lowered = lowered[:plus]
	}
	return strings.ReplaceAll(lowered, ".", "")
}
