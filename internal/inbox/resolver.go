package inbox

import (
	"sort"

	"github.io/infrasutra/disposeme/internal/email"
)

// FallbackUsername receives messages that resolve to no local recipient, so
// nothing is silently dropped.
const FallbackUsername = "unknown"

// Resolver derives the set of local usernames a message fans out to.
type Resolver struct {
	// Domain is the mail domain this service owns.
	Domain string
	// FilterDomain drops recipients hosted elsewhere. It mirrors the
	// RECIPIENT_DOMAIN_FILTER config flag and defaults to on.
	FilterDomain bool
}

// Resolve concatenates to, cc and bcc, applies the domain filter, normalizes
// the surviving local parts and deduplicates them. An empty result collapses
// to the fallback bucket. The returned slice is sorted for deterministic
// fan-out order.
func (r Resolver) Resolve(e *email.Email) []string {
	all := make([]email.Address, 0, len(e.To)+len(e.Cc)+len(e.Bcc))
	all = append(all, e.To...)
	all = append(all, e.Cc...)
	all = append(all, e.Bcc...)

	seen := make(map[string]struct{})
	for _, addr := range all {
		if addr.User == "" {
			continue
		}
		if r.FilterDomain && addr.Host != r.Domain {
			continue
		}
		username := Normalize(addr.User)
		if username == "" {
			continue
		}
		seen[username] = struct{}{}
	}

	if len(seen) == 0 {
		return []string{FallbackUsername}
	}

	usernames := make([]string, 0, len(seen))
	for username := range seen {
		usernames = append(usernames, username)
	}
	sort.Strings(usernames)
	return usernames
}
