// Package blob stores raw message bodies keyed by message id.
package blob

import (
	"context"
	"time"
)

// Store is the raw-message storage capability. Keys are flat message ids;
// ordering and retention metadata live in the inbox index, not in key names.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Copy(ctx context.Context, src, dst string) error
	Delete(ctx context.Context, key string) error
	// ListOlderThan returns the keys of blobs written at or before cutoff.
	// The expiry sweep uses it to find blobs that outlived every index row.
	ListOlderThan(ctx context.Context, cutoff time.Time) ([]string, error)
}
