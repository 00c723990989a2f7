package store

// Entry is one per-recipient copy of an incoming message. Identity is the
// composite (Username, ID); ID doubles as the blob store key, so every entry
// references exactly one raw message and retried writes overwrite in place.
type Entry struct {
	Username       string
	ID             string
	Sender         string
	Subject        string
	ReceivedAt     int64
	ExpireAt       int64
	HasAttachments bool
}
