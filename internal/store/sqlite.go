package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// Store is the inbox index: queryable per-recipient message metadata backed
// by SQLite. Raw message bodies live in the blob store, keyed by Entry.ID.
type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	inMemory := false
	if trimmed == "" {
		trimmed = ":memory:"
		inMemory = true
	}
	if strings.Contains(trimmed, "mode=memory") || trimmed == ":memory:" || trimmed == "file::memory:" {
		inMemory = true
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if !inMemory {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS inbox (
            username TEXT NOT NULL,
            id TEXT NOT NULL,
            sender TEXT NOT NULL,
            subject TEXT NOT NULL,
            received_at INTEGER NOT NULL,
            expire_at INTEGER NOT NULL,
            has_attachments INTEGER NOT NULL,
            PRIMARY KEY (username, id)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_inbox_username_received ON inbox(username, received_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_inbox_expire ON inbox(expire_at);`,
	}

	for _, statement := range statements {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Put writes one inbox entry. The composite primary key makes the write
// idempotent: redelivery of the same message to the same recipient overwrites
// instead of duplicating.
func (s *Store) Put(ctx context.Context, entry Entry) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO inbox
        (username, id, sender, subject, received_at, expire_at, has_attachments)
        VALUES (?, ?, ?, ?, ?, ?, ?);`,
		entry.Username,
		entry.ID,
		entry.Sender,
		entry.Subject,
		entry.ReceivedAt,
		entry.ExpireAt,
		entry.HasAttachments,
	)
	if err != nil {
		return fmt.Errorf("put entry: %w", err)
	}
	return nil
}

// Query lists a user's entries newest first. sentAfter is an exclusive lower
// bound on received_at; pass 0 to start from the beginning of time. limit
// bounds the result count and falls back to 10 when not positive.
func (s *Store) Query(ctx context.Context, username string, sentAfter int64, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `SELECT username, id, sender, subject, received_at, expire_at, has_attachments
        FROM inbox
        WHERE username = ? AND received_at > ?
        ORDER BY received_at DESC, id DESC
        LIMIT ?;`

	rows, err := s.db.QueryContext(ctx, query, username, sentAfter, limit)
	if err != nil {
		return nil, fmt.Errorf("query inbox: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(
			&entry.Username,
			&entry.ID,
			&entry.Sender,
			&entry.Subject,
			&entry.ReceivedAt,
			&entry.ExpireAt,
			&entry.HasAttachments,
		); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query inbox: %w", err)
	}
	return entries, nil
}

// Exists checks for an entry without touching the raw message blob.
func (s *Store) Exists(ctx context.Context, username, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM inbox WHERE username = ? AND id = ? LIMIT 1;`,
		username, id,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists: %w", err)
	}
	return true, nil
}

// Referenced reports whether any inbox entry, for any user, still points at
// the message id. A false result means the raw blob has no remaining owner
// and can be reclaimed.
func (s *Store) Referenced(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM inbox WHERE id = ? LIMIT 1;`,
		id,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("referenced: %w", err)
	}
	return true, nil
}

// Delete removes an entry and reports whether a row existed. Deleting twice
// returns true then false.
func (s *Store) Delete(ctx context.Context, username, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM inbox WHERE username = ? AND id = ?;`,
		username, id,
	)
	if err != nil {
		return false, fmt.Errorf("delete entry: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete entry: %w", err)
	}
	return rows > 0, nil
}

// PurgeExpired removes entries whose expire_at has passed and returns the
// orphaned message ids no surviving entry references, so the caller can drop
// the raw blobs too.
func (s *Store) PurgeExpired(ctx context.Context, now int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT id FROM inbox
        WHERE expire_at <= ?
        AND id NOT IN (SELECT id FROM inbox WHERE expire_at > ?);`, now, now)
	if err != nil {
		return nil, fmt.Errorf("purge expired: %w", err)
	}
	defer rows.Close()

	var orphaned []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("purge expired: %w", err)
		}
		orphaned = append(orphaned, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("purge expired: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM inbox WHERE expire_at <= ?;`, now); err != nil {
		return nil, fmt.Errorf("purge expired: %w", err)
	}
	return orphaned, nil
}
