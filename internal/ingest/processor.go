// Package ingest drives an incoming message through parse, recipient
// resolution and inbox fan-out.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.io/infrasutra/disposeme/internal/email"
	"github.io/infrasutra/disposeme/internal/inbox"
	"github.io/infrasutra/disposeme/internal/store"
)

// BlobGetter fetches a raw message by id.
type BlobGetter interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// IndexWriter writes per-recipient inbox entries.
type IndexWriter interface {
	Put(ctx context.Context, entry store.Entry) error
}

type Processor struct {
	blobs         BlobGetter
	index         IndexWriter
	resolver      inbox.Resolver
	retentionDays int
	logger        *slog.Logger
}

func NewProcessor(blobs BlobGetter, index IndexWriter, resolver inbox.Resolver, retentionDays int, logger *slog.Logger) *Processor {
	if retentionDays < 1 {
		retentionDays = 1
	}
	return &Processor{
		blobs:         blobs,
		index:         index,
		resolver:      resolver,
		retentionDays: retentionDays,
		logger:        logger,
	}
}

// Process ingests the message stored under messageID: fetch the blob, parse
// it once, resolve recipients and write one entry per recipient. Writes run
// concurrently and their outcomes are collected independently; one failed
// recipient never discards the others. The aggregated error is returned after
// logging so the external trigger can redrive — writes are idempotent, so a
// retry is safe.
func (p *Processor) Process(ctx context.Context, messageID string) error {
	raw, err := p.blobs.Get(ctx, messageID)
	if err != nil {
		p.logger.Error("fetch raw message", "messageId", messageID, "error", err)
		return fmt.Errorf("fetch raw message %s: %w", messageID, err)
	}

	parsed, err := email.Parse(raw)
	if err != nil {
		p.logger.Error("parse message", "messageId", messageID, "error", err)
		return fmt.Errorf("parse message %s: %w", messageID, err)
	}

	usernames := p.resolver.Resolve(parsed)
	p.logger.Info("fan-out",
		"messageId", messageID,
		"from", parsed.SenderAddress(),
		"recipients", usernames,
	)

	receivedAt := parsed.Received.Unix()
	expireAt := receivedAt + int64(p.retentionDays)*86400

	var wg sync.WaitGroup
	outcomes := make([]error, len(usernames))
	for i, username := range usernames {
		i, username := i, username
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry := store.Entry{
				Username:       username,
				ID:             messageID,
				Sender:         parsed.SenderAddress(),
				Subject:        parsed.Subject,
				ReceivedAt:     receivedAt,
				ExpireAt:       expireAt,
				HasAttachments: parsed.HasAttachments(),
			}
			if err := p.index.Put(ctx, entry); err != nil {
				outcomes[i] = fmt.Errorf("store entry for %s: %w", username, err)
			}
		}()
	}
	wg.Wait()

	if err := errors.Join(outcomes...); err != nil {
		p.logger.Error("fan-out partially failed", "messageId", messageID, "error", err)
		return err
	}
	return nil
}
