package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.io/infrasutra/disposeme/internal/api"
	"github.io/infrasutra/disposeme/internal/blob"
	"github.io/infrasutra/disposeme/internal/config"
	"github.io/infrasutra/disposeme/internal/inbox"
	"github.io/infrasutra/disposeme/internal/ingest"
	"github.io/infrasutra/disposeme/internal/store"
)

const sweepInterval = time.Hour

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx := context.Background()
	index, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		logger.Error("open inbox index", "error", err)
		os.Exit(1)
	}
	defer index.Close()

	if err := index.EnsureSchema(ctx); err != nil {
		logger.Error("ensure schema", "error", err)
		os.Exit(1)
	}

	blobs, err := blob.NewFileStore(cfg.BlobPath)
	if err != nil {
		logger.Error("open blob store", "error", err)
		os.Exit(1)
	}

	if cfg.APIToken == "" {
		cfg.APIToken = strings.ReplaceAll(uuid.NewString(), "-", "")
		logger.Warn("API_TOKEN not set; generated one for this run", "token", cfg.APIToken)
	}

	resolver := inbox.Resolver{Domain: cfg.Domain, FilterDomain: cfg.FilterRecipientDomain}
	processor := ingest.NewProcessor(blobs, index, resolver, cfg.EmailTTLDays, logger)

	apiServer, err := api.NewServer(cfg, index, blobs, processor, logger)
	if err != nil {
		logger.Error("init api server", "error", err)
		os.Exit(1)
	}

	httpAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	httpSrv := &http.Server{
		Addr:    httpAddr,
		Handler: apiServer,
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go runSweep(sweepCtx, index, blobs, logger)

	go func() {
		logger.Info("http server listening", "addr", httpAddr, "domain", cfg.Domain, "retentionDays", cfg.EmailTTLDays)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown http", "error", err)
	}
}

// runSweep periodically removes expired inbox entries and the raw blobs no
// surviving entry references.
func runSweep(ctx context.Context, index *store.Store, blobs blob.Store, logger *slog.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepOnce(ctx, index, blobs, logger)
		}
	}
}

func sweepOnce(ctx context.Context, index *store.Store, blobs blob.Store, logger *slog.Logger) {
	orphaned, err := index.PurgeExpired(ctx, time.Now().Unix())
	if err != nil {
		logger.Error("ttl sweep", "error", err)
		return
	}
	for _, id := range orphaned {
		if err := blobs.Delete(ctx, id); err != nil {
			logger.Warn("ttl sweep: delete blob", "messageId", id, "error", err)
		}
	}
	if len(orphaned) > 0 {
		logger.Info("ttl sweep", "deletedBlobs", len(orphaned))
	}

	// Blob age is authoritative for reclamation: a blob past the maximum
	// retention window that no row references is garbage regardless of how
	// its rows went away (expiry, user delete, failed ingest, crash between
	// row delete and blob delete).
	cutoff := time.Now().Add(-time.Duration(config.MaxEmailTTLDays+1) * 24 * time.Hour)
	stale, err := blobs.ListOlderThan(ctx, cutoff)
	if err != nil {
		logger.Error("blob sweep", "error", err)
		return
	}
	reclaimed := 0
	for _, id := range stale {
		referenced, err := index.Referenced(ctx, id)
		if err != nil {
			logger.Warn("blob sweep: reference check", "messageId", id, "error", err)
			continue
		}
		if referenced {
			continue
		}
		if err := blobs.Delete(ctx, id); err != nil {
			logger.Warn("blob sweep: delete blob", "messageId", id, "error", err)
			continue
		}
		reclaimed++
	}
	if reclaimed > 0 {
		logger.Info("blob sweep", "reclaimedBlobs", reclaimed)
	}
}
