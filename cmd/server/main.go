package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"filevault/internal/server/api"
	"filevault/internal/server/auth"
	"filevault/internal/server/config"
	"filevault/internal/server/service"
	"filevault/internal/server/storage"
	"filevault/internal/server/store"
)

func main() {
	// Structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load config
	cfg := config.Load()
	slog.Info("configuration loaded",
		"port", cfg.Port,
		"data_dir", cfg.DataDir,
		"max_file_size", cfg.MaxFileSize,
		"upload_delay", cfg.UploadDelay,
	)

	// User directory, seeded with the demo account on first run
	users := store.NewUserStore(cfg.UsersPath())
	if err := users.Init(); err != nil {
		slog.Error("failed to initialize user store", "error", err)
		os.Exit(1)
	}

	// Per-user file indexes
	index := store.NewIndexStore(cfg.IndexDir())
	if err := index.EnsureDir(); err != nil {
		slog.Error("failed to initialize index store", "error", err)
		os.Exit(1)
	}

	// Blob storage and reference ledger
	blobs := storage.NewFileSystemStore(cfg.UploadsDir())
	if err := blobs.EnsureDir(); err != nil {
		slog.Error("failed to initialize blob storage", "error", err)
		os.Exit(1)
	}
	refs, err := storage.NewRefCounter(cfg.RefCountsPath())
	if err != nil {
		slog.Error("failed to load refcount ledger", "error", err)
		os.Exit(1)
	}

	// Backfill ledger entries for data directories written before the
	// ledger existed, so shared blobs keep their full reference counts.
	counts, err := index.ReferenceCounts()
	if err != nil {
		slog.Error("failed to count blob references", "error", err)
		os.Exit(1)
	}
	if err := refs.SeedMissing(counts); err != nil {
		slog.Error("failed to seed refcount ledger", "error", err)
		os.Exit(1)
	}
	slog.Info("storage initialized", "path", cfg.UploadsDir())

	// Services
	tokens := auth.NewIssuer([]byte(cfg.TokenSecret), cfg.TokenTTL)
	accounts := service.NewAccountService(users, index, tokens)
	files := service.NewFileService(users, index, blobs, refs, cfg.MaxFileSize, cfg.UploadDelay)

	// Start orphan-blob sweeper
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	sweeper := storage.NewSweeper(index, blobs, refs, cfg.SweepInterval)
	sweeper.Start(sweepCtx)

	// Setup HTTP router
	handler := api.NewHandler(accounts, files)
	e := api.SetupRouter(handler, tokens, cfg)

	// Start server in a goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		slog.Info("starting server", "addr", addr)
		if err := e.Start(addr); err != nil {
			slog.Info("server stopped", "reason", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down", "signal", sig)

	// Stop accepting new requests, finish in-flight with 30s timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop sweeper
	sweepCancel()
	sweeper.Wait()

	slog.Info("server exited cleanly")
}
