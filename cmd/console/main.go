package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"gymroster/internal/adapters/console"
	"gymroster/internal/adapters/http/middleware"
	"gymroster/internal/adapters/http/perf"
	"gymroster/internal/adapters/storage"
	"gymroster/internal/adapters/storage/draft"
	"gymroster/internal/config"
	"gymroster/pkg/logging"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("console_failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup()
		return err
	}
	logging.SetupNamed(cfg.Log.Level)
	middleware.SetSlowRequestThreshold(cfg.Log.SlowRequest)

	csrfKey, err := loadCSRFKey(cfg)
	if err != nil {
		return err
	}

	db, err := storage.OpenSQLite(cfg.Console.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := storage.MigrateDraftDB(db, cfg.Console.DBPath); err != nil {
		return err
	}

	collector := perf.NewCollector(perf.DefaultRingSize)
	drafts := draft.NewSQLiteStore(storage.NewTimedDB(db, collector).WithSlowThreshold(cfg.Log.SlowQuery))
	purged, err := drafts.DeleteAll(context.Background())
	if err != nil {
		return fmt.Errorf("purging drafts: %w", err)
	}
	if purged > 0 {
		slog.Info("stale_drafts_purged", "count", purged)
	}

	srv := console.NewServer(console.Options{
		RemoteURL:       cfg.Console.RemoteURL,
		RemoteTimeout:   cfg.Console.RemoteTimeout,
		Courses:         cfg.Console.Courses,
		DocumentCourses: cfg.Console.DocumentCourses,
		Months:          cfg.Months.ConsoleSequence(),
		CSRFKey:         csrfKey,
	}, drafts, collector)

	stop := make(chan struct{})
	go srv.RunSweeper(stop, 5*time.Minute)

	httpServer := &http.Server{
		Addr:              cfg.Console.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("console_starting", "version", version, "addr", cfg.Console.Addr, "remote", cfg.Console.RemoteURL)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		close(stop)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("console_stopping")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	err = httpServer.Shutdown(shutdownCtx)
	close(stop)
	srv.Shutdown(shutdownCtx)
	return err
}

// loadCSRFKey decodes the configured key. Outside production a missing
// key is replaced by a random one, which invalidates open forms on restart.
func loadCSRFKey(cfg config.Config) ([]byte, error) {
	if cfg.Console.CSRFKey != "" {
		key, err := hex.DecodeString(cfg.Console.CSRFKey)
		if err != nil {
			return nil, fmt.Errorf("decode GYMROSTER_CSRF_KEY: %w", err)
		}
		return key, nil
	}
	if cfg.IsProduction() {
		return nil, errors.New("GYMROSTER_CSRF_KEY must be set in production")
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	slog.Warn("csrf_key_generated", "reason", "GYMROSTER_CSRF_KEY is not set")
	return key, nil
}
