package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	emailPkg "gymroster/internal/adapters/email"
	web "gymroster/internal/adapters/http"
	"gymroster/internal/adapters/http/middleware"
	"gymroster/internal/adapters/http/perf"
	"gymroster/internal/adapters/storage"
	attemptStore "gymroster/internal/adapters/storage/attempt"
	courserowStore "gymroster/internal/adapters/storage/courserow"
	"gymroster/internal/adapters/storage/documents"
	memberStore "gymroster/internal/adapters/storage/member"
	outboxStorePkg "gymroster/internal/adapters/storage/outbox"
	totalsStore "gymroster/internal/adapters/storage/totals"
	"gymroster/internal/application/orchestrators"
	"gymroster/internal/config"
	"gymroster/internal/domain/account"
	domainOutbox "gymroster/internal/domain/outbox"
	"gymroster/pkg/logging"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

// devAdminPassword is used outside production when no password is configured.
const devAdminPassword = "adminpass"

func main() {
	if err := run(); err != nil {
		slog.Error("server_failed", "error", err)
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

	db, err := storage.OpenSQLite(cfg.Server.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := storage.MigrateDB(db, cfg.Server.DBPath); err != nil {
		return err
	}

	// Performance instrumentation: wrap DB with timing, create collector
	collector := perf.NewCollector(perf.DefaultRingSize)
	timedDB := storage.NewTimedDB(db, collector).WithSlowThreshold(cfg.Log.SlowQuery)

	docs, err := documents.NewDirStore(cfg.Server.UploadDir)
	if err != nil {
		return err
	}
	stores := &web.Stores{
		MemberStore:  memberStore.NewSQLiteStore(timedDB),
		RowStore:     courserowStore.NewSQLiteStore(timedDB),
		TotalsStore:  totalsStore.NewSQLiteStore(timedDB),
		AttemptStore: attemptStore.NewSQLiteStore(timedDB),
		OutboxStore:  outboxStorePkg.NewSQLiteStore(timedDB),
		Documents:    docs,
	}

	password := cfg.Server.AdminPassword
	if password == "" {
		if cfg.IsProduction() {
			return errors.New("GYMROSTER_ADMIN_PASSWORD must be set in production")
		}
		password = devAdminPassword
		slog.Warn("admin_password_default", "username", cfg.Server.AdminUsername)
	}
	admin, err := account.NewAdmin(cfg.Server.AdminUsername, password)
	if err != nil {
		return err
	}

	// Configure email sender
	var sender emailPkg.Sender
	if cfg.Mail.ResendAPIKey != "" {
		sender = emailPkg.NewResendSender(cfg.Mail.ResendAPIKey, cfg.Mail.From, cfg.Mail.ReplyTo)
		slog.Info("email_sender_configured", "provider", "resend")
	} else {
		sender = emailPkg.NewNoopSender()
		if cfg.IsProduction() {
			slog.Warn("email_delivery_disabled", "reason", "RESEND_API_KEY is not set")
		} else {
			slog.Info("email_sender_configured", "provider", "noop")
		}
	}

	metrics, err := web.NewMetrics(collector, stores.OutboxStore)
	if err != nil {
		return err
	}
	srv := web.NewServer(stores, web.Options{
		Admin:              admin,
		SeedCourse:         cfg.Server.SeedCourse,
		Months:             cfg.Months.ServerKeys(),
		RateLimitPerSecond: cfg.Server.RateLimitPerSecond,
		Executors: map[string]orchestrators.ActionExecutor{
			domainOutbox.ActionTypeEmail: &orchestrators.EmailExecutor{Sender: sender},
		},
	}, collector, metrics)

	stop := make(chan struct{})

	// Outbox worker delivers reminder and upload notification emails.
	worker := orchestrators.StartBackgroundWorker(srv.Outbox(), cfg.Server.OutboxInterval, stop)

	go sweepSessions(srv, stop)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(stop),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server_starting", "version", version, "addr", cfg.Server.Addr, "env", cfg.Env, "schema", storage.LatestSchemaVersion())
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		close(stop)
		worker.Wait()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("server_stopping")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	err = httpServer.Shutdown(shutdownCtx)
	close(stop)
	worker.Wait()
	return err
}

// sweepSessions drops expired sessions every few minutes until stop is closed.
func sweepSessions(srv *web.Server, stop <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if expired := srv.Sessions().Sweep(); len(expired) > 0 {
				slog.Info("sessions_swept", "count", len(expired))
			}
		}
	}
}
