package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // Business-day timezones in a scratch container

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/barsync/internal/adapter/driven/breaker"
	"github.com/ericfisherdev/barsync/internal/adapter/driven/contahub"
	"github.com/ericfisherdev/barsync/internal/adapter/driven/nibo"
	sqliteadapter "github.com/ericfisherdev/barsync/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/barsync/internal/adapter/driven/webhook"
	httphandler "github.com/ericfisherdev/barsync/internal/adapter/driving/http"
	"github.com/ericfisherdev/barsync/internal/application"
	"github.com/ericfisherdev/barsync/internal/config"
	"github.com/ericfisherdev/barsync/internal/domain/port/driven"
	"github.com/ericfisherdev/barsync/internal/supervisor"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on invalid env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"environment", cfg.Environment,
		"schedule_interval", cfg.ScheduleInterval,
		"timezone", cfg.Timezone.String(),
		"webhook", cfg.WebhookURL != "",
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	version, err := sqliteadapter.RunMigrations(db.Writer)
	if err != nil {
		return err
	}
	slog.Info("migrations complete", "schema_version", version)

	// 5. Wire stores.
	credentialStore := sqliteadapter.NewCredentialRepo(db, cfg.SecretKey)
	queueStore := sqliteadapter.NewQueueRepo(db)
	canonicalStore := sqliteadapter.NewCanonicalRepo(db)
	runStore := sqliteadapter.NewRunRepo(db)

	if !cfg.HasSecretKey() {
		slog.Warn("BARSYNC_SECRET_KEY not set, credentials cannot be read and every sync will fail")
	}

	// 5b. Seed credentials from file.
	if cfg.CredentialsFile != "" {
		if err := seedCredentials(ctx, cfg, credentialStore); err != nil {
			return err
		}
	}

	// 6. Vendor clients, each behind its own circuit breaker.
	breakerSettings := breaker.Settings{
		ConsecutiveFailures: uint32(cfg.BreakerFailures),
		OpenTimeout:         cfg.BreakerTimeout,
	}
	vendors := application.NewVendorRegistry(
		breaker.Wrap(contahub.NewClient(cfg.HTTPTimeout), breakerSettings),
		breaker.Wrap(nibo.NewClient(cfg.HTTPTimeout), breakerSettings),
	)

	// 7. Notifier.
	var notifier driven.Notifier = webhook.LogNotifier{}
	if cfg.WebhookURL != "" {
		notifier = webhook.New(cfg.WebhookURL, cfg.HTTPTimeout)
	}

	// 8. Application services.
	processor := application.NewProcessor(queueStore, canonicalStore)
	orchestrator := application.NewOrchestrator(vendors, credentialStore, queueStore, processor, runStore, notifier,
		application.OrchestratorConfig{
			Environment:          cfg.Environment,
			InterDayDelay:        cfg.InterDayDelay,
			ClaimLimit:           cfg.ClaimLimit,
			RetryAttempts:        cfg.RetryAttempts,
			RetryInitialInterval: cfg.RetryInitialInterval,
			MaxRangeDays:         cfg.MaxRangeDays,
		})

	tree := supervisor.NewTree(logger, supervisor.DefaultTreeConfig())

	// A nil *Scheduler must not reach the handler as a non-nil interface.
	var trigger httphandler.ScheduleTrigger
	if cfg.SchedulerEnabled() {
		scheduler := application.NewScheduler(orchestrator, credentialStore, queueStore, processor,
			application.SchedulerConfig{
				Environment: cfg.Environment,
				Interval:    cfg.ScheduleInterval,
				DataTypes:   cfg.ScheduleDataTypes,
				ClaimLimit:  cfg.ClaimLimit,
				Location:    cfg.Timezone,
			})
		tree.AddWorker(scheduler)
		trigger = scheduler
	} else {
		slog.Info("scheduler disabled")
	}

	// 9. HTTP API.
	apiHandler := httphandler.NewHandler(orchestrator, processor, queueStore, runStore, trigger, cfg.ClaimLimit, logger)
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(apiHandler, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Synchronous backfills answer only when the whole range is done.
		WriteTimeout: 2 * time.Hour,
		IdleTimeout:  120 * time.Second,
	}
	tree.AddAPI(supervisor.NewHTTPService(srv, cfg.ListenAddr, 10*time.Second))

	slog.Info("barsync started", "listen_addr", cfg.ListenAddr)

	// 10. Run until a shutdown signal.
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		if ctx.Err() == nil {
			return fmt.Errorf("supervisor: %w", err)
		}
		slog.Error("supervisor shutdown error", "error", err)
	}

	if unstopped, err := tree.UnstoppedServiceReport(); err == nil && len(unstopped) > 0 {
		for _, svc := range unstopped {
			slog.Warn("service did not stop in time", "service", svc.Name)
		}
	}

	slog.Info("shutdown complete")
	return nil
}

// seedCredentials upserts every credential of the configured file into the
// encrypted store.
func seedCredentials(ctx context.Context, cfg *config.Config, store driven.CredentialStore) error {
	if !cfg.HasSecretKey() {
		return errors.New("BARSYNC_CREDENTIALS_FILE requires BARSYNC_SECRET_KEY")
	}

	creds, err := config.LoadCredentials(cfg.CredentialsFile, cfg.Environment)
	if err != nil {
		return err
	}

	for _, c := range creds {
		if err := store.Upsert(ctx, c); err != nil {
			return fmt.Errorf("seed credential tenant %d %s: %w", c.TenantID, c.Vendor, err)
		}
	}

	slog.Info("credentials seeded", "file", cfg.CredentialsFile, "count", len(creds))
	return nil
}
