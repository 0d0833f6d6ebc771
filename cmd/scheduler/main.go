package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lucasmedrano/communitas-backend/internal/communities"
	"github.com/lucasmedrano/communitas-backend/internal/entitlements"
	"github.com/lucasmedrano/communitas-backend/internal/invoices"
	"github.com/lucasmedrano/communitas-backend/internal/ledger"
	"github.com/lucasmedrano/communitas-backend/internal/memberships"
	"github.com/lucasmedrano/communitas-backend/internal/notifications"
	"github.com/lucasmedrano/communitas-backend/internal/reconciler"
	"github.com/lucasmedrano/communitas-backend/internal/scheduler"
	"github.com/lucasmedrano/communitas-backend/internal/subscriptions"
	"github.com/lucasmedrano/communitas-backend/pkg/config"
	"github.com/lucasmedrano/communitas-backend/pkg/db"
	"github.com/lucasmedrano/communitas-backend/pkg/instance"
	"github.com/lucasmedrano/communitas-backend/pkg/logger"
	"github.com/lucasmedrano/communitas-backend/pkg/metrics"
	"github.com/lucasmedrano/communitas-backend/pkg/redis"
	"github.com/lucasmedrano/communitas-backend/pkg/stripe"
)

const lockKeyFormat = "scheduler-cycle-%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "scheduler"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "scheduler",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe client", err)
		os.Exit(1)
	}
	provider := subscriptions.NewProviderClient(stripeClient)

	ledgerRepo := ledger.NewRepository(dbClient.DB())
	invoiceRepo := invoices.NewRepository(dbClient.DB())
	communityRepo := communities.NewRepository(dbClient.DB())
	membershipRepo := memberships.NewRepository(dbClient.DB())

	entitlementManager, err := entitlements.NewManager(membershipRepo, communityRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create entitlement manager", err)
		os.Exit(1)
	}

	notifier, err := notifications.NewLogNotifier(logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifier", err)
		os.Exit(1)
	}

	reconcilerService, err := reconciler.NewService(reconciler.ServiceParams{
		LedgerRepo:        ledgerRepo,
		InvoiceRepo:       invoiceRepo,
		Entitlements:      entitlementManager,
		Notifier:          notifier,
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciler service", err)
		os.Exit(1)
	}

	prune, err := scheduler.NewEventPruneJob(scheduler.EventPruneJobParams{
		Logger:     logg,
		LedgerRepo: ledgerRepo,
		Retention:  cfg.Scheduler.EventRetention,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create event prune job", err)
		os.Exit(1)
	}

	graceExpiry, err := scheduler.NewGraceExpiryJob(scheduler.GraceExpiryJobParams{
		Logger:       logg,
		DB:           dbClient,
		LedgerRepo:   ledgerRepo,
		Entitlements: entitlementManager,
		Notifier:     notifier,
		GraceWindow:  cfg.Entitlements.GraceWindow,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create grace expiry job", err)
		os.Exit(1)
	}

	ledgerReconcile, err := scheduler.NewLedgerReconcileJob(scheduler.LedgerReconcileJobParams{
		Logger:     logg,
		LedgerRepo: ledgerRepo,
		Provider:   provider,
		Reconciler: reconcilerService,
		Limit:      cfg.Scheduler.ReconcileLimit,
		Lookback:   cfg.Scheduler.ReconcileLookback,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger reconcile job", err)
		os.Exit(1)
	}

	lock, err := scheduler.NewRedisLock(redisClient, redisClient.LockKey(lockKey(cfg.App.Env)), cfg.Scheduler.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create scheduler lock", err)
		os.Exit(1)
	}

	service, err := scheduler.NewService(scheduler.ServiceParams{
		Logger:   logg,
		Registry: scheduler.NewRegistry(prune, graceExpiry, ledgerReconcile),
		Lock:     lock,
		Metrics:  metrics.NewJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Scheduler.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create scheduler service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting scheduler")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "scheduler stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "scheduler shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
