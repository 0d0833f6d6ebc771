package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lucasmedrano/communitas-backend/api/routes"
	"github.com/lucasmedrano/communitas-backend/internal/communities"
	"github.com/lucasmedrano/communitas-backend/internal/entitlements"
	"github.com/lucasmedrano/communitas-backend/internal/invoices"
	"github.com/lucasmedrano/communitas-backend/internal/ledger"
	"github.com/lucasmedrano/communitas-backend/internal/memberships"
	"github.com/lucasmedrano/communitas-backend/internal/notifications"
	"github.com/lucasmedrano/communitas-backend/internal/reconciler"
	"github.com/lucasmedrano/communitas-backend/internal/revenue"
	"github.com/lucasmedrano/communitas-backend/internal/subscriptions"
	"github.com/lucasmedrano/communitas-backend/internal/users"
	stripewebhook "github.com/lucasmedrano/communitas-backend/internal/webhooks/stripe"
	"github.com/lucasmedrano/communitas-backend/pkg/config"
	"github.com/lucasmedrano/communitas-backend/pkg/db"
	"github.com/lucasmedrano/communitas-backend/pkg/logger"
	"github.com/lucasmedrano/communitas-backend/pkg/metrics"
	"github.com/lucasmedrano/communitas-backend/pkg/migrate"
	"github.com/lucasmedrano/communitas-backend/pkg/redis"
	"github.com/lucasmedrano/communitas-backend/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

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
	userRepo := users.NewRepository(dbClient.DB())

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

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Reconciler:   reconcilerService,
		StripeClient: provider,
		Logger:       logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Stripe.GuardTTL, "stripe-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	subscriptionService, err := subscriptions.NewService(subscriptions.ServiceParams{
		Provider:    provider,
		LedgerRepo:  ledgerRepo,
		InvoiceRepo: invoiceRepo,
		Communities: communityRepo,
		Users:       userRepo,
		Stripe:      cfg.Stripe,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscription service", err)
		os.Exit(1)
	}

	revenueService, err := revenue.NewService(revenue.NewRepository(dbClient.DB()), cfg.Platform)
	if err != nil {
		logg.Error(context.Background(), "failed to create revenue service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:         cfg,
			Logger:         logg,
			DB:             dbClient,
			Redis:          redisClient,
			Stripe:         stripeClient,
			Guard:          webhookGuard,
			Webhook:        webhookService,
			Subscriptions:  subscriptionService,
			Revenue:        revenueService,
			WebhookMetrics: metrics.NewWebhookMetrics(prometheus.DefaultRegisterer),
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
