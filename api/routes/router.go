package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lucasmedrano/communitas-backend/api/controllers"
	webhookcontrollers "github.com/lucasmedrano/communitas-backend/api/controllers/webhooks"
	"github.com/lucasmedrano/communitas-backend/api/middleware"
	"github.com/lucasmedrano/communitas-backend/internal/revenue"
	subscriptionsvc "github.com/lucasmedrano/communitas-backend/internal/subscriptions"
	stripewebhook "github.com/lucasmedrano/communitas-backend/internal/webhooks/stripe"
	"github.com/lucasmedrano/communitas-backend/pkg/config"
	"github.com/lucasmedrano/communitas-backend/pkg/logger"
	"github.com/lucasmedrano/communitas-backend/pkg/metrics"
)

// Pinger is a dependency health probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams carries everything the HTTP surface needs.
type RouterParams struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      Pinger
	Redis   Pinger
	Stripe  signingSecretSource
	Guard   *stripewebhook.IdempotencyGuard
	Webhook *stripewebhook.Service

	Subscriptions subscriptionsvc.Service
	Revenue       revenue.Service

	WebhookMetrics *metrics.WebhookMetrics
}

type signingSecretSource interface {
	SigningSecret() string
}

// NewRouter wires the HTTP surface: health, metrics, the webhook intake,
// and the authenticated subscription and reporting APIs.
func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(p.Logger),
		middleware.RequestID(p.Logger),
		middleware.Logging(p.Logger),
		middleware.CORS(p.Config.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(p.Config))
		r.Get("/ready", controllers.HealthReady(p.Config, p.Logger, p.DB, p.Redis))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(p.Webhook, p.Stripe, p.Guard, p.WebhookMetrics, p.Logger))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Identity(p.Logger))

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", controllers.SubscriptionCreate(p.Subscriptions, p.Logger))
			r.Get("/", controllers.SubscriptionList(p.Subscriptions, p.Logger))
			r.Route("/{subscriptionId}", func(r chi.Router) {
				r.Get("/", controllers.SubscriptionGet(p.Subscriptions, p.Logger))
				r.Delete("/", controllers.SubscriptionCancel(p.Subscriptions, p.Logger))
				r.Post("/schedule-cancel", controllers.SubscriptionScheduleCancel(p.Subscriptions, p.Logger))
				r.Post("/unschedule-cancel", controllers.SubscriptionUnscheduleCancel(p.Subscriptions, p.Logger))
				r.Post("/pause", controllers.SubscriptionPause(p.Subscriptions, p.Logger))
				r.Post("/resume", controllers.SubscriptionResume(p.Subscriptions, p.Logger))
				r.Post("/change-plan", controllers.SubscriptionChangePlan(p.Subscriptions, p.Logger))
				r.Get("/invoices", controllers.SubscriptionInvoices(p.Subscriptions, p.Logger))
				r.Get("/upcoming-invoice", controllers.SubscriptionUpcomingInvoice(p.Subscriptions, p.Logger))
			})
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/revenue", controllers.RevenueMetrics(p.Revenue, p.Logger))
			r.Get("/payouts", controllers.CreatorPayouts(p.Revenue, p.Logger))
			r.Get("/breakdown", controllers.CreatorRevenueBreakdown(p.Revenue, p.Logger))
			r.Get("/top-communities", controllers.TopCommunities(p.Revenue, p.Logger))
			r.Get("/subscriptions", controllers.SubscriptionAnalytics(p.Revenue, p.Logger))
		})
	})

	return r
}
