package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v84"

	"github.com/lucasmedrano/communitas-backend/internal/reconciler"
	stripewebhook "github.com/lucasmedrano/communitas-backend/internal/webhooks/stripe"
	"github.com/lucasmedrano/communitas-backend/pkg/config"
	"github.com/lucasmedrano/communitas-backend/pkg/logger"
)

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

type noopProcessor struct{}

func (noopProcessor) Process(context.Context, reconciler.Event) (reconciler.Outcome, error) {
	return reconciler.OutcomeApplied, nil
}

type noopFetcher struct{}

func (noopFetcher) Get(context.Context, string, *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	return nil, nil
}

type noopSecrets struct{}

func (noopSecrets) SigningSecret() string { return "whsec_test" }

type noopStore struct{}

func (noopStore) Get(context.Context, string) (string, error) { return "", nil }
func (noopStore) SetNX(context.Context, string, any, time.Duration) (bool, error) {
	return true, nil
}
func (noopStore) IdempotencyKey(scope, id string) string { return scope + ":" + id }
func (noopStore) Del(context.Context, ...string) error   { return nil }

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.ErrorLevel, Output: io.Discard})
	webhookSvc, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Reconciler:   noopProcessor{},
		StripeClient: noopFetcher{},
		Logger:       logg,
	})
	if err != nil {
		t.Fatalf("webhook service: %v", err)
	}
	guard, err := stripewebhook.NewIdempotencyGuard(noopStore{}, time.Minute, "stripe-webhook")
	if err != nil {
		t.Fatalf("guard: %v", err)
	}

	cfg := &config.Config{}
	cfg.App.Env = "dev"

	return NewRouter(RouterParams{
		Config:  cfg,
		Logger:  logg,
		DB:      okPinger{},
		Redis:   okPinger{},
		Stripe:  noopSecrets{},
		Guard:   guard,
		Webhook: webhookSvc,
	})
}

func TestRouterHealthLive(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRouterHealthReady(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRouterMetricsExposed(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRouterProtectedRoutesRequireIdentity(t *testing.T) {
	router := newTestRouter(t)
	paths := []string{
		"/api/v1/subscriptions",
		"/api/v1/reports/revenue",
	}
	for _, path := range paths {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 for %s, got %d", path, rec.Code)
		}
	}
}

func TestRouterWebhookRejectsUnsigned(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsigned delivery, got %d", rec.Code)
	}
}

func TestRouterIdentityHeaderReachesHandlers(t *testing.T) {
	router := newTestRouter(t)
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/reports/revenue?start=2026-01-01&end=2026-02-01", nil)
	r.Header.Set("X-User-Id", uuid.NewString())
	router.ServeHTTP(rec, r)
	// Revenue service is unwired in this fixture; identity must still clear
	// the middleware and fail further in.
	if rec.Code == http.StatusUnauthorized {
		t.Fatal("expected identity middleware to pass the request through")
	}
}
