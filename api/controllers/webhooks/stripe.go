package webhooks

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/lucasmedrano/communitas-backend/api/responses"
	"github.com/lucasmedrano/communitas-backend/internal/reconciler"
	pkgerrors "github.com/lucasmedrano/communitas-backend/pkg/errors"
	"github.com/lucasmedrano/communitas-backend/pkg/logger"
	"github.com/lucasmedrano/communitas-backend/pkg/metrics"
)

type stripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) (reconciler.Outcome, error)
}

type stripeWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type signingSecretSource interface {
	SigningSecret() string
}

// orphanRetryWindow bounds how long an orphan delivery keeps answering
// non-2xx. Inside the window the checkout race resolves and a redelivery
// lands on the created row; past it the subscription id is foreign for good
// and the event is acknowledged so the provider stops retrying.
const orphanRetryWindow = 24 * time.Hour

// StripeWebhook receives provider deliveries: verify the signature, screen
// redeliveries through the redis guard, and hand the event to the gateway
// service. Orphans answer non-2xx so the provider keeps redelivering until
// the ledger row exists, up to orphanRetryWindow after the event was issued.
func StripeWebhook(svc stripeWebhookService, secrets signingSecretSource, guard stripeWebhookGuard, meter *metrics.WebhookMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil || secrets == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook pipeline unavailable"))
			return
		}

		start := time.Now()
		defer func() { meter.ObserveDuration(time.Since(start)) }()

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			meter.IncEvent("rejected", "unsigned")
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		event, err := webhook.ConstructEvent(payload, sigHeader, secrets.SigningSecret())
		if err != nil {
			meter.IncEvent("rejected", "bad_signature")
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "verify signature"))
			return
		}

		if logg != nil {
			ctx = logg.WithEventID(ctx, event.ID)
		}

		alreadySeen, err := guard.CheckAndMark(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadySeen {
			meter.IncEvent("duplicate", string(event.Type))
			responses.WriteSuccess(w, map[string]string{"outcome": string(reconciler.OutcomeDuplicate)})
			return
		}

		outcome, err := svc.HandleEvent(ctx, &event)
		if err != nil {
			// Drop the guard mark so the provider's retry is not screened out.
			_ = guard.Delete(ctx, event.ID)
			meter.IncEvent("failed", string(event.Type))
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if outcome == reconciler.OutcomeOrphan {
			meter.IncOrphan()
			if event.Created > 0 && time.Since(time.Unix(event.Created, 0)) > orphanRetryWindow {
				// Keep the guard mark: further redeliveries dedupe instead of
				// erroring for a subscription this ledger will never know.
				meter.IncEvent("ignored", string(event.Type))
				if logg != nil {
					logg.Warn(ctx, "orphan event past retry window, acknowledging")
				}
				responses.WriteSuccess(w, map[string]string{"outcome": string(outcome)})
				return
			}
			_ = guard.Delete(ctx, event.ID)
			meter.IncEvent("rejected", string(event.Type))
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeConflict, "event precedes subscription record"))
			return
		}

		switch outcome {
		case reconciler.OutcomeDuplicate:
			meter.IncEvent("duplicate", string(event.Type))
		default:
			meter.IncEvent("accepted", string(event.Type))
		}
		if logg != nil {
			logg.Info(ctx, "stripe event processed")
		}
		responses.WriteSuccess(w, map[string]string{"outcome": string(outcome)})
	}
}
