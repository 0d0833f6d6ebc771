package stripewebhook

import (
	"context"

	"github.com/stripe/stripe-go/v84"

	"github.com/lucasmedrano/communitas-backend/internal/reconciler"
	"github.com/lucasmedrano/communitas-backend/pkg/enums"
	pkgerrors "github.com/lucasmedrano/communitas-backend/pkg/errors"
	"github.com/lucasmedrano/communitas-backend/pkg/logger"
)

type eventProcessor interface {
	Process(ctx context.Context, event reconciler.Event) (reconciler.Outcome, error)
}

type subscriptionFetcher interface {
	Get(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
}

// ServiceParams wires the webhook gateway's collaborators.
type ServiceParams struct {
	Reconciler   eventProcessor
	StripeClient subscriptionFetcher
	Logger       *logger.Logger
}

// Service turns verified provider events into reconciler invocations. It
// owns payload decoding; signature verification happens at the controller
// over the exact request bytes.
type Service struct {
	reconciler eventProcessor
	stripe     subscriptionFetcher
	logger     *logger.Logger
}

// NewService validates dependencies and builds the gateway service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Reconciler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciler required")
	}
	if params.StripeClient == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		reconciler: params.Reconciler,
		stripe:     params.StripeClient,
		logger:     params.Logger,
	}, nil
}

// HandleEvent maps and applies one verified event, reporting the reconciler
// outcome so the controller can meter deliveries.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) (reconciler.Outcome, error) {
	mapped, err := MapEvent(event)
	if err != nil {
		return "", err
	}

	// A payment failure's payload carries only the invoice; whether the
	// provider escalated to unpaid lives on the subscription itself.
	if mapped.Kind == enums.EventKindPaymentFailed {
		s.resolveFailureStatus(ctx, &mapped)
	}

	return s.reconciler.Process(ctx, mapped)
}

func (s *Service) resolveFailureStatus(ctx context.Context, event *reconciler.Event) {
	sub, err := s.stripe.Get(ctx, event.SubscriptionID, &stripe.SubscriptionParams{})
	if err != nil {
		// Keep the grace-period default; the escalation event or the sweep
		// will catch up.
		s.logger.Error(ctx, "fetch subscription status after payment failure", err)
		return
	}
	if sub != nil && sub.Status != "" {
		event.Status = string(sub.Status)
	}
}
