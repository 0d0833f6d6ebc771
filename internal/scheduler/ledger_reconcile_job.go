package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v84"
	"go.uber.org/multierr"

	"github.com/lucasmedrano/communitas-backend/internal/reconciler"
	"github.com/lucasmedrano/communitas-backend/pkg/db/models"
	"github.com/lucasmedrano/communitas-backend/pkg/enums"
	"github.com/lucasmedrano/communitas-backend/pkg/logger"
)

const (
	defaultReconcileLimit    = 250
	defaultReconcileLookback = 7 * 24 * time.Hour
)

// providerFetcher is the slice of the payment provider the job needs.
type providerFetcher interface {
	Get(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
}

// eventProcessor applies a provider event to the ledger.
type eventProcessor interface {
	Process(ctx context.Context, event reconciler.Event) (reconciler.Outcome, error)
}

// LedgerReconcileJobParams configure the stale-ledger sync job.
type LedgerReconcileJobParams struct {
	Logger     *logger.Logger
	LedgerRepo staleLister
	Provider   providerFetcher
	Reconciler eventProcessor
	Limit      int
	Lookback   time.Duration
	Now        func() time.Time
}

type staleLister interface {
	ListStale(ctx context.Context, updatedBefore time.Time, limit int) ([]models.Subscription, error)
}

// NewLedgerReconcileJob builds a job that re-reads provider state for ledger
// rows no webhook has touched in a while and replays the snapshot through
// the reconciler. Missed or dropped webhook deliveries converge here.
func NewLedgerReconcileJob(params LedgerReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.LedgerRepo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Provider == nil {
		return nil, fmt.Errorf("provider client required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultReconcileLimit
	}
	lookback := params.Lookback
	if lookback <= 0 {
		lookback = defaultReconcileLookback
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &ledgerReconcileJob{
		logg:       params.Logger,
		ledgerRepo: params.LedgerRepo,
		provider:   params.Provider,
		reconciler: params.Reconciler,
		limit:      limit,
		lookback:   lookback,
		now:        now,
	}, nil
}

type ledgerReconcileJob struct {
	logg       *logger.Logger
	ledgerRepo staleLister
	provider   providerFetcher
	reconciler eventProcessor
	limit      int
	lookback   time.Duration
	now        func() time.Time
}

func (j *ledgerReconcileJob) Name() string { return "ledger-reconcile" }

func (j *ledgerReconcileJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.lookback)
	stale, err := j.ledgerRepo.ListStale(ctx, cutoff, j.limit)
	if err != nil {
		return fmt.Errorf("list stale ledger rows: %w", err)
	}

	var errs error
	synced := 0
	for i := range stale {
		if err := j.sync(ctx, &stale[i]); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		synced++
	}

	reportCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(stale),
		"synced":     synced,
	})
	j.logg.Info(reportCtx, "ledger reconcile sweep complete")
	return errs
}

func (j *ledgerReconcileJob) sync(ctx context.Context, row *models.Subscription) error {
	logCtx := j.logg.WithSubscriptionID(ctx, row.StripeSubscriptionID)

	sub, err := j.provider.Get(logCtx, row.StripeSubscriptionID, nil)
	if err != nil {
		return fmt.Errorf("fetch provider subscription %s: %w", row.StripeSubscriptionID, err)
	}
	if sub == nil {
		j.logg.Warn(logCtx, "subscription unknown to provider, skipping")
		return nil
	}

	event := snapshotEvent(sub, j.now())
	outcome, err := j.reconciler.Process(logCtx, event)
	if err != nil {
		return fmt.Errorf("apply provider snapshot for %s: %w", row.StripeSubscriptionID, err)
	}

	resultCtx := j.logg.WithFields(logCtx, map[string]any{
		"provider_status": string(sub.Status),
		"outcome":         string(outcome),
	})
	j.logg.Info(resultCtx, "ledger row reconciled")
	return nil
}

// snapshotEvent turns a fetched subscription into an update event. The event
// id is derived from the snapshot content, so re-polling an unchanged
// subscription deduplicates instead of rewriting the row.
func snapshotEvent(sub *stripe.Subscription, at time.Time) reconciler.Event {
	event := reconciler.Event{
		Kind:              enums.EventKindSubscriptionUpdated,
		SubscriptionID:    sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		OccurredAt:        at.UTC(),
	}
	if sub.CanceledAt > 0 {
		canceled := time.Unix(sub.CanceledAt, 0).UTC()
		event.CanceledAt = &canceled
	}
	var periodEnd int64
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			event.PriceID = item.Price.ID
		}
		if item.CurrentPeriodStart > 0 {
			start := time.Unix(item.CurrentPeriodStart, 0).UTC()
			event.CurrentPeriodStart = &start
		}
		if item.CurrentPeriodEnd > 0 {
			periodEnd = item.CurrentPeriodEnd
			end := time.Unix(periodEnd, 0).UTC()
			event.CurrentPeriodEnd = &end
		}
	}
	event.ID = fmt.Sprintf("resync_%s_%s_%t_%d", sub.ID, sub.Status, sub.CancelAtPeriodEnd, periodEnd)
	return event
}
