package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/lucasmedrano/communitas-backend/internal/entitlements"
	"github.com/lucasmedrano/communitas-backend/internal/ledger"
	"github.com/lucasmedrano/communitas-backend/internal/notifications"
	"github.com/lucasmedrano/communitas-backend/pkg/db/models"
	"github.com/lucasmedrano/communitas-backend/pkg/enums"
	"github.com/lucasmedrano/communitas-backend/pkg/logger"
)

const defaultGraceWindow = 7 * 24 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// GraceExpiryJobParams configure the grace-window enforcement job.
type GraceExpiryJobParams struct {
	Logger       *logger.Logger
	DB           txRunner
	LedgerRepo   ledger.Repository
	Entitlements entitlements.Manager
	Notifier     notifications.Notifier
	GraceWindow  time.Duration
	Now          func() time.Time
}

// NewGraceExpiryJob builds a job that escalates subscriptions stuck in
// past_due past the grace window to unpaid and revokes their access. The
// provider normally escalates on its own retry schedule; this job is the
// backstop when it never does.
func NewGraceExpiryJob(params GraceExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.LedgerRepo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Entitlements == nil {
		return nil, fmt.Errorf("entitlement manager required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	window := params.GraceWindow
	if window <= 0 {
		window = defaultGraceWindow
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &graceExpiryJob{
		logg:         params.Logger,
		db:           params.DB,
		ledgerRepo:   params.LedgerRepo,
		entitlements: params.Entitlements,
		notifier:     params.Notifier,
		window:       window,
		now:          now,
	}, nil
}

type graceExpiryJob struct {
	logg         *logger.Logger
	db           txRunner
	ledgerRepo   ledger.Repository
	entitlements entitlements.Manager
	notifier     notifications.Notifier
	window       time.Duration
	now          func() time.Time
}

func (j *graceExpiryJob) Name() string { return "grace-period-expiry" }

func (j *graceExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.window)
	candidates, err := j.ledgerRepo.ListPastDueSince(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list expired grace periods: %w", err)
	}

	var errs error
	expired := 0
	for i := range candidates {
		if err := j.expire(ctx, &candidates[i], cutoff); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		expired++
	}

	reportCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(candidates),
		"expired":    expired,
	})
	j.logg.Info(reportCtx, "grace expiry sweep complete")
	return errs
}

// expire moves one row to unpaid inside a transaction. The row is re-read
// under lock so a webhook landing between the sweep's list and this write
// wins.
func (j *graceExpiryJob) expire(ctx context.Context, candidate *models.Subscription, cutoff time.Time) error {
	logCtx := j.logg.WithSubscriptionID(ctx, candidate.StripeSubscriptionID)

	revoked := false
	err := j.db.WithTx(logCtx, func(tx *gorm.DB) error {
		repo := j.ledgerRepo.WithTx(tx)
		row, err := repo.FindByStripeIDForUpdate(logCtx, candidate.StripeSubscriptionID)
		if err != nil {
			return err
		}
		if row == nil {
			return nil
		}
		if row.State != enums.SubscriptionStatePastDue || row.PastDueSince == nil || !row.PastDueSince.Before(cutoff) {
			// A payment or provider event resolved the delinquency first.
			j.logg.Info(logCtx, "grace period no longer expired, skipping")
			return nil
		}

		at := j.now().UTC()
		row.State = enums.SubscriptionStateUnpaid
		row.UnpaidAt = &at
		row.PastDueSince = nil
		if err := repo.Update(logCtx, row); err != nil {
			return err
		}
		if _, err := j.entitlements.Revoke(logCtx, tx, row.UserID, row.CommunityID); err != nil {
			return err
		}
		revoked = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("expire grace period for %s: %w", candidate.StripeSubscriptionID, err)
	}

	if revoked {
		j.notify(logCtx, candidate)
	}
	return nil
}

func (j *graceExpiryJob) notify(ctx context.Context, row *models.Subscription) {
	notification := notifications.Notification{
		Kind:           notifications.KindAccessRevoked,
		UserID:         row.UserID,
		CommunityID:    row.CommunityID,
		SubscriptionID: row.StripeSubscriptionID,
	}
	if err := j.notifier.Notify(ctx, notification); err != nil {
		j.logg.Error(ctx, "notify failed", err)
	}
}
