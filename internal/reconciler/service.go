package reconciler

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/lucasmedrano/communitas-backend/internal/entitlements"
	"github.com/lucasmedrano/communitas-backend/internal/invoices"
	"github.com/lucasmedrano/communitas-backend/internal/ledger"
	"github.com/lucasmedrano/communitas-backend/internal/notifications"
	pkgdb "github.com/lucasmedrano/communitas-backend/pkg/db"
	"github.com/lucasmedrano/communitas-backend/pkg/db/models"
	"github.com/lucasmedrano/communitas-backend/pkg/enums"
	pkgerrors "github.com/lucasmedrano/communitas-backend/pkg/errors"
	"github.com/lucasmedrano/communitas-backend/pkg/logger"
)

const (
	conflictRetries = 3
	conflictBackoff = 50 * time.Millisecond
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams wires the reconciler's collaborators.
type ServiceParams struct {
	LedgerRepo        ledger.Repository
	InvoiceRepo       invoices.Repository
	Entitlements      entitlements.Manager
	Notifier          notifications.Notifier
	TransactionRunner txRunner
	Logger            *logger.Logger
}

// Service applies typed provider events to the subscription ledger. Each
// event is processed in one transaction covering the idempotency record, the
// ledger write, and the entitlement side effect.
type Service struct {
	ledgerRepo   ledger.Repository
	invoiceRepo  invoices.Repository
	entitlements entitlements.Manager
	notifier     notifications.Notifier
	txRunner     txRunner
	logger       *logger.Logger
}

// NewService validates dependencies and builds the reconciler.
func NewService(params ServiceParams) (*Service, error) {
	if params.LedgerRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger repo required")
	}
	if params.InvoiceRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "invoice repo required")
	}
	if params.Entitlements == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "entitlement manager required")
	}
	if params.Notifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifier required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		ledgerRepo:   params.LedgerRepo,
		invoiceRepo:  params.InvoiceRepo,
		entitlements: params.Entitlements,
		notifier:     params.Notifier,
		txRunner:     params.TransactionRunner,
		logger:       params.Logger,
	}, nil
}

// Process applies one event. Redelivered event ids come back as Duplicate
// with no side effects; events for unknown subscriptions come back as Orphan
// and stay unrecorded so a later redelivery can apply once the row exists.
func (s *Service) Process(ctx context.Context, event Event) (Outcome, error) {
	if event.ID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	ctx = s.logger.WithEventID(ctx, event.ID)
	if event.SubscriptionID != "" {
		ctx = s.logger.WithSubscriptionID(ctx, event.SubscriptionID)
	}

	if event.Kind == enums.EventKindUnknown {
		s.logger.Info(ctx, "ignoring unrecognized event kind")
		return OutcomeIgnored, nil
	}
	if !event.Kind.MutatesLedger() {
		return s.processNotificationOnly(ctx, event)
	}
	if event.SubscriptionID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "subscription id required")
	}

	var outcome Outcome
	backoff := retry.WithMaxRetries(conflictRetries, retry.NewConstant(conflictBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var attemptErr error
		outcome, attemptErr = s.processOnce(ctx, event)
		if attemptErr != nil && isSerializationFailure(attemptErr) {
			return retry.RetryableError(attemptErr)
		}
		return attemptErr
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

func (s *Service) processOnce(ctx context.Context, event Event) (Outcome, error) {
	outcome := OutcomeApplied
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		ledgerRepo := s.ledgerRepo.WithTx(tx)

		if err := ledgerRepo.RecordProcessedEvent(ctx, &models.ProcessedEvent{
			StripeEventID: event.ID,
			Kind:          event.Kind.String(),
			ProcessedAt:   time.Now().UTC(),
		}); err != nil {
			if pkgdb.IsUniqueViolation(err, "") {
				outcome = OutcomeDuplicate
				return errAlreadyProcessed
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record processed event")
		}

		row, err := ledgerRepo.FindByStripeIDForUpdate(ctx, event.SubscriptionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ledger row")
		}

		if row == nil {
			if !canMaterializeRow(event) {
				// Roll the idempotency record back with the tx: the provider
				// retries non-creation events, and one of those retries may
				// arrive after the creation event does.
				outcome = OutcomeOrphan
				return errOrphanEvent
			}
			return s.createFromEvent(ctx, tx, ledgerRepo, event)
		}

		return s.applyToRow(ctx, tx, ledgerRepo, event, row)
	})

	switch err {
	case nil:
		return outcome, nil
	case errAlreadyProcessed:
		s.logger.Info(ctx, "event already processed")
		return OutcomeDuplicate, nil
	case errOrphanEvent:
		s.logger.Warn(ctx, "no ledger row for event, discarding")
		return OutcomeOrphan, nil
	case errUnmodeledStatus:
		s.logger.Info(ctx, "unmodeled provider status, deferring ledger row")
		return OutcomeIgnored, nil
	default:
		return "", err
	}
}

// canMaterializeRow reports whether an event may create the ledger row when
// none exists. A creation event always may; an update may when it carries
// the full identity metadata (the creation report arrived with a status like
// incomplete and the row was deferred, or its delivery was dropped).
func canMaterializeRow(event Event) bool {
	switch event.Kind {
	case enums.EventKindSubscriptionCreated:
		return true
	case enums.EventKindSubscriptionUpdated:
		return event.UserID != uuid.Nil && event.CommunityID != uuid.Nil
	default:
		return false
	}
}

func (s *Service) createFromEvent(ctx context.Context, tx *gorm.DB, ledgerRepo ledger.Repository, event Event) error {
	if event.UserID == uuid.Nil || event.CommunityID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "creation event missing user or community metadata")
	}

	resolved := resolveReportedStatus(event)
	if resolved == nil {
		// Rolls back with the tx; a later report with a modeled status
		// materializes the row.
		return errUnmodeledStatus
	}

	row := &models.Subscription{
		ID:                   uuid.New(),
		UserID:               event.UserID,
		CommunityID:          event.CommunityID,
		StripeSubscriptionID: event.SubscriptionID,
		State:                resolved.state,
		CurrentPeriodStart:   event.CurrentPeriodStart,
		CurrentPeriodEnd:     event.CurrentPeriodEnd,
	}
	if event.PriceID != "" {
		row.StripePriceID = &event.PriceID
	}
	stampStateTimes(row, resolved.state, event)

	if err := ledgerRepo.Create(ctx, row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create ledger row")
	}
	return s.applyEffect(ctx, tx, resolved.effect, row)
}

func (s *Service) applyToRow(ctx context.Context, tx *gorm.DB, ledgerRepo ledger.Repository, event Event, row *models.Subscription) error {
	if event.Invoice != nil {
		if err := s.mirrorInvoice(ctx, tx, event, row); err != nil {
			return err
		}
	}

	resolved, err := resolveTransition(event, row.State)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "resolve transition")
	}
	if resolved == nil {
		if row.State.IsTerminal() {
			s.logger.Info(ctx, "event for finished subscription, no transition")
		}
		return nil
	}

	applyPeriod(row, event)
	stampStateTimes(row, resolved.state, event)
	if event.PriceID != "" {
		row.StripePriceID = &event.PriceID
	}
	row.State = resolved.state

	if err := ledgerRepo.Update(ctx, row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update ledger row")
	}
	return s.applyEffect(ctx, tx, resolved.effect, row)
}

func (s *Service) applyEffect(ctx context.Context, tx *gorm.DB, eff effect, row *models.Subscription) error {
	switch eff {
	case effectGrant:
		_, err := s.entitlements.Grant(ctx, tx, row.UserID, row.CommunityID)
		return err
	case effectRevoke:
		_, err := s.entitlements.Revoke(ctx, tx, row.UserID, row.CommunityID)
		return err
	default:
		return nil
	}
}

func (s *Service) mirrorInvoice(ctx context.Context, tx *gorm.DB, event Event, row *models.Subscription) error {
	data := event.Invoice
	if data.StripeInvoiceID == "" {
		return nil
	}
	invoice := &models.Invoice{
		ID:              uuid.New(),
		StripeInvoiceID: data.StripeInvoiceID,
		SubscriptionID:  row.ID,
		UserID:          row.UserID,
		CommunityID:     row.CommunityID,
		AmountCents:     data.AmountCents,
		Currency:        data.Currency,
		Status:          data.Status,
		PeriodStart:     data.PeriodStart,
		PeriodEnd:       data.PeriodEnd,
		PaidAt:          data.PaidAt,
	}
	if err := s.invoiceRepo.WithTx(tx).Upsert(ctx, invoice); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mirror invoice")
	}
	return nil
}

// processNotificationOnly records the event id for dedup and forwards to the
// notification boundary, with no ledger write.
func (s *Service) processNotificationOnly(ctx context.Context, event Event) (Outcome, error) {
	row, err := s.ledgerRepo.FindByStripeID(ctx, event.SubscriptionID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ledger row")
	}
	if row == nil {
		s.logger.Warn(ctx, "notification event for unknown subscription, discarding")
		return OutcomeOrphan, nil
	}

	duplicate := false
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		recordErr := s.ledgerRepo.WithTx(tx).RecordProcessedEvent(ctx, &models.ProcessedEvent{
			StripeEventID: event.ID,
			Kind:          event.Kind.String(),
			ProcessedAt:   time.Now().UTC(),
		})
		if recordErr != nil && pkgdb.IsUniqueViolation(recordErr, "") {
			duplicate = true
			return errAlreadyProcessed
		}
		return recordErr
	})
	if duplicate {
		return OutcomeDuplicate, nil
	}
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record processed event")
	}

	notification := notifications.Notification{
		UserID:         row.UserID,
		CommunityID:    row.CommunityID,
		SubscriptionID: row.StripeSubscriptionID,
	}
	switch event.Kind {
	case enums.EventKindTrialWillEnd:
		notification.Kind = notifications.KindTrialEnding
		notification.DueAt = row.CurrentPeriodEnd
	case enums.EventKindUpcomingInvoice:
		notification.Kind = notifications.KindUpcomingInvoice
		if event.Invoice != nil {
			notification.AmountCents = event.Invoice.AmountCents
			notification.Currency = event.Invoice.Currency
			due := event.Invoice.PeriodEnd
			notification.DueAt = &due
		}
	}
	if err := s.notifier.Notify(ctx, notification); err != nil {
		// Notification delivery is best effort; the event is already
		// recorded so a redelivery will not re-notify.
		s.logger.Error(ctx, "notify failed", err)
	}
	return OutcomeIgnored, nil
}

// applyPeriod copies period boundaries from the event when present; the
// ledger's period fields stay authoritative for billing-date logic.
func applyPeriod(row *models.Subscription, event Event) {
	if event.CurrentPeriodStart != nil {
		row.CurrentPeriodStart = event.CurrentPeriodStart
	}
	if event.CurrentPeriodEnd != nil {
		row.CurrentPeriodEnd = event.CurrentPeriodEnd
	}
}

// stampStateTimes maintains the per-state timestamps used by reporting and
// the grace-period sweep.
func stampStateTimes(row *models.Subscription, next enums.SubscriptionState, event Event) {
	now := time.Now().UTC()

	switch next {
	case enums.SubscriptionStatePastDue:
		if row.State != enums.SubscriptionStatePastDue || row.PastDueSince == nil {
			since := now
			if !event.OccurredAt.IsZero() {
				since = event.OccurredAt
			}
			row.PastDueSince = &since
		}
	case enums.SubscriptionStateUnpaid:
		if row.UnpaidAt == nil {
			at := now
			if !event.OccurredAt.IsZero() {
				at = event.OccurredAt
			}
			row.UnpaidAt = &at
		}
		row.PastDueSince = nil
	case enums.SubscriptionStateCanceled:
		if row.CanceledAt == nil {
			at := now
			if event.CanceledAt != nil {
				at = *event.CanceledAt
			}
			row.CanceledAt = &at
		}
		row.PastDueSince = nil
	default:
		row.PastDueSince = nil
		row.UnpaidAt = nil
	}
}

var (
	errAlreadyProcessed = sentinelError("event already processed")
	errOrphanEvent      = sentinelError("orphan event")
	errUnmodeledStatus  = sentinelError("unmodeled provider status")
)

type sentinelError string

func (e sentinelError) Error() string { return string(e) }

// isSerializationFailure recognizes transient row-lock conflicts surfaced by
// Postgres so the delivery can be retried in-process before the provider
// falls back to its own retry schedule.
func isSerializationFailure(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "could not serialize access") ||
		strings.Contains(msg, "deadlock detected")
}
