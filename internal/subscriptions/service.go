package subscriptions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/stripe/stripe-go/v84"

	"github.com/lucasmedrano/communitas-backend/internal/communities"
	"github.com/lucasmedrano/communitas-backend/internal/invoices"
	"github.com/lucasmedrano/communitas-backend/internal/ledger"
	"github.com/lucasmedrano/communitas-backend/internal/users"
	stripewebhook "github.com/lucasmedrano/communitas-backend/internal/webhooks/stripe"
	"github.com/lucasmedrano/communitas-backend/pkg/config"
	"github.com/lucasmedrano/communitas-backend/pkg/db/models"
	"github.com/lucasmedrano/communitas-backend/pkg/enums"
	pkgerrors "github.com/lucasmedrano/communitas-backend/pkg/errors"
	"github.com/lucasmedrano/communitas-backend/pkg/logger"
	"github.com/lucasmedrano/communitas-backend/pkg/pagination"
	"github.com/lucasmedrano/communitas-backend/pkg/types"
)

const defaultRetryBase = 200 * time.Millisecond

// Service exposes subscription management operations. Every method is a
// thin provider call plus ledger reads; ledger writes happen only through
// the reconciler, so the provider stays the source of truth for state.
type Service interface {
	Create(ctx context.Context, userID, communityID uuid.UUID) (*CreationResult, error)
	Cancel(ctx context.Context, id uuid.UUID) error
	ScheduleCancel(ctx context.Context, id uuid.UUID) error
	UnscheduleCancel(ctx context.Context, id uuid.UUID) error
	Pause(ctx context.Context, id uuid.UUID) error
	Resume(ctx context.Context, id uuid.UUID) error
	ChangePlan(ctx context.Context, id uuid.UUID, newPriceID string) error
	GetByID(ctx context.Context, id uuid.UUID) (*SubscriptionDTO, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]SubscriptionDTO, string, error)
	ListInvoices(ctx context.Context, id uuid.UUID, params pagination.Params) ([]InvoiceDTO, string, error)
	UpcomingInvoice(ctx context.Context, id uuid.UUID) (*UpcomingInvoicePreview, error)
}

// ServiceParams wires the subscription service's collaborators.
type ServiceParams struct {
	Provider    ProviderClient
	LedgerRepo  ledger.Repository
	InvoiceRepo invoices.Repository
	Communities communities.Repository
	Users       users.Repository
	Stripe      config.StripeConfig
	Logger      *logger.Logger
}

type service struct {
	provider    ProviderClient
	ledgerRepo  ledger.Repository
	invoiceRepo invoices.Repository
	communities communities.Repository
	users       users.Repository
	cfg         config.StripeConfig
	logger      *logger.Logger
}

// NewService validates dependencies and builds the subscription service.
func NewService(params ServiceParams) (Service, error) {
	if params.Provider == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "provider client required")
	}
	if params.LedgerRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger repo required")
	}
	if params.InvoiceRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "invoice repo required")
	}
	if params.Communities == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "communities repo required")
	}
	if params.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "users repo required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &service{
		provider:    params.Provider,
		ledgerRepo:  params.LedgerRepo,
		invoiceRepo: params.InvoiceRepo,
		communities: params.Communities,
		users:       params.Users,
		cfg:         params.Stripe,
		logger:      params.Logger,
	}, nil
}

// Create starts a provider subscription for the user against the community's
// price. No ledger row is written here: the row appears when the provider's
// creation event arrives, correlated through the metadata stamped below.
func (s *service) Create(ctx context.Context, userID, communityID uuid.UUID) (*CreationResult, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	if user == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}

	community, err := s.communities.FindByID(ctx, communityID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load community")
	}
	if community == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "community not found")
	}
	if !community.IsPaid || community.StripePriceID == nil || *community.StripePriceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "community has no paid plan")
	}

	existing, err := s.ledgerRepo.FindAccessGranting(ctx, userID, communityID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing subscription")
	}
	if existing != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "user already subscribed to community")
	}

	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return nil, err
	}

	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: community.StripePriceID},
		},
		Metadata: map[string]string{
			stripewebhook.MetadataUserID:      userID.String(),
			stripewebhook.MetadataCommunityID: communityID.String(),
		},
	}

	var created *stripe.Subscription
	err = s.withProviderRetry(ctx, func(ctx context.Context) error {
		var callErr error
		created, callErr = s.provider.Create(ctx, params)
		return callErr
	}, "create subscription")
	if err != nil {
		return nil, err
	}

	return &CreationResult{
		StripeSubscriptionID: created.ID,
		Status:               string(created.Status),
	}, nil
}

func (s *service) ensureCustomer(ctx context.Context, user *models.User) (string, error) {
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}

	var created *stripe.Customer
	err := s.withProviderRetry(ctx, func(ctx context.Context) error {
		var callErr error
		created, callErr = s.provider.CreateCustomer(ctx, &stripe.CustomerParams{
			Email: stripe.String(user.Email),
			Name:  stripe.String(user.DisplayName),
			Metadata: map[string]string{
				stripewebhook.MetadataUserID: user.ID.String(),
			},
		})
		return callErr
	}, "create customer")
	if err != nil {
		return "", err
	}

	if err := s.users.SetStripeCustomerID(ctx, user.ID, created.ID); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist customer id")
	}
	return created.ID, nil
}

// Cancel ends the subscription immediately at the provider. The terminal
// ledger transition lands with the provider's deletion event.
func (s *service) Cancel(ctx context.Context, id uuid.UUID) error {
	row, err := s.requireRow(ctx, id)
	if err != nil {
		return err
	}
	if row.State.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "subscription already canceled")
	}

	return s.withProviderRetry(ctx, func(ctx context.Context) error {
		_, callErr := s.provider.Cancel(ctx, row.StripeSubscriptionID, &stripe.SubscriptionCancelParams{})
		return callErr
	}, "cancel subscription")
}

// ScheduleCancel flags cancellation at the period boundary; access persists
// until then.
func (s *service) ScheduleCancel(ctx context.Context, id uuid.UUID) error {
	return s.setCancelAtPeriodEnd(ctx, id, true)
}

// UnscheduleCancel clears a scheduled cancellation before the boundary hits.
func (s *service) UnscheduleCancel(ctx context.Context, id uuid.UUID) error {
	return s.setCancelAtPeriodEnd(ctx, id, false)
}

func (s *service) setCancelAtPeriodEnd(ctx context.Context, id uuid.UUID, scheduled bool) error {
	row, err := s.requireRow(ctx, id)
	if err != nil {
		return err
	}
	if row.State.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "subscription already canceled")
	}

	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(scheduled)}
	return s.withProviderRetry(ctx, func(ctx context.Context) error {
		_, callErr := s.provider.Update(ctx, row.StripeSubscriptionID, params)
		return callErr
	}, "update scheduled cancellation")
}

// Pause stops collection; the provider keeps the subscription alive but
// access is revoked when the pause event reconciles.
func (s *service) Pause(ctx context.Context, id uuid.UUID) error {
	row, err := s.requireRow(ctx, id)
	if err != nil {
		return err
	}
	if row.State.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "subscription already canceled")
	}
	if row.State == enums.SubscriptionStatePaused {
		return nil
	}

	params := &stripe.SubscriptionParams{
		PauseCollection: &stripe.SubscriptionPauseCollectionParams{
			Behavior: stripe.String("void"),
		},
	}
	return s.withProviderRetry(ctx, func(ctx context.Context) error {
		_, callErr := s.provider.Update(ctx, row.StripeSubscriptionID, params)
		return callErr
	}, "pause subscription")
}

// Resume restarts collection on a paused subscription.
func (s *service) Resume(ctx context.Context, id uuid.UUID) error {
	row, err := s.requireRow(ctx, id)
	if err != nil {
		return err
	}
	if row.State != enums.SubscriptionStatePaused {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "subscription is not paused")
	}

	params := &stripe.SubscriptionParams{}
	// Clearing pause_collection requires sending the key with an empty
	// value; the typed params cannot express that.
	params.AddExtra("pause_collection", "")
	return s.withProviderRetry(ctx, func(ctx context.Context) error {
		_, callErr := s.provider.Update(ctx, row.StripeSubscriptionID, params)
		return callErr
	}, "resume subscription")
}

// ChangePlan swaps the subscription onto a new price with prorations.
func (s *service) ChangePlan(ctx context.Context, id uuid.UUID, newPriceID string) error {
	if newPriceID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "price id required")
	}
	row, err := s.requireRow(ctx, id)
	if err != nil {
		return err
	}
	if row.State.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "subscription already canceled")
	}

	var current *stripe.Subscription
	err = s.withProviderRetry(ctx, func(ctx context.Context) error {
		var callErr error
		current, callErr = s.provider.Get(ctx, row.StripeSubscriptionID, &stripe.SubscriptionParams{})
		return callErr
	}, "fetch subscription")
	if err != nil {
		return err
	}
	if current.Items == nil || len(current.Items.Data) == 0 {
		return pkgerrors.New(pkgerrors.CodeDependency, "provider subscription has no items")
	}

	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(current.Items.Data[0].ID),
				Price: stripe.String(newPriceID),
			},
		},
		ProrationBehavior: stripe.String("create_prorations"),
	}
	return s.withProviderRetry(ctx, func(ctx context.Context) error {
		_, callErr := s.provider.Update(ctx, row.StripeSubscriptionID, params)
		return callErr
	}, "change plan")
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*SubscriptionDTO, error) {
	row, err := s.requireRow(ctx, id)
	if err != nil {
		return nil, err
	}
	return toSubscriptionDTO(row), nil
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]SubscriptionDTO, string, error) {
	rows, cursor, err := s.ledgerRepo.ListByUser(ctx, userID, params)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list subscriptions")
	}
	dtos := make([]SubscriptionDTO, 0, len(rows))
	for i := range rows {
		dtos = append(dtos, *toSubscriptionDTO(&rows[i]))
	}
	return dtos, encodeCursor(cursor), nil
}

func (s *service) ListInvoices(ctx context.Context, id uuid.UUID, params pagination.Params) ([]InvoiceDTO, string, error) {
	row, err := s.requireRow(ctx, id)
	if err != nil {
		return nil, "", err
	}
	rows, cursor, err := s.invoiceRepo.ListBySubscription(ctx, row.ID, params)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list invoices")
	}
	dtos := make([]InvoiceDTO, 0, len(rows))
	for _, invoice := range rows {
		dtos = append(dtos, toInvoiceDTO(invoice))
	}
	return dtos, encodeCursor(cursor), nil
}

// UpcomingInvoice previews the next invoice at the provider. This is the
// one read path that leaves the local mirror, so it carries the provider
// timeout and retry budget like every other provider call.
func (s *service) UpcomingInvoice(ctx context.Context, id uuid.UUID) (*UpcomingInvoicePreview, error) {
	row, err := s.requireRow(ctx, id)
	if err != nil {
		return nil, err
	}
	if row.State.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "subscription already canceled")
	}

	params := &stripe.InvoiceCreatePreviewParams{
		Subscription: stripe.String(row.StripeSubscriptionID),
	}
	var preview *stripe.Invoice
	err = s.withProviderRetry(ctx, func(ctx context.Context) error {
		var callErr error
		preview, callErr = s.provider.PreviewInvoice(ctx, params)
		return callErr
	}, "preview upcoming invoice")
	if err != nil {
		return nil, err
	}

	return &UpcomingInvoicePreview{
		Amount:      types.NewMoney(preview.AmountDue, string(preview.Currency)),
		PeriodStart: time.Unix(preview.PeriodStart, 0).UTC(),
		PeriodEnd:   time.Unix(preview.PeriodEnd, 0).UTC(),
	}, nil
}

func (s *service) requireRow(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	row, err := s.ledgerRepo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if row == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	return row, nil
}

// withProviderRetry runs a provider call under the configured timeout with
// a bounded exponential backoff. Only transient failures retry; declines
// and validation failures surface immediately.
func (s *service) withProviderRetry(ctx context.Context, call func(ctx context.Context) error, message string) error {
	attempts := uint64(s.cfg.MaxRetries)
	backoff := retry.WithMaxRetries(attempts, retry.NewExponential(defaultRetryBase))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		callCtx := ctx
		if s.cfg.RequestTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
			defer cancel()
		}
		mapped := mapProviderError(call(callCtx), message)
		if mapped == nil {
			return nil
		}
		if pkgerrors.IsRetryable(mapped) {
			return retry.RetryableError(mapped)
		}
		return mapped
	})
	return err
}

func encodeCursor(cursor *pagination.Cursor) string {
	if cursor == nil {
		return ""
	}
	return pagination.EncodeCursor(*cursor)
}
