package subscriptions

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/customer"
	"github.com/stripe/stripe-go/v84/invoice"
	"github.com/stripe/stripe-go/v84/subscription"

	pkgerrors "github.com/lucasmedrano/communitas-backend/pkg/errors"
	pkgstripe "github.com/lucasmedrano/communitas-backend/pkg/stripe"
)

// ProviderClient exposes the subset of payment-provider operations the
// subscription service needs. The wrapper exists so services can be tested
// against stubs instead of the provider SDK's package-level state.
type ProviderClient interface {
	CreateCustomer(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error)
	Create(ctx context.Context, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	Get(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	Update(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	Cancel(ctx context.Context, id string, params *stripe.SubscriptionCancelParams) (*stripe.Subscription, error)
	PreviewInvoice(ctx context.Context, params *stripe.InvoiceCreatePreviewParams) (*stripe.Invoice, error)
}

type providerClient struct{}

// NewProviderClient wraps the configured Stripe client.
func NewProviderClient(api *pkgstripe.Client) ProviderClient {
	if api == nil {
		return nil
	}
	return &providerClient{}
}

func (c *providerClient) CreateCustomer(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error) {
	if params != nil {
		params.Context = ctx
	}
	return customer.New(params)
}

func (c *providerClient) Create(ctx context.Context, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	if params != nil {
		params.Context = ctx
	}
	return subscription.New(params)
}

func (c *providerClient) Get(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	if params != nil {
		params.Context = ctx
	}
	return subscription.Get(id, params)
}

func (c *providerClient) Update(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	if params != nil {
		params.Context = ctx
	}
	return subscription.Update(id, params)
}

func (c *providerClient) Cancel(ctx context.Context, id string, params *stripe.SubscriptionCancelParams) (*stripe.Subscription, error) {
	if params != nil {
		params.Context = ctx
	}
	return subscription.Cancel(id, params)
}

func (c *providerClient) PreviewInvoice(ctx context.Context, params *stripe.InvoiceCreatePreviewParams) (*stripe.Invoice, error) {
	if params != nil {
		params.Context = ctx
	}
	return invoice.CreatePreview(params)
}

// mapProviderError translates provider failures into typed errors so
// callers and the HTTP layer can distinguish declines from transient
// dependency trouble.
func mapProviderError(err error, message string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.Wrap(pkgerrors.CodeTimeout, err, message)
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.Code == stripe.ErrorCodeCardDeclined,
			stripeErr.Code == stripe.ErrorCodeExpiredCard,
			stripeErr.Type == stripe.ErrorTypeCard:
			return pkgerrors.Wrap(pkgerrors.CodePaymentDeclined, err, message)
		case stripeErr.Code == stripe.ErrorCodeRateLimit:
			return pkgerrors.Wrap(pkgerrors.CodeRateLimit, err, message)
		case stripeErr.Code == stripe.ErrorCodeResourceMissing:
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, message)
		case stripeErr.HTTPStatusCode == 429:
			return pkgerrors.Wrap(pkgerrors.CodeRateLimit, err, message)
		case stripeErr.Type == stripe.ErrorTypeInvalidRequest:
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, message)
		}
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
