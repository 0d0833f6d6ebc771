package stripewebhook

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/lucasmedrano/communitas-backend/internal/reconciler"
	"github.com/lucasmedrano/communitas-backend/pkg/enums"
	pkgerrors "github.com/lucasmedrano/communitas-backend/pkg/errors"
)

// Metadata keys stamped onto provider subscriptions at creation time. Later
// webhook deliveries carry them back so events can be correlated without a
// provider API call.
const (
	MetadataUserID      = "communitas_user_id"
	MetadataCommunityID = "communitas_community_id"
)

// invoicePayload is the slice of a provider invoice object the gateway
// reads. The subscription reference has moved between top-level and
// parent.subscription_details across provider API versions, so both are
// decoded and either may be set.
type invoicePayload struct {
	ID           string `json:"id"`
	AmountPaid   int64  `json:"amount_paid"`
	AmountDue    int64  `json:"amount_due"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
	PeriodStart  int64  `json:"period_start"`
	PeriodEnd    int64  `json:"period_end"`
	Subscription string `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	StatusTransitions struct {
		PaidAt int64 `json:"paid_at"`
	} `json:"status_transitions"`
}

func (p invoicePayload) subscriptionID() string {
	if p.Subscription != "" {
		return p.Subscription
	}
	if p.Parent != nil && p.Parent.SubscriptionDetails != nil {
		return p.Parent.SubscriptionDetails.Subscription
	}
	return ""
}

// MapEvent converts a verified provider event into the reconciler's typed
// form. Unrecognized event types come back with EventKindUnknown so the
// caller can acknowledge them without side effects.
func MapEvent(event *stripe.Event) (reconciler.Event, error) {
	if event == nil {
		return reconciler.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "stripe event required")
	}

	mapped := reconciler.Event{
		ID:         event.ID,
		Kind:       kindForEventType(event.Type),
		OccurredAt: time.Unix(event.Created, 0).UTC(),
	}
	if mapped.Kind == enums.EventKindUnknown {
		return mapped, nil
	}
	if event.Data == nil {
		return reconciler.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch mapped.Kind {
	case enums.EventKindPaymentSucceeded, enums.EventKindPaymentFailed, enums.EventKindUpcomingInvoice:
		return mapInvoiceEvent(mapped, event.Data.Raw)
	default:
		return mapSubscriptionEvent(mapped, event.Data.Raw)
	}
}

func mapSubscriptionEvent(mapped reconciler.Event, raw json.RawMessage) (reconciler.Event, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return reconciler.Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription payload")
	}

	mapped.SubscriptionID = sub.ID
	mapped.Status = string(sub.Status)
	mapped.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	if sub.CanceledAt > 0 {
		at := time.Unix(sub.CanceledAt, 0).UTC()
		mapped.CanceledAt = &at
	}

	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			mapped.PriceID = item.Price.ID
		}
		if item.CurrentPeriodStart > 0 {
			start := time.Unix(item.CurrentPeriodStart, 0).UTC()
			mapped.CurrentPeriodStart = &start
		}
		if item.CurrentPeriodEnd > 0 {
			end := time.Unix(item.CurrentPeriodEnd, 0).UTC()
			mapped.CurrentPeriodEnd = &end
		}
	}

	userID, communityID, err := identityFromMetadata(sub.Metadata)
	if err != nil {
		if mapped.Kind == enums.EventKindSubscriptionCreated {
			return reconciler.Event{}, err
		}
		// Later events correlate by subscription id alone.
	} else {
		mapped.UserID = userID
		mapped.CommunityID = communityID
	}
	return mapped, nil
}

func mapInvoiceEvent(mapped reconciler.Event, raw json.RawMessage) (reconciler.Event, error) {
	var payload invoicePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return reconciler.Event{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode invoice payload")
	}

	mapped.SubscriptionID = payload.subscriptionID()
	if mapped.SubscriptionID == "" {
		return reconciler.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "invoice event missing subscription reference")
	}

	invoice := &reconciler.InvoiceData{
		StripeInvoiceID: payload.ID,
		Currency:        payload.Currency,
		PeriodStart:     time.Unix(payload.PeriodStart, 0).UTC(),
		PeriodEnd:       time.Unix(payload.PeriodEnd, 0).UTC(),
	}

	switch mapped.Kind {
	case enums.EventKindPaymentSucceeded:
		invoice.AmountCents = payload.AmountPaid
		invoice.Status = enums.InvoiceStatusPaid
		if payload.StatusTransitions.PaidAt > 0 {
			paidAt := time.Unix(payload.StatusTransitions.PaidAt, 0).UTC()
			invoice.PaidAt = &paidAt
		}
	case enums.EventKindPaymentFailed:
		invoice.AmountCents = payload.AmountDue
		invoice.Status = enums.InvoiceStatusFailed
		// The provider reports whether this failure exhausted collection via
		// the subscription status; the webhook payload itself only carries
		// the invoice. Default to the grace state unless told otherwise.
		mapped.Status = string(enums.SubscriptionStatePastDue)
	case enums.EventKindUpcomingInvoice:
		invoice.AmountCents = payload.AmountDue
		invoice.Status = enums.InvoiceStatusOpen
		// Upcoming invoices have no id yet; nothing to mirror.
		if payload.ID == "" {
			mapped.Invoice = invoice
			return mapped, nil
		}
	}

	mapped.Invoice = invoice
	return mapped, nil
}

func kindForEventType(eventType stripe.EventType) enums.EventKind {
	switch eventType {
	case stripe.EventTypeCustomerSubscriptionCreated:
		return enums.EventKindSubscriptionCreated
	case stripe.EventTypeCustomerSubscriptionUpdated:
		return enums.EventKindSubscriptionUpdated
	case stripe.EventTypeCustomerSubscriptionDeleted:
		return enums.EventKindSubscriptionDeleted
	case stripe.EventTypeCustomerSubscriptionPaused:
		return enums.EventKindSubscriptionPaused
	case stripe.EventTypeCustomerSubscriptionResumed:
		return enums.EventKindSubscriptionResumed
	case stripe.EventTypeCustomerSubscriptionTrialWillEnd:
		return enums.EventKindTrialWillEnd
	case stripe.EventTypeInvoicePaymentSucceeded, stripe.EventTypeInvoicePaid:
		return enums.EventKindPaymentSucceeded
	case stripe.EventTypeInvoicePaymentFailed:
		return enums.EventKindPaymentFailed
	case stripe.EventTypeInvoiceUpcoming:
		return enums.EventKindUpcomingInvoice
	default:
		return enums.EventKindUnknown
	}
}

func identityFromMetadata(metadata map[string]string) (uuid.UUID, uuid.UUID, error) {
	if metadata == nil {
		return uuid.Nil, uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription metadata required")
	}
	userID, err := uuid.Parse(strings.TrimSpace(metadata[MetadataUserID]))
	if err != nil {
		return uuid.Nil, uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id metadata")
	}
	communityID, err := uuid.Parse(strings.TrimSpace(metadata[MetadataCommunityID]))
	if err != nil {
		return uuid.Nil, uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid community id metadata")
	}
	return userID, communityID, nil
}
