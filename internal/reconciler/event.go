package reconciler

import (
	"time"

	"github.com/google/uuid"

	"github.com/lucasmedrano/communitas-backend/pkg/enums"
)

// Event is a provider notification after signature verification and payload
// decoding. The gateway builds one per webhook delivery; nothing upstream of
// the reconciler mutates the ledger.
type Event struct {
	// ID is the provider's event id, the idempotency key for the delivery.
	ID string
	// Kind is the typed classification of the notification.
	Kind enums.EventKind
	// SubscriptionID is the provider's subscription id the event refers to.
	SubscriptionID string
	// Status is the provider-reported subscription status, when the payload
	// carries one.
	Status string
	// CancelAtPeriodEnd marks a still-active subscription whose cancellation
	// is scheduled for the period boundary.
	CancelAtPeriodEnd bool
	// PriceID is the provider price on the subscription, when present.
	PriceID string

	// UserID and CommunityID come from subscription metadata and are only
	// required on creation events; later events correlate by SubscriptionID.
	UserID      uuid.UUID
	CommunityID uuid.UUID

	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CanceledAt         *time.Time
	OccurredAt         time.Time

	// Invoice mirrors the invoice object on payment events.
	Invoice *InvoiceData
}

// InvoiceData is the subset of a provider invoice the platform stores.
type InvoiceData struct {
	StripeInvoiceID string
	AmountCents     int64
	Currency        string
	Status          enums.InvoiceStatus
	PeriodStart     time.Time
	PeriodEnd       time.Time
	PaidAt          *time.Time
}

// Outcome reports what processing a delivery did.
type Outcome string

const (
	// OutcomeApplied means the ledger row was written (created or updated).
	OutcomeApplied Outcome = "applied"
	// OutcomeDuplicate means the event id was already processed.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeOrphan means no ledger row matched the subscription id; the
	// event was logged and discarded without recording its id, so a later
	// redelivery can still apply once the row exists.
	OutcomeOrphan Outcome = "orphan"
	// OutcomeIgnored means the event carries no ledger mutation (unknown
	// kinds, notification-only kinds).
	OutcomeIgnored Outcome = "ignored"
)
