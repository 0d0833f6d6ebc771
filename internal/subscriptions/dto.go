package subscriptions

import (
	"time"

	"github.com/google/uuid"

	"github.com/lucasmedrano/communitas-backend/pkg/db/models"
	"github.com/lucasmedrano/communitas-backend/pkg/enums"
	"github.com/lucasmedrano/communitas-backend/pkg/types"
)

// SubscriptionDTO is the API shape of a ledger row.
type SubscriptionDTO struct {
	ID                   uuid.UUID               `json:"id"`
	UserID               uuid.UUID               `json:"user_id"`
	CommunityID          uuid.UUID               `json:"community_id"`
	StripeSubscriptionID string                  `json:"stripe_subscription_id"`
	State                enums.SubscriptionState `json:"state"`
	GrantsAccess         bool                    `json:"grants_access"`
	CurrentPeriodStart   *time.Time              `json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time              `json:"current_period_end,omitempty"`
	CanceledAt           *time.Time              `json:"canceled_at,omitempty"`
	CreatedAt            time.Time               `json:"created_at"`
	UpdatedAt            time.Time               `json:"updated_at"`
}

// InvoiceDTO is the API shape of a mirrored invoice.
type InvoiceDTO struct {
	ID              uuid.UUID           `json:"id"`
	StripeInvoiceID string              `json:"stripe_invoice_id"`
	Amount          types.Money         `json:"amount"`
	Status          enums.InvoiceStatus `json:"status"`
	PeriodStart     time.Time           `json:"period_start"`
	PeriodEnd       time.Time           `json:"period_end"`
	PaidAt          *time.Time          `json:"paid_at,omitempty"`
}

// CreationResult reports the provider subscription spawned by a creation
// request. The ledger row appears once the provider's first event lands.
type CreationResult struct {
	StripeSubscriptionID string `json:"stripe_subscription_id"`
	Status               string `json:"status"`
}

// UpcomingInvoicePreview is the provider's estimate for the next invoice.
type UpcomingInvoicePreview struct {
	Amount      types.Money `json:"amount"`
	PeriodStart time.Time   `json:"period_start"`
	PeriodEnd   time.Time   `json:"period_end"`
}

func toSubscriptionDTO(row *models.Subscription) *SubscriptionDTO {
	return &SubscriptionDTO{
		ID:                   row.ID,
		UserID:               row.UserID,
		CommunityID:          row.CommunityID,
		StripeSubscriptionID: row.StripeSubscriptionID,
		State:                row.State,
		GrantsAccess:         row.State.GrantsAccess(),
		CurrentPeriodStart:   row.CurrentPeriodStart,
		CurrentPeriodEnd:     row.CurrentPeriodEnd,
		CanceledAt:           row.CanceledAt,
		CreatedAt:            row.CreatedAt,
		UpdatedAt:            row.UpdatedAt,
	}
}

func toInvoiceDTO(row models.Invoice) InvoiceDTO {
	return InvoiceDTO{
		ID:              row.ID,
		StripeInvoiceID: row.StripeInvoiceID,
		Amount:          types.NewMoney(row.AmountCents, row.Currency),
		Status:          row.Status,
		PeriodStart:     row.PeriodStart,
		PeriodEnd:       row.PeriodEnd,
		PaidAt:          row.PaidAt,
	}
}
