package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/lucasmedrano/communitas-backend/pkg/enums"
)

// Invoice mirrors a provider invoice locally so revenue reports never call
// the provider. AmountCents is minor units; all arithmetic over it stays in
// integers until the response boundary.
type Invoice struct {
	ID              uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	StripeInvoiceID string              `gorm:"column:stripe_invoice_id;not null;uniqueIndex"`
	SubscriptionID  uuid.UUID           `gorm:"column:subscription_id;type:uuid;not null;index"`
	UserID          uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	CommunityID     uuid.UUID           `gorm:"column:community_id;type:uuid;not null;index"`
	AmountCents     int64               `gorm:"column:amount_cents;not null"`
	Currency        string              `gorm:"column:currency;not null;default:'usd'"`
	Status          enums.InvoiceStatus `gorm:"column:status;not null"`
	PeriodStart     time.Time           `gorm:"column:period_start;not null"`
	PeriodEnd       time.Time           `gorm:"column:period_end;not null"`
	PaidAt          *time.Time          `gorm:"column:paid_at"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
