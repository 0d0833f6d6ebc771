package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/lucasmedrano/communitas-backend/pkg/enums"
)

// Subscription is the authoritative ledger row for one provider subscription.
// Rows are never deleted; a finished subscription stays in the canceled state
// so historical reporting keeps working.
type Subscription struct {
	ID                   uuid.UUID               `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID               uuid.UUID               `gorm:"column:user_id;type:uuid;not null;index:idx_subscriptions_user_community"`
	CommunityID          uuid.UUID               `gorm:"column:community_id;type:uuid;not null;index:idx_subscriptions_user_community"`
	StripeSubscriptionID string                  `gorm:"column:stripe_subscription_id;not null;uniqueIndex"`
	StripePriceID        *string                 `gorm:"column:stripe_price_id"`
	State                enums.SubscriptionState `gorm:"column:state;not null"`
	CurrentPeriodStart   *time.Time              `gorm:"column:current_period_start"`
	CurrentPeriodEnd     *time.Time              `gorm:"column:current_period_end"`
	CanceledAt           *time.Time              `gorm:"column:canceled_at"`
	UnpaidAt             *time.Time              `gorm:"column:unpaid_at"`
	PastDueSince         *time.Time              `gorm:"column:past_due_since"`
	CreatedAt            time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
