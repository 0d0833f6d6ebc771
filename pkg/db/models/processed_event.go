package models

import "time"

// ProcessedEvent is the idempotency record for provider notifications. The
// unique id is what makes redelivered webhooks no-ops; rows are insert-only
// and pruned after a retention window.
type ProcessedEvent struct {
	StripeEventID string    `gorm:"column:stripe_event_id;primaryKey"`
	Kind          string    `gorm:"column:kind;not null"`
	ProcessedAt   time.Time `gorm:"column:processed_at;not null;autoCreateTime"`
}
