package models

import (
	"time"

	"github.com/google/uuid"
)

// Community is a creator-owned group. Paid communities carry the provider
// price their subscriptions bill against; MemberCount is maintained by the
// entitlement layer and join/leave flows, never recomputed on read.
type Community struct {
	ID            uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	CreatorID     uuid.UUID `gorm:"column:creator_id;type:uuid;not null;index"`
	Name          string    `gorm:"column:name;not null"`
	Slug          string    `gorm:"column:slug;not null;uniqueIndex"`
	Description   string    `gorm:"column:description;type:text"`
	IsPaid        bool      `gorm:"column:is_paid;not null;default:false"`
	StripePriceID *string   `gorm:"column:stripe_price_id"`
	MemberCount   int       `gorm:"column:member_count;not null;default:0"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
