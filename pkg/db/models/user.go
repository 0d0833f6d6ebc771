package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the minimal account record referenced by memberships and
// subscriptions. Authentication lives elsewhere.
type User struct {
	ID               uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email            string    `gorm:"column:email;not null;uniqueIndex"`
	DisplayName      string    `gorm:"column:display_name;not null"`
	StripeCustomerID *string   `gorm:"column:stripe_customer_id"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
