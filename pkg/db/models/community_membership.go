package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/lucasmedrano/communitas-backend/pkg/enums"
)

// CommunityMembership links a user to a community. Status carries the
// paid-access portion: the entitlement layer is its only writer for paid
// communities.
type CommunityMembership struct {
	ID          uuid.UUID              `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	CommunityID uuid.UUID              `gorm:"column:community_id;type:uuid;not null;uniqueIndex:uk_membership_community_user"`
	UserID      uuid.UUID              `gorm:"column:user_id;type:uuid;not null;uniqueIndex:uk_membership_community_user"`
	Role        enums.MemberRole       `gorm:"column:role;not null;default:'member'"`
	Status      enums.MembershipStatus `gorm:"column:status;not null;default:'active'"`
	CreatedAt   time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
