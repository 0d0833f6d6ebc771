package memberships

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lucasmedrano/communitas-backend/pkg/db/models"
	"github.com/lucasmedrano/communitas-backend/pkg/enums"
)

// Repository exposes community membership persistence operations.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Get(ctx context.Context, userID, communityID uuid.UUID) (*models.CommunityMembership, error)
	Create(ctx context.Context, communityID, userID uuid.UUID, role enums.MemberRole, status enums.MembershipStatus) (*models.CommunityMembership, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.MembershipStatus) error
	ListByCommunity(ctx context.Context, communityID uuid.UUID) ([]models.CommunityMembership, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the repo to the provided GORM connection.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Get(ctx context.Context, userID, communityID uuid.UUID) (*models.CommunityMembership, error) {
	var membership models.CommunityMembership
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND community_id = ?", userID, communityID).
		First(&membership).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &membership, nil
}

func (r *repository) Create(ctx context.Context, communityID, userID uuid.UUID, role enums.MemberRole, status enums.MembershipStatus) (*models.CommunityMembership, error) {
	if !role.IsValid() {
		return nil, fmt.Errorf("invalid member role %q", role)
	}
	if !status.IsValid() {
		return nil, fmt.Errorf("invalid membership status %q", status)
	}

	membership := &models.CommunityMembership{
		ID:          uuid.New(),
		CommunityID: communityID,
		UserID:      userID,
		Role:        role,
		Status:      status,
	}
	if err := r.db.WithContext(ctx).Create(membership).Error; err != nil {
		return nil, err
	}
	return membership, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.MembershipStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid membership status %q", status)
	}
	return r.db.WithContext(ctx).
		Model(&models.CommunityMembership{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *repository) ListByCommunity(ctx context.Context, communityID uuid.UUID) ([]models.CommunityMembership, error) {
	var memberships []models.CommunityMembership
	if err := r.db.WithContext(ctx).
		Where("community_id = ?", communityID).
		Order("created_at ASC").
		Find(&memberships).Error; err != nil {
		return nil, err
	}
	return memberships, nil
}
