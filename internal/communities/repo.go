package communities

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lucasmedrano/communitas-backend/pkg/db/models"
)

// Repository manages community persistence, including the member counter
// maintained by the entitlement layer.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Community, error)
	ListByCreator(ctx context.Context, creatorID uuid.UUID) ([]models.Community, error)
	AdjustMemberCount(ctx context.Context, id uuid.UUID, delta int) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a community repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Community, error) {
	if id == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	var community models.Community
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&community).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &community, nil
}

func (r *repository) ListByCreator(ctx context.Context, creatorID uuid.UUID) ([]models.Community, error) {
	var communities []models.Community
	if err := r.db.WithContext(ctx).
		Where("creator_id = ?", creatorID).
		Order("created_at ASC").
		Find(&communities).Error; err != nil {
		return nil, err
	}
	return communities, nil
}

// AdjustMemberCount moves the counter by delta without reading first, so
// concurrent transactions cannot lose an increment.
func (r *repository) AdjustMemberCount(ctx context.Context, id uuid.UUID, delta int) error {
	if delta == 0 {
		return nil
	}
	result := r.db.WithContext(ctx).
		Model(&models.Community{}).
		Where("id = ?", id).
		UpdateColumn("member_count", gorm.Expr("member_count + ?", delta))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("community %s not found", id)
	}
	return nil
}
