package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lucasmedrano/communitas-backend/pkg/db/models"
	"github.com/lucasmedrano/communitas-backend/pkg/enums"
	"github.com/lucasmedrano/communitas-backend/pkg/pagination"
)

// Repository manages persistence for subscription ledger rows and their
// idempotency records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, subscription *models.Subscription) error
	Update(ctx context.Context, subscription *models.Subscription) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	FindByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error)
	FindByStripeIDForUpdate(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error)
	FindAccessGranting(ctx context.Context, userID, communityID uuid.UUID) (*models.Subscription, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Subscription, *pagination.Cursor, error)
	ListByCommunity(ctx context.Context, communityID uuid.UUID, params pagination.Params) ([]models.Subscription, *pagination.Cursor, error)
	ListStale(ctx context.Context, updatedBefore time.Time, limit int) ([]models.Subscription, error)
	ListPastDueSince(ctx context.Context, cutoff time.Time) ([]models.Subscription, error)
	RecordProcessedEvent(ctx context.Context, event *models.ProcessedEvent) error
	PruneProcessedEvents(ctx context.Context, olderThan time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Create(subscription).Error
}

func (r *repository) Update(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Save(subscription).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var subscription models.Subscription
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&subscription).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &subscription, nil
}

func (r *repository) FindByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	return r.findByStripeID(ctx, stripeSubscriptionID, false)
}

// FindByStripeIDForUpdate row-locks the ledger row so concurrent webhook
// deliveries for the same subscription serialize instead of clobbering
// each other.
func (r *repository) FindByStripeIDForUpdate(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	return r.findByStripeID(ctx, stripeSubscriptionID, true)
}

func (r *repository) findByStripeID(ctx context.Context, stripeSubscriptionID string, forUpdate bool) (*models.Subscription, error) {
	query := r.db.WithContext(ctx).Where("stripe_subscription_id = ?", stripeSubscriptionID)
	if forUpdate && query.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var subscription models.Subscription
	if err := query.First(&subscription).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &subscription, nil
}

// FindAccessGranting returns the user's subscription to the community that
// currently grants access, if any. The partial unique index on the pair
// guarantees at most one row qualifies.
func (r *repository) FindAccessGranting(ctx context.Context, userID, communityID uuid.UUID) (*models.Subscription, error) {
	var subscription models.Subscription
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND community_id = ?", userID, communityID).
		Where("state IN ?", enums.AccessGrantingStates()).
		First(&subscription).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &subscription, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Subscription, *pagination.Cursor, error) {
	return r.list(ctx, "user_id = ?", userID, params)
}

func (r *repository) ListByCommunity(ctx context.Context, communityID uuid.UUID, params pagination.Params) ([]models.Subscription, *pagination.Cursor, error) {
	return r.list(ctx, "community_id = ?", communityID, params)
}

func (r *repository) list(ctx context.Context, cond string, arg any, params pagination.Params) ([]models.Subscription, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).Model(&models.Subscription{}).Where(cond, arg)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, nil, err
	}
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var subscriptions []models.Subscription
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&subscriptions).Error; err != nil {
		return nil, nil, err
	}

	if len(subscriptions) > normalized {
		next := subscriptions[normalized]
		subscriptions = subscriptions[:normalized]
		return subscriptions, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return subscriptions, nil, nil
}

// ListStale returns non-terminal rows that have not been touched since
// updatedBefore, oldest first, for the periodic provider reconcile sweep.
func (r *repository) ListStale(ctx context.Context, updatedBefore time.Time, limit int) ([]models.Subscription, error) {
	var subscriptions []models.Subscription
	query := r.db.WithContext(ctx).
		Where("state <> ?", enums.SubscriptionStateCanceled).
		Where("updated_at < ?", updatedBefore).
		Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&subscriptions).Error; err != nil {
		return nil, err
	}
	return subscriptions, nil
}

// ListPastDueSince returns past_due rows whose grace window started before
// the cutoff.
func (r *repository) ListPastDueSince(ctx context.Context, cutoff time.Time) ([]models.Subscription, error) {
	var subscriptions []models.Subscription
	err := r.db.WithContext(ctx).
		Where("state = ?", enums.SubscriptionStatePastDue).
		Where("past_due_since IS NOT NULL AND past_due_since < ?", cutoff).
		Order("past_due_since ASC").
		Find(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}

// RecordProcessedEvent inserts the idempotency row for a provider event. A
// unique violation means the event was already applied; callers detect it
// with db.IsUniqueViolation.
func (r *repository) RecordProcessedEvent(ctx context.Context, event *models.ProcessedEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) PruneProcessedEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("processed_at < ?", olderThan).
		Delete(&models.ProcessedEvent{})
	return result.RowsAffected, result.Error
}
