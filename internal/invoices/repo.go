package invoices

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lucasmedrano/communitas-backend/pkg/db/models"
	"github.com/lucasmedrano/communitas-backend/pkg/pagination"
)

// Repository manages the local invoice mirror.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Upsert(ctx context.Context, invoice *models.Invoice) error
	FindByStripeID(ctx context.Context, stripeInvoiceID string) (*models.Invoice, error)
	ListBySubscription(ctx context.Context, subscriptionID uuid.UUID, params pagination.Params) ([]models.Invoice, *pagination.Cursor, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an invoice repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Upsert writes the invoice keyed by its provider id. Redelivered invoice
// events overwrite the mutable columns instead of erroring, so the mirror
// converges on the provider's latest view.
func (r *repository) Upsert(ctx context.Context, invoice *models.Invoice) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "stripe_invoice_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"amount_cents", "currency", "status", "period_start", "period_end", "paid_at", "updated_at",
			}),
		}).
		Create(invoice).Error
}

func (r *repository) FindByStripeID(ctx context.Context, stripeInvoiceID string) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.db.WithContext(ctx).
		Where("stripe_invoice_id = ?", stripeInvoiceID).
		First(&invoice).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) ListBySubscription(ctx context.Context, subscriptionID uuid.UUID, params pagination.Params) ([]models.Invoice, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).Model(&models.Invoice{}).Where("subscription_id = ?", subscriptionID)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, nil, err
	}
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var invoices []models.Invoice
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&invoices).Error; err != nil {
		return nil, nil, err
	}

	if len(invoices) > normalized {
		next := invoices[normalized]
		invoices = invoices[:normalized]
		return invoices, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return invoices, nil, nil
}
