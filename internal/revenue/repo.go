package revenue

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lucasmedrano/communitas-backend/pkg/db/models"
	"github.com/lucasmedrano/communitas-backend/pkg/enums"
)

// Repository runs the aggregate queries behind the revenue reports. All
// sums stay in integer minor units; nothing here converts to a display
// unit.
type Repository interface {
	PaidInvoiceTotals(ctx context.Context, window Window, communityID *uuid.UUID) (PaidTotals, error)
	MonthlyPaidRevenue(ctx context.Context, window Window, communityID *uuid.UUID) ([]MonthTotal, error)
	ActiveSubscriptionsAt(ctx context.Context, at Window, communityID *uuid.UUID) (int64, error)
	ChurnedInWindow(ctx context.Context, window Window, communityID *uuid.UUID) (int64, error)
	CreatorCommunityTotals(ctx context.Context, window Window, creatorID uuid.UUID) ([]CommunityTotal, error)
	MalformedInvoiceCount(ctx context.Context, window Window, communityID, creatorID *uuid.UUID) (int64, error)
	TopCommunityTotals(ctx context.Context, window Window, limit int) ([]CommunityTotal, error)
	SubscriptionMovement(ctx context.Context, window Window, communityID *uuid.UUID) (Movement, error)
}

// PaidTotals aggregates successful payments.
type PaidTotals struct {
	TotalCents   int64
	PaymentCount int64
	PayingUsers  int64
}

// MonthTotal is revenue for one calendar month.
type MonthTotal struct {
	Month      string
	TotalCents int64
}

// CommunityTotal is revenue attributed to one community.
type CommunityTotal struct {
	CommunityID   uuid.UUID
	CommunityName string
	TotalCents    int64
	PaymentCount  int64
}

// Movement counts ledger changes inside a window.
type Movement struct {
	New         int64
	Canceled    int64
	ActiveAtEnd int64
	StateCounts map[string]int64
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a revenue repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) paidInvoices(ctx context.Context, window Window, communityID *uuid.UUID) *gorm.DB {
	query := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("status = ?", enums.InvoiceStatusPaid).
		Where("amount_cents >= 0").
		Where("period_end >= period_start").
		Where("period_start >= ? AND period_start < ?", window.Start, window.End)
	if communityID != nil {
		query = query.Where("community_id = ?", *communityID)
	}
	return query
}

func (r *repository) PaidInvoiceTotals(ctx context.Context, window Window, communityID *uuid.UUID) (PaidTotals, error) {
	var row struct {
		TotalCents   int64
		PaymentCount int64
		PayingUsers  int64
	}
	err := r.paidInvoices(ctx, window, communityID).
		Select("COALESCE(SUM(amount_cents), 0) AS total_cents, COUNT(*) AS payment_count, COUNT(DISTINCT user_id) AS paying_users").
		Scan(&row).Error
	if err != nil {
		return PaidTotals{}, err
	}
	return PaidTotals{
		TotalCents:   row.TotalCents,
		PaymentCount: row.PaymentCount,
		PayingUsers:  row.PayingUsers,
	}, nil
}

func (r *repository) MonthlyPaidRevenue(ctx context.Context, window Window, communityID *uuid.UUID) ([]MonthTotal, error) {
	monthExpr := "to_char(period_start, 'YYYY-MM')"
	if r.db.Dialector.Name() == "sqlite" {
		monthExpr = "strftime('%Y-%m', period_start)"
	}

	var rows []struct {
		Month      string
		TotalCents int64
	}
	err := r.paidInvoices(ctx, window, communityID).
		Select(monthExpr + " AS month, COALESCE(SUM(amount_cents), 0) AS total_cents").
		Group(monthExpr).
		Order("month ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	totals := make([]MonthTotal, 0, len(rows))
	for _, row := range rows {
		totals = append(totals, MonthTotal{Month: row.Month, TotalCents: row.TotalCents})
	}
	return totals, nil
}

// ActiveSubscriptionsAt counts rows that were in an access-granting state
// when the window opened: created before it, not yet canceled or unpaid.
// The community filter must match ChurnedInWindow's, or a scoped churn rate
// would divide one community's cancellations by the whole platform.
func (r *repository) ActiveSubscriptionsAt(ctx context.Context, window Window, communityID *uuid.UUID) (int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("created_at < ?", window.Start).
		Where("canceled_at IS NULL OR canceled_at >= ?", window.Start).
		Where("unpaid_at IS NULL OR unpaid_at >= ?", window.Start)
	if communityID != nil {
		query = query.Where("community_id = ?", *communityID)
	}
	var count int64
	err := query.Count(&count).Error
	return count, err
}

// ChurnedInWindow counts subscriptions whose terminal-or-unpaid transition
// happened inside the window.
func (r *repository) ChurnedInWindow(ctx context.Context, window Window, communityID *uuid.UUID) (int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("(canceled_at >= ? AND canceled_at < ?) OR (unpaid_at >= ? AND unpaid_at < ?)",
			window.Start, window.End, window.Start, window.End)
	if communityID != nil {
		query = query.Where("community_id = ?", *communityID)
	}
	var count int64
	err := query.Count(&count).Error
	return count, err
}

func (r *repository) CreatorCommunityTotals(ctx context.Context, window Window, creatorID uuid.UUID) ([]CommunityTotal, error) {
	return r.communityTotals(ctx, window, &creatorID, 0)
}

// MalformedInvoiceCount counts paid invoices the aggregates had to exclude:
// a negative amount or an inverted period. Both filters are optional and
// mirror the scoping of the report the count rides on.
func (r *repository) MalformedInvoiceCount(ctx context.Context, window Window, communityID, creatorID *uuid.UUID) (int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("invoices.status = ?", enums.InvoiceStatusPaid).
		Where("invoices.amount_cents < 0 OR invoices.period_end < invoices.period_start").
		Where("invoices.period_start >= ? AND invoices.period_start < ?", window.Start, window.End)
	if communityID != nil {
		query = query.Where("invoices.community_id = ?", *communityID)
	}
	if creatorID != nil {
		query = query.
			Joins("JOIN communities ON communities.id = invoices.community_id").
			Where("communities.creator_id = ?", *creatorID)
	}
	var count int64
	err := query.Count(&count).Error
	return count, err
}

func (r *repository) TopCommunityTotals(ctx context.Context, window Window, limit int) ([]CommunityTotal, error) {
	return r.communityTotals(ctx, window, nil, limit)
}

func (r *repository) communityTotals(ctx context.Context, window Window, creatorID *uuid.UUID, limit int) ([]CommunityTotal, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Select("invoices.community_id, communities.name AS community_name, COALESCE(SUM(invoices.amount_cents), 0) AS total_cents, COUNT(*) AS payment_count").
		Joins("JOIN communities ON communities.id = invoices.community_id").
		Where("invoices.status = ?", enums.InvoiceStatusPaid).
		Where("invoices.amount_cents >= 0").
		Where("invoices.period_end >= invoices.period_start").
		Where("invoices.period_start >= ? AND invoices.period_start < ?", window.Start, window.End).
		Group("invoices.community_id, communities.name").
		Order("total_cents DESC")
	if creatorID != nil {
		query = query.Where("communities.creator_id = ?", *creatorID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []struct {
		CommunityID   uuid.UUID
		CommunityName string
		TotalCents    int64
		PaymentCount  int64
	}
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}

	totals := make([]CommunityTotal, 0, len(rows))
	for _, row := range rows {
		totals = append(totals, CommunityTotal{
			CommunityID:   row.CommunityID,
			CommunityName: row.CommunityName,
			TotalCents:    row.TotalCents,
			PaymentCount:  row.PaymentCount,
		})
	}
	return totals, nil
}

func (r *repository) SubscriptionMovement(ctx context.Context, window Window, communityID *uuid.UUID) (Movement, error) {
	movement := Movement{StateCounts: map[string]int64{}}

	base := func() *gorm.DB {
		query := r.db.WithContext(ctx).Model(&models.Subscription{})
		if communityID != nil {
			query = query.Where("community_id = ?", *communityID)
		}
		return query
	}

	if err := base().
		Where("created_at >= ? AND created_at < ?", window.Start, window.End).
		Count(&movement.New).Error; err != nil {
		return Movement{}, err
	}
	if err := base().
		Where("canceled_at >= ? AND canceled_at < ?", window.Start, window.End).
		Count(&movement.Canceled).Error; err != nil {
		return Movement{}, err
	}
	if err := base().
		Where("state IN ?", enums.AccessGrantingStates()).
		Count(&movement.ActiveAtEnd).Error; err != nil {
		return Movement{}, err
	}

	var rows []struct {
		State string
		Count int64
	}
	if err := base().
		Select("state, COUNT(*) AS count").
		Group("state").
		Scan(&rows).Error; err != nil {
		return Movement{}, err
	}
	for _, row := range rows {
		movement.StateCounts[row.State] = row.Count
	}
	return movement, nil
}
