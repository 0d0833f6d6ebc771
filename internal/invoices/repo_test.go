package invoices

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lucasmedrano/communitas-backend/pkg/db/models"
	"github.com/lucasmedrano/communitas-backend/pkg/enums"
	"github.com/lucasmedrano/communitas-backend/pkg/pagination"
)

func setupInvoicesTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	invoices := `
CREATE TABLE IF NOT EXISTS invoices (
  id TEXT PRIMARY KEY,
  stripe_invoice_id TEXT NOT NULL UNIQUE,
  subscription_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  community_id TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  currency TEXT NOT NULL DEFAULT 'usd',
  status TEXT NOT NULL,
  period_start DATETIME NOT NULL,
  period_end DATETIME NOT NULL,
  paid_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(invoices).Error)

	return db
}

func buildInvoice(subscriptionID uuid.UUID, stripeID string, amountCents int64, status enums.InvoiceStatus) *models.Invoice {
	now := time.Now()
	return &models.Invoice{
		ID:              uuid.New(),
		StripeInvoiceID: stripeID,
		SubscriptionID:  subscriptionID,
		UserID:          uuid.New(),
		CommunityID:     uuid.New(),
		AmountCents:     amountCents,
		Currency:        "usd",
		Status:          status,
		PeriodStart:     now.Add(-30 * 24 * time.Hour),
		PeriodEnd:       now,
	}
}

func TestRepositoryUpsertConvergesOnLatest(t *testing.T) {
	db := setupInvoicesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	subscriptionID := uuid.New()
	first := buildInvoice(subscriptionID, "in_100", 4999, enums.InvoiceStatusOpen)
	require.NoError(t, repo.Upsert(ctx, first))

	paidAt := time.Now()
	second := buildInvoice(subscriptionID, "in_100", 4999, enums.InvoiceStatusPaid)
	second.PaidAt = &paidAt
	require.NoError(t, repo.Upsert(ctx, second))

	found, err := repo.FindByStripeID(ctx, "in_100")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, enums.InvoiceStatusPaid, found.Status)
	require.NotNil(t, found.PaidAt)

	var count int64
	require.NoError(t, db.Model(&models.Invoice{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRepositoryListBySubscription(t *testing.T) {
	db := setupInvoicesTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	subscriptionID := uuid.New()
	require.NoError(t, repo.Upsert(ctx, buildInvoice(subscriptionID, "in_1", 1000, enums.InvoiceStatusPaid)))
	require.NoError(t, repo.Upsert(ctx, buildInvoice(subscriptionID, "in_2", 1000, enums.InvoiceStatusPaid)))
	require.NoError(t, repo.Upsert(ctx, buildInvoice(subscriptionID, "in_3", 1000, enums.InvoiceStatusFailed)))
	require.NoError(t, repo.Upsert(ctx, buildInvoice(uuid.New(), "in_other", 1000, enums.InvoiceStatusPaid)))

	page, cursor, err := repo.ListBySubscription(ctx, subscriptionID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page, 2)
	require.NotNil(t, cursor)

	rest, cursor, err := repo.ListBySubscription(ctx, subscriptionID, pagination.Params{
		Limit:  2,
		Cursor: pagination.EncodeCursor(*cursor),
	})
	require.NoError(t, err)
	assert.Len(t, rest, 1)
	assert.Nil(t, cursor)
}
