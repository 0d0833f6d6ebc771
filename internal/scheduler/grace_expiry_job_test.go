package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lucasmedrano/communitas-backend/internal/communities"
	"github.com/lucasmedrano/communitas-backend/internal/entitlements"
	"github.com/lucasmedrano/communitas-backend/internal/ledger"
	"github.com/lucasmedrano/communitas-backend/internal/memberships"
	"github.com/lucasmedrano/communitas-backend/internal/notifications"
	"github.com/lucasmedrano/communitas-backend/pkg/db/models"
	"github.com/lucasmedrano/communitas-backend/pkg/enums"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type capturingNotifier struct {
	sent []notifications.Notification
}

func (n *capturingNotifier) Notify(_ context.Context, notification notifications.Notification) error {
	n.sent = append(n.sent, notification)
	return nil
}

func setupSchedulerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	schema := []string{`
CREATE TABLE IF NOT EXISTS communities (
  id TEXT PRIMARY KEY,
  creator_id TEXT NOT NULL,
  name TEXT NOT NULL,
  slug TEXT NOT NULL UNIQUE,
  description TEXT,
  is_paid INTEGER NOT NULL DEFAULT 0,
  stripe_price_id TEXT,
  member_count INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS community_memberships (
  id TEXT PRIMARY KEY,
  community_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  role TEXT NOT NULL DEFAULT 'member',
  status TEXT NOT NULL DEFAULT 'active',
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (community_id, user_id)
);`, `
CREATE TABLE IF NOT EXISTS subscriptions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  community_id TEXT NOT NULL,
  stripe_subscription_id TEXT NOT NULL UNIQUE,
  stripe_price_id TEXT,
  state TEXT NOT NULL,
  current_period_start DATETIME,
  current_period_end DATETIME,
  canceled_at DATETIME,
  unpaid_at DATETIME,
  past_due_since DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

type graceFixture struct {
	db          *gorm.DB
	job         *graceExpiryJob
	notifier    *capturingNotifier
	communityID uuid.UUID
	now         time.Time
}

func newGraceFixture(t *testing.T) *graceFixture {
	t.Helper()

	db := setupSchedulerTestDB(t)
	community := models.Community{
		ID:        uuid.New(),
		CreatorID: uuid.New(),
		Name:      "Night Owls",
		Slug:      "night-owls-" + uuid.NewString(),
		IsPaid:    true,
	}
	if err := db.Create(&community).Error; err != nil {
		t.Fatalf("seed community: %v", err)
	}

	manager, err := entitlements.NewManager(memberships.NewRepository(db), communities.NewRepository(db))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	notifier := &capturingNotifier{}
	jobIface, err := NewGraceExpiryJob(GraceExpiryJobParams{
		Logger:       testLogger(),
		DB:           gormTxRunner{db: db},
		LedgerRepo:   ledger.NewRepository(db),
		Entitlements: manager,
		Notifier:     notifier,
		GraceWindow:  7 * 24 * time.Hour,
		Now:          func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewGraceExpiryJob: %v", err)
	}

	return &graceFixture{
		db:          db,
		job:         jobIface.(*graceExpiryJob),
		notifier:    notifier,
		communityID: community.ID,
		now:         now,
	}
}

func (f *graceFixture) seedPastDue(t *testing.T, since time.Time) models.Subscription {
	t.Helper()

	userID := uuid.New()
	row := models.Subscription{
		ID:                   uuid.New(),
		UserID:               userID,
		CommunityID:          f.communityID,
		StripeSubscriptionID: "sub_" + uuid.NewString(),
		State:                enums.SubscriptionStatePastDue,
		PastDueSince:         &since,
	}
	if err := f.db.Create(&row).Error; err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
	membership := models.CommunityMembership{
		ID:          uuid.New(),
		CommunityID: f.communityID,
		UserID:      userID,
		Role:        enums.MemberRoleMember,
		Status:      enums.MembershipStatusActive,
	}
	if err := f.db.Create(&membership).Error; err != nil {
		t.Fatalf("seed membership: %v", err)
	}
	if err := f.db.Model(&models.Community{}).
		Where("id = ?", f.communityID).
		UpdateColumn("member_count", gorm.Expr("member_count + 1")).Error; err != nil {
		t.Fatalf("bump member count: %v", err)
	}
	return row
}

func TestGraceExpiryEscalatesToUnpaid(t *testing.T) {
	f := newGraceFixture(t)
	expired := f.seedPastDue(t, f.now.Add(-8*24*time.Hour))

	if err := f.job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var row models.Subscription
	if err := f.db.First(&row, "id = ?", expired.ID).Error; err != nil {
		t.Fatalf("reload subscription: %v", err)
	}
	if row.State != enums.SubscriptionStateUnpaid {
		t.Fatalf("expected unpaid, got %s", row.State)
	}
	if row.UnpaidAt == nil {
		t.Fatal("expected unpaid_at stamped")
	}
	if row.PastDueSince != nil {
		t.Fatal("expected past_due_since cleared")
	}

	var membership models.CommunityMembership
	if err := f.db.First(&membership, "user_id = ?", expired.UserID).Error; err != nil {
		t.Fatalf("reload membership: %v", err)
	}
	if membership.Status != enums.MembershipStatusSuspended {
		t.Fatalf("expected membership suspended, got %s", membership.Status)
	}

	var community models.Community
	if err := f.db.First(&community, "id = ?", f.communityID).Error; err != nil {
		t.Fatalf("reload community: %v", err)
	}
	if community.MemberCount != 0 {
		t.Fatalf("expected member count 0, got %d", community.MemberCount)
	}

	if len(f.notifier.sent) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(f.notifier.sent))
	}
	if f.notifier.sent[0].Kind != notifications.KindAccessRevoked {
		t.Fatalf("expected access_revoked, got %s", f.notifier.sent[0].Kind)
	}
}

func TestGraceExpiryLeavesRecentPastDueAlone(t *testing.T) {
	f := newGraceFixture(t)
	recent := f.seedPastDue(t, f.now.Add(-2*24*time.Hour))

	if err := f.job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var row models.Subscription
	if err := f.db.First(&row, "id = ?", recent.ID).Error; err != nil {
		t.Fatalf("reload subscription: %v", err)
	}
	if row.State != enums.SubscriptionStatePastDue {
		t.Fatalf("expected past_due untouched, got %s", row.State)
	}
	if len(f.notifier.sent) != 0 {
		t.Fatalf("expected no notifications, got %d", len(f.notifier.sent))
	}
}

func TestGraceExpirySkipsRowResolvedBetweenListAndLock(t *testing.T) {
	f := newGraceFixture(t)
	expired := f.seedPastDue(t, f.now.Add(-8*24*time.Hour))

	// Simulate a payment-succeeded webhook landing after the list query: the
	// stored row is healthy again by the time the job re-reads it.
	if err := f.db.Model(&models.Subscription{}).
		Where("id = ?", expired.ID).
		Updates(map[string]any{"state": enums.SubscriptionStateActive, "past_due_since": nil}).Error; err != nil {
		t.Fatalf("resolve row: %v", err)
	}

	cutoff := f.now.Add(-7 * 24 * time.Hour)
	if err := f.job.expire(context.Background(), &expired, cutoff); err != nil {
		t.Fatalf("expire: %v", err)
	}

	var row models.Subscription
	if err := f.db.First(&row, "id = ?", expired.ID).Error; err != nil {
		t.Fatalf("reload subscription: %v", err)
	}
	if row.State != enums.SubscriptionStateActive {
		t.Fatalf("expected active preserved, got %s", row.State)
	}
	if len(f.notifier.sent) != 0 {
		t.Fatalf("expected no notifications, got %d", len(f.notifier.sent))
	}
}
