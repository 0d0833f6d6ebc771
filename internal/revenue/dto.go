package revenue

import (
	"time"

	"github.com/google/uuid"

	"github.com/lucasmedrano/communitas-backend/pkg/types"
)

// Window is a half-open reporting interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// RevenueMetrics summarizes paid invoices in a window. SkippedInvoices
// counts malformed rows the sums had to exclude.
type RevenueMetrics struct {
	TotalRevenue      types.Money    `json:"total_revenue"`
	MonthlyRevenue    []MonthRevenue `json:"monthly_revenue"`
	ChurnRatePct      float64        `json:"churn_rate_pct"`
	AvgRevenuePerUser types.Money    `json:"avg_revenue_per_user"`
	PayingUsers       int64          `json:"paying_users"`
	PaymentCount      int64          `json:"payment_count"`
	SkippedInvoices   int64          `json:"skipped_invoices"`
}

// MonthRevenue is one month's slice of the window.
type MonthRevenue struct {
	Month   string      `json:"month"`
	Revenue types.Money `json:"revenue"`
}

// PayoutRecord is one community's share of a creator payout. Records are
// never merged across communities so the audit trail stays per-community.
type PayoutRecord struct {
	CommunityID     uuid.UUID   `json:"community_id"`
	CommunityName   string      `json:"community_name"`
	TotalRevenue    types.Money `json:"total_revenue"`
	PlatformFee     types.Money `json:"platform_fee"`
	CreatorEarnings types.Money `json:"creator_earnings"`
	PaymentCount    int64       `json:"payment_count"`
}

// PayoutReport bundles a creator's payout records with the count of
// malformed invoice rows excluded from their sums.
type PayoutReport struct {
	Records         []PayoutRecord `json:"records"`
	SkippedInvoices int64          `json:"skipped_invoices"`
}

// RevenueBreakdown itemizes a creator's revenue by community.
// SkippedInvoices counts malformed invoice rows excluded from the sums; a
// bad upstream record degrades the report instead of aborting it.
type RevenueBreakdown struct {
	CreatorID       uuid.UUID      `json:"creator_id"`
	Communities     []PayoutRecord `json:"communities"`
	Total           types.Money    `json:"total"`
	SkippedInvoices int64          `json:"skipped_invoices"`
}

// CommunityRanking is one row of the top-communities report.
type CommunityRanking struct {
	CommunityID   uuid.UUID   `json:"community_id"`
	CommunityName string      `json:"community_name"`
	Revenue       types.Money `json:"revenue"`
	PaymentCount  int64       `json:"payment_count"`
}

// SubscriptionAnalytics summarizes ledger movement in a window.
type SubscriptionAnalytics struct {
	NewSubscriptions      int64            `json:"new_subscriptions"`
	CanceledSubscriptions int64            `json:"canceled_subscriptions"`
	ActiveAtEnd           int64            `json:"active_at_end"`
	StateCounts           map[string]int64 `json:"state_counts"`
}
