package revenue

import (
	"context"

	"github.com/google/uuid"

	"github.com/lucasmedrano/communitas-backend/pkg/config"
	pkgerrors "github.com/lucasmedrano/communitas-backend/pkg/errors"
	"github.com/lucasmedrano/communitas-backend/pkg/types"
)

// Reports settle in the platform currency; per-invoice currencies are
// normalized upstream before they reach the mirror.
const reportCurrency = "usd"

const feeBpsDenominator = 10000

// Service exposes the read-only revenue reports. Nothing here writes the
// ledger.
type Service interface {
	GetRevenueMetrics(ctx context.Context, window Window, communityID *uuid.UUID) (*RevenueMetrics, error)
	CalculateCreatorPayouts(ctx context.Context, window Window, creatorID uuid.UUID) (*PayoutReport, error)
	GetRevenueBreakdown(ctx context.Context, window Window, creatorID uuid.UUID) (*RevenueBreakdown, error)
	GetTopCommunities(ctx context.Context, window Window, limit int) ([]CommunityRanking, error)
	GetSubscriptionAnalytics(ctx context.Context, window Window, communityID *uuid.UUID) (*SubscriptionAnalytics, error)
}

type service struct {
	repo     Repository
	platform config.PlatformConfig
}

// NewService builds the revenue service.
func NewService(repo Repository, platform config.PlatformConfig) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "revenue repository required")
	}
	if platform.FeeBps < 0 || platform.FeeBps > feeBpsDenominator {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "platform fee out of range")
	}
	return &service{repo: repo, platform: platform}, nil
}

func validateWindow(window Window) error {
	if window.Start.IsZero() || window.End.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "window start and end required")
	}
	if !window.End.After(window.Start) {
		return pkgerrors.New(pkgerrors.CodeValidation, "window end must be after start")
	}
	return nil
}

func (s *service) GetRevenueMetrics(ctx context.Context, window Window, communityID *uuid.UUID) (*RevenueMetrics, error) {
	if err := validateWindow(window); err != nil {
		return nil, err
	}

	totals, err := s.repo.PaidInvoiceTotals(ctx, window, communityID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum paid invoices")
	}

	monthly, err := s.repo.MonthlyPaidRevenue(ctx, window, communityID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum monthly revenue")
	}

	activeAtStart, err := s.repo.ActiveSubscriptionsAt(ctx, window, communityID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count active subscriptions")
	}
	churned, err := s.repo.ChurnedInWindow(ctx, window, communityID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count churned subscriptions")
	}
	skipped, err := s.repo.MalformedInvoiceCount(ctx, window, communityID, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count skipped invoices")
	}

	// A window with no subscribers at open churns nobody, not NaN.
	churnRate := 0.0
	if activeAtStart > 0 {
		churnRate = float64(churned) / float64(activeAtStart) * 100
	}

	// Integer division only at the last step, and only when payers exist.
	var arpuCents int64
	if totals.PayingUsers > 0 {
		arpuCents = totals.TotalCents / totals.PayingUsers
	}

	months := make([]MonthRevenue, 0, len(monthly))
	for _, month := range monthly {
		months = append(months, MonthRevenue{
			Month:   month.Month,
			Revenue: types.NewMoney(month.TotalCents, reportCurrency),
		})
	}

	return &RevenueMetrics{
		TotalRevenue:      types.NewMoney(totals.TotalCents, reportCurrency),
		MonthlyRevenue:    months,
		ChurnRatePct:      churnRate,
		AvgRevenuePerUser: types.NewMoney(arpuCents, reportCurrency),
		PayingUsers:       totals.PayingUsers,
		PaymentCount:      totals.PaymentCount,
		SkippedInvoices:   skipped,
	}, nil
}

// CalculateCreatorPayouts yields one record per owned community in the
// window. The fee comes off in integer minor units before any display
// conversion, so fee + earnings always reconstruct the total exactly.
func (s *service) CalculateCreatorPayouts(ctx context.Context, window Window, creatorID uuid.UUID) (*PayoutReport, error) {
	if err := validateWindow(window); err != nil {
		return nil, err
	}
	if creatorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "creator id required")
	}

	totals, err := s.repo.CreatorCommunityTotals(ctx, window, creatorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate creator revenue")
	}
	skipped, err := s.repo.MalformedInvoiceCount(ctx, window, nil, &creatorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count skipped invoices")
	}

	records := make([]PayoutRecord, 0, len(totals))
	for _, total := range totals {
		feeCents := total.TotalCents * int64(s.platform.FeeBps) / feeBpsDenominator
		earningsCents := total.TotalCents - feeCents
		records = append(records, PayoutRecord{
			CommunityID:     total.CommunityID,
			CommunityName:   total.CommunityName,
			TotalRevenue:    types.NewMoney(total.TotalCents, reportCurrency),
			PlatformFee:     types.NewMoney(feeCents, reportCurrency),
			CreatorEarnings: types.NewMoney(earningsCents, reportCurrency),
			PaymentCount:    total.PaymentCount,
		})
	}
	return &PayoutReport{Records: records, SkippedInvoices: skipped}, nil
}

func (s *service) GetRevenueBreakdown(ctx context.Context, window Window, creatorID uuid.UUID) (*RevenueBreakdown, error) {
	payouts, err := s.CalculateCreatorPayouts(ctx, window, creatorID)
	if err != nil {
		return nil, err
	}

	var totalCents int64
	for _, record := range payouts.Records {
		totalCents += record.TotalRevenue.AmountCents
	}
	return &RevenueBreakdown{
		CreatorID:       creatorID,
		Communities:     payouts.Records,
		Total:           types.NewMoney(totalCents, reportCurrency),
		SkippedInvoices: payouts.SkippedInvoices,
	}, nil
}

func (s *service) GetTopCommunities(ctx context.Context, window Window, limit int) ([]CommunityRanking, error) {
	if err := validateWindow(window); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	totals, err := s.repo.TopCommunityTotals(ctx, window, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rank communities")
	}

	rankings := make([]CommunityRanking, 0, len(totals))
	for _, total := range totals {
		rankings = append(rankings, CommunityRanking{
			CommunityID:   total.CommunityID,
			CommunityName: total.CommunityName,
			Revenue:       types.NewMoney(total.TotalCents, reportCurrency),
			PaymentCount:  total.PaymentCount,
		})
	}
	return rankings, nil
}

func (s *service) GetSubscriptionAnalytics(ctx context.Context, window Window, communityID *uuid.UUID) (*SubscriptionAnalytics, error) {
	if err := validateWindow(window); err != nil {
		return nil, err
	}

	movement, err := s.repo.SubscriptionMovement(ctx, window, communityID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate subscription movement")
	}

	return &SubscriptionAnalytics{
		NewSubscriptions:      movement.New,
		CanceledSubscriptions: movement.Canceled,
		ActiveAtEnd:           movement.ActiveAtEnd,
		StateCounts:           movement.StateCounts,
	}, nil
}
