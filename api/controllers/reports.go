package controllers

import (
	"net/http"

	"github.com/lucasmedrano/communitas-backend/api/middleware"
	"github.com/lucasmedrano/communitas-backend/api/responses"
	"github.com/lucasmedrano/communitas-backend/api/validators"
	"github.com/lucasmedrano/communitas-backend/internal/revenue"
	pkgerrors "github.com/lucasmedrano/communitas-backend/pkg/errors"
	"github.com/lucasmedrano/communitas-backend/pkg/logger"
)

const topCommunitiesMaxLimit = 100

// RevenueMetrics reports totals, monthly slices, churn, and ARPU for a
// date range.
func RevenueMetrics(svc revenue.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		window, err := reportWindow(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		communityID, err := validators.ParseQueryUUID(r, "community_id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		metrics, err := svc.GetRevenueMetrics(ctx, window, communityID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, metrics)
	}
}

// CreatorPayouts itemizes the calling creator's payout per community.
func CreatorPayouts(svc revenue.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		creatorID, ok := middleware.UserID(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "caller identity missing"))
			return
		}
		window, err := reportWindow(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		report, err := svc.CalculateCreatorPayouts(ctx, window, creatorID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

// CreatorRevenueBreakdown returns the calling creator's revenue by
// community plus the total.
func CreatorRevenueBreakdown(svc revenue.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		creatorID, ok := middleware.UserID(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "caller identity missing"))
			return
		}
		window, err := reportWindow(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		breakdown, err := svc.GetRevenueBreakdown(ctx, window, creatorID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, breakdown)
	}
}

// TopCommunities ranks communities by revenue in the window.
func TopCommunities(svc revenue.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		window, err := reportWindow(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 10, 1, topCommunitiesMaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		rankings, err := svc.GetTopCommunities(ctx, window, limit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, rankings)
	}
}

// SubscriptionAnalytics reports ledger movement for the window.
func SubscriptionAnalytics(svc revenue.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		window, err := reportWindow(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		communityID, err := validators.ParseQueryUUID(r, "community_id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		analytics, err := svc.GetSubscriptionAnalytics(ctx, window, communityID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, analytics)
	}
}

func reportWindow(r *http.Request) (revenue.Window, error) {
	start, end, err := validators.ParseDateRange(r)
	if err != nil {
		return revenue.Window{}, err
	}
	return revenue.Window{Start: start, End: end}, nil
}
