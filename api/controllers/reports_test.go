package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lucasmedrano/communitas-backend/internal/revenue"
)

type fakeRevenueService struct {
	revenue.Service

	metricsWindow    revenue.Window
	metricsCommunity *uuid.UUID
	payoutCreator    uuid.UUID
	topLimit         int
}

func (f *fakeRevenueService) GetRevenueMetrics(_ context.Context, window revenue.Window, communityID *uuid.UUID) (*revenue.RevenueMetrics, error) {
	f.metricsWindow = window
	f.metricsCommunity = communityID
	return &revenue.RevenueMetrics{}, nil
}

func (f *fakeRevenueService) CalculateCreatorPayouts(_ context.Context, _ revenue.Window, creatorID uuid.UUID) (*revenue.PayoutReport, error) {
	f.payoutCreator = creatorID
	return &revenue.PayoutReport{}, nil
}

func (f *fakeRevenueService) GetTopCommunities(_ context.Context, _ revenue.Window, limit int) ([]revenue.CommunityRanking, error) {
	f.topLimit = limit
	return []revenue.CommunityRanking{}, nil
}

func TestRevenueMetricsParsesWindowAndFilter(t *testing.T) {
	svc := &fakeRevenueService{}
	communityID := uuid.New()

	rec := httptest.NewRecorder()
	r := authedRequest(http.MethodGet, "/reports/revenue?start=2026-01-01&end=2026-02-01&community_id="+communityID.String(), nil, uuid.New())
	RevenueMetrics(svc, nil)(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if !svc.metricsWindow.Start.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected window start %s", svc.metricsWindow.Start)
	}
	if svc.metricsCommunity == nil || *svc.metricsCommunity != communityID {
		t.Fatalf("community filter not propagated: %v", svc.metricsCommunity)
	}
}

func TestRevenueMetricsRequiresRange(t *testing.T) {
	rec := httptest.NewRecorder()
	r := authedRequest(http.MethodGet, "/reports/revenue?start=2026-01-01", nil, uuid.New())
	RevenueMetrics(&fakeRevenueService{}, nil)(rec, r)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreatorPayoutsUsesCallerIdentity(t *testing.T) {
	svc := &fakeRevenueService{}
	creatorID := uuid.New()

	rec := httptest.NewRecorder()
	r := authedRequest(http.MethodGet, "/reports/payouts?start=2026-01-01&end=2026-02-01", nil, creatorID)
	CreatorPayouts(svc, nil)(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.payoutCreator != creatorID {
		t.Fatalf("expected creator %s, got %s", creatorID, svc.payoutCreator)
	}
}

func TestCreatorPayoutsRequiresIdentity(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/reports/payouts?start=2026-01-01&end=2026-02-01", nil)
	CreatorPayouts(&fakeRevenueService{}, nil)(rec, r)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestTopCommunitiesLimit(t *testing.T) {
	svc := &fakeRevenueService{}

	rec := httptest.NewRecorder()
	r := authedRequest(http.MethodGet, "/reports/top-communities?start=2026-01-01&end=2026-02-01&limit=5", nil, uuid.New())
	TopCommunities(svc, nil)(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.topLimit != 5 {
		t.Fatalf("expected limit 5, got %d", svc.topLimit)
	}
}
