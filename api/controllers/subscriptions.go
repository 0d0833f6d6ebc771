package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/lucasmedrano/communitas-backend/api/middleware"
	"github.com/lucasmedrano/communitas-backend/api/responses"
	"github.com/lucasmedrano/communitas-backend/api/validators"
	"github.com/lucasmedrano/communitas-backend/internal/subscriptions"
	pkgerrors "github.com/lucasmedrano/communitas-backend/pkg/errors"
	"github.com/lucasmedrano/communitas-backend/pkg/logger"
	"github.com/lucasmedrano/communitas-backend/pkg/pagination"
)

type createSubscriptionRequest struct {
	CommunityID string `json:"community_id" validate:"required,uuid"`
}

type changePlanRequest struct {
	PriceID string `json:"price_id" validate:"required"`
}

type listEnvelope struct {
	Items      any    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// SubscriptionCreate starts a paid subscription for the calling user.
func SubscriptionCreate(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID, ok := middleware.UserID(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "caller identity missing"))
			return
		}

		var body createSubscriptionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		communityID, err := uuid.Parse(body.CommunityID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "community_id must be a uuid"))
			return
		}

		result, err := svc.Create(ctx, userID, communityID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, result)
	}
}

// SubscriptionGet returns one ledger row, restricted to its owner.
func SubscriptionGet(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		dto, err := ownedSubscription(r, svc)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

// SubscriptionCancel cancels immediately at the provider.
func SubscriptionCancel(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return subscriptionAction(svc, logg, svc.Cancel)
}

// SubscriptionScheduleCancel schedules cancellation for the period boundary.
func SubscriptionScheduleCancel(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return subscriptionAction(svc, logg, svc.ScheduleCancel)
}

// SubscriptionUnscheduleCancel clears a scheduled cancellation.
func SubscriptionUnscheduleCancel(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return subscriptionAction(svc, logg, svc.UnscheduleCancel)
}

// SubscriptionPause pauses collection at the provider.
func SubscriptionPause(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return subscriptionAction(svc, logg, svc.Pause)
}

// SubscriptionResume resumes a paused subscription.
func SubscriptionResume(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return subscriptionAction(svc, logg, svc.Resume)
}

// SubscriptionChangePlan swaps the subscription onto a new price.
func SubscriptionChangePlan(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		dto, err := ownedSubscription(r, svc)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var body changePlanRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := svc.ChangePlan(ctx, dto.ID, body.PriceID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, nil)
	}
}

// SubscriptionList returns the calling user's subscriptions, cursor paginated.
func SubscriptionList(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID, ok := middleware.UserID(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "caller identity missing"))
			return
		}
		params, err := listParams(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		items, next, err := svc.ListByUser(ctx, userID, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, listEnvelope{Items: items, NextCursor: next})
	}
}

// SubscriptionInvoices returns the mirrored invoices for one subscription.
func SubscriptionInvoices(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		dto, err := ownedSubscription(r, svc)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		params, err := listParams(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		items, next, err := svc.ListInvoices(ctx, dto.ID, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, listEnvelope{Items: items, NextCursor: next})
	}
}

// SubscriptionUpcomingInvoice previews the next invoice at the provider.
func SubscriptionUpcomingInvoice(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		dto, err := ownedSubscription(r, svc)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		preview, err := svc.UpcomingInvoice(ctx, dto.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, preview)
	}
}

func subscriptionAction(svc subscriptions.Service, logg *logger.Logger, action func(ctx context.Context, id uuid.UUID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		dto, err := ownedSubscription(r, svc)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := action(ctx, dto.ID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, nil)
	}
}

// ownedSubscription loads the addressed row and enforces that the caller
// owns it. Foreign rows read as not-found so ids do not leak existence.
func ownedSubscription(r *http.Request, svc subscriptions.Service) (*subscriptions.SubscriptionDTO, error) {
	ctx := r.Context()

	userID, ok := middleware.UserID(ctx)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "caller identity missing")
	}
	id, err := validators.URLParamUUID(r, "subscriptionId")
	if err != nil {
		return nil, err
	}

	dto, err := svc.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if dto.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	return dto, nil
}

func listParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: r.URL.Query().Get("cursor"),
	}, nil
}
