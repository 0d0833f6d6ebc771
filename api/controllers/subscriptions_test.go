package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lucasmedrano/communitas-backend/api/middleware"
	"github.com/lucasmedrano/communitas-backend/internal/subscriptions"
	pkgerrors "github.com/lucasmedrano/communitas-backend/pkg/errors"
	"github.com/lucasmedrano/communitas-backend/pkg/pagination"
)

type fakeSubscriptionService struct {
	subscriptions.Service

	createUser      uuid.UUID
	createCommunity uuid.UUID
	createResult    *subscriptions.CreationResult
	createErr       error

	getDTO *subscriptions.SubscriptionDTO
	getErr error

	cancelCalls int
	cancelErr   error
}

func (f *fakeSubscriptionService) Create(_ context.Context, userID, communityID uuid.UUID) (*subscriptions.CreationResult, error) {
	f.createUser = userID
	f.createCommunity = communityID
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.createResult != nil {
		return f.createResult, nil
	}
	return &subscriptions.CreationResult{StripeSubscriptionID: "sub_new", Status: "active"}, nil
}

func (f *fakeSubscriptionService) GetByID(context.Context, uuid.UUID) (*subscriptions.SubscriptionDTO, error) {
	return f.getDTO, f.getErr
}

func (f *fakeSubscriptionService) Cancel(context.Context, uuid.UUID) error {
	f.cancelCalls++
	return f.cancelErr
}

func (f *fakeSubscriptionService) ListByUser(_ context.Context, _ uuid.UUID, params pagination.Params) ([]subscriptions.SubscriptionDTO, string, error) {
	return []subscriptions.SubscriptionDTO{}, "", nil
}

func authedRequest(method, target string, body []byte, userID uuid.UUID) *http.Request {
	var r *http.Request
	if body != nil {
		r = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	return r.WithContext(middleware.WithUserID(r.Context(), userID))
}

func TestSubscriptionCreate(t *testing.T) {
	userID := uuid.New()
	communityID := uuid.New()
	svc := &fakeSubscriptionService{}

	body, _ := json.Marshal(map[string]string{"community_id": communityID.String()})
	rec := httptest.NewRecorder()
	SubscriptionCreate(svc, nil)(rec, authedRequest(http.MethodPost, "/api/v1/subscriptions", body, userID))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.createUser != userID || svc.createCommunity != communityID {
		t.Fatal("service received wrong identifiers")
	}
}

func TestSubscriptionCreateRequiresIdentity(t *testing.T) {
	body, _ := json.Marshal(map[string]string{"community_id": uuid.NewString()})
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions", bytes.NewReader(body))
	SubscriptionCreate(&fakeSubscriptionService{}, nil)(rec, r)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestSubscriptionCreateRejectsUnknownFields(t *testing.T) {
	rec := httptest.NewRecorder()
	body := []byte(`{"community_id":"` + uuid.NewString() + `","plan":"gold"}`)
	SubscriptionCreate(&fakeSubscriptionService{}, nil)(rec, authedRequest(http.MethodPost, "/", body, uuid.New()))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func routedRequest(t *testing.T, handler http.HandlerFunc, method, path string, userID uuid.UUID) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	router.MethodFunc(method, "/subscriptions/{subscriptionId}", handler)
	router.MethodFunc(method, "/subscriptions/{subscriptionId}/cancel", handler)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(method, path, nil, userID))
	return rec
}

func TestSubscriptionGetHidesForeignRows(t *testing.T) {
	owner := uuid.New()
	stranger := uuid.New()
	rowID := uuid.New()
	svc := &fakeSubscriptionService{
		getDTO: &subscriptions.SubscriptionDTO{ID: rowID, UserID: owner},
	}

	rec := routedRequest(t, SubscriptionGet(svc, nil), http.MethodGet, "/subscriptions/"+rowID.String(), stranger)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign row, got %d", rec.Code)
	}

	rec = routedRequest(t, SubscriptionGet(svc, nil), http.MethodGet, "/subscriptions/"+rowID.String(), owner)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for owner, got %d", rec.Code)
	}
}

func TestSubscriptionCancelMapsStateConflict(t *testing.T) {
	owner := uuid.New()
	rowID := uuid.New()
	svc := &fakeSubscriptionService{
		getDTO:    &subscriptions.SubscriptionDTO{ID: rowID, UserID: owner},
		cancelErr: pkgerrors.New(pkgerrors.CodeStateConflict, "subscription is finished"),
	}

	rec := routedRequest(t, SubscriptionCancel(svc, nil), http.MethodDelete, "/subscriptions/"+rowID.String(), owner)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if svc.cancelCalls != 1 {
		t.Fatalf("expected cancel attempted once, got %d", svc.cancelCalls)
	}
}

func TestSubscriptionListValidatesLimit(t *testing.T) {
	rec := httptest.NewRecorder()
	r := authedRequest(http.MethodGet, "/subscriptions?limit=9999", nil, uuid.New())
	SubscriptionList(&fakeSubscriptionService{}, nil)(rec, r)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized limit, got %d", rec.Code)
	}
}
