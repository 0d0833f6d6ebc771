package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/lucasmedrano/communitas-backend/internal/reconciler"
	stripewebhook "github.com/lucasmedrano/communitas-backend/internal/webhooks/stripe"
)

const testSigningSecret = "whsec_test"

func newTestHandler(t *testing.T, service *fakeWebhookService) (http.HandlerFunc, *inMemoryStore) {
	t.Helper()
	store := newInMemoryStore()
	guard, err := stripewebhook.NewIdempotencyGuard(store, time.Minute, "stripe-webhook")
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	return StripeWebhook(service, &fakeSecretSource{secret: testSigningSecret}, guard, nil, nil), store
}

func postEvent(handler http.HandlerFunc, payload []byte, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", header)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestStripeWebhookProcessesAndDeduplicates(t *testing.T) {
	payload, header := buildSignedEvent(t)
	service := &fakeWebhookService{outcome: reconciler.OutcomeApplied}
	handler, _ := newTestHandler(t, service)

	rec := postEvent(handler, payload, header)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if service.calls != 1 {
		t.Fatalf("expected service called once, got %d", service.calls)
	}

	rec = postEvent(handler, payload, header)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on redelivery, got %d", rec.Code)
	}
	if service.calls != 1 {
		t.Fatalf("expected redelivery screened, call count %d", service.calls)
	}
}

func TestStripeWebhookRejectsInvalidSignature(t *testing.T) {
	payload, _ := buildSignedEvent(t)
	service := &fakeWebhookService{outcome: reconciler.OutcomeApplied}
	handler, _ := newTestHandler(t, service)

	rec := postEvent(handler, payload, "t=1,v1=invalid")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid signature, got %d", rec.Code)
	}
	if service.calls != 0 {
		t.Fatal("service should not run on invalid signature")
	}
}

func TestStripeWebhookRequiresSignatureHeader(t *testing.T) {
	payload, _ := buildSignedEvent(t)
	handler, _ := newTestHandler(t, &fakeWebhookService{})

	rec := postEvent(handler, payload, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without signature, got %d", rec.Code)
	}
}

func TestStripeWebhookOrphanAnswersConflictAndClearsGuard(t *testing.T) {
	payload, header := buildSignedEvent(t)
	service := &fakeWebhookService{outcome: reconciler.OutcomeOrphan}
	handler, store := newTestHandler(t, service)

	rec := postEvent(handler, payload, header)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for orphan, got %d", rec.Code)
	}
	if len(store.data) != 0 {
		t.Fatal("expected guard mark cleared for orphan")
	}

	// The provider's redelivery must reach the service again.
	service.outcome = reconciler.OutcomeApplied
	rec = postEvent(handler, payload, header)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on redelivery, got %d", rec.Code)
	}
	if service.calls != 2 {
		t.Fatalf("expected redelivery processed, call count %d", service.calls)
	}
}

func TestStripeWebhookAgedOrphanIsAcknowledged(t *testing.T) {
	payload, header := buildSignedEventCreatedAt(t, time.Now().Add(-48*time.Hour).Unix())
	service := &fakeWebhookService{outcome: reconciler.OutcomeOrphan}
	handler, store := newTestHandler(t, service)

	rec := postEvent(handler, payload, header)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for aged orphan, got %d (%s)", rec.Code, rec.Body.String())
	}
	if len(store.data) != 1 {
		t.Fatal("expected guard mark kept for aged orphan")
	}

	// Redeliveries dedupe instead of reaching the service again.
	rec = postEvent(handler, payload, header)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on redelivery, got %d", rec.Code)
	}
	if service.calls != 1 {
		t.Fatalf("expected redelivery screened, call count %d", service.calls)
	}
}

func TestStripeWebhookFailureClearsGuard(t *testing.T) {
	payload, header := buildSignedEvent(t)
	service := &fakeWebhookService{err: fmt.Errorf("transient")}
	handler, store := newTestHandler(t, service)

	rec := postEvent(handler, payload, header)
	if rec.Code == http.StatusOK {
		t.Fatal("expected error status")
	}
	if len(store.data) != 0 {
		t.Fatal("expected guard mark cleared after failure")
	}
}

func buildSignedEvent(t *testing.T) ([]byte, string) {
	t.Helper()
	return buildSignedEventCreatedAt(t, 0)
}

func buildSignedEventCreatedAt(t *testing.T, created int64) ([]byte, string) {
	t.Helper()

	subscription := &stripe.Subscription{
		ID:     "sub_" + uuid.NewString(),
		Status: stripe.SubscriptionStatusActive,
		Metadata: map[string]string{
			stripewebhook.MetadataUserID:      uuid.NewString(),
			stripewebhook.MetadataCommunityID: uuid.NewString(),
		},
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{{
				CurrentPeriodStart: 1,
				CurrentPeriodEnd:   2,
				Price:              &stripe.Price{ID: "price_1"},
			}},
		},
	}
	rawSub, err := json.Marshal(subscription)
	if err != nil {
		t.Fatalf("marshal subscription: %v", err)
	}
	event := &stripe.Event{
		ID:         "evt_" + uuid.NewString(),
		Type:       stripe.EventTypeCustomerSubscriptionCreated,
		Object:     "event",
		APIVersion: stripe.APIVersion,
		Created:    created,
		Data: &stripe.EventData{
			Raw: rawSub,
		},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload, buildSignatureHeader(payload, testSigningSecret, time.Now().Unix())
}

func buildSignatureHeader(payload []byte, secret string, ts int64) string {
	signedPayload := fmt.Sprintf("%d.%s", ts, payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

type fakeWebhookService struct {
	calls   int
	outcome reconciler.Outcome
	err     error
}

func (f *fakeWebhookService) HandleEvent(context.Context, *stripe.Event) (reconciler.Outcome, error) {
	f.calls++
	return f.outcome, f.err
}

type fakeSecretSource struct {
	secret string
}

func (s *fakeSecretSource) SigningSecret() string {
	return s.secret
}

type inMemoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{data: map[string]string{}}
}

func (s *inMemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *inMemoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; exists {
		return false, nil
	}
	s.data[key] = fmt.Sprintf("%v", value)
	return true, nil
}

func (s *inMemoryStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("communitas:idempotency:%s:%s", scope, id)
}

func (s *inMemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}
