package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/beartask/beartask-backend/internal/settlement"
)

func TestStripeWebhook_SuccessAndIdempotent(t *testing.T) {
	payload, header := buildSignedEvent(t)
	service := &fakeSettlementService{}
	store := newInMemoryStore()
	guard, err := settlement.NewIdempotencyGuard(store, time.Minute, "stripe-webhook")
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	handler := StripeWebhook(service, &fakeSigningClient{secret: "whsec_test"}, guard, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", header)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if service.calls != 1 {
		t.Fatalf("expected service called once, got %d", service.calls)
	}

	// Replay the same event
	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req2.Header.Set("Stripe-Signature", header)
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 on duplicate, got %d (%s)", rec2.Code, rec2.Body.String())
	}
	if service.calls != 1 {
		t.Fatalf("expected duplicate not processed, call count %d", service.calls)
	}
}

func TestStripeWebhook_InvalidSignature(t *testing.T) {
	payload, _ := buildSignedEvent(t)
	service := &fakeSettlementService{}
	store := newInMemoryStore()
	guard, err := settlement.NewIdempotencyGuard(store, time.Minute, "stripe-webhook")
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	handler := StripeWebhook(service, &fakeSigningClient{secret: "whsec_test"}, guard, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=1,v1=invalid")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid signature, got %d", rec.Code)
	}
	if service.calls != 0 {
		t.Fatalf("service should not be invoked on invalid signature")
	}
}

func TestStripeWebhook_HandlerErrorStillAcknowledges(t *testing.T) {
	payload, header := buildSignedEvent(t)
	service := &fakeSettlementService{err: errors.New("db down")}
	store := newInMemoryStore()
	guard, err := settlement.NewIdempotencyGuard(store, time.Minute, "stripe-webhook")
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	handler := StripeWebhook(service, &fakeSigningClient{secret: "whsec_test"}, guard, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", header)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 despite handler failure, got %d", rec.Code)
	}

	// The idempotency mark was released, so a redelivery retries the handler.
	service.err = nil
	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req2.Header.Set("Stripe-Signature", header)
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 on retry, got %d", rec2.Code)
	}
	if service.calls != 2 {
		t.Fatalf("expected retry to reach the handler, call count %d", service.calls)
	}
}

func buildSignedEvent(t *testing.T) ([]byte, string) {
	session := &stripe.CheckoutSession{
		ID: "cs_" + uuid.NewString(),
	}
	rawSession, err := json.Marshal(session)
	if err != nil {
		t.Fatalf("marshal session: %v", err)
	}
	event := &stripe.Event{
		ID:         "evt_" + uuid.NewString(),
		Type:       stripe.EventTypeCheckoutSessionCompleted,
		Object:     "event",
		APIVersion: stripe.APIVersion,
		Data: &stripe.EventData{
			Raw: rawSession,
		},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	header := buildStripeSignatureHeader(payload, "whsec_test", time.Now().Unix())
	return payload, header
}

func buildStripeSignatureHeader(payload []byte, secret string, ts int64) string {
	signedPayload := fmt.Sprintf("%d.%s", ts, payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

type fakeSettlementService struct {
	calls int
	err   error
}

func (f *fakeSettlementService) HandleEvent(ctx context.Context, event *stripe.Event) error {
	f.calls++
	return f.err
}

type fakeSigningClient struct {
	secret string
}

func (c *fakeSigningClient) VerifyEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, sigHeader, c.secret)
}

type inMemoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{
		data: make(map[string]string),
	}
}

func (s *inMemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *inMemoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; exists {
		return false, nil
	}
	s.data[key] = fmt.Sprintf("%v", value)
	return true, nil
}

func (s *inMemoryStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("bt:idempotency:%s:%s", scope, id)
}

func (s *inMemoryStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}
