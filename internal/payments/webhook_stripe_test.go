package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v76/webhook"
)

const testWebhookSecret = "whsec_test123"

type stubProcessed struct {
	seen   map[string]bool
	marked []string
}

func (s *stubProcessed) AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	return s.seen[provider+":"+eventID], nil
}

func (s *stubProcessed) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	if s.seen == nil {
		s.seen = map[string]bool{}
	}
	s.seen[provider+":"+eventID] = true
	s.marked = append(s.marked, eventID)
	return true, nil
}

type stubPaidMarker struct {
	sessionID string
	err       error
	refs      []string
}

func (s *stubPaidMarker) MarkPaid(ctx context.Context, provider, providerRef string) (string, error) {
	s.refs = append(s.refs, providerRef)
	return s.sessionID, s.err
}

func buildStripeEvent(t *testing.T, eventID, eventType string, object map[string]any) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"type":        eventType,
		"created":     time.Now().Unix(),
		"api_version": "2020-08-27",
		"data":        map[string]any{"object": object},
	})
	if err != nil {
		t.Fatalf("failed to marshal stripe event: %v", err)
	}
	return data
}

func signedRequest(payload []byte, secret string) *http.Request {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: secret})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func TestStripeWebhookHandler_Success(t *testing.T) {
	processed := &stubProcessed{}
	ledger := &stubPaidMarker{sessionID: "sess-ledger"}
	completer := &stubCompleter{}
	h := NewStripeWebhookHandler(testWebhookSecret, processed, ledger, completer, nil)

	body := buildStripeEvent(t, "evt_1", "checkout.session.completed", map[string]any{
		"id":             "cs_123",
		"object":         "checkout.session",
		"payment_status": "paid",
		"metadata":       map[string]string{"portal_session_id": "sess-1"},
	})
	rec := httptest.NewRecorder()
	h.Handle(rec, signedRequest(body, testWebhookSecret))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(completer.calls) != 1 || completer.calls[0] != "sess-1|cs_123" {
		t.Fatalf("unexpected completer calls %v", completer.calls)
	}
	if len(ledger.refs) != 1 || ledger.refs[0] != "cs_123" {
		t.Fatalf("expected ledger update, got %v", ledger.refs)
	}
	if len(processed.marked) != 1 || processed.marked[0] != "evt_1" {
		t.Fatalf("expected event marked processed, got %v", processed.marked)
	}

	// replay is acknowledged without completing again
	rec = httptest.NewRecorder()
	h.Handle(rec, signedRequest(body, testWebhookSecret))
	if rec.Code != http.StatusOK || len(completer.calls) != 1 {
		t.Fatalf("replay should be a no-op, code=%d calls=%d", rec.Code, len(completer.calls))
	}
}

func TestStripeWebhookHandler_FallsBackToLedgerSession(t *testing.T) {
	completer := &stubCompleter{}
	h := NewStripeWebhookHandler(testWebhookSecret, &stubProcessed{}, &stubPaidMarker{sessionID: "sess-ledger"}, completer, nil)

	body := buildStripeEvent(t, "evt_2", "checkout.session.completed", map[string]any{"id": "cs_456", "object": "checkout.session", "payment_status": "paid"})
	rec := httptest.NewRecorder()
	h.Handle(rec, signedRequest(body, testWebhookSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(completer.calls) != 1 || completer.calls[0] != "sess-ledger|cs_456" {
		t.Fatalf("unexpected completer calls %v", completer.calls)
	}
}

func TestStripeWebhookHandler_BadSignature(t *testing.T) {
	completer := &stubCompleter{}
	h := NewStripeWebhookHandler(testWebhookSecret, &stubProcessed{}, nil, completer, nil)
	body := buildStripeEvent(t, "evt_3", "checkout.session.completed", map[string]any{"id": "cs_1"})

	rec := httptest.NewRecorder()
	h.Handle(rec, signedRequest(body, "whsec_wrong"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if len(completer.calls) != 0 {
		t.Fatalf("completer must not run on bad signature")
	}
}

func TestStripeWebhookHandler_IgnoresOtherEvents(t *testing.T) {
	completer := &stubCompleter{}
	h := NewStripeWebhookHandler(testWebhookSecret, &stubProcessed{}, nil, completer, nil)
	body := buildStripeEvent(t, "evt_4", "payment_intent.created", map[string]any{"id": "pi_1"})

	rec := httptest.NewRecorder()
	h.Handle(rec, signedRequest(body, testWebhookSecret))
	if rec.Code != http.StatusOK || len(completer.calls) != 0 {
		t.Fatalf("expected ignored event, code=%d calls=%d", rec.Code, len(completer.calls))
	}
}

func TestStripeWebhookHandler_DelayedPayment(t *testing.T) {
	processed := &stubProcessed{}
	ledger := &stubPaidMarker{}
	completer := &stubCompleter{}
	h := NewStripeWebhookHandler(testWebhookSecret, processed, ledger, completer, nil)
	object := map[string]any{
		"id":             "cs_bank",
		"object":         "checkout.session",
		"payment_status": "unpaid",
		"metadata":       map[string]string{"portal_session_id": "sess-1"},
	}

	rec := httptest.NewRecorder()
	h.Handle(rec, signedRequest(buildStripeEvent(t, "evt_5", "checkout.session.completed", object), testWebhookSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(completer.calls) != 0 || len(ledger.refs) != 0 {
		t.Fatalf("unpaid session must not complete, calls=%v refs=%v", completer.calls, ledger.refs)
	}

	object["payment_status"] = "paid"
	rec = httptest.NewRecorder()
	h.Handle(rec, signedRequest(buildStripeEvent(t, "evt_6", "checkout.session.async_payment_succeeded", object), testWebhookSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(completer.calls) != 1 || completer.calls[0] != "sess-1|cs_bank" {
		t.Fatalf("expected completion on async success, got %v", completer.calls)
	}
	if len(ledger.refs) != 1 {
		t.Fatalf("expected ledger marked paid, got %v", ledger.refs)
	}
}

func TestStripeWebhookHandler_DetachedCheckoutIsAcknowledged(t *testing.T) {
	processed := &stubProcessed{}
	completer := &stubCompleter{err: fmt.Errorf("flow: no checkout started: %w", ErrCheckoutDetached)}
	h := NewStripeWebhookHandler(testWebhookSecret, processed, &stubPaidMarker{}, completer, nil)
	body := buildStripeEvent(t, "evt_7", "checkout.session.completed", map[string]any{
		"id":             "cs_old",
		"object":         "checkout.session",
		"payment_status": "paid",
		"metadata":       map[string]string{"portal_session_id": "sess-1"},
	})

	rec := httptest.NewRecorder()
	h.Handle(rec, signedRequest(body, testWebhookSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("detached checkout must be acknowledged, got %d", rec.Code)
	}
	if len(processed.marked) != 1 || processed.marked[0] != "evt_7" {
		t.Fatalf("expected event marked processed, got %v", processed.marked)
	}

	completer.err = errors.New("redis down")
	rec = httptest.NewRecorder()
	h.Handle(rec, signedRequest(buildStripeEvent(t, "evt_8", "checkout.session.completed", map[string]any{
		"id": "cs_new", "object": "checkout.session", "payment_status": "paid",
		"metadata": map[string]string{"portal_session_id": "sess-1"},
	}), testWebhookSecret))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("transient failure must be retried, got %d", rec.Code)
	}
}
