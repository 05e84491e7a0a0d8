package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stripe/stripe-go/v76"
)

func TestStripeCheckout_CreateCheckout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/checkout/sessions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		checks := map[string]string{
			"mode": "payment",
			"line_items[0][price_data][unit_amount]":        "55000",
			"line_items[0][price_data][currency]":           "inr",
			"line_items[0][price_data][product_data][name]": "Consultation with Dr. A",
			"metadata[portal_session_id]":                   "sess-1",
			"metadata[draft_id]":                            "draft-1",
			"client_reference_id":                           "sess-1",
			"success_url":                                   "https://app.example.com/ok",
		}
		for key, want := range checks {
			if got := r.PostForm.Get(key); got != want {
				t.Errorf("%s = %q, want %q", key, got, want)
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "cs_test_1",
			"object": "checkout.session",
			"url":    "https://checkout.stripe.com/c/pay/cs_test_1",
		})
	}))
	defer ts.Close()

	s := newStripeCheckout("sk_test_123", "https://app.example.com/ok", "https://app.example.com/cancel", stripe.String(ts.URL), nil)
	cs, err := s.CreateCheckout(context.Background(), CheckoutRequest{
		SessionID:   "sess-1",
		DraftID:     "draft-1",
		AmountMinor: 55000,
		Currency:    "INR",
		Description: "Consultation with Dr. A",
	})
	if err != nil {
		t.Fatalf("CreateCheckout error: %v", err)
	}
	if cs.ID != "cs_test_1" || cs.URL == "" || cs.Provider != "stripe" {
		t.Fatalf("unexpected session %+v", cs)
	}
}

func TestStripeCheckout_Status(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{
			"/v1/checkout/sessions/cs_paid":    "paid",
			"/v1/checkout/sessions/cs_open":    "unpaid",
			"/v1/checkout/sessions/cs_expired": "unpaid",
		}
		ps, ok := status[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"No such checkout.session"}}`))
			return
		}
		sessionStatus := "open"
		if r.URL.Path == "/v1/checkout/sessions/cs_expired" {
			sessionStatus = "expired"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":             r.URL.Path[len("/v1/checkout/sessions/"):],
			"object":         "checkout.session",
			"payment_status": ps,
			"status":         sessionStatus,
		})
	}))
	defer ts.Close()

	s := newStripeCheckout("sk_test_123", "", "", stripe.String(ts.URL), nil)
	cases := map[string]PaymentStatus{"cs_paid": StatusPaid, "cs_open": StatusOpen, "cs_expired": StatusExpired}
	for id, want := range cases {
		got, err := s.Status(context.Background(), id)
		if err != nil || got != want {
			t.Fatalf("%s: got %s err=%v, want %s", id, got, err, want)
		}
	}
	if _, err := s.Status(context.Background(), "cs_missing"); err == nil {
		t.Fatalf("expected error for missing session")
	}
}

func TestStripeCheckout_Expire(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/checkout/sessions/cs_open/expire":
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "cs_open", "object": "checkout.session", "status": "expired"})
		case r.Method == http.MethodPost && r.URL.Path == "/v1/checkout/sessions/cs_paid/expire":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"Only Checkout Sessions with a status of open can be expired."}}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v1/checkout/sessions/cs_paid":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id": "cs_paid", "object": "checkout.session", "status": "complete", "payment_status": "paid",
			})
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"No such checkout.session"}}`))
		}
	}))
	defer ts.Close()

	s := newStripeCheckout("sk_test_123", "", "", stripe.String(ts.URL), nil)
	if err := s.ExpireCheckout(context.Background(), "cs_open"); err != nil {
		t.Fatalf("expire open: %v", err)
	}
	if err := s.ExpireCheckout(context.Background(), "cs_paid"); !errors.Is(err, ErrCheckoutPaid) {
		t.Fatalf("expected ErrCheckoutPaid, got %v", err)
	}
	if err := s.ExpireCheckout(context.Background(), "cs_missing"); err == nil || errors.Is(err, ErrCheckoutPaid) {
		t.Fatalf("expected a stripe error for a missing session, got %v", err)
	}
}

func TestStripeCheckout_RejectsInvalidRequest(t *testing.T) {
	s := NewStripeCheckout("sk_test_123", "", "", nil)
	if _, err := s.CreateCheckout(context.Background(), CheckoutRequest{SessionID: "s"}); err == nil {
		t.Fatalf("expected validation error before any network call")
	}
}
