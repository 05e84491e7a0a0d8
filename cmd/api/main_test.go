package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/patient-portal/internal/config"
	"github.com/wolfman30/patient-portal/pkg/logging"
)

func TestSetupMetricsExposesMetrics(t *testing.T) {
	handler, flowMetrics, callMetrics := setupMetrics()
	if handler == nil || flowMetrics == nil || callMetrics == nil {
		t.Fatalf("expected non-nil handler and metrics")
	}

	flowMetrics.ObserveTransition("select_doctor", nil)
	callMetrics.InvitationOpened()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, name := range []string{"patient_portal_flow_transitions_total", "patient_portal_calls_pending_invitations"} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected %s to be exported", name)
		}
	}
}

func TestConnectPostgresPoolEmptyURLReturnsNil(t *testing.T) {
	logger := logging.New("error")
	if pool := connectPostgresPool(context.Background(), "", logger); pool != nil {
		t.Fatalf("expected nil pool for empty URL")
	}
}

func TestSetupCheckoutFakeRequiresOptIn(t *testing.T) {
	logger := logging.New("error")

	provider, fake := setupCheckout(&appconfig.Config{PaymentProvider: "fake"}, logger)
	if provider != nil || fake != nil {
		t.Fatalf("expected fake payments to stay disabled without ALLOW_FAKE_PAYMENTS")
	}

	provider, fake = setupCheckout(&appconfig.Config{
		PaymentProvider:   "fake",
		AllowFakePayments: true,
		PublicBaseURL:     "http://localhost:8080",
	}, logger)
	if provider == nil || fake == nil {
		t.Fatalf("expected fake checkout when opted in")
	}
}

func TestSetupCheckoutStripeNeedsKey(t *testing.T) {
	logger := logging.New("error")
	if provider, _ := setupCheckout(&appconfig.Config{PaymentProvider: "stripe"}, logger); provider != nil {
		t.Fatalf("expected no provider without STRIPE_SECRET_KEY")
	}
	provider, fake := setupCheckout(&appconfig.Config{PaymentProvider: "stripe", StripeSecretKey: "sk_test_123"}, logger)
	if provider == nil || fake != nil {
		t.Fatalf("expected stripe provider only")
	}
}

func TestSetupReceiptsWithoutAWS(t *testing.T) {
	logger := logging.New("error")
	if issuer := setupReceipts(context.Background(), &appconfig.Config{EmailProvider: "stub"}, logger); issuer == nil {
		t.Fatalf("expected issuer")
	}
}

func TestHealthChecksPingRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	checks := healthChecks(client, nil)
	if _, ok := checks["postgres"]; ok {
		t.Fatalf("postgres check should be absent without a pool")
	}
	if err := checks["redis"].Ping(context.Background()); err != nil {
		t.Fatalf("redis ping: %v", err)
	}
}
