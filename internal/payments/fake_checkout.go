package payments

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/wolfman30/patient-portal/pkg/logging"
)

// FakeCheckout is a dev checkout that serves its own payment page and lets
// the patient "pay" without a real provider.
//
// It must be gated by ALLOW_FAKE_PAYMENTS and never enabled in production.
type FakeCheckout struct {
	publicBaseURL string
	logger        *logging.Logger

	mu       sync.Mutex
	sessions map[string]*fakeSession
}

type fakeSession struct {
	req    CheckoutRequest
	status PaymentStatus
}

func NewFakeCheckout(publicBaseURL string, logger *logging.Logger) *FakeCheckout {
	if logger == nil {
		logger = logging.Default()
	}
	return &FakeCheckout{
		publicBaseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
		logger:        logger,
		sessions:      make(map[string]*fakeSession),
	}
}

func (f *FakeCheckout) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	_ = ctx
	if err := req.validate(); err != nil {
		return nil, err
	}
	if f.publicBaseURL == "" {
		return nil, fmt.Errorf("payments: fake checkout requires PUBLIC_BASE_URL")
	}
	if !isValidBaseURL(f.publicBaseURL) {
		return nil, fmt.Errorf("payments: fake checkout PUBLIC_BASE_URL must be an absolute http(s) URL")
	}

	id := "fake_" + uuid.NewString()
	f.mu.Lock()
	f.sessions[id] = &fakeSession{req: req, status: StatusOpen}
	f.mu.Unlock()

	return &CheckoutSession{
		Provider:    "fake",
		ID:          id,
		URL:         fmt.Sprintf("%s/payments/fake/%s", f.publicBaseURL, id),
		AmountMinor: req.AmountMinor,
		Currency:    strings.ToLower(req.Currency),
	}, nil
}

func (f *FakeCheckout) Status(ctx context.Context, checkoutID string) (PaymentStatus, error) {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[checkoutID]
	if !ok {
		return "", ErrCheckoutNotFound
	}
	return s.status, nil
}

// Lookup returns the request behind a fake checkout.
func (f *FakeCheckout) Lookup(checkoutID string) (CheckoutRequest, PaymentStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[checkoutID]
	if !ok {
		return CheckoutRequest{}, "", ErrCheckoutNotFound
	}
	return s.req, s.status, nil
}

// MarkPaid flips a fake checkout to paid. It reports whether this call did
// the transition. Expired checkouts cannot be paid.
func (f *FakeCheckout) MarkPaid(checkoutID string) (CheckoutRequest, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[checkoutID]
	if !ok {
		return CheckoutRequest{}, false, ErrCheckoutNotFound
	}
	switch s.status {
	case StatusPaid:
		return s.req, false, nil
	case StatusExpired:
		return s.req, false, ErrCheckoutClosed
	}
	s.status = StatusPaid
	return s.req, true, nil
}

func (f *FakeCheckout) ExpireCheckout(_ context.Context, checkoutID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[checkoutID]
	if !ok {
		return ErrCheckoutNotFound
	}
	if s.status == StatusPaid {
		return ErrCheckoutPaid
	}
	s.status = StatusExpired
	return nil
}

func isValidBaseURL(value string) bool {
	parsed, err := url.Parse(value)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return false
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		return true
	default:
		return false
	}
}
