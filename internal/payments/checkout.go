package payments

import "context"

// CheckoutRequest describes a payment for one booked draft.
type CheckoutRequest struct {
	SessionID     string
	DraftID       string
	BookingID     string
	AmountMinor   int64
	Currency      string
	Description   string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
}

// CheckoutSession is the provider's hosted checkout.
type CheckoutSession struct {
	Provider    string `json:"provider"`
	ID          string `json:"id"`
	URL         string `json:"url"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
}

type PaymentStatus string

const (
	StatusOpen    PaymentStatus = "open"
	StatusPaid    PaymentStatus = "paid"
	StatusExpired PaymentStatus = "expired"
)

// CheckoutProvider creates hosted checkouts and reports their status.
// ExpireCheckout closes an open checkout so it can no longer be paid; it
// returns ErrCheckoutPaid when the patient paid first.
type CheckoutProvider interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	Status(ctx context.Context, checkoutID string) (PaymentStatus, error)
	ExpireCheckout(ctx context.Context, checkoutID string) error
}

// PaymentCompleter advances a portal session once its checkout is paid.
type PaymentCompleter interface {
	CompletePayment(ctx context.Context, sessionID, checkoutID string) error
}

// metadata keys attached to provider checkouts
const (
	metaSessionID = "portal_session_id"
	metaDraftID   = "draft_id"
	metaBookingID = "booking_id"
)

func (r CheckoutRequest) validate() error {
	if r.SessionID == "" {
		return ErrMissingSessionID
	}
	if r.AmountMinor <= 0 {
		return ErrInvalidAmount
	}
	return nil
}
