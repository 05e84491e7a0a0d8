package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/patient-portal/pkg/logging"
)

var stripeTracer = otel.Tracer("patientportal.internal.payments.stripe")

// StripeCheckout creates Stripe Checkout Sessions for consultation fees.
type StripeCheckout struct {
	api        *client.API
	successURL string
	cancelURL  string
	logger     *logging.Logger
}

// NewStripeCheckout builds a checkout against the live Stripe API.
func NewStripeCheckout(secretKey, successURL, cancelURL string, logger *logging.Logger) *StripeCheckout {
	return newStripeCheckout(secretKey, successURL, cancelURL, nil, logger)
}

// newStripeCheckout allows a custom API URL for tests.
func newStripeCheckout(secretKey, successURL, cancelURL string, apiURL *string, logger *logging.Logger) *StripeCheckout {
	if logger == nil {
		logger = logging.Default()
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               apiURL,
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	})
	api := &client.API{}
	api.Init(secretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return &StripeCheckout{
		api:        api,
		successURL: successURL,
		cancelURL:  cancelURL,
		logger:     logger,
	}
}

func (s *StripeCheckout) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	ctx, span := stripeTracer.Start(ctx, "stripe.create_checkout_session")
	defer span.End()
	span.SetAttributes(
		attribute.String("portal.draft_id", req.DraftID),
		attribute.Int64("portal.amount_minor", req.AmountMinor),
	)

	successURL := firstNonEmpty(req.SuccessURL, s.successURL)
	cancelURL := firstNonEmpty(req.CancelURL, s.cancelURL)
	description := req.Description
	if strings.TrimSpace(description) == "" {
		description = "Consultation"
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.SessionID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(req.Currency)),
				UnitAmount: stripe.Int64(req.AmountMinor),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(description),
				},
			},
			Quantity: stripe.Int64(1),
		}},
	}
	params.Context = ctx
	if successURL != "" {
		params.SuccessURL = stripe.String(successURL)
	}
	if cancelURL != "" {
		params.CancelURL = stripe.String(cancelURL)
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.AddMetadata(metaSessionID, req.SessionID)
	params.AddMetadata(metaDraftID, req.DraftID)
	if req.BookingID != "" {
		params.AddMetadata(metaBookingID, req.BookingID)
	}

	cs, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("payments: stripe create session: %w", err)
	}
	if cs.URL == "" {
		return nil, fmt.Errorf("payments: stripe response missing checkout url")
	}
	s.logger.Info("stripe checkout created", "checkout_id", cs.ID, "draft_id", req.DraftID)
	return &CheckoutSession{
		Provider:    "stripe",
		ID:          cs.ID,
		URL:         cs.URL,
		AmountMinor: req.AmountMinor,
		Currency:    strings.ToLower(req.Currency),
	}, nil
}

func (s *StripeCheckout) Status(ctx context.Context, checkoutID string) (PaymentStatus, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.get_checkout_session")
	defer span.End()

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	cs, err := s.api.CheckoutSessions.Get(checkoutID, params)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("payments: stripe get session: %w", err)
	}
	switch {
	case cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		return StatusPaid, nil
	case cs.Status == stripe.CheckoutSessionStatusExpired:
		return StatusExpired, nil
	default:
		return StatusOpen, nil
	}
}

// ExpireCheckout closes an open Stripe session. When Stripe refuses because
// the session already completed, the status is read back to tell a paid
// session from one that expired on its own.
func (s *StripeCheckout) ExpireCheckout(ctx context.Context, checkoutID string) error {
	ctx, span := stripeTracer.Start(ctx, "stripe.expire_checkout_session")
	defer span.End()

	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	if _, err := s.api.CheckoutSessions.Expire(checkoutID, params); err != nil {
		span.RecordError(err)
		if status, serr := s.Status(ctx, checkoutID); serr == nil {
			switch status {
			case StatusPaid:
				return ErrCheckoutPaid
			case StatusExpired:
				return nil
			}
		}
		return fmt.Errorf("payments: stripe expire session: %w", err)
	}
	s.logger.Info("stripe checkout expired", "checkout_id", checkoutID)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
