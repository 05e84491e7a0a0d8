package payments

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/wolfman30/patient-portal/pkg/logging"
)

const maxWebhookBody = 1 << 16

// A checkout paid by card completes in one event. Delayed methods send
// completed with payment_status "unpaid" and later async_payment_succeeded.
const (
	eventCheckoutCompleted     = "checkout.session.completed"
	eventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	stripePaymentStatusPaid    = "paid"
)

type processedTracker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

type paidMarker interface {
	MarkPaid(ctx context.Context, provider, providerRef string) (string, error)
}

// StripeWebhookHandler completes bookings when Stripe reports a paid checkout.
type StripeWebhookHandler struct {
	webhookSecret string
	processed     processedTracker
	ledger        paidMarker
	completer     PaymentCompleter
	logger        *logging.Logger
}

// NewStripeWebhookHandler creates a new handler for Stripe webhooks. ledger may be nil.
func NewStripeWebhookHandler(webhookSecret string, processed processedTracker, ledger paidMarker, completer PaymentCompleter, logger *logging.Logger) *StripeWebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &StripeWebhookHandler{
		webhookSecret: webhookSecret,
		processed:     processed,
		ledger:        ledger,
		completer:     completer,
		logger:        logger,
	}
}

// Handle processes incoming Stripe webhook events.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	evt, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), h.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		h.logger.Warn("stripe signature rejected", "error", err)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if evt.ID == "" {
		http.Error(w, "missing event id", http.StatusBadRequest)
		return
	}

	switch string(evt.Type) {
	case eventCheckoutCompleted, eventAsyncPaymentSucceeded:
	default:
		w.WriteHeader(http.StatusOK)
		return
	}

	if h.processed != nil {
		if processed, err := h.processed.AlreadyProcessed(r.Context(), "stripe", evt.ID); err != nil {
			h.logger.Error("processed lookup failed", "error", err)
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		} else if processed {
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	var session stripeSessionObject
	if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
		h.logger.Error("failed to decode checkout session", "error", err, "event_id", evt.ID)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if session.PaymentStatus != stripePaymentStatusPaid {
		h.logger.Info("checkout completed without payment yet", "event_id", evt.ID, "checkout_id", session.ID, "payment_status", session.PaymentStatus)
		w.WriteHeader(http.StatusOK)
		return
	}

	sessionID := session.Metadata[metaSessionID]
	if sessionID == "" {
		sessionID = session.ClientReferenceID
	}
	if h.ledger != nil {
		ledgerSession, err := h.ledger.MarkPaid(r.Context(), "stripe", session.ID)
		switch {
		case err == nil && sessionID == "":
			sessionID = ledgerSession
		case err != nil && !errors.Is(err, ErrCheckoutNotFound):
			h.logger.Error("failed to mark checkout paid", "error", err, "checkout_id", session.ID)
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
	}
	if sessionID == "" {
		h.logger.Warn("stripe webhook missing portal session", "event_id", evt.ID, "checkout_id", session.ID)
		// Acknowledge to prevent retries but can't progress workflow
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.completer.CompletePayment(r.Context(), sessionID, session.ID); err != nil {
		if !errors.Is(err, ErrCheckoutDetached) {
			h.logger.Error("payment completion failed", "error", err, "session_id", sessionID, "checkout_id", session.ID)
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
		h.logger.Error("paid checkout has no booking to complete; reconcile from ledger", "session_id", sessionID, "checkout_id", session.ID)
	}

	if h.processed != nil {
		if _, err := h.processed.MarkProcessed(r.Context(), "stripe", evt.ID); err != nil {
			h.logger.Error("failed to record processed event", "error", err)
		}
	}
	w.WriteHeader(http.StatusOK)
}

// stripeSessionObject is the checkout.session object from the webhook.
type stripeSessionObject struct {
	ID                string            `json:"id"`
	ClientReferenceID string            `json:"client_reference_id"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
	PaymentStatus     string            `json:"payment_status"`
	Metadata          map[string]string `json:"metadata"`
}
