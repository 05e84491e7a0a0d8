package payments

import (
	"context"

	"github.com/wolfman30/patient-portal/pkg/logging"
)

type checkoutRecorder interface {
	RecordCreated(ctx context.Context, req CheckoutRequest, cs *CheckoutSession) error
}

// RecordingCheckout writes every created checkout to the ledger before
// handing it back.
type RecordingCheckout struct {
	inner  CheckoutProvider
	ledger checkoutRecorder
	logger *logging.Logger
}

func NewRecordingCheckout(inner CheckoutProvider, ledger checkoutRecorder, logger *logging.Logger) *RecordingCheckout {
	if logger == nil {
		logger = logging.Default()
	}
	return &RecordingCheckout{inner: inner, ledger: ledger, logger: logger}
}

func (r *RecordingCheckout) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	cs, err := r.inner.CreateCheckout(ctx, req)
	if err != nil {
		return nil, err
	}
	if r.ledger != nil {
		if err := r.ledger.RecordCreated(ctx, req, cs); err != nil {
			return nil, err
		}
	}
	return cs, nil
}

func (r *RecordingCheckout) Status(ctx context.Context, checkoutID string) (PaymentStatus, error) {
	return r.inner.Status(ctx, checkoutID)
}

func (r *RecordingCheckout) ExpireCheckout(ctx context.Context, checkoutID string) error {
	return r.inner.ExpireCheckout(ctx, checkoutID)
}
