package flow

import (
	"errors"
	"fmt"

	"github.com/wolfman30/patient-portal/internal/payments"
)

var (
	ErrInvalidTransition = errors.New("flow: operation not allowed at current step")
	ErrSlotTaken         = errors.New("flow: slot is no longer available")
	ErrStaleState        = errors.New("flow: state changed concurrently, reload and retry")
	ErrSessionRequired   = errors.New("flow: session id is required")
	ErrSpecialtyRequired = errors.New("flow: specialty is required")
	ErrNoCheckout        = fmt.Errorf("flow: no checkout started: %w", payments.ErrCheckoutDetached)
	ErrCheckoutMismatch  = fmt.Errorf("flow: checkout does not belong to this session: %w", payments.ErrCheckoutDetached)
	ErrPaymentPending    = errors.New("flow: payment not completed yet")
)
