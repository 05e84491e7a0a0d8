package payments

import "errors"

var (
	ErrCheckoutNotFound  = errors.New("payments: checkout session not found")
	ErrInvalidAmount     = errors.New("payments: amount must be positive")
	ErrMissingSessionID  = errors.New("payments: portal session id required")
	ErrProviderMisconfig = errors.New("payments: provider not configured")
	ErrCheckoutPaid      = errors.New("payments: checkout already paid")
	ErrCheckoutClosed    = errors.New("payments: checkout is no longer open")
	// ErrCheckoutDetached marks a paid checkout that no portal session
	// holds any more. Retrying cannot complete it; the ledger row is the
	// record to reconcile from.
	ErrCheckoutDetached = errors.New("payments: checkout not attached to a booking")
)
