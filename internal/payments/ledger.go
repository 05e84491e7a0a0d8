package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Ledger records every checkout the portal creates and whether it was
// paid, so a charge without a matching booking can be reconciled.
type Ledger struct {
	pool rowQuerier
}

func NewLedger(pool *pgxpool.Pool) *Ledger {
	if pool == nil {
		panic("payments: pgx pool required")
	}
	return &Ledger{pool: pool}
}

func newLedgerWithExec(exec rowQuerier) *Ledger {
	if exec == nil {
		panic("payments: exec required")
	}
	return &Ledger{pool: exec}
}

// RecordCreated stores a freshly created checkout.
func (l *Ledger) RecordCreated(ctx context.Context, req CheckoutRequest, cs *CheckoutSession) error {
	query := `
		INSERT INTO checkout_sessions (session_id, draft_id, booking_id, provider, provider_ref, amount_minor, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'open')
		ON CONFLICT (provider, provider_ref) DO NOTHING
	`
	if _, err := l.pool.Exec(ctx, query, req.SessionID, req.DraftID, req.BookingID, cs.Provider, cs.ID, cs.AmountMinor, cs.Currency); err != nil {
		return fmt.Errorf("payments: record checkout: %w", err)
	}
	return nil
}

// MarkPaid flags a checkout as paid and returns the portal session it belongs to.
func (l *Ledger) MarkPaid(ctx context.Context, provider, providerRef string) (string, error) {
	query := `
		UPDATE checkout_sessions
		SET status = 'paid', updated_at = now()
		WHERE provider = $1 AND provider_ref = $2
		RETURNING session_id
	`
	var sessionID string
	if err := l.pool.QueryRow(ctx, query, provider, providerRef).Scan(&sessionID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrCheckoutNotFound
		}
		return "", fmt.Errorf("payments: mark paid: %w", err)
	}
	return sessionID, nil
}

// AlreadyProcessed checks if we've seen this provider event id.
func (l *Ledger) AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	query := `SELECT 1 FROM processed_events WHERE provider = $1 AND event_id = $2`
	var exists int
	if err := l.pool.QueryRow(ctx, query, provider, eventID).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("payments: check processed: %w", err)
	}
	return true, nil
}

// MarkProcessed inserts an event id for the provider, returning false if it already exists.
func (l *Ledger) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	query := `
		INSERT INTO processed_events (provider, event_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	ct, err := l.pool.Exec(ctx, query, provider, eventID)
	if err != nil {
		return false, fmt.Errorf("payments: mark processed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}
