package payments

import (
	"context"
	"errors"
	"testing"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestLedger(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	ledger := newLedgerWithExec(mock)
	ctx := context.Background()

	req := CheckoutRequest{SessionID: "sess-1", DraftID: "draft-1", BookingID: "991"}
	cs := &CheckoutSession{Provider: "stripe", ID: "cs_1", AmountMinor: 55000, Currency: "inr"}
	mock.ExpectExec("INSERT INTO checkout_sessions").
		WithArgs("sess-1", "draft-1", "991", "stripe", "cs_1", int64(55000), "inr").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	if err := ledger.RecordCreated(ctx, req, cs); err != nil {
		t.Fatalf("RecordCreated: %v", err)
	}

	mock.ExpectQuery("UPDATE checkout_sessions").WithArgs("stripe", "cs_1").
		WillReturnRows(pgxmock.NewRows([]string{"session_id"}).AddRow("sess-1"))
	sessionID, err := ledger.MarkPaid(ctx, "stripe", "cs_1")
	if err != nil || sessionID != "sess-1" {
		t.Fatalf("MarkPaid: got %q err=%v", sessionID, err)
	}

	mock.ExpectQuery("UPDATE checkout_sessions").WithArgs("stripe", "cs_missing").WillReturnError(pgx.ErrNoRows)
	if _, err := ledger.MarkPaid(ctx, "stripe", "cs_missing"); !errors.Is(err, ErrCheckoutNotFound) {
		t.Fatalf("expected ErrCheckoutNotFound, got %v", err)
	}

	mock.ExpectQuery("SELECT 1 FROM processed_events").WithArgs("stripe", "evt").WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(1))
	processed, err := ledger.AlreadyProcessed(ctx, "stripe", "evt")
	if err != nil || !processed {
		t.Fatalf("expected existing row, got processed=%v err=%v", processed, err)
	}

	mock.ExpectQuery("SELECT 1 FROM processed_events").WithArgs("stripe", "evt-miss").WillReturnError(pgx.ErrNoRows)
	processed, err = ledger.AlreadyProcessed(ctx, "stripe", "evt-miss")
	if err != nil || processed {
		t.Fatalf("expected missing row, got processed=%v err=%v", processed, err)
	}

	mock.ExpectExec("INSERT INTO processed_events").WithArgs("stripe", "evt-new").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	ok, err := ledger.MarkProcessed(ctx, "stripe", "evt-new")
	if err != nil || !ok {
		t.Fatalf("expected mark processed success, got %v %v", ok, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

type stubRecorder struct {
	recorded []string
	err      error
}

func (s *stubRecorder) RecordCreated(ctx context.Context, req CheckoutRequest, cs *CheckoutSession) error {
	s.recorded = append(s.recorded, cs.ID)
	return s.err
}

func TestRecordingCheckout(t *testing.T) {
	inner := NewFakeCheckout("https://portal.example.com", nil)
	rec := &stubRecorder{}
	c := NewRecordingCheckout(inner, rec, nil)

	cs, err := c.CreateCheckout(context.Background(), CheckoutRequest{SessionID: "s1", AmountMinor: 100})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(rec.recorded) != 1 || rec.recorded[0] != cs.ID {
		t.Fatalf("expected ledger write, got %v", rec.recorded)
	}
	if status, err := c.Status(context.Background(), cs.ID); err != nil || status != StatusOpen {
		t.Fatalf("unexpected status %s %v", status, err)
	}
	if err := c.ExpireCheckout(context.Background(), cs.ID); err != nil {
		t.Fatalf("expire: %v", err)
	}
	if status, _ := inner.Status(context.Background(), cs.ID); status != StatusExpired {
		t.Fatalf("expected expire to reach the provider, got %s", status)
	}

	rec.err = errors.New("db down")
	if _, err := c.CreateCheckout(context.Background(), CheckoutRequest{SessionID: "s1", AmountMinor: 100}); err == nil {
		t.Fatalf("expected ledger failure to surface")
	}
}
