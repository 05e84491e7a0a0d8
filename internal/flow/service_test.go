package flow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/patient-portal/internal/availability"
	"github.com/wolfman30/patient-portal/internal/consultation"
	"github.com/wolfman30/patient-portal/internal/draft"
	"github.com/wolfman30/patient-portal/internal/hospitalapi"
	"github.com/wolfman30/patient-portal/internal/library"
	"github.com/wolfman30/patient-portal/internal/payments"
	"github.com/wolfman30/patient-portal/internal/receipts"
)

type fakeBackend struct {
	mu         sync.Mutex
	maps       []availability.Map
	availCalls int
	createErr  error
	bookingID  string
	requests   []hospitalapi.AppointmentRequest
	keys       []string
}

func (f *fakeBackend) Availability(ctx context.Context, doctorID string) (availability.Map, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.availCalls
	f.availCalls++
	if idx >= len(f.maps) {
		idx = len(f.maps) - 1
	}
	return f.maps[idx], nil
}

func (f *fakeBackend) CreateAppointment(ctx context.Context, req hospitalapi.AppointmentRequest, key string) (*hospitalapi.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	f.keys = append(f.keys, key)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &hospitalapi.Appointment{ID: hospitalapi.ID(f.bookingID), Date: req.Date, Slot: req.Slot}, nil
}

type fakeHistory struct {
	entries map[string][]library.HistoryEntry
}

func (f *fakeHistory) Append(ctx context.Context, userID string, e library.HistoryEntry) error {
	if f.entries == nil {
		f.entries = map[string][]library.HistoryEntry{}
	}
	f.entries[userID] = append(f.entries[userID], e)
	return nil
}

type fakeDeliverer struct {
	delivered []receipts.Receipt
}

func (f *fakeDeliverer) Deliver(ctx context.Context, r receipts.Receipt) {
	f.delivered = append(f.delivered, r)
}

const testDate = "2030-01-07"

func twoSlots() availability.Map {
	return availability.Map{testDate: {
		Consultations: []availability.Slot{{Start: "10:00 AM", End: "11:00 AM"}},
		Appointments:  []availability.Slot{{Start: "11:00 AM", End: "12:00 PM"}},
	}}
}

func oneSlot() availability.Map {
	return availability.Map{testDate: {
		Appointments: []availability.Slot{{Start: "11:00 AM", End: "12:00 PM"}},
	}}
}

type serviceFixture struct {
	svc      *Service
	store    *MemoryStore
	backend  *fakeBackend
	checkout *payments.FakeCheckout
	history  *fakeHistory
	receipts *fakeDeliverer
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		store:    NewMemoryStore(),
		backend:  &fakeBackend{maps: []availability.Map{twoSlots(), oneSlot()}, bookingID: "A-77"},
		checkout: payments.NewFakeCheckout("http://portal.test", nil),
		history:  &fakeHistory{},
		receipts: &fakeDeliverer{},
	}
	f.svc = NewService(ServiceConfig{
		Store:    f.store,
		Backend:  f.backend,
		Checkout: f.checkout,
		Fee:      payments.Fee{ConsultationMinor: 50000, ServiceChargeMinor: 5000, Currency: "inr"},
		History:  f.history,
		Receipts: f.receipts,
	})
	f.svc.controller.newID = func() string { return "draft-1" }
	return f
}

func (f *serviceFixture) toBooking(t *testing.T, ctx context.Context, sid string) {
	t.Helper()
	_, err := f.svc.SelectSpecialty(ctx, sid, draft.Specialty{ID: "7", Name: "Cardiology"})
	require.NoError(t, err)
	_, err = f.svc.SelectDoctor(ctx, sid, draft.Doctor{ID: "A", Name: "Dr. Rao"})
	require.NoError(t, err)
	_, err = f.svc.ContinueFromDetail(ctx, sid, DetailInput{ForUserType: draft.Self, Issue: "fever"})
	require.NoError(t, err)
	st, err := f.svc.ChooseConsultation(ctx, sid, []consultation.Modality{consultation.Video})
	require.NoError(t, err)
	require.Equal(t, StepBooking, st.Current())
	require.Equal(t, twoSlots(), st.Availability)
}

func TestConfirmSlotConflictClearsSlotOnly(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	f.backend.createErr = &hospitalapi.APIError{Status: 409, Message: "slot already booked"}
	f.toBooking(t, ctx, "s1")

	before, err := f.store.Load(ctx, "s1")
	require.NoError(t, err)

	st, err := f.svc.ConfirmSlot(ctx, "s1", availability.Selection{
		Date: testDate,
		Slot: availability.Slot{Start: "10:00 AM", End: "11:00 AM"},
	})
	require.ErrorIs(t, err, ErrSlotTaken)
	assert.Contains(t, err.Error(), "slot already booked")
	require.NotNil(t, st)

	stored, err := f.store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StepBooking, stored.Current())
	assert.Equal(t, 2, f.backend.availCalls)
	assert.Equal(t, oneSlot(), stored.Availability)

	want := before.Draft.Clone()
	want.Date = testDate
	assert.Equal(t, want, stored.Draft)
	assert.Empty(t, stored.Draft.Slot)
	assert.Equal(t, before.Stack, stored.Stack)
}

func TestConfirmSlotUpstreamFailureDoesNotCommit(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	f.backend.createErr = &hospitalapi.APIError{Status: 500, Message: "database down"}
	f.toBooking(t, ctx, "s1")
	before, err := f.store.Load(ctx, "s1")
	require.NoError(t, err)

	_, err = f.svc.ConfirmSlot(ctx, "s1", availability.Selection{
		Date: testDate,
		Slot: availability.Slot{Start: "10:00 AM", End: "11:00 AM"},
	})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrSlotTaken))
	assert.Equal(t, 500, hospitalapi.StatusOf(err))

	after, err := f.store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestConfirmSlotRejectsSlotNotOffered(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	f.toBooking(t, ctx, "s1")

	_, err := f.svc.ConfirmSlot(ctx, "s1", availability.Selection{
		Date: testDate,
		Slot: availability.Slot{Start: "3:00 PM", End: "4:00 PM"},
	})
	assert.ErrorIs(t, err, availability.ErrUnknownSlot)
	assert.Empty(t, f.backend.requests)
}

func TestBookingCheckoutAndPaymentComplete(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	f.toBooking(t, ctx, "s1")

	st, err := f.svc.ConfirmSlot(ctx, "s1", availability.Selection{
		Date: testDate,
		Slot: availability.Slot{Start: "11:00 AM", End: "12:00 PM"},
	})
	require.NoError(t, err)
	assert.Equal(t, StepPayment, st.Current())
	assert.Equal(t, "A-77", st.Draft.BookingID)
	require.Len(t, f.backend.requests, 1)
	assert.Equal(t, "draft-1", f.backend.keys[0])
	assert.Equal(t, "by video call", f.backend.requests[0].ConsultationSubtype)
	assert.Equal(t, []string{"video"}, f.backend.requests[0].ConsultationType)
	assert.Equal(t, "11:00 AM - 12:00 PM", f.backend.requests[0].Slot)

	_, err = f.svc.ConfirmPayment(ctx, "s1")
	assert.ErrorIs(t, err, ErrNoCheckout)

	customer := receipts.Customer{ID: "u-1", Name: "Kiran", Email: "kiran@example.com"}
	st, err = f.svc.StartCheckout(ctx, "s1", customer)
	require.NoError(t, err)
	require.NotNil(t, st.Checkout)
	assert.Equal(t, int64(55000), st.Checkout.AmountMinor)
	first := st.Checkout.ID

	st, err = f.svc.StartCheckout(ctx, "s1", customer)
	require.NoError(t, err)
	assert.Equal(t, first, st.Checkout.ID)

	_, err = f.svc.ConfirmPayment(ctx, "s1")
	assert.ErrorIs(t, err, ErrPaymentPending)

	_, _, err = f.checkout.MarkPaid(first)
	require.NoError(t, err)
	st, err = f.svc.ConfirmPayment(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StepSuccess, st.Current())
	require.NotNil(t, st.Receipt)
	assert.Equal(t, "A-77", st.Receipt.ID)
	assert.Equal(t, "A-77", st.Draft.ReceiptID)
	assert.Equal(t, "Kiran", st.Receipt.PatientName)

	require.NoError(t, f.svc.CompletePayment(ctx, "s1", first))
	assert.Len(t, f.receipts.delivered, 1)
	require.Len(t, f.history.entries["u-1"], 1)
	assert.Equal(t, "A-77", f.history.entries["u-1"][0].BookingID)

	assert.ErrorIs(t, f.svc.CompletePayment(ctx, "s1", "fake_other"), ErrCheckoutMismatch)

	st, err = f.svc.AddMore(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, Root, st.Current())
	assert.Equal(t, "u-1", st.Customer.ID)
}

func TestSelectPatientWithoutRelativeNotWritten(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	_, err := f.svc.SelectSpecialty(ctx, "s1", draft.Specialty{ID: "7"})
	require.NoError(t, err)
	_, err = f.svc.SelectDoctor(ctx, "s1", draft.Doctor{ID: "A"})
	require.NoError(t, err)
	_, err = f.svc.ContinueFromDetail(ctx, "s1", DetailInput{ForUserType: draft.Others})
	require.NoError(t, err)
	before, err := f.store.Load(ctx, "s1")
	require.NoError(t, err)

	_, err = f.svc.SelectPatient(ctx, "s1", draft.Patient{})
	require.ErrorIs(t, err, draft.ErrRelativeRequired)

	after, err := f.store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestResetFromAnyStep(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	f.toBooking(t, ctx, "s1")
	st, err := f.svc.Reset(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []Step{Root}, st.Stack)
	assert.Equal(t, draft.Draft{}, st.Draft)
	assert.Nil(t, st.Availability)
}

func TestStartCheckoutWithoutProvider(t *testing.T) {
	svc := NewService(ServiceConfig{Store: NewMemoryStore(), Backend: &fakeBackend{}})
	_, err := svc.StartCheckout(context.Background(), "s1", receipts.Customer{})
	assert.ErrorIs(t, err, payments.ErrProviderMisconfig)
}

func (f *serviceFixture) toPayment(t *testing.T, ctx context.Context, sid string) string {
	t.Helper()
	f.toBooking(t, ctx, sid)
	_, err := f.svc.ConfirmSlot(ctx, sid, availability.Selection{
		Date:  testDate,
		Slot:  availability.Slot{Start: "11:00 AM", End: "12:00 PM"},
		Issue: "fever",
	})
	require.NoError(t, err)
	st, err := f.svc.StartCheckout(ctx, sid, receipts.Customer{ID: "u-1", Name: "Kiran", Email: "kiran@example.com"})
	require.NoError(t, err)
	require.NotNil(t, st.Checkout)
	return st.Checkout.ID
}

func TestBackFromPaymentExpiresOpenCheckout(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	checkoutID := f.toPayment(t, ctx, "s1")

	st, err := f.svc.Back(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StepBooking, st.Current())
	assert.Nil(t, st.Checkout)

	status, err := f.checkout.Status(ctx, checkoutID)
	require.NoError(t, err)
	assert.Equal(t, payments.StatusExpired, status)
	_, _, err = f.checkout.MarkPaid(checkoutID)
	assert.ErrorIs(t, err, payments.ErrCheckoutClosed)

	err = f.svc.CompletePayment(ctx, "s1", checkoutID)
	assert.ErrorIs(t, err, payments.ErrCheckoutDetached)
	assert.Empty(t, f.receipts.delivered)
}

func TestBackAfterPatientPaidCompletesBooking(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	checkoutID := f.toPayment(t, ctx, "s1")
	_, _, err := f.checkout.MarkPaid(checkoutID)
	require.NoError(t, err)

	st, err := f.svc.Back(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StepSuccess, st.Current())
	require.NotNil(t, st.Receipt)
	assert.Equal(t, "A-77", st.Receipt.ID)
	assert.Len(t, f.receipts.delivered, 1)

	// the webhook for the same checkout is then a no-op
	require.NoError(t, f.svc.CompletePayment(ctx, "s1", checkoutID))
	assert.Len(t, f.receipts.delivered, 1)
}

func TestResetReleasesCheckout(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	checkoutID := f.toPayment(t, ctx, "s1")

	st, err := f.svc.Reset(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []Step{Root}, st.Stack)
	assert.Nil(t, st.Checkout)
	status, _ := f.checkout.Status(ctx, checkoutID)
	assert.Equal(t, payments.StatusExpired, status)
}

func TestStartCheckoutAfterPaymentDoesNotChargeTwice(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	checkoutID := f.toPayment(t, ctx, "s1")
	_, _, err := f.checkout.MarkPaid(checkoutID)
	require.NoError(t, err)

	st, err := f.svc.StartCheckout(ctx, "s1", receipts.Customer{ID: "u-1", Email: "kiran@example.com"})
	require.NoError(t, err)
	assert.Equal(t, StepSuccess, st.Current())
	assert.Equal(t, checkoutID, st.Checkout.ID)
}
