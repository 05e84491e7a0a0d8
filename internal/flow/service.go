package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/patient-portal/internal/availability"
	"github.com/wolfman30/patient-portal/internal/consultation"
	"github.com/wolfman30/patient-portal/internal/draft"
	"github.com/wolfman30/patient-portal/internal/hospitalapi"
	"github.com/wolfman30/patient-portal/internal/library"
	"github.com/wolfman30/patient-portal/internal/observability/metrics"
	"github.com/wolfman30/patient-portal/internal/payments"
	"github.com/wolfman30/patient-portal/internal/receipts"
	"github.com/wolfman30/patient-portal/pkg/logging"
)

// Backend is the part of the hospital API the wizard calls.
type Backend interface {
	Availability(ctx context.Context, doctorID string) (availability.Map, error)
	CreateAppointment(ctx context.Context, req hospitalapi.AppointmentRequest, idempotencyKey string) (*hospitalapi.Appointment, error)
}

type HistoryRecorder interface {
	Append(ctx context.Context, userID string, entry library.HistoryEntry) error
}

type ReceiptDeliverer interface {
	Deliver(ctx context.Context, r receipts.Receipt)
}

// ServiceConfig wires the Service. History, Receipts and Metrics may be nil.
type ServiceConfig struct {
	Store      Store
	Backend    Backend
	Checkout   payments.CheckoutProvider
	Fee        payments.Fee
	History    HistoryRecorder
	Receipts   ReceiptDeliverer
	Metrics    *metrics.FlowMetrics
	SuccessURL string
	CancelURL  string
	Logger     *logging.Logger
}

// Service loads a session's state, applies one controller operation,
// performs the I/O that operation needs and commits once.
type Service struct {
	store      Store
	backend    Backend
	checkout   payments.CheckoutProvider
	fee        payments.Fee
	history    HistoryRecorder
	receipts   ReceiptDeliverer
	metrics    *metrics.FlowMetrics
	controller *Controller
	successURL string
	cancelURL  string
	logger     *logging.Logger
	now        func() time.Time
}

func NewService(cfg ServiceConfig) *Service {
	if cfg.Store == nil {
		panic("flow: store cannot be nil")
	}
	if cfg.Backend == nil {
		panic("flow: backend cannot be nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:      cfg.Store,
		backend:    cfg.Backend,
		checkout:   cfg.Checkout,
		fee:        cfg.Fee,
		history:    cfg.History,
		receipts:   cfg.Receipts,
		metrics:    cfg.Metrics,
		controller: NewController(),
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		logger:     logger,
		now:        time.Now,
	}
}

// Fee returns the charge for the session's current draft.
func (s *Service) Fee(st *State) payments.Fee {
	return s.fee.For(st.Draft)
}

func (s *Service) State(ctx context.Context, sessionID string) (*State, error) {
	return s.store.Load(ctx, sessionID)
}

// apply runs fn against a freshly loaded state and commits it when fn
// succeeds.
func (s *Service) apply(ctx context.Context, sessionID, op string, fn func(*State) error) (*State, error) {
	st, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := fn(st); err != nil {
		s.metrics.ObserveTransition(op, err)
		return nil, err
	}
	if err := s.store.Save(ctx, st); err != nil {
		s.metrics.ObserveTransition(op, err)
		return nil, err
	}
	s.metrics.ObserveTransition(op, nil)
	return st, nil
}

func (s *Service) SelectSpecialty(ctx context.Context, sessionID string, sp draft.Specialty) (*State, error) {
	return s.apply(ctx, sessionID, "select_specialty", func(st *State) error {
		return s.controller.SelectSpecialty(st, sp)
	})
}

func (s *Service) SelectDoctor(ctx context.Context, sessionID string, doc draft.Doctor) (*State, error) {
	return s.apply(ctx, sessionID, "select_doctor", func(st *State) error {
		return s.controller.SelectDoctor(st, doc)
	})
}

func (s *Service) ContinueFromDetail(ctx context.Context, sessionID string, in DetailInput) (*State, error) {
	return s.apply(ctx, sessionID, "continue_detail", func(st *State) error {
		return s.controller.ContinueFromDetail(st, in)
	})
}

func (s *Service) SelectPatient(ctx context.Context, sessionID string, p draft.Patient) (*State, error) {
	return s.apply(ctx, sessionID, "select_patient", func(st *State) error {
		return s.controller.SelectPatient(st, p)
	})
}

// ChooseConsultation advances to the booking step and loads the doctor's
// availability for the calendar.
func (s *Service) ChooseConsultation(ctx context.Context, sessionID string, selected []consultation.Modality) (*State, error) {
	return s.apply(ctx, sessionID, "choose_consultation", func(st *State) error {
		if err := s.controller.ChooseConsultation(st, selected); err != nil {
			return err
		}
		m, err := s.backend.Availability(ctx, st.Draft.DoctorID)
		if err != nil {
			return fmt.Errorf("flow: load availability: %w", err)
		}
		st.Availability = m
		return nil
	})
}

// RefreshAvailability re-fetches the calendar while on the booking step.
func (s *Service) RefreshAvailability(ctx context.Context, sessionID string) (*State, error) {
	return s.apply(ctx, sessionID, "refresh_availability", func(st *State) error {
		if err := expect(st, StepBooking); err != nil {
			return err
		}
		m, err := s.backend.Availability(ctx, st.Draft.DoctorID)
		if err != nil {
			return fmt.Errorf("flow: load availability: %w", err)
		}
		st.Availability = m
		return nil
	})
}

// ConfirmSlot books the selected slot with the hospital API. On a 409/422
// the availability is re-fetched, the slot cleared and the state committed
// on the booking step; the returned error wraps ErrSlotTaken. Any other
// failure leaves the stored state as it was.
func (s *Service) ConfirmSlot(ctx context.Context, sessionID string, sel availability.Selection) (*State, error) {
	const op = "confirm_slot"
	st, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	candidate, err := s.controller.PrepareSlot(st, sel)
	if err != nil {
		s.metrics.ObserveTransition(op, err)
		return nil, err
	}

	start := s.now()
	appt, err := s.backend.CreateAppointment(ctx, bookingRequest(candidate), candidate.ID)
	elapsed := s.now().Sub(start).Seconds()

	switch {
	case err == nil:
		s.metrics.ObserveBooking("ok", elapsed)
		bookingID := ""
		if appt != nil {
			bookingID = appt.ID.String()
		}
		if err := s.controller.BookingConfirmed(st, candidate, bookingID); err != nil {
			return nil, err
		}
		if err := s.store.Save(ctx, st); err != nil {
			s.logger.Error("booking created but state not saved", "error", err, "session_id", sessionID, "booking_id", bookingID)
			s.metrics.ObserveTransition(op, err)
			return nil, err
		}
		s.metrics.ObserveTransition(op, nil)
		s.logger.Info("appointment booked", "session_id", sessionID, "draft_id", candidate.ID, "booking_id", bookingID)
		return st, nil

	case hospitalapi.IsConflict(err):
		s.metrics.ObserveBooking("conflict", elapsed)
		s.metrics.ObserveConflict()
		fresh, ferr := s.backend.Availability(ctx, candidate.DoctorID)
		if ferr != nil {
			s.logger.Warn("availability refresh after conflict failed", "error", ferr, "session_id", sessionID)
			fresh = nil
		}
		if cerr := s.controller.SlotTaken(st, candidate, fresh); cerr != nil {
			return nil, cerr
		}
		if serr := s.store.Save(ctx, st); serr != nil {
			s.metrics.ObserveTransition(op, serr)
			return nil, serr
		}
		s.metrics.ObserveTransition(op, ErrSlotTaken)
		return st, fmt.Errorf("%w: %s", ErrSlotTaken, apiMessage(err))

	default:
		s.metrics.ObserveBooking("error", elapsed)
		s.metrics.ObserveTransition(op, err)
		return nil, fmt.Errorf("flow: create appointment: %w", err)
	}
}

func apiMessage(err error) string {
	var apiErr *hospitalapi.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}

func bookingRequest(d draft.Draft) hospitalapi.AppointmentRequest {
	types := make([]string, 0, len(d.ConsultationTypes))
	for _, m := range d.ConsultationTypes {
		types = append(types, m.String())
	}
	return hospitalapi.AppointmentRequest{
		DoctorID:            d.DoctorID,
		ForUserType:         string(d.ForUserType),
		RelativeID:          d.RelativeID,
		ConsultationType:    types,
		ConsultationSubtype: d.Subtype(),
		Date:                d.Date,
		Slot:                d.Slot,
		Issue:               d.Issue,
		Description:         d.Description,
	}
}

// StartCheckout opens a hosted checkout for the booked draft. An open
// checkout already attached to the session is reused; one that was paid
// meanwhile completes the booking instead of opening a second charge.
func (s *Service) StartCheckout(ctx context.Context, sessionID string, customer receipts.Customer) (*State, error) {
	if s.checkout == nil {
		return nil, payments.ErrProviderMisconfig
	}
	st, err := s.startCheckout(ctx, sessionID, customer)
	if errors.Is(err, payments.ErrCheckoutPaid) {
		return s.completeAttached(ctx, sessionID)
	}
	return st, err
}

func (s *Service) startCheckout(ctx context.Context, sessionID string, customer receipts.Customer) (*State, error) {
	return s.apply(ctx, sessionID, "start_checkout", func(st *State) error {
		if err := expect(st, StepPayment); err != nil {
			return err
		}
		st.Customer = customer
		if st.Checkout != nil {
			status, err := s.checkout.Status(ctx, st.Checkout.ID)
			if err == nil {
				switch status {
				case payments.StatusOpen:
					return nil
				case payments.StatusPaid:
					return payments.ErrCheckoutPaid
				}
			}
		}
		fee := s.fee.For(st.Draft)
		cs, err := s.checkout.CreateCheckout(ctx, payments.CheckoutRequest{
			SessionID:     st.SessionID,
			DraftID:       st.Draft.ID,
			BookingID:     st.Draft.BookingID,
			AmountMinor:   fee.Total(),
			Currency:      fee.Currency,
			Description:   fee.Description(st.Draft),
			CustomerEmail: customer.Email,
			SuccessURL:    s.successURL,
			CancelURL:     s.cancelURL,
		})
		if err != nil {
			s.metrics.ObserveCheckout("unknown", "failed")
			return fmt.Errorf("flow: create checkout: %w", err)
		}
		s.metrics.ObserveCheckout(cs.Provider, "created")
		st.Checkout = cs
		return nil
	})
}

// ConfirmPayment is called when the browser returns from checkout. It asks
// the provider whether the attached checkout is paid.
func (s *Service) ConfirmPayment(ctx context.Context, sessionID string) (*State, error) {
	st, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if st.Current() == StepSuccess {
		return st, nil
	}
	if st.Checkout == nil {
		return nil, ErrNoCheckout
	}
	if s.checkout == nil {
		return nil, payments.ErrProviderMisconfig
	}
	status, err := s.checkout.Status(ctx, st.Checkout.ID)
	if err != nil {
		return nil, fmt.Errorf("flow: checkout status: %w", err)
	}
	if status != payments.StatusPaid {
		return nil, ErrPaymentPending
	}
	if err := s.CompletePayment(ctx, sessionID, st.Checkout.ID); err != nil {
		return nil, err
	}
	return s.store.Load(ctx, sessionID)
}

// CompletePayment moves the session to success once checkoutID is paid.
// Webhook redeliveries and browser confirmations may race, so calling it
// again for an already completed checkout is a no-op.
func (s *Service) CompletePayment(ctx context.Context, sessionID, checkoutID string) error {
	const op = "complete_payment"
	st, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	if st.Checkout == nil {
		return ErrNoCheckout
	}
	if checkoutID != "" && st.Checkout.ID != checkoutID {
		return ErrCheckoutMismatch
	}
	if st.Current() == StepSuccess {
		return nil
	}

	r := receipts.Build(receipts.Input{
		Draft:    st.Draft,
		Fee:      s.fee.For(st.Draft),
		Customer: st.Customer,
		Checkout: st.Checkout,
	}, s.now())
	if err := s.controller.PaymentCompleted(st, r); err != nil {
		s.metrics.ObserveTransition(op, err)
		return err
	}
	if err := s.store.Save(ctx, st); err != nil {
		s.metrics.ObserveTransition(op, err)
		return err
	}
	s.metrics.ObserveTransition(op, nil)
	s.metrics.ObserveCheckout(st.Checkout.Provider, "paid")
	s.logger.Info("payment completed", "session_id", sessionID, "checkout_id", st.Checkout.ID, "receipt_id", r.ID)

	if s.receipts != nil {
		s.receipts.Deliver(ctx, r)
	}
	s.recordHistory(ctx, st, r)
	return nil
}

func (s *Service) recordHistory(ctx context.Context, st *State, r receipts.Receipt) {
	if s.history == nil || strings.TrimSpace(st.Customer.ID) == "" {
		return
	}
	d := st.Draft
	entry := library.HistoryEntry{
		BookingID:           d.BookingID,
		ReceiptID:           r.ID,
		DoctorID:            d.DoctorID,
		DoctorName:          r.DoctorName,
		Specialty:           r.Specialty,
		PatientName:         r.PatientName,
		Date:                d.Date,
		Slot:                d.Slot,
		ConsultationSubtype: r.ConsultationSubtype,
		AmountMinor:         r.TotalMinor,
		Currency:            r.Currency,
		PaidAt:              r.IssuedAt,
	}
	if err := s.history.Append(ctx, st.Customer.ID, entry); err != nil {
		s.logger.Error("booking history append failed", "error", err, "session_id", st.SessionID)
	}
}

// completeAttached completes the session's own checkout and returns the
// stored state.
func (s *Service) completeAttached(ctx context.Context, sessionID string) (*State, error) {
	if err := s.CompletePayment(ctx, sessionID, ""); err != nil {
		return nil, err
	}
	return s.store.Load(ctx, sessionID)
}

// releaseCheckout runs before the wizard leaves the payment step. An open
// checkout is expired at the provider so a late payment cannot land on a
// draft the patient has left. If the provider reports it paid, the booking
// is completed instead and paid is true.
func (s *Service) releaseCheckout(ctx context.Context, sessionID string) (paid bool, err error) {
	st, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if st.Checkout == nil || st.Current() == StepSuccess || s.checkout == nil {
		return false, nil
	}
	id := st.Checkout.ID
	status, err := s.checkout.Status(ctx, id)
	if err != nil {
		if errors.Is(err, payments.ErrCheckoutNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("flow: checkout status: %w", err)
	}
	switch status {
	case payments.StatusPaid:
		return true, s.CompletePayment(ctx, sessionID, id)
	case payments.StatusOpen:
		err := s.checkout.ExpireCheckout(ctx, id)
		switch {
		case errors.Is(err, payments.ErrCheckoutPaid):
			return true, s.CompletePayment(ctx, sessionID, id)
		case err != nil:
			return false, fmt.Errorf("flow: expire checkout: %w", err)
		}
		s.metrics.ObserveCheckout(st.Checkout.Provider, "expired")
		s.logger.Info("checkout expired on leaving payment", "session_id", sessionID, "checkout_id", id)
	}
	return false, nil
}

// Back pops one step. Leaving the payment step first releases the checkout;
// when that checkout turns out to be paid the session lands on success.
func (s *Service) Back(ctx context.Context, sessionID string) (*State, error) {
	paid, err := s.releaseCheckout(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if paid {
		return s.store.Load(ctx, sessionID)
	}
	return s.apply(ctx, sessionID, "back", s.controller.Back)
}

func (s *Service) AddMore(ctx context.Context, sessionID string) (*State, error) {
	return s.apply(ctx, sessionID, "add_more", s.controller.AddMore)
}

// Reset clears the draft from any step, releasing an attached checkout the
// same way Back does.
func (s *Service) Reset(ctx context.Context, sessionID string) (*State, error) {
	paid, err := s.releaseCheckout(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if paid {
		return s.store.Load(ctx, sessionID)
	}
	return s.apply(ctx, sessionID, "reset", func(st *State) error {
		s.controller.Reset(st)
		return nil
	})
}
