package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/patient-portal/internal/availability"
	"github.com/wolfman30/patient-portal/internal/consultation"
	"github.com/wolfman30/patient-portal/internal/draft"
	"github.com/wolfman30/patient-portal/internal/flow"
	"github.com/wolfman30/patient-portal/internal/hospitalapi"
	"github.com/wolfman30/patient-portal/internal/payments"
	"github.com/wolfman30/patient-portal/internal/receipts"
	"github.com/wolfman30/patient-portal/internal/session"
	"github.com/wolfman30/patient-portal/pkg/logging"
)

// FlowService is the booking wizard.
type FlowService interface {
	State(ctx context.Context, sessionID string) (*flow.State, error)
	Fee(st *flow.State) payments.Fee
	SelectSpecialty(ctx context.Context, sessionID string, sp draft.Specialty) (*flow.State, error)
	SelectDoctor(ctx context.Context, sessionID string, doc draft.Doctor) (*flow.State, error)
	ContinueFromDetail(ctx context.Context, sessionID string, in flow.DetailInput) (*flow.State, error)
	SelectPatient(ctx context.Context, sessionID string, p draft.Patient) (*flow.State, error)
	ChooseConsultation(ctx context.Context, sessionID string, selected []consultation.Modality) (*flow.State, error)
	RefreshAvailability(ctx context.Context, sessionID string) (*flow.State, error)
	ConfirmSlot(ctx context.Context, sessionID string, sel availability.Selection) (*flow.State, error)
	StartCheckout(ctx context.Context, sessionID string, customer receipts.Customer) (*flow.State, error)
	ConfirmPayment(ctx context.Context, sessionID string) (*flow.State, error)
	Back(ctx context.Context, sessionID string) (*flow.State, error)
	Reset(ctx context.Context, sessionID string) (*flow.State, error)
	AddMore(ctx context.Context, sessionID string) (*flow.State, error)
}

// DoctorLookup resolves a doctor from the catalog so the name and fee
// stored on the draft never come from the browser.
type DoctorLookup interface {
	Doctors(ctx context.Context, skillID string) ([]hospitalapi.Doctor, error)
}

type FlowHandler struct {
	flow    FlowService
	doctors DoctorLookup
	logger  *logging.Logger
	now     func() time.Time
}

func NewFlowHandler(svc FlowService, doctors DoctorLookup, logger *logging.Logger) *FlowHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &FlowHandler{flow: svc, doctors: doctors, logger: logger, now: time.Now}
}

type slotView struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Label string `json:"label"`
}

type feeView struct {
	ConsultationMinor  int64  `json:"consultation_minor"`
	ServiceChargeMinor int64  `json:"service_charge_minor"`
	TotalMinor         int64  `json:"total_minor"`
	Currency           string `json:"currency"`
	Display            string `json:"display"`
}

type flowView struct {
	SessionID string                    `json:"session_id"`
	Step      flow.Step                 `json:"step"`
	Stack     []flow.Step               `json:"stack"`
	Draft     draft.Draft               `json:"appointment_data"`
	Dates     []string                  `json:"dates,omitempty"`
	Slots     map[string][]slotView     `json:"slots,omitempty"`
	Fee       *feeView                  `json:"fee,omitempty"`
	Checkout  *payments.CheckoutSession `json:"checkout,omitempty"`
	Receipt   *receipts.Receipt         `json:"receipt,omitempty"`
	Version   int64                     `json:"version"`
}

func (h *FlowHandler) view(st *flow.State) flowView {
	v := flowView{
		SessionID: st.SessionID,
		Step:      st.Current(),
		Stack:     st.Stack,
		Draft:     st.Draft,
		Checkout:  st.Checkout,
		Receipt:   st.Receipt,
		Version:   st.Version,
	}
	if st.Availability != nil {
		v.Dates = availability.Dates(st.Availability, h.now())
		v.Slots = make(map[string][]slotView, len(v.Dates))
		for _, date := range v.Dates {
			for _, s := range availability.SlotsFor(st.Availability, date) {
				v.Slots[date] = append(v.Slots[date], slotView{Start: s.Start, End: s.End, Label: s.Label()})
			}
		}
	}
	if st.Draft.Doctor != nil {
		fee := h.flow.Fee(st)
		v.Fee = &feeView{
			ConsultationMinor:  fee.ConsultationMinor,
			ServiceChargeMinor: fee.ServiceChargeMinor,
			TotalMinor:         fee.Total(),
			Currency:           fee.Currency,
			Display:            payments.FormatMinor(fee.Total(), fee.Currency),
		}
	}
	return v
}

func (h *FlowHandler) respond(w http.ResponseWriter, r *http.Request, st *flow.State, err error) {
	if err != nil {
		if errors.Is(err, flow.ErrSlotTaken) && st != nil {
			status, msg := statusFor(err)
			h.logger.Warn("slot taken", "session_id", st.SessionID, "error", err)
			writeJSON(w, status, map[string]any{"error": msg, "state": h.view(st)})
			return
		}
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(st))
}

func sid(r *http.Request) string {
	return session.IDFromContext(r.Context())
}

// GET /api/flow
func (h *FlowHandler) Get(w http.ResponseWriter, r *http.Request) {
	st, err := h.flow.State(r.Context(), sid(r))
	h.respond(w, r, st, err)
}

func (h *FlowHandler) Specialty(w http.ResponseWriter, r *http.Request) {
	var sp draft.Specialty
	if err := decodeJSON(r, &sp); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	st, err := h.flow.SelectSpecialty(r.Context(), sid(r), sp)
	h.respond(w, r, st, err)
}

type doctorRequest struct {
	ID      string `json:"id"`
	SkillID string `json:"skill_id,omitempty"`
}

func (h *FlowHandler) Doctor(w http.ResponseWriter, r *http.Request) {
	var req doctorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	doc, err := h.resolveDoctor(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	st, err := h.flow.SelectDoctor(r.Context(), sid(r), doc)
	h.respond(w, r, st, err)
}

func (h *FlowHandler) resolveDoctor(ctx context.Context, req doctorRequest) (draft.Doctor, error) {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return draft.Doctor{}, draft.ErrDoctorRequired
	}
	if h.doctors == nil {
		return draft.Doctor{ID: id}, nil
	}
	doctors, err := h.doctors.Doctors(ctx, strings.TrimSpace(req.SkillID))
	if err != nil {
		return draft.Doctor{}, err
	}
	for _, d := range doctors {
		if d.ID.String() != id {
			continue
		}
		return draft.Doctor{
			ID:        id,
			Name:      d.Name,
			Specialty: d.Specialty,
			FeeMinor:  int64(math.Round(d.ConsultFee * 100)),
		}, nil
	}
	return draft.Doctor{}, draft.ErrDoctorRequired
}

func (h *FlowHandler) Detail(w http.ResponseWriter, r *http.Request) {
	var in flow.DetailInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	st, err := h.flow.ContinueFromDetail(r.Context(), sid(r), in)
	h.respond(w, r, st, err)
}

func (h *FlowHandler) Patient(w http.ResponseWriter, r *http.Request) {
	var p draft.Patient
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	st, err := h.flow.SelectPatient(r.Context(), sid(r), p)
	h.respond(w, r, st, err)
}

type consultationRequest struct {
	ConsultationType []consultation.Modality `json:"consultation_type"`
}

func (h *FlowHandler) Consultation(w http.ResponseWriter, r *http.Request) {
	var req consultationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	st, err := h.flow.ChooseConsultation(r.Context(), sid(r), req.ConsultationType)
	h.respond(w, r, st, err)
}

// GET /api/flow/availability
func (h *FlowHandler) Availability(w http.ResponseWriter, r *http.Request) {
	st, err := h.flow.RefreshAvailability(r.Context(), sid(r))
	h.respond(w, r, st, err)
}

func (h *FlowHandler) Slot(w http.ResponseWriter, r *http.Request) {
	var sel availability.Selection
	if err := decodeJSON(r, &sel); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	st, err := h.flow.ConfirmSlot(r.Context(), sid(r), sel)
	h.respond(w, r, st, err)
}

// POST /api/flow/checkout. Needs a logged-in session for the receipt.
func (h *FlowHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	rec, ok := session.RecordFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, r, session.ErrNotFound)
		return
	}
	customer := receipts.Customer{ID: rec.User.ID, Name: rec.User.Name, Email: rec.User.Email}
	st, err := h.flow.StartCheckout(r.Context(), sid(r), customer)
	h.respond(w, r, st, err)
}

// POST /api/flow/payment/complete, called when the browser returns from
// the hosted checkout.
func (h *FlowHandler) PaymentComplete(w http.ResponseWriter, r *http.Request) {
	st, err := h.flow.ConfirmPayment(r.Context(), sid(r))
	h.respond(w, r, st, err)
}

func (h *FlowHandler) Back(w http.ResponseWriter, r *http.Request) {
	st, err := h.flow.Back(r.Context(), sid(r))
	h.respond(w, r, st, err)
}

func (h *FlowHandler) Reset(w http.ResponseWriter, r *http.Request) {
	st, err := h.flow.Reset(r.Context(), sid(r))
	h.respond(w, r, st, err)
}

func (h *FlowHandler) AddMore(w http.ResponseWriter, r *http.Request) {
	st, err := h.flow.AddMore(r.Context(), sid(r))
	h.respond(w, r, st, err)
}
