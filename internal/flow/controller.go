package flow

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/patient-portal/internal/availability"
	"github.com/wolfman30/patient-portal/internal/consultation"
	"github.com/wolfman30/patient-portal/internal/draft"
	"github.com/wolfman30/patient-portal/internal/receipts"
)

// Controller applies wizard operations to a State. It performs no I/O.
// Every operation validates its input before touching the state, so a
// returned error means the state is unchanged.
type Controller struct {
	newID func() string
	now   func() time.Time
}

func NewController() *Controller {
	return &Controller{newID: uuid.NewString, now: time.Now}
}

func (c *Controller) clock() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

// DetailInput is submitted on the doctor detail step.
type DetailInput struct {
	ForUserType draft.Beneficiary `json:"for_user_type"`
	Issue       string            `json:"issue,omitempty"`
	Description string            `json:"description,omitempty"`
}

func expect(st *State, step Step) error {
	if st.Current() != step {
		return ErrInvalidTransition
	}
	return nil
}

func (c *Controller) SelectSpecialty(st *State, sp draft.Specialty) error {
	if err := expect(st, StepSpecialties); err != nil {
		return err
	}
	sp.ID = strings.TrimSpace(sp.ID)
	sp.Name = strings.TrimSpace(sp.Name)
	if sp.ID == "" && sp.Name == "" {
		return ErrSpecialtyRequired
	}
	st.Draft.Specialty = &sp
	st.push(StepDoctors)
	return nil
}

// SelectDoctor starts a fresh draft for doc, keeping the chosen specialty.
func (c *Controller) SelectDoctor(st *State, doc draft.Doctor) error {
	if err := expect(st, StepDoctors); err != nil {
		return err
	}
	doc.ID = strings.TrimSpace(doc.ID)
	if doc.ID == "" {
		return draft.ErrDoctorRequired
	}
	next := draft.Draft{ID: c.newID()}
	if st.Draft.Specialty != nil {
		sp := *st.Draft.Specialty
		next.Specialty = &sp
		if doc.Specialty == "" {
			doc.Specialty = sp.Name
		}
	}
	next.SetDoctor(doc)
	st.Draft = next
	st.Availability = nil
	st.Checkout = nil
	st.Receipt = nil
	st.push(StepDetail)
	return nil
}

// ContinueFromDetail records who the appointment is for. Booking for
// others routes through the patient list.
func (c *Controller) ContinueFromDetail(st *State, in DetailInput) error {
	if err := expect(st, StepDetail); err != nil {
		return err
	}
	who, err := draft.ParseBeneficiary(string(in.ForUserType))
	if err != nil {
		return err
	}
	st.Draft.ForUserType = who
	if issue := strings.TrimSpace(in.Issue); issue != "" {
		st.Draft.Issue = issue
	}
	if desc := strings.TrimSpace(in.Description); desc != "" {
		st.Draft.Description = desc
	}
	if who == draft.Others {
		st.push(StepPatientList)
		return nil
	}
	st.Draft.RelativeID = ""
	st.Draft.Patient = nil
	st.push(StepConsultation)
	return nil
}

func (c *Controller) SelectPatient(st *State, p draft.Patient) error {
	if err := expect(st, StepPatientList); err != nil {
		return err
	}
	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" {
		return draft.ErrRelativeRequired
	}
	st.Draft.RelativeID = p.ID
	st.Draft.Patient = &p
	st.push(StepConsultation)
	return nil
}

func (c *Controller) ChooseConsultation(st *State, selected []consultation.Modality) error {
	if err := expect(st, StepConsultation); err != nil {
		return err
	}
	selected = consultation.Dedupe(selected)
	if len(selected) == 0 {
		return draft.ErrConsultationRequired
	}
	st.Draft.ConsultationTypes = selected
	st.push(StepBooking)
	return nil
}

// PrepareSlot returns the draft as it would be booked with sel applied.
// The state itself is not modified; the caller commits the candidate
// through BookingConfirmed or SlotTaken.
func (c *Controller) PrepareSlot(st *State, sel availability.Selection) (draft.Draft, error) {
	if err := expect(st, StepBooking); err != nil {
		return draft.Draft{}, err
	}
	date, label, err := availability.Picker{Map: st.Availability, Now: c.clock()}.Confirm(sel)
	if err != nil {
		return draft.Draft{}, err
	}
	candidate := st.Draft.Clone()
	candidate.Date = date
	candidate.Slot = label
	if issue := strings.TrimSpace(sel.Issue); issue != "" {
		candidate.Issue = issue
	}
	if desc := strings.TrimSpace(sel.Description); desc != "" {
		candidate.Description = desc
	}
	if err := candidate.Validate(); err != nil {
		return draft.Draft{}, err
	}
	return candidate, nil
}

func (c *Controller) BookingConfirmed(st *State, candidate draft.Draft, bookingID string) error {
	if err := expect(st, StepBooking); err != nil {
		return err
	}
	candidate.BookingID = strings.TrimSpace(bookingID)
	st.Draft = candidate
	st.Checkout = nil
	st.push(StepPayment)
	return nil
}

// SlotTaken keeps the candidate minus its slot and swaps in the refreshed
// availability. The wizard stays on the booking step.
func (c *Controller) SlotTaken(st *State, candidate draft.Draft, fresh availability.Map) error {
	if err := expect(st, StepBooking); err != nil {
		return err
	}
	candidate.ClearSlot()
	st.Draft = candidate
	if fresh != nil {
		st.Availability = fresh
	}
	return nil
}

// PaymentCompleted moves a paid session to the success step.
func (c *Controller) PaymentCompleted(st *State, r receipts.Receipt) error {
	if err := expect(st, StepPayment); err != nil {
		return err
	}
	st.Draft.ReceiptID = r.ID
	st.Receipt = &r
	st.push(StepSuccess)
	return nil
}

// AddMore starts another booking once the previous one succeeded.
func (c *Controller) AddMore(st *State) error {
	if err := expect(st, StepSuccess); err != nil {
		return err
	}
	st.clear()
	return nil
}

// Back pops one step. It is a no-op on the root step. Leaving the
// success step backwards would reopen a paid checkout, so it is refused.
// Leaving payment drops the checkout; the caller must have closed it.
func (c *Controller) Back(st *State) error {
	switch st.Current() {
	case StepSuccess:
		return ErrInvalidTransition
	case StepPayment:
		st.Checkout = nil
	}
	if len(st.Stack) <= 1 {
		st.Stack = []Step{Root}
		return nil
	}
	st.Stack = st.Stack[:len(st.Stack)-1]
	return nil
}

func (c *Controller) Reset(st *State) {
	st.clear()
}
