package flow

import (
	"time"

	"github.com/wolfman30/patient-portal/internal/availability"
	"github.com/wolfman30/patient-portal/internal/draft"
	"github.com/wolfman30/patient-portal/internal/payments"
	"github.com/wolfman30/patient-portal/internal/receipts"
)

// State is everything the wizard keeps for one browser session. It is
// loaded and committed as a whole.
type State struct {
	SessionID    string                    `json:"session_id"`
	Stack        []Step                    `json:"stack"`
	Draft        draft.Draft               `json:"appointment_data"`
	Availability availability.Map          `json:"availability,omitempty"`
	Checkout     *payments.CheckoutSession `json:"checkout,omitempty"`
	Customer     receipts.Customer         `json:"customer"`
	Receipt      *receipts.Receipt         `json:"receipt,omitempty"`
	Version      int64                     `json:"version"`
	UpdatedAt    time.Time                 `json:"updated_at"`
}

// NewState returns a session parked on the root step with an empty draft.
func NewState(sessionID string) *State {
	return &State{SessionID: sessionID, Stack: []Step{Root}}
}

// Current is the step on top of the stack.
func (s *State) Current() Step {
	if len(s.Stack) == 0 {
		return Root
	}
	return s.Stack[len(s.Stack)-1]
}

func (s *State) push(step Step) {
	if len(s.Stack) == 0 {
		s.Stack = []Step{Root}
	}
	s.Stack = append(s.Stack, step)
}

// clear empties the draft and everything derived from it. Session
// identity, customer and version survive.
func (s *State) clear() {
	s.Stack = []Step{Root}
	s.Draft = draft.Draft{}
	s.Availability = nil
	s.Checkout = nil
	s.Receipt = nil
}

// Clone returns a copy that shares no mutable data with s.
func (s *State) Clone() *State {
	out := *s
	out.Stack = append([]Step(nil), s.Stack...)
	out.Draft = s.Draft.Clone()
	if s.Availability != nil {
		out.Availability = make(availability.Map, len(s.Availability))
		for date, day := range s.Availability {
			out.Availability[date] = availability.Day{
				Consultations: append([]availability.Slot(nil), day.Consultations...),
				Appointments:  append([]availability.Slot(nil), day.Appointments...),
			}
		}
	}
	if s.Checkout != nil {
		cs := *s.Checkout
		out.Checkout = &cs
	}
	if s.Receipt != nil {
		r := *s.Receipt
		out.Receipt = &r
	}
	return &out
}
