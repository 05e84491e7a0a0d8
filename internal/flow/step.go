// Package flow runs the appointment booking wizard: a navigation stack of
// steps plus the draft that accumulates along the way.
package flow

// Step is one screen of the booking wizard.
type Step string

const (
	StepSpecialties  Step = "specialties"
	StepDoctors      Step = "doctors"
	StepDetail       Step = "detail"
	StepPatientList  Step = "patientlist"
	StepConsultation Step = "consultation"
	StepBooking      Step = "booking"
	StepPayment      Step = "payment"
	StepSuccess      Step = "success"
)

var steps = map[Step]bool{
	StepSpecialties:  true,
	StepDoctors:      true,
	StepDetail:       true,
	StepPatientList:  true,
	StepConsultation: true,
	StepBooking:      true,
	StepPayment:      true,
	StepSuccess:      true,
}

func (s Step) Valid() bool { return steps[s] }

// Root is the first step; it is never popped.
const Root = StepSpecialties
