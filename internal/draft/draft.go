// Package draft defines the booking draft that accumulates across the steps
// of the appointment flow.
package draft

import (
	"encoding/json"
	"strings"

	"github.com/wolfman30/patient-portal/internal/consultation"
)

// Beneficiary says who the appointment is for.
type Beneficiary string

const (
	Self   Beneficiary = "self"
	Others Beneficiary = "others"
)

// ParseBeneficiary accepts "self" or "others" in any case.
func ParseBeneficiary(s string) (Beneficiary, error) {
	switch Beneficiary(strings.ToLower(strings.TrimSpace(s))) {
	case Self:
		return Self, nil
	case Others:
		return Others, nil
	}
	return "", ErrInvalidBeneficiary
}

type Specialty struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Doctor struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Specialty string `json:"specialty,omitempty"`
	FeeMinor  int64  `json:"fee_minor,omitempty"`
}

// Patient is the relative chosen on the patient-list step.
type Patient struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Relationship string `json:"relationship,omitempty"`
	Age          int    `json:"age,omitempty"`
	Gender       string `json:"gender,omitempty"`
}

// Draft is the in-progress appointment.
type Draft struct {
	ID                string                  `json:"id"`
	Specialty         *Specialty              `json:"specialty,omitempty"`
	Doctor            *Doctor                 `json:"doctor,omitempty"`
	DoctorID          string                  `json:"doctor_id,omitempty"`
	ForUserType       Beneficiary             `json:"for_user_type,omitempty"`
	RelativeID        string                  `json:"relative_id,omitempty"`
	Patient           *Patient                `json:"patientData,omitempty"`
	ConsultationTypes []consultation.Modality `json:"consultation_type,omitempty"`
	Issue             string                  `json:"issue,omitempty"`
	Description       string                  `json:"description,omitempty"`
	Date              string                  `json:"date,omitempty"`
	Slot              string                  `json:"slot,omitempty"`
	BookingID         string                  `json:"booking_id,omitempty"`
	ReceiptID         string                  `json:"receipt_id,omitempty"`
}

// Subtype is the API consultation subtype derived from the selected modalities.
// It is empty until a modality has been chosen.
func (d Draft) Subtype() string {
	if len(d.ConsultationTypes) == 0 {
		return ""
	}
	return consultation.SubtypeFor(d.ConsultationTypes)
}

// MarshalJSON adds the derived consultation_subtype field.
func (d Draft) MarshalJSON() ([]byte, error) {
	type plain Draft
	return json.Marshal(struct {
		plain
		ConsultationSubtype string `json:"consultation_subtype,omitempty"`
	}{plain: plain(d), ConsultationSubtype: d.Subtype()})
}

// SetDoctor records the doctor and keeps DoctorID in step with it.
func (d *Draft) SetDoctor(doc Doctor) {
	d.Doctor = &doc
	d.DoctorID = doc.ID
}

// ClearSlot drops the chosen slot, leaving every other field intact.
func (d *Draft) ClearSlot() {
	d.Slot = ""
}

// Validate checks the fields the booking request needs.
func (d Draft) Validate() error {
	if d.Doctor == nil || d.DoctorID == "" {
		return ErrDoctorRequired
	}
	switch d.ForUserType {
	case Self:
	case Others:
		if d.RelativeID == "" {
			return ErrRelativeRequired
		}
	default:
		return ErrInvalidBeneficiary
	}
	if len(d.ConsultationTypes) == 0 {
		return ErrConsultationRequired
	}
	if strings.TrimSpace(d.Issue) == "" {
		return ErrIssueRequired
	}
	if d.Date == "" || d.Slot == "" {
		return ErrScheduleRequired
	}
	return nil
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (d Draft) Clone() Draft {
	out := d
	if d.Specialty != nil {
		s := *d.Specialty
		out.Specialty = &s
	}
	if d.Doctor != nil {
		doc := *d.Doctor
		out.Doctor = &doc
	}
	if d.Patient != nil {
		p := *d.Patient
		out.Patient = &p
	}
	if d.ConsultationTypes != nil {
		out.ConsultationTypes = append([]consultation.Modality(nil), d.ConsultationTypes...)
	}
	return out
}
