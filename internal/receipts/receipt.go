// Package receipts builds, archives and mails booking receipts.
package receipts

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/patient-portal/internal/draft"
	"github.com/wolfman30/patient-portal/internal/payments"
)

// Receipt is what the patient sees on the success step.
type Receipt struct {
	ID                  string    `json:"id"`
	BookingID           string    `json:"booking_id,omitempty"`
	DraftID             string    `json:"draft_id"`
	PatientName         string    `json:"patient_name"`
	PatientEmail        string    `json:"patient_email,omitempty"`
	DoctorName          string    `json:"doctor_name"`
	Specialty           string    `json:"specialty,omitempty"`
	Date                string    `json:"date"`
	Slot                string    `json:"slot"`
	ConsultationSubtype string    `json:"consultation_subtype"`
	Issue               string    `json:"issue,omitempty"`
	ConsultationMinor   int64     `json:"consultation_minor"`
	ServiceChargeMinor  int64     `json:"service_charge_minor"`
	TotalMinor          int64     `json:"total_minor"`
	Currency            string    `json:"currency"`
	PaymentProvider     string    `json:"payment_provider,omitempty"`
	PaymentRef          string    `json:"payment_ref,omitempty"`
	IssuedAt            time.Time `json:"issued_at"`
}

// Customer is the logged-in account paying for the booking.
type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Input gathers what a receipt is built from.
type Input struct {
	Draft    draft.Draft
	Fee      payments.Fee
	Customer Customer
	Checkout *payments.CheckoutSession
}

// ID returns the server booking id, or a local "APT-" id built from the
// last six digits of the unix millisecond clock when there is none.
func ID(bookingID string, now time.Time) string {
	if id := strings.TrimSpace(bookingID); id != "" {
		return id
	}
	return fmt.Sprintf("APT-%06d", now.UnixMilli()%1_000_000)
}

// Build assembles a receipt. It does not touch any store.
func Build(in Input, now time.Time) Receipt {
	d := in.Draft
	r := Receipt{
		ID:                  ID(d.BookingID, now),
		BookingID:           d.BookingID,
		DraftID:             d.ID,
		PatientName:         in.Customer.Name,
		PatientEmail:        in.Customer.Email,
		Date:                d.Date,
		Slot:                d.Slot,
		ConsultationSubtype: d.Subtype(),
		Issue:               d.Issue,
		ConsultationMinor:   in.Fee.ConsultationMinor,
		ServiceChargeMinor:  in.Fee.ServiceChargeMinor,
		TotalMinor:          in.Fee.Total(),
		Currency:            strings.ToLower(in.Fee.Currency),
		IssuedAt:            now.UTC(),
	}
	if d.ForUserType == draft.Others && d.Patient != nil && d.Patient.Name != "" {
		r.PatientName = d.Patient.Name
	}
	if d.Doctor != nil {
		r.DoctorName = d.Doctor.Name
		r.Specialty = d.Doctor.Specialty
	}
	if r.Specialty == "" && d.Specialty != nil {
		r.Specialty = d.Specialty.Name
	}
	if in.Checkout != nil {
		r.PaymentProvider = in.Checkout.Provider
		r.PaymentRef = in.Checkout.ID
		if in.Checkout.AmountMinor > 0 {
			r.TotalMinor = in.Checkout.AmountMinor
		}
	}
	return r
}

// Text is the plain-text rendering used in email bodies.
func (r Receipt) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Receipt %s\n", r.ID)
	fmt.Fprintf(&b, "Patient: %s\n", r.PatientName)
	fmt.Fprintf(&b, "Doctor: %s", r.DoctorName)
	if r.Specialty != "" {
		fmt.Fprintf(&b, " (%s)", r.Specialty)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "When: %s, %s\n", r.Date, r.Slot)
	fmt.Fprintf(&b, "Consultation: %s\n", r.ConsultationSubtype)
	fmt.Fprintf(&b, "Consultation fee: %s\n", payments.FormatMinor(r.ConsultationMinor, r.Currency))
	fmt.Fprintf(&b, "Service charge: %s\n", payments.FormatMinor(r.ServiceChargeMinor, r.Currency))
	fmt.Fprintf(&b, "Total paid: %s\n", payments.FormatMinor(r.TotalMinor, r.Currency))
	return b.String()
}
