package payments

import (
	"fmt"
	"strings"

	"github.com/wolfman30/patient-portal/internal/draft"
)

// Fee is the fixed charge for one consultation, in minor currency units.
type Fee struct {
	ConsultationMinor  int64  `json:"consultation_minor"`
	ServiceChargeMinor int64  `json:"service_charge_minor"`
	Currency           string `json:"currency"`
}

// Total is consultation plus service charge.
func (f Fee) Total() int64 {
	return f.ConsultationMinor + f.ServiceChargeMinor
}

// For returns the fee for d, using the doctor's own consultation fee when
// the catalog carries one.
func (f Fee) For(d draft.Draft) Fee {
	if d.Doctor != nil && d.Doctor.FeeMinor > 0 {
		f.ConsultationMinor = d.Doctor.FeeMinor
	}
	return f
}

// Description is the line item text shown at checkout.
func (f Fee) Description(d draft.Draft) string {
	var b strings.Builder
	b.WriteString("Consultation")
	if d.Doctor != nil && d.Doctor.Name != "" {
		b.WriteString(" with ")
		b.WriteString(d.Doctor.Name)
	}
	if d.Date != "" {
		b.WriteString(" on ")
		b.WriteString(d.Date)
		if d.Slot != "" {
			b.WriteString(", ")
			b.WriteString(d.Slot)
		}
	}
	if sub := d.Subtype(); sub != "" {
		b.WriteString(" (")
		b.WriteString(sub)
		b.WriteString(")")
	}
	return b.String()
}

// FormatMinor renders an amount like "550.00 INR".
func FormatMinor(amount int64, currency string) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, amount/100, amount%100, strings.ToUpper(currency))
}
