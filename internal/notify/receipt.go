package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/wolfman30/patient-portal/internal/payments"
	"github.com/wolfman30/patient-portal/internal/receipts"
)

var receiptHTML = template.Must(template.New("receipt").Funcs(template.FuncMap{
	"money": payments.FormatMinor,
}).Parse(`<!doctype html>
<html>
  <body style="font-family:system-ui,sans-serif;max-width:560px;margin:24px auto;">
    <h2>Your appointment is booked</h2>
    <p>Receipt <strong>{{.ID}}</strong></p>
    <table cellpadding="4">
      <tr><td>Patient</td><td>{{.PatientName}}</td></tr>
      <tr><td>Doctor</td><td>{{.DoctorName}}{{if .Specialty}} ({{.Specialty}}){{end}}</td></tr>
      <tr><td>When</td><td>{{.Date}}, {{.Slot}}</td></tr>
      <tr><td>Consultation</td><td>{{.ConsultationSubtype}}</td></tr>
      <tr><td>Consultation fee</td><td>{{money .ConsultationMinor .Currency}}</td></tr>
      <tr><td>Service charge</td><td>{{money .ServiceChargeMinor .Currency}}</td></tr>
      <tr><td><strong>Total paid</strong></td><td><strong>{{money .TotalMinor .Currency}}</strong></td></tr>
    </table>
  </body>
</html>`))

// CategoryReceipt tags receipt mail at the provider.
const CategoryReceipt = "receipt"

// ReceiptMailer renders receipts into email.
type ReceiptMailer struct {
	sender EmailSender
}

func NewReceiptMailer(sender EmailSender) *ReceiptMailer {
	return &ReceiptMailer{sender: sender}
}

func (m *ReceiptMailer) SendReceipt(ctx context.Context, r receipts.Receipt) error {
	var html bytes.Buffer
	if err := receiptHTML.Execute(&html, r); err != nil {
		return fmt.Errorf("notify: render receipt: %w", err)
	}
	return m.sender.Send(ctx, EmailMessage{
		To:       r.PatientEmail,
		ToName:   r.PatientName,
		Subject:  fmt.Sprintf("Appointment receipt %s", r.ID),
		Body:     r.Text(),
		HTML:     html.String(),
		Category: CategoryReceipt,
	})
}

var _ receipts.Mailer = (*ReceiptMailer)(nil)
