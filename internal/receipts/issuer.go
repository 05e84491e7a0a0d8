package receipts

import (
	"context"
	"time"

	"github.com/wolfman30/patient-portal/pkg/logging"
)

// Archiver stores a copy of a receipt and returns its location.
type Archiver interface {
	Archive(ctx context.Context, r Receipt) (string, error)
}

// Mailer sends a receipt to the patient.
type Mailer interface {
	SendReceipt(ctx context.Context, r Receipt) error
}

// Issuer builds a receipt and fans it out to the archive and the mailer.
// The payment has already been taken by then, so delivery failures are
// logged and never fail the booking.
type Issuer struct {
	archiver Archiver
	mailer   Mailer
	logger   *logging.Logger
	now      func() time.Time
}

// NewIssuer accepts nil archiver or mailer.
func NewIssuer(archiver Archiver, mailer Mailer, logger *logging.Logger) *Issuer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Issuer{archiver: archiver, mailer: mailer, logger: logger, now: time.Now}
}

func (i *Issuer) Issue(ctx context.Context, in Input) Receipt {
	r := Build(in, i.now())
	i.Deliver(ctx, r)
	return r
}

// Deliver archives and mails an already built receipt.
func (i *Issuer) Deliver(ctx context.Context, r Receipt) {
	if i.archiver != nil {
		if key, err := i.archiver.Archive(ctx, r); err != nil {
			i.logger.Error("receipt archive failed", "error", err, "receipt_id", r.ID)
		} else {
			i.logger.Info("receipt archived", "receipt_id", r.ID, "key", key)
		}
	}
	if i.mailer != nil && r.PatientEmail != "" {
		if err := i.mailer.SendReceipt(ctx, r); err != nil {
			i.logger.Error("receipt email failed", "error", err, "receipt_id", r.ID)
		}
	}
}
