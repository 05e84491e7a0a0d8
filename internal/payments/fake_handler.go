package payments

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/patient-portal/pkg/logging"
)

// FakePaymentsHandler exposes a tiny page to "pay" a fake checkout.
// Only mount this handler when ALLOW_FAKE_PAYMENTS=true.
type FakePaymentsHandler struct {
	checkout  *FakeCheckout
	completer PaymentCompleter
	returnURL string
	logger    *logging.Logger
}

func NewFakePaymentsHandler(checkout *FakeCheckout, completer PaymentCompleter, returnURL string, logger *logging.Logger) *FakePaymentsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &FakePaymentsHandler{
		checkout:  checkout,
		completer: completer,
		returnURL: strings.TrimSpace(returnURL),
		logger:    logger,
	}
}

func (h *FakePaymentsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{checkoutID}", h.HandleCheckout)
	r.Post("/{checkoutID}/complete", h.HandleComplete)
	return r
}

var fakeCheckoutPage = template.Must(template.New("checkout").Parse(`<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Demo Consultation Checkout</title>
    <style>
      body{font-family:system-ui,-apple-system,Segoe UI,Roboto,Ubuntu,Cantarell,Noto Sans,sans-serif;max-width:680px;margin:40px auto;padding:0 16px;}
      .card{border:1px solid #e5e7eb;border-radius:12px;padding:18px;}
      .btn{display:inline-block;background:#111827;color:#fff;padding:12px 16px;border-radius:10px;text-decoration:none;border:0;cursor:pointer;}
      .muted{color:#6b7280;font-size:14px;}
    </style>
  </head>
  <body>
    <h1>Demo Consultation Checkout</h1>
    <div class="card">
      <p>{{.Description}}</p>
      <p><strong>Amount:</strong> {{.Amount}}</p>
      {{if .Paid}}<p>This checkout is already paid.</p>{{else}}
      <form method="POST" action="{{.CompleteURL}}">
        <button class="btn" type="submit">Pay</button>
      </form>{{end}}
      <p class="muted">No real payment is processed.</p>
    </div>
  </body>
</html>`))

func (h *FakePaymentsHandler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	checkoutID := chi.URLParam(r, "checkoutID")
	req, status, err := h.checkout.Lookup(checkoutID)
	if err != nil {
		http.Error(w, "checkout not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = fakeCheckoutPage.Execute(w, map[string]any{
		"Description": req.Description,
		"Amount":      FormatMinor(req.AmountMinor, req.Currency),
		"Paid":        status == StatusPaid,
		"CompleteURL": fmt.Sprintf("%s/complete", strings.TrimRight(r.URL.Path, "/")),
	})
}

func (h *FakePaymentsHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	checkoutID := chi.URLParam(r, "checkoutID")
	req, _, err := h.checkout.MarkPaid(checkoutID)
	if err != nil {
		switch {
		case errors.Is(err, ErrCheckoutNotFound):
			http.Error(w, "checkout not found", http.StatusNotFound)
		case errors.Is(err, ErrCheckoutClosed):
			http.Error(w, "checkout expired", http.StatusGone)
		default:
			http.Error(w, "failed to complete payment", http.StatusInternalServerError)
		}
		return
	}
	// completion is idempotent, so a repeated submit retries a failed one
	if err := h.completer.CompletePayment(r.Context(), req.SessionID, checkoutID); err != nil {
		h.logger.Error("fake payment completion failed", "error", err, "checkout_id", checkoutID)
		http.Error(w, "failed to complete payment", http.StatusInternalServerError)
		return
	}
	target := firstNonEmpty(req.SuccessURL, h.returnURL)
	if target == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
