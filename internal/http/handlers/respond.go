package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/wolfman30/patient-portal/internal/availability"
	"github.com/wolfman30/patient-portal/internal/calls"
	"github.com/wolfman30/patient-portal/internal/consultation"
	"github.com/wolfman30/patient-portal/internal/draft"
	"github.com/wolfman30/patient-portal/internal/flow"
	"github.com/wolfman30/patient-portal/internal/hospitalapi"
	"github.com/wolfman30/patient-portal/internal/library"
	"github.com/wolfman30/patient-portal/internal/payments"
	"github.com/wolfman30/patient-portal/internal/session"
	"github.com/wolfman30/patient-portal/pkg/logging"
)

const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("malformed request body")

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

var unprocessable = []error{
	draft.ErrRelativeRequired,
	draft.ErrIssueRequired,
	draft.ErrDoctorRequired,
	draft.ErrScheduleRequired,
	draft.ErrConsultationRequired,
	draft.ErrInvalidBeneficiary,
	flow.ErrSpecialtyRequired,
	availability.ErrNoDate,
	availability.ErrNoSlot,
	availability.ErrUnknownSlot,
	availability.ErrDateUnavailable,
	consultation.ErrUnknownModality,
	calls.ErrAppointmentRequired,
	calls.ErrCalleeRequired,
	library.ErrUserRequired,
	library.ErrBookmarkInvalid,
}

var conflicts = []error{
	flow.ErrInvalidTransition,
	flow.ErrSlotTaken,
	flow.ErrStaleState,
	flow.ErrNoCheckout,
	flow.ErrCheckoutMismatch,
	flow.ErrPaymentPending,
	calls.ErrNotPending,
	calls.ErrNotAccepted,
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// statusFor maps domain and upstream errors onto HTTP statuses and the
// message the browser sees.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, err.Error()
	case isAny(err, unprocessable):
		return http.StatusUnprocessableEntity, err.Error()
	case isAny(err, conflicts):
		return http.StatusConflict, err.Error()
	case errors.Is(err, calls.ErrInvitationNotFound), errors.Is(err, payments.ErrCheckoutNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, calls.ErrNotParticipant):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, session.ErrNotFound), hospitalapi.IsUnauthorized(err):
		return http.StatusUnauthorized, "login required"
	case errors.Is(err, hospitalapi.ErrNotConfigured), errors.Is(err, payments.ErrProviderMisconfig),
		errors.Is(err, calls.ErrTokenSecretMissing):
		return http.StatusServiceUnavailable, err.Error()
	}
	var apiErr *hospitalapi.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.Status)
		}
		return http.StatusBadGateway, msg
	}
	return http.StatusInternalServerError, "internal error"
}

// writeError logs once and renders the mapped error.
func writeError(w http.ResponseWriter, logger *logging.Logger, r *http.Request, err error) {
	status, msg := statusFor(err)
	attrs := []any{"error", err, "path", r.URL.Path, "status", status, "session_id", session.IDFromContext(r.Context())}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", attrs...)
	} else {
		logger.Warn("request rejected", attrs...)
	}
	jsonError(w, msg, status)
}
