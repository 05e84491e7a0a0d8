package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/patient-portal/internal/hospitalapi"
	"github.com/wolfman30/patient-portal/internal/session"
	"github.com/wolfman30/patient-portal/pkg/logging"
)

// HospitalAPI is the catalog and account surface proxied to the browser.
type HospitalAPI interface {
	Skills(ctx context.Context) ([]hospitalapi.Skill, error)
	Doctors(ctx context.Context, skillID string) ([]hospitalapi.Doctor, error)
	Organization(ctx context.Context) (*hospitalapi.Organization, error)
	TestCheckups(ctx context.Context) ([]hospitalapi.TestCheckup, error)
	Profile(ctx context.Context) (*hospitalapi.Profile, error)
	UpdateProfile(ctx context.Context, p hospitalapi.Profile) (*hospitalapi.Profile, error)
	Relatives(ctx context.Context) ([]hospitalapi.Relative, error)
	AddRelative(ctx context.Context, rel hospitalapi.Relative) (*hospitalapi.Relative, error)
	AppointmentsForUser(ctx context.Context, userID string) ([]hospitalapi.Appointment, error)
	CancelAppointment(ctx context.Context, appointmentID string) error
	BookTest(ctx context.Context, req hospitalapi.TestBookingRequest) (*hospitalapi.TestBooking, error)
}

type CatalogHandler struct {
	api    HospitalAPI
	logger *logging.Logger
}

func NewCatalogHandler(api HospitalAPI, logger *logging.Logger) *CatalogHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &CatalogHandler{api: api, logger: logger}
}

// GET /api/catalog/skills
func (h *CatalogHandler) Skills(w http.ResponseWriter, r *http.Request) {
	skills, err := h.api.Skills(r.Context())
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"skills": nonNil(skills)})
}

// GET /api/catalog/doctors?skill_id=
func (h *CatalogHandler) Doctors(w http.ResponseWriter, r *http.Request) {
	doctors, err := h.api.Doctors(r.Context(), strings.TrimSpace(r.URL.Query().Get("skill_id")))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"doctors": nonNil(doctors)})
}

func (h *CatalogHandler) Organization(w http.ResponseWriter, r *http.Request) {
	org, err := h.api.Organization(r.Context())
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}

func (h *CatalogHandler) TestCheckups(w http.ResponseWriter, r *http.Request) {
	tests, err := h.api.TestCheckups(r.Context())
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"test_checkups": nonNil(tests)})
}

func (h *CatalogHandler) Profile(w http.ResponseWriter, r *http.Request) {
	p, err := h.api.Profile(r.Context())
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *CatalogHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var p hospitalapi.Profile
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	updated, err := h.api.UpdateProfile(r.Context(), p)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *CatalogHandler) Relatives(w http.ResponseWriter, r *http.Request) {
	rels, err := h.api.Relatives(r.Context())
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"relatives": nonNil(rels)})
}

func (h *CatalogHandler) AddRelative(w http.ResponseWriter, r *http.Request) {
	var rel hospitalapi.Relative
	if err := decodeJSON(r, &rel); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if strings.TrimSpace(rel.Name) == "" {
		jsonError(w, "relative name is required", http.StatusUnprocessableEntity)
		return
	}
	created, err := h.api.AddRelative(r.Context(), rel)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *CatalogHandler) Appointments(w http.ResponseWriter, r *http.Request) {
	rec, ok := session.RecordFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, r, session.ErrNotFound)
		return
	}
	appts, err := h.api.AppointmentsForUser(r.Context(), rec.User.ID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": nonNil(appts)})
}

// POST /api/appointments/{id}/cancel
func (h *CatalogHandler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		jsonError(w, "missing appointment id", http.StatusBadRequest)
		return
	}
	if err := h.api.CancelAppointment(r.Context(), id); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CatalogHandler) BookTest(w http.ResponseWriter, r *http.Request) {
	var req hospitalapi.TestBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if strings.TrimSpace(req.TestID) == "" || strings.TrimSpace(req.Date) == "" {
		jsonError(w, "test_id and date are required", http.StatusUnprocessableEntity)
		return
	}
	booking, err := h.api.BookTest(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
