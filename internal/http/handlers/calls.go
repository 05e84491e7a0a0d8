package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/patient-portal/internal/calls"
	"github.com/wolfman30/patient-portal/internal/consultation"
	"github.com/wolfman30/patient-portal/internal/session"
	"github.com/wolfman30/patient-portal/pkg/logging"
)

type CallInviter interface {
	Invite(callerID, calleeID, appointmentID string, modality consultation.Modality) (calls.Invitation, error)
}

type RoomTokenIssuer interface {
	Issue(roomID, userID string) (string, time.Time, error)
}

// CallsHandler starts invitations and hands out room tokens. Signaling
// itself runs over the websocket.
type CallsHandler struct {
	inviter CallInviter
	tokens  RoomTokenIssuer
	logger  *logging.Logger
}

func NewCallsHandler(inviter CallInviter, tokens RoomTokenIssuer, logger *logging.Logger) *CallsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &CallsHandler{inviter: inviter, tokens: tokens, logger: logger}
}

type inviteRequest struct {
	CalleeID      string                `json:"callee_id"`
	AppointmentID string                `json:"appointment_id"`
	Modality      consultation.Modality `json:"modality"`
}

// POST /api/calls/invitations
func (h *CallsHandler) Invite(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeError(w, h.logger, r, session.ErrNotFound)
		return
	}
	var req inviteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	inv, err := h.inviter.Invite(uid, strings.TrimSpace(req.CalleeID), req.AppointmentID, req.Modality)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

type tokenRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type tokenResponse struct {
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// POST /api/calls/token
func (h *CallsHandler) Token(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeError(w, h.logger, r, session.ErrNotFound)
		return
	}
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if strings.TrimSpace(req.AppointmentID) == "" {
		writeError(w, h.logger, r, calls.ErrAppointmentRequired)
		return
	}
	room := calls.RoomID(req.AppointmentID)
	token, expires, err := h.tokens.Issue(room, uid)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{RoomID: room, UserID: uid, Token: token, ExpiresAt: expires})
}

// SocketUser resolves the logged-in user for the call websocket.
func SocketUser(r *http.Request) (string, bool) {
	return userID(r)
}
