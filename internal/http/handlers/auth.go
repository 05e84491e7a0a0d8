package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/patient-portal/internal/hospitalapi"
	"github.com/wolfman30/patient-portal/internal/session"
	"github.com/wolfman30/patient-portal/pkg/logging"
)

const sseHeartbeat = 25 * time.Second

// Authenticator proxies credentials to the hospital API.
type Authenticator interface {
	Login(ctx context.Context, req hospitalapi.LoginRequest) (*hospitalapi.AuthResponse, error)
	Register(ctx context.Context, req hospitalapi.RegisterRequest) (*hospitalapi.AuthResponse, error)
}

// SessionStore is the auth record store.
type SessionStore interface {
	Put(ctx context.Context, rec session.Record) error
	Delete(ctx context.Context, sessionID string) error
	Watch(ctx context.Context, sessionID string) (<-chan session.Event, func(), error)
}

// AuthHandler logs patients in through the hospital API and keeps the
// resulting token server-side.
type AuthHandler struct {
	auth   Authenticator
	store  SessionStore
	logger *logging.Logger
}

func NewAuthHandler(auth Authenticator, store SessionStore, logger *logging.Logger) *AuthHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AuthHandler{auth: auth, store: store, logger: logger}
}

type sessionResponse struct {
	SessionID     string        `json:"session_id"`
	Authenticated bool          `json:"authenticated"`
	User          *session.User `json:"user,omitempty"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req hospitalapi.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		jsonError(w, "email and password are required", http.StatusUnprocessableEntity)
		return
	}
	resp, err := h.auth.Login(r.Context(), req)
	if err != nil {
		if hospitalapi.IsUnauthorized(err) {
			jsonError(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		writeError(w, h.logger, r, err)
		return
	}
	h.establish(w, r, resp)
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req hospitalapi.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if req.Email == "" || req.Name == "" || req.Password == "" {
		jsonError(w, "name, email and password are required", http.StatusUnprocessableEntity)
		return
	}
	if req.ConfirmPassword != "" && req.ConfirmPassword != req.Password {
		jsonError(w, "passwords do not match", http.StatusUnprocessableEntity)
		return
	}
	resp, err := h.auth.Register(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	h.establish(w, r, resp)
}

func (h *AuthHandler) establish(w http.ResponseWriter, r *http.Request, resp *hospitalapi.AuthResponse) {
	sid := session.IDFromContext(r.Context())
	user := session.User{
		ID:    resp.User.ID.String(),
		Name:  resp.User.Name,
		Email: resp.User.Email,
		Phone: resp.User.Phone,
	}
	if err := h.store.Put(r.Context(), session.Record{SessionID: sid, Token: resp.Token, User: user}); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	h.logger.Info("patient logged in", "session_id", sid, "user_id", user.ID)
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: sid, Authenticated: true, User: &user})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sid := session.IDFromContext(r.Context())
	if err := h.store.Delete(r.Context(), sid); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Current(w http.ResponseWriter, r *http.Request) {
	resp := sessionResponse{SessionID: session.IDFromContext(r.Context())}
	if rec, ok := session.RecordFromContext(r.Context()); ok {
		user := rec.User
		resp.Authenticated = true
		resp.User = &user
	}
	writeJSON(w, http.StatusOK, resp)
}

// Events streams login/logout changes for this session as server-sent
// events so other tabs update without polling.
func (h *AuthHandler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	sid := session.IDFromContext(r.Context())
	events, stop, err := h.store.Watch(r.Context(), sid)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	defer stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}
