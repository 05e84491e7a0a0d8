package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/wolfman30/patient-portal/internal/hospitalapi"
	"github.com/wolfman30/patient-portal/pkg/logging"
)

const (
	HeaderName = "X-Session-ID"
	CookieName = "portal_session"
)

type ctxKey int

const (
	ctxSessionID ctxKey = iota
	ctxRecord
)

// WithSessionID stores sid on ctx.
func WithSessionID(ctx context.Context, sid string) context.Context {
	return context.WithValue(ctx, ctxSessionID, sid)
}

func IDFromContext(ctx context.Context) string {
	sid, _ := ctx.Value(ctxSessionID).(string)
	return sid
}

// WithRecord stores the auth record on ctx and hands its token to the
// hospital API client.
func WithRecord(ctx context.Context, rec *Record) context.Context {
	ctx = context.WithValue(ctx, ctxRecord, rec)
	if rec != nil && rec.Token != "" {
		ctx = hospitalapi.WithToken(ctx, rec.Token)
	}
	return ctx
}

func RecordFromContext(ctx context.Context) (*Record, bool) {
	rec, ok := ctx.Value(ctxRecord).(*Record)
	return rec, ok && rec != nil
}

// idFromRequest prefers the header so tabs driven by script can pin a
// session; browsers fall back to the cookie.
func idFromRequest(r *http.Request) string {
	if sid := strings.TrimSpace(r.Header.Get(HeaderName)); sid != "" {
		return sid
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

type recordGetter interface {
	Get(ctx context.Context, sessionID string) (*Record, error)
}

// Middleware resolves the session for every request. Requests without one
// get a fresh id and a cookie. A stored auth record, when present, is
// attached to the context.
func Middleware(store recordGetter, secureCookie bool, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid := idFromRequest(r)
			if sid == "" {
				sid = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     CookieName,
					Value:    sid,
					Path:     "/",
					HttpOnly: true,
					Secure:   secureCookie,
					SameSite: http.SameSiteLaxMode,
				})
			}
			w.Header().Set(HeaderName, sid)
			ctx := WithSessionID(r.Context(), sid)

			rec, err := store.Get(ctx, sid)
			switch {
			case err == nil:
				ctx = WithRecord(ctx, rec)
			case errors.Is(err, ErrNotFound):
			default:
				logger.Warn("session lookup failed", "error", err, "session_id", sid)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects requests whose session has no auth record.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := RecordFromContext(r.Context()); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "login required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
