package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/patient-portal/internal/hospitalapi"
	"github.com/wolfman30/patient-portal/internal/session"
)

type stubAuth struct {
	resp *hospitalapi.AuthResponse
	err  error
	last hospitalapi.LoginRequest
}

func (s *stubAuth) Login(ctx context.Context, req hospitalapi.LoginRequest) (*hospitalapi.AuthResponse, error) {
	s.last = req
	return s.resp, s.err
}

func (s *stubAuth) Register(ctx context.Context, req hospitalapi.RegisterRequest) (*hospitalapi.AuthResponse, error) {
	return s.resp, s.err
}

func newSessionStore(t *testing.T) *session.Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return session.NewStore(client, time.Hour)
}

func authRequest(h http.HandlerFunc, body any) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(payload))
	req = req.WithContext(session.WithSessionID(req.Context(), "sess-9"))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestLoginStoresTokenServerSide(t *testing.T) {
	store := newSessionStore(t)
	auth := &stubAuth{resp: &hospitalapi.AuthResponse{
		Token: "secret-token",
		User:  hospitalapi.User{ID: "42", Name: "Asha", Email: "asha@example.com"},
	}}
	h := NewAuthHandler(auth, store, nil)

	rec := authRequest(h.Login, map[string]string{"email": " asha@example.com ", "password": "pw"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "asha@example.com", auth.last.Email)
	assert.NotContains(t, rec.Body.String(), "secret-token")

	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Authenticated)
	assert.Equal(t, "sess-9", resp.SessionID)
	assert.Equal(t, "42", resp.User.ID)

	stored, err := store.Get(context.Background(), "sess-9")
	require.NoError(t, err)
	assert.Equal(t, "secret-token", stored.Token)
}

func TestLoginRejections(t *testing.T) {
	store := newSessionStore(t)

	h := NewAuthHandler(&stubAuth{}, store, nil)
	rec := authRequest(h.Login, map[string]string{"email": "a@b.c"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	h = NewAuthHandler(&stubAuth{err: &hospitalapi.APIError{Status: 401, Message: "bad password"}}, store, nil)
	rec = authRequest(h.Login, map[string]string{"email": "a@b.c", "password": "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid credentials"}`, rec.Body.String())

	_, err := store.Get(context.Background(), "sess-9")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestRegisterPasswordMismatch(t *testing.T) {
	h := NewAuthHandler(&stubAuth{}, newSessionStore(t), nil)
	rec := authRequest(h.Register, map[string]string{
		"name":                  "Asha",
		"email":                 "asha@example.com",
		"password":              "one",
		"password_confirmation": "two",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "passwords do not match")
}

func TestLogoutAndCurrent(t *testing.T) {
	store := newSessionStore(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, session.Record{SessionID: "sess-9", Token: "t", User: session.User{ID: "42"}}))
	h := NewAuthHandler(&stubAuth{}, store, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	rctx := session.WithSessionID(req.Context(), "sess-9")
	rctx = session.WithRecord(rctx, &session.Record{SessionID: "sess-9", User: session.User{ID: "42"}})
	rec := httptest.NewRecorder()
	h.Current(rec, req.WithContext(rctx))
	assert.JSONEq(t, `{"session_id":"sess-9","authenticated":true,"user":{"id":"42","name":""}}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	rec = httptest.NewRecorder()
	h.Logout(rec, req.WithContext(session.WithSessionID(req.Context(), "sess-9")))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err := store.Get(ctx, "sess-9")
	assert.ErrorIs(t, err, session.ErrNotFound)
}
