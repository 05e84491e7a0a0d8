package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func corsRecorder(origins []string, req *http.Request) (*httptest.ResponseRecorder, bool) {
	called := false
	h := CORS(origins)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, called
}

func TestCORSEchoesAllowedOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/flow", nil)
	req.Header.Set("Origin", "https://portal.example.com")

	rec, called := corsRecorder([]string{"https://portal.example.com/"}, req)

	assert.True(t, called)
	assert.Equal(t, "https://portal.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "X-Session-ID")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/flow/slot", nil)
	req.Header.Set("Origin", "https://portal.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	rec, called := corsRecorder([]string{"https://portal.example.com"}, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key")
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestCORSRejectsUnknownPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/flow/slot", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	rec, called := corsRecorder([]string{"https://portal.example.com"}, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSUnknownOriginPassesWithoutHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")

	rec, called := corsRecorder([]string{"https://portal.example.com"}, req)

	assert.True(t, called)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSWildcardStillEchoes(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/flow", nil)
	req.Header.Set("Origin", "http://localhost:5173")

	rec, _ := corsRecorder([]string{"*"}, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSNoOrigin(t *testing.T) {
	rec, called := corsRecorder([]string{"*"}, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.True(t, called)
	assert.Empty(t, rec.Header().Get("Vary"))
}
