package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func serveCORS(origins []string, method, origin, requestMethod string) (*httptest.ResponseRecorder, bool) {
	reached := false
	h := CORSMiddleware(origins)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(method, "/api/v1/notes", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if requestMethod != "" {
		req.Header.Set("Access-Control-Request-Method", requestMethod)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, reached
}

func TestCORSMiddleware_AllowedOrigin(t *testing.T) {
	rec, reached := serveCORS([]string{"https://notes.example.com"}, http.MethodGet, "https://notes.example.com", "")

	assert.True(t, reached)
	assert.Equal(t, "https://notes.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", rec.Header().Get("Vary"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSMiddleware_UnknownOrigin(t *testing.T) {
	rec, reached := serveCORS([]string{"https://notes.example.com"}, http.MethodGet, "https://evil.example.com", "")

	assert.True(t, reached)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSMiddleware_Wildcard(t *testing.T) {
	rec, _ := serveCORS([]string{"*"}, http.MethodGet, "https://any.example.com", "")

	assert.Equal(t, "https://any.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	rec, reached := serveCORS([]string{"https://notes.example.com"}, http.MethodOptions, "https://notes.example.com", http.MethodPut)

	assert.False(t, reached)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PUT")
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestCORSMiddleware_PlainOptionsPassesThrough(t *testing.T) {
	_, reached := serveCORS(nil, http.MethodOptions, "", "")

	assert.True(t, reached)
}
