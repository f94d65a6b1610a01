package core

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsOriginAllowed_ExactMatch(t *testing.T) {
	assert.True(t, isOriginAllowed("https://app.example.com", []string{"https://app.example.com"}))
	assert.False(t, isOriginAllowed("https://other.example.com", []string{"https://app.example.com"}))
}

func TestIsOriginAllowed_WildcardAll(t *testing.T) {
	assert.True(t, isOriginAllowed("https://anything.test", []string{"*"}))
}

func TestIsOriginAllowed_EmptyOriginNeverAllowed(t *testing.T) {
	assert.False(t, isOriginAllowed("", []string{"*"}))
}

func TestIsOriginAllowed_SubdomainWildcard(t *testing.T) {
	allowed := []string{"https://*.example.com"}
	assert.True(t, isOriginAllowed("https://app.example.com", allowed))
	assert.True(t, isOriginAllowed("https://api.example.com", allowed))
	assert.False(t, isOriginAllowed("https://example.com", allowed))
	assert.False(t, isOriginAllowed("https://evilexample.com", allowed))
}

func TestIsOriginAllowed_PortWildcard(t *testing.T) {
	allowed := []string{"http://localhost:*"}
	assert.True(t, isOriginAllowed("http://localhost:3000", allowed))
	assert.True(t, isOriginAllowed("http://localhost:8080", allowed))
	assert.False(t, isOriginAllowed("http://otherhost:3000", allowed))
}

func TestCORSMiddleware_DisabledPassesThroughWithoutHeaders(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.Enabled = false

	handler := CORSMiddleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSMiddleware_AllowedOriginSetsHeaders(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.Enabled = true
	cfg.AllowedOrigins = []string{"https://example.com"}
	cfg.AllowCredentials = true

	handler := CORSMiddleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSMiddleware_PreflightReturnsNoContentWithoutCallingNext(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.Enabled = true
	cfg.AllowedOrigins = []string{"*"}

	called := false
	handler := CORSMiddleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, called)
}

func TestApplyCORS_DisabledSetsNoHeaders(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.Enabled = false

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	ApplyCORS(rec, req, cfg)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestDefaultCORSConfig_IsDisabledBySecureDefault(t *testing.T) {
	cfg := DefaultCORSConfig()
	require.False(t, cfg.Enabled)
	assert.Empty(t, cfg.AllowedOrigins)
}

func TestDevelopmentCORSConfig_AllowsAllOrigins(t *testing.T) {
	cfg := DevelopmentCORSConfig()
	require.True(t, cfg.Enabled)
	assert.Contains(t, cfg.AllowedOrigins, "*")
	assert.True(t, cfg.AllowCredentials)
}
