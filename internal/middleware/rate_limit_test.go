package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/sentinel/internal/auth"
	"github.com/BradenHooton/sentinel/internal/models"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitByIP_EnforcesLimit(t *testing.T) {
	handler := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 3})(okHandler())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts/x/resolve", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts/x/resolve", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "rate_limit_exceeded", resp.Error)

	// A different client is unaffected
	req = httptest.NewRequest(http.MethodPost, "/api/v1/alerts/x/resolve", nil)
	req.RemoteAddr = "192.0.2.2:1234"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitBySubject_KeysOnClaims(t *testing.T) {
	handler := RateLimitBySubject(RateLimitConfig{RequestsPerMinute: 1})(okHandler())

	withSubject := func(sub string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/events/login", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		claims := &models.OperatorClaims{Role: "service", RegisteredClaims: jwt.RegisteredClaims{Subject: sub}}
		return req.WithContext(context.WithValue(req.Context(), auth.ClaimsContextKey, claims))
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, withSubject("svc-a"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, withSubject("svc-a"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Same IP, different subject
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, withSubject("svc-b"))
	assert.Equal(t, http.StatusOK, rec.Code)
}
