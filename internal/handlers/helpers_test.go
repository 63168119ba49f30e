package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/sentinel/internal/auth"
	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/BradenHooton/sentinel/internal/services"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithOperatorContext adds operator claims to the request context
func WithOperatorContext(req *http.Request, subject, role string) *http.Request {
	claims := &models.OperatorClaims{
		Role:             role,
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
	}
	ctx := context.WithValue(req.Context(), auth.ClaimsContextKey, claims)
	return req.WithContext(ctx)
}

// WithChiRouteContext sets chi URL parameters on a request that bypasses the router
func WithChiRouteContext(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// MockEventDetector implements EventDetector for testing
type MockEventDetector struct {
	ProcessLoginAttemptFunc func(ctx context.Context, attempt models.LoginAttempt) []models.Alert
	ReportUploadFunc        func(ctx context.Context, event services.UploadEvent) services.UploadVerdict
	InspectPayloadFunc      func(ctx context.Context, event services.PayloadEvent) []models.Alert
	RaiseSecurityEventFunc  func(ctx context.Context, event services.SecurityEvent) (models.Alert, bool, error)
}

func (m *MockEventDetector) ProcessLoginAttempt(ctx context.Context, attempt models.LoginAttempt) []models.Alert {
	if m.ProcessLoginAttemptFunc == nil {
		return nil
	}
	return m.ProcessLoginAttemptFunc(ctx, attempt)
}

func (m *MockEventDetector) ReportUpload(ctx context.Context, event services.UploadEvent) services.UploadVerdict {
	if m.ReportUploadFunc == nil {
		return services.UploadVerdict{Allowed: true}
	}
	return m.ReportUploadFunc(ctx, event)
}

func (m *MockEventDetector) InspectPayload(ctx context.Context, event services.PayloadEvent) []models.Alert {
	if m.InspectPayloadFunc == nil {
		return nil
	}
	return m.InspectPayloadFunc(ctx, event)
}

func (m *MockEventDetector) RaiseSecurityEvent(ctx context.Context, event services.SecurityEvent) (models.Alert, bool, error) {
	if m.RaiseSecurityEventFunc == nil {
		return models.Alert{}, false, models.ErrStoreUnavailable
	}
	return m.RaiseSecurityEventFunc(ctx, event)
}

// MockSessionGauge records the last reported session count
type MockSessionGauge struct {
	Value float64
	Calls int
}

func (m *MockSessionGauge) SetActiveSessions(n float64) {
	m.Value = n
	m.Calls++
}

// MockHealthChecker returns a fixed report
type MockHealthChecker struct {
	Report   models.HealthReport
	Detailed []bool
}

func (m *MockHealthChecker) Check(ctx context.Context, detailed bool) models.HealthReport {
	m.Detailed = append(m.Detailed, detailed)
	report := m.Report
	if !detailed {
		report.Components = nil
	}
	return report
}
