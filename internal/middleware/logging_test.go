package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestSecureLogger_RedactsSensitiveQuery(t *testing.T) {
	var buf bytes.Buffer
	handler := SecureLogger(captureLogger(&buf), nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts?token=abc123", nil)
	req.RemoteAddr = "192.0.2.7:1111"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := lastEntry(t, &buf)
	assert.Equal(t, "/api/v1/alerts?[REDACTED]", entry["path"])
	assert.Equal(t, "192.0.2.7", entry["client_ip"])
	assert.Equal(t, "INFO", entry["level"])
	assert.NotContains(t, buf.String(), "abc123")
}

func TestSecureLogger_Levels(t *testing.T) {
	tests := []struct {
		path   string
		status int
		want   string
	}{
		{"/api/v1/alerts", http.StatusOK, "INFO"},
		{"/api/v1/alerts", http.StatusForbidden, "WARN"},
		{"/api/v1/alerts", http.StatusTooManyRequests, "WARN"},
		{"/api/v1/alerts", http.StatusInternalServerError, "ERROR"},
		{"/metrics", http.StatusOK, "DEBUG"},
		{"/health/detailed", http.StatusOK, "DEBUG"},
		{"/health", http.StatusServiceUnavailable, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.path+" "+http.StatusText(tt.status), func(t *testing.T) {
			var buf bytes.Buffer
			status := tt.status
			handler := SecureLogger(captureLogger(&buf), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.want, lastEntry(t, &buf)["level"])
		})
	}
}
