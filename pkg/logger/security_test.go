package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	return entry
}

func TestLogAlertResolved(t *testing.T) {
	var buf bytes.Buffer
	sl := NewSecurityLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	sl.LogAlertResolved(AlertEvent{AlertID: "a-2", AlertType: "xss_attempt", Severity: "critical", ResolvedBy: "analyst"})

	entry := decodeLine(t, &buf)
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "alert_resolved", entry["event_type"])
	assert.Equal(t, "analyst", entry["resolved_by"])
}

func TestRedactedAttr(t *testing.T) {
	assert.Equal(t, "[REDACTED]", RedactedAttr("redis_url", "redis://:pw@host", "production").Value.String())
	assert.Equal(t, "redis://:pw@host", RedactedAttr("redis_url", "redis://:pw@host", "development").Value.String())
}
