package logger

import (
	"context"
	"log/slog"
	"time"
)

// AlertEvent is the loggable view of an alert lifecycle change
type AlertEvent struct {
	AlertID    string
	AlertType  string
	Severity   string
	Message    string
	UserID     string
	IPAddress  string
	ResolvedBy string
}

// SecurityLogger writes the security event trail
type SecurityLogger struct {
	logger *slog.Logger
}

// NewSecurityLogger creates a new security logger
func NewSecurityLogger(logger *slog.Logger) *SecurityLogger {
	return &SecurityLogger{
		logger: logger,
	}
}

func (sl *SecurityLogger) baseAttrs(eventType string, event AlertEvent) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("audit_type", "security"),
		slog.String("event_type", eventType),
		slog.String("alert_id", event.AlertID),
		slog.String("alert_type", event.AlertType),
		slog.String("severity", event.Severity),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	return attrs
}

// LogAlertCreated logs a new alert. High and critical alerts log at ERROR.
func (sl *SecurityLogger) LogAlertCreated(event AlertEvent) {
	attrs := sl.baseAttrs("alert_created", event)
	attrs = append(attrs, slog.String("message", event.Message))

	level := slog.LevelWarn
	if event.Severity == "high" || event.Severity == "critical" {
		level = slog.LevelError
	}
	sl.logger.LogAttrs(context.Background(), level, "security alert", attrs...)
}

// LogAlertResolved logs an operator resolving an alert
func (sl *SecurityLogger) LogAlertResolved(event AlertEvent) {
	attrs := sl.baseAttrs("alert_resolved", event)
	if event.ResolvedBy != "" {
		attrs = append(attrs, slog.String("resolved_by", event.ResolvedBy))
	}
	sl.logger.LogAttrs(context.Background(), slog.LevelInfo, "security alert resolved", attrs...)
}
