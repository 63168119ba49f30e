package services

import (
	"context"
	"log/slog"

	"github.com/BradenHooton/sentinel/internal/models"
)

// LogChannel writes alerts to the structured log
type LogChannel struct {
	logger *slog.Logger
}

func NewLogChannel(logger *slog.Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

func (c *LogChannel) Name() string {
	return "log"
}

func (c *LogChannel) Send(ctx context.Context, alert models.Alert) error {
	level := slog.LevelWarn
	if alert.Severity == models.SeverityCritical {
		level = slog.LevelError
	}

	attrs := []slog.Attr{
		slog.String("alert_id", alert.ID),
		slog.String("alert_type", string(alert.Type)),
		slog.String("severity", string(alert.Severity)),
		slog.String("message", alert.Message),
	}
	if alert.IPAddress != nil {
		attrs = append(attrs, slog.String("ip_address", *alert.IPAddress))
	}
	c.logger.LogAttrs(ctx, level, "alert notification", attrs...)
	return nil
}
