package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/BradenHooton/sentinel/internal/services"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
	"github.com/benbjohnson/clock"
)

// EventDetector is the detection surface the host application reports into
type EventDetector interface {
	ProcessLoginAttempt(ctx context.Context, attempt models.LoginAttempt) []models.Alert
	ReportUpload(ctx context.Context, event services.UploadEvent) services.UploadVerdict
	InspectPayload(ctx context.Context, event services.PayloadEvent) []models.Alert
	RaiseSecurityEvent(ctx context.Context, event services.SecurityEvent) (models.Alert, bool, error)
}

// SessionGauge records the host application's active session count
type SessionGauge interface {
	SetActiveSessions(n float64)
}

// EventHandler ingests security events from the host application
type EventHandler struct {
	detector EventDetector
	sessions SessionGauge
	clock    clock.Clock
	logger   *slog.Logger
}

// NewEventHandler creates a new EventHandler
func NewEventHandler(detector EventDetector, sessions SessionGauge, clk clock.Clock, logger *slog.Logger) *EventHandler {
	if clk == nil {
		clk = clock.New()
	}
	return &EventHandler{
		detector: detector,
		sessions: sessions,
		clock:    clk,
		logger:   logger,
	}
}

// LoginEventRequest reports one authentication outcome
type LoginEventRequest struct {
	Identity  string     `json:"identity" validate:"required,max=320"`
	IPAddress string     `json:"ip_address" validate:"required,ip"`
	Success   bool       `json:"success"`
	UserID    string     `json:"user_id" validate:"omitempty,max=255"`
	Timestamp *time.Time `json:"timestamp"`
}

// UploadEventRequest reports a file upload before it is stored
type UploadEventRequest struct {
	Filename    string `json:"filename" validate:"required,max=1024"`
	ContentType string `json:"content_type" validate:"omitempty,max=255"`
	Size        int64  `json:"size" validate:"gte=0"`
	UserID      string `json:"user_id" validate:"omitempty,max=255"`
	IPAddress   string `json:"ip_address" validate:"omitempty,ip"`
}

// PayloadEventRequest submits request data captured by the host application
type PayloadEventRequest struct {
	Source    string `json:"source" validate:"omitempty,max=64"`
	Path      string `json:"path" validate:"omitempty,max=2048"`
	Payload   string `json:"payload" validate:"required,max=65536"`
	UserID    string `json:"user_id" validate:"omitempty,max=255"`
	IPAddress string `json:"ip_address" validate:"omitempty,ip"`
}

// SecurityEventRequest reports privilege escalation or an account lockout
type SecurityEventRequest struct {
	Type      string         `json:"type" validate:"required,oneof=privilege_escalation account_lockout"`
	Message   string         `json:"message" validate:"omitempty,max=500"`
	UserID    string         `json:"user_id" validate:"omitempty,max=255"`
	IPAddress string         `json:"ip_address" validate:"omitempty,ip"`
	Details   models.Details `json:"details"`
}

// SessionsEventRequest reports the current active session count
type SessionsEventRequest struct {
	Active *int `json:"active" validate:"required,gte=0"`
}

// AlertsResponse lists the alerts an event raised
type AlertsResponse struct {
	Alerts []models.Alert `json:"alerts"`
}

// SecurityEventResponse is the body of POST /api/v1/events/security
type SecurityEventResponse struct {
	Alert   models.Alert `json:"alert"`
	Created bool         `json:"created"`
}

func alertsResponse(alerts []models.Alert) AlertsResponse {
	if alerts == nil {
		alerts = []models.Alert{}
	}
	return AlertsResponse{Alerts: alerts}
}

// Login handles POST /api/v1/events/login
func (h *EventHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginEventRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	ts := h.clock.Now().UTC()
	if req.Timestamp != nil {
		ts = req.Timestamp.UTC()
	}

	alerts := h.detector.ProcessLoginAttempt(r.Context(), models.LoginAttempt{
		Timestamp: ts,
		IPAddress: req.IPAddress,
		Identity:  req.Identity,
		Success:   req.Success,
		UserID:    models.StringPtr(req.UserID),
	})
	pkghttp.WriteJSON(w, http.StatusOK, alertsResponse(alerts))
}

// Upload handles POST /api/v1/events/upload. The verdict tells the host
// application whether to keep the file.
func (h *EventHandler) Upload(w http.ResponseWriter, r *http.Request) {
	var req UploadEventRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	verdict := h.detector.ReportUpload(r.Context(), services.UploadEvent{
		Filename:    req.Filename,
		ContentType: req.ContentType,
		Size:        req.Size,
		UserID:      models.StringPtr(req.UserID),
		IPAddress:   req.IPAddress,
	})
	pkghttp.WriteJSON(w, http.StatusOK, verdict)
}

// Payload handles POST /api/v1/events/payload
func (h *EventHandler) Payload(w http.ResponseWriter, r *http.Request) {
	var req PayloadEventRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	source := req.Source
	if source == "" {
		source = "host"
	}
	alerts := h.detector.InspectPayload(r.Context(), services.PayloadEvent{
		Source:    source,
		Path:      req.Path,
		Payload:   req.Payload,
		UserID:    models.StringPtr(req.UserID),
		IPAddress: req.IPAddress,
	})
	pkghttp.WriteJSON(w, http.StatusOK, alertsResponse(alerts))
}

// Security handles POST /api/v1/events/security
func (h *EventHandler) Security(w http.ResponseWriter, r *http.Request) {
	var req SecurityEventRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	alert, created, err := h.detector.RaiseSecurityEvent(r.Context(), services.SecurityEvent{
		Type:      models.AlertType(req.Type),
		Message:   req.Message,
		UserID:    models.StringPtr(req.UserID),
		IPAddress: req.IPAddress,
		Details:   req.Details,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	pkghttp.WriteJSON(w, status, SecurityEventResponse{Alert: alert, Created: created})
}

// Sessions handles POST /api/v1/events/sessions
func (h *EventHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	var req SessionsEventRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	h.sessions.SetActiveSessions(float64(*req.Active))
	w.WriteHeader(http.StatusNoContent)
}
