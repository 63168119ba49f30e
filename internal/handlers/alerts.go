package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BradenHooton/sentinel/internal/auth"
	"github.com/BradenHooton/sentinel/internal/models"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
	"github.com/BradenHooton/sentinel/pkg/logger"
	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"
)

// AlertLedger is the read/resolve side of the alert store used by operators
type AlertLedger interface {
	List(filter models.AlertFilter) []models.Alert
	Get(id string) (models.Alert, error)
	Resolve(id string, resolvedBy *string) (models.Alert, bool, error)
	Stats() models.AlertStats
}

// AlertHandler serves the operator alert API
type AlertHandler struct {
	alerts   AlertLedger
	security *logger.SecurityLogger
	clock    clock.Clock
	logger   *slog.Logger
}

// NewAlertHandler creates a new AlertHandler
func NewAlertHandler(alerts AlertLedger, clk clock.Clock, log *slog.Logger) *AlertHandler {
	if clk == nil {
		clk = clock.New()
	}
	return &AlertHandler{
		alerts:   alerts,
		security: logger.NewSecurityLogger(log),
		clock:    clk,
		logger:   log,
	}
}

// AlertListResponse is the body of GET /api/v1/alerts
type AlertListResponse struct {
	Alerts []models.Alert `json:"alerts"`
	Count  int            `json:"count"`
	Limit  int            `json:"limit"`
}

// ResolveAlertRequest is the optional body of POST /api/v1/alerts/{id}/resolve
type ResolveAlertRequest struct {
	ResolvedBy string `json:"resolved_by" validate:"omitempty,max=255"`
}

// ListAlerts handles GET /api/v1/alerts
func (h *AlertHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseFilter(r)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	alerts := h.alerts.List(filter)
	if alerts == nil {
		alerts = []models.Alert{}
	}
	pkghttp.WriteJSON(w, http.StatusOK, AlertListResponse{
		Alerts: alerts,
		Count:  len(alerts),
		Limit:  filter.EffectiveLimit(),
	})
}

func (h *AlertHandler) parseFilter(r *http.Request) (models.AlertFilter, error) {
	q := r.URL.Query()
	var filter models.AlertFilter

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return filter, fmt.Errorf("%w: limit must be a positive integer", models.ErrBadRequest)
		}
		filter.Limit = limit
	}

	if v := q.Get("severity"); v != "" {
		sev, err := models.ParseSeverity(v)
		if err != nil {
			return filter, err
		}
		filter.Severity = &sev
	}

	if v := q.Get("type"); v != "" {
		t, err := models.ParseAlertType(v)
		if err != nil {
			return filter, err
		}
		filter.Type = &t
	}

	if v := q.Get("resolved"); v != "" {
		resolved, err := strconv.ParseBool(v)
		if err != nil {
			return filter, fmt.Errorf("%w: resolved must be true or false", models.ErrBadRequest)
		}
		filter.Resolved = &resolved
	}

	// since takes precedence over hours
	switch {
	case q.Get("since") != "":
		since, err := time.Parse(time.RFC3339, q.Get("since"))
		if err != nil {
			return filter, fmt.Errorf("%w: since must be an RFC3339 timestamp", models.ErrBadRequest)
		}
		filter.Since = &since
	case q.Get("hours") != "":
		hours, err := strconv.Atoi(q.Get("hours"))
		if err != nil || hours < 1 {
			return filter, fmt.Errorf("%w: hours must be a positive integer", models.ErrBadRequest)
		}
		since := h.clock.Now().Add(-time.Duration(hours) * time.Hour)
		filter.Since = &since
	}

	return filter, nil
}

// GetAlert handles GET /api/v1/alerts/{id}
func (h *AlertHandler) GetAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := h.alerts.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, alert)
}

// ResolveAlert handles POST /api/v1/alerts/{id}/resolve. resolved_by
// defaults to the caller's token subject.
func (h *AlertHandler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ResolveAlertRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	resolvedBy := req.ResolvedBy
	if resolvedBy == "" {
		if claims := auth.GetClaimsFromContext(r); claims != nil {
			resolvedBy = claims.Subject
		}
	}

	alert, changed, err := h.alerts.Resolve(id, models.StringPtr(resolvedBy))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if changed {
		event := logger.AlertEvent{
			AlertID:    alert.ID,
			AlertType:  string(alert.Type),
			Severity:   string(alert.Severity),
			ResolvedBy: resolvedBy,
		}
		if alert.IPAddress != nil {
			event.IPAddress = *alert.IPAddress
		}
		h.security.LogAlertResolved(event)
	}

	pkghttp.WriteJSON(w, http.StatusOK, alert)
}

// GetCounts handles GET /api/v1/alerts/counts
func (h *AlertHandler) GetCounts(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteJSON(w, http.StatusOK, h.alerts.Stats())
}
