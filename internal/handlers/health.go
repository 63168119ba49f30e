package handlers

import (
	"context"
	"net/http"

	"github.com/BradenHooton/sentinel/internal/models"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
)

// HealthChecker produces the composite health report
type HealthChecker interface {
	Check(ctx context.Context, detailed bool) models.HealthReport
}

// HealthHandler serves liveness and component health
type HealthHandler struct {
	checker HealthChecker
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(checker HealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.write(w, h.checker.Check(r.Context(), false))
}

// Detailed handles GET /health/detailed
func (h *HealthHandler) Detailed(w http.ResponseWriter, r *http.Request) {
	h.write(w, h.checker.Check(r.Context(), true))
}

func (h *HealthHandler) write(w http.ResponseWriter, report models.HealthReport) {
	status := http.StatusOK
	if report.Status == models.HealthDown {
		status = http.StatusServiceUnavailable
	}
	pkghttp.WriteJSON(w, status, report)
}
