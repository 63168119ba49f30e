package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/sentinel/internal/models"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
)

// writeServiceError maps sentinel errors onto the JSON error envelope
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, strings.TrimPrefix(err.Error(), models.ErrBadRequest.Error()+": "))
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "alert not found")
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "authentication required")
	case errors.Is(err, models.ErrForbidden):
		pkghttp.WriteForbidden(w, "insufficient permissions")
	case errors.Is(err, models.ErrStoreUnavailable):
		logger.Warn("alert store unavailable", slog.Any("error", err))
		pkghttp.WriteServiceUnavailable(w, "alert store unavailable")
	default:
		logger.Error("request failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "internal server error")
	}
}
