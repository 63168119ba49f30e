package middleware

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/BradenHooton/sentinel/internal/auth"
	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/BradenHooton/sentinel/internal/services"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
)

const maxScannedBody = 64 << 10

// PayloadInspector scans request data for injection attempts
type PayloadInspector interface {
	InspectPayload(ctx context.Context, event services.PayloadEvent) []models.Alert
}

// ThreatDetection scans the query string and textual request bodies for SQL
// injection and XSS. It only reports: matching requests still reach the
// handler. Bodies are restored for downstream readers.
func ThreatDetection(inspector PayloadInspector, ipConfig *pkghttp.IPConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := pkghttp.ExtractClientIP(r, ipConfig)
			var userID *string
			if claims := auth.GetClaimsFromContext(r); claims != nil {
				userID = models.StringPtr(claims.Subject)
			}

			if r.URL.RawQuery != "" {
				query, err := url.QueryUnescape(r.URL.RawQuery)
				if err != nil {
					query = r.URL.RawQuery
				}
				scan(r.Context(), inspector, logger, services.PayloadEvent{
					Source: "query", Path: r.URL.Path, Payload: query, UserID: userID, IPAddress: ip,
				})
			}

			if r.Body != nil && scannableBody(r.Header.Get("Content-Type")) {
				body, err := io.ReadAll(io.LimitReader(r.Body, maxScannedBody))
				if err == nil {
					r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), r.Body))
					if len(body) > 0 {
						scan(r.Context(), inspector, logger, services.PayloadEvent{
							Source: "body", Path: r.URL.Path, Payload: string(body), UserID: userID, IPAddress: ip,
						})
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func scan(ctx context.Context, inspector PayloadInspector, logger *slog.Logger, event services.PayloadEvent) {
	for _, a := range inspector.InspectPayload(ctx, event) {
		logger.Warn("threat pattern in request",
			slog.String("alert_id", a.ID),
			slog.String("alert_type", string(a.Type)),
			slog.String("source", event.Source),
			slog.String("path", event.Path),
			slog.String("ip_address", event.IPAddress))
	}
}

func scannableBody(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "application/json") ||
		strings.HasPrefix(ct, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(ct, "text/")
}
