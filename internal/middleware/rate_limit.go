package middleware

import (
	"net/http"
	"time"

	"github.com/BradenHooton/sentinel/internal/auth"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
	// IPConfig decides which forwarding headers are believed; nil uses the peer address
	IPConfig *pkghttp.IPConfig
}

// DefaultCommandRateLimit returns the limit for state-changing operator endpoints
func DefaultCommandRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 30,
	}
}

// DefaultIngestRateLimit returns the limit for event ingestion from the host application
func DefaultIngestRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 600,
	}
}

func limitExceeded(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteTooManyRequests(w, "rate limit exceeded")
}

func clientIPKey(ipConfig *pkghttp.IPConfig) httprate.KeyFunc {
	return func(r *http.Request) (string, error) {
		return "ip:" + pkghttp.ExtractClientIP(r, ipConfig), nil
	}
}

// RateLimitByIP creates a middleware that rate limits requests by client IP
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(clientIPKey(config.IPConfig)),
		httprate.WithLimitHandler(limitExceeded),
	)
}

// RateLimitBySubject limits per token subject, falling back to client IP for
// requests without claims. Must run after auth.RequireRole.
func RateLimitBySubject(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if claims := auth.GetClaimsFromContext(r); claims != nil && claims.Subject != "" {
				return "sub:" + claims.Subject, nil
			}
			return clientIPKey(config.IPConfig)(r)
		}),
		httprate.WithLimitHandler(limitExceeded),
	)
}
