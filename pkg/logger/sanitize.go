package logger

import (
	"log/slog"
	"strings"
)

// MaskIdentity masks an email or username for logs and metric labels
// ("alice@example.com" -> "a***@e***.com", "alice" -> "a***").
func MaskIdentity(identity string) string {
	if identity == "" {
		return ""
	}

	local, domain, isEmail := strings.Cut(identity, "@")
	if !isEmail {
		return maskPart(identity)
	}
	if local == "" || domain == "" {
		return "[invalid-email]"
	}

	// Mask domain: keep TLD, mask the rest
	domainParts := strings.Split(domain, ".")
	if len(domainParts) > 1 {
		for i := 0; i < len(domainParts)-1; i++ {
			domainParts[i] = maskPart(domainParts[i])
		}
		domain = strings.Join(domainParts, ".")
	}

	return maskPart(local) + "@" + domain
}

func maskPart(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	return string(r[0]) + "***"
}

// RedactedAttr returns a redacted slog attribute for sensitive values
// In production, returns "[REDACTED]"; in development, returns the actual value
func RedactedAttr(key, value, env string) slog.Attr {
	if env == "production" {
		return slog.String(key, "[REDACTED]")
	}
	return slog.String(key, value)
}

var sensitiveParams = []string{
	"password", "token", "secret", "api_key", "apikey", "email", "auth", "identity",
}

// SanitizeQueryString checks if query string contains sensitive parameters
// and returns true if the entire query string should be redacted
func SanitizeQueryString(rawQuery string) bool {
	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
