package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/sentinel/internal/metrics"
	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/BradenHooton/sentinel/pkg/logger"
)

// CounterStore is the TTL key/value store backing login tracking
type CounterStore interface {
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Get(ctx context.Context, key string) (int64, bool, error)
	MarkSeen(ctx context.Context, key string, ttl time.Duration) (alreadySeen bool, err error)
	Delete(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
}

// TrackerConfig holds thresholds and windows for login tracking
type TrackerConfig struct {
	Threshold     int           // failures within FailureWindow that count as brute force
	FailureWindow time.Duration // lifetime of a failure counter, started at the first failure
	SeenIPTTL     time.Duration // how long an identity remembers an IP
}

// DefaultTrackerConfig returns the standard thresholds
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		Threshold:     5,
		FailureWindow: 5 * time.Minute,
		SeenIPTTL:     30 * 24 * time.Hour,
	}
}

// LoginAttemptTracker counts failed logins per IP and identity and remembers
// which IPs each identity has logged in from. Store failures never propagate:
// the tracker fails open and reports nothing suspicious.
type LoginAttemptTracker struct {
	store   CounterStore
	config  TrackerConfig
	metrics *metrics.Registry
	logger  *slog.Logger
}

// NewLoginAttemptTracker creates a new LoginAttemptTracker
func NewLoginAttemptTracker(store CounterStore, config TrackerConfig, m *metrics.Registry, logger *slog.Logger) *LoginAttemptTracker {
	defaults := DefaultTrackerConfig()
	if config.Threshold <= 0 {
		config.Threshold = defaults.Threshold
	}
	if config.FailureWindow <= 0 {
		config.FailureWindow = defaults.FailureWindow
	}
	if config.SeenIPTTL <= 0 {
		config.SeenIPTTL = defaults.SeenIPTTL
	}
	return &LoginAttemptTracker{
		store:   store,
		config:  config,
		metrics: m,
		logger:  logger,
	}
}

// Threshold returns the configured brute-force threshold
func (t *LoginAttemptTracker) Threshold() int {
	return t.config.Threshold
}

func ipFailuresKey(ip string) string {
	return "failed_attempts:ip:" + ip
}

func identityFailuresKey(identity string) string {
	return "failed_attempts:identity:" + identity
}

func seenIPKey(identity, ip string) string {
	return "seen_ip:" + identity + ":" + ip
}

func normalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

// RecordAttempt updates counters for one login outcome. A failure increments
// both the IP and identity counters. A success clears the identity counter
// but leaves the IP counter in place.
func (t *LoginAttemptTracker) RecordAttempt(ctx context.Context, attempt models.LoginAttempt) {
	t.metrics.IncAuthAttempt(attempt.Success)

	identity := normalizeIdentity(attempt.Identity)
	ip := strings.TrimSpace(attempt.IPAddress)

	if attempt.Success {
		if identity == "" {
			return
		}
		if err := t.store.Delete(ctx, identityFailuresKey(identity)); err != nil {
			t.storeError("delete", err, identity, ip)
		}
		return
	}

	if ip != "" {
		if _, err := t.store.Increment(ctx, ipFailuresKey(ip), t.config.FailureWindow); err != nil {
			t.storeError("increment", err, identity, ip)
		}
	}
	if identity != "" {
		if _, err := t.store.Increment(ctx, identityFailuresKey(identity), t.config.FailureWindow); err != nil {
			t.storeError("increment", err, identity, ip)
		}
	}
}

// CheckBruteForce reports whether ip has reached the failure threshold
func (t *LoginAttemptTracker) CheckBruteForce(ctx context.Context, ip string) bool {
	return t.count(ctx, ipFailuresKey(strings.TrimSpace(ip))) >= int64(t.config.Threshold)
}

// CheckSuspiciousActivity evaluates all signals for a sighting of identity
// at ip. The first sighting of an ip for an identity reports NewIP and
// records the ip as known; later sightings refresh it.
func (t *LoginAttemptTracker) CheckSuspiciousActivity(ctx context.Context, identity, ip string) models.SuspicionReport {
	return t.evaluate(ctx, identity, ip, true)
}

// FailureSignals evaluates counters without recording ip as known
func (t *LoginAttemptTracker) FailureSignals(ctx context.Context, identity, ip string) models.SuspicionReport {
	return t.evaluate(ctx, identity, ip, false)
}

func (t *LoginAttemptTracker) evaluate(ctx context.Context, identity, ip string, markSeen bool) models.SuspicionReport {
	identity = normalizeIdentity(identity)
	ip = strings.TrimSpace(ip)

	var report models.SuspicionReport
	if ip != "" {
		report.IPFailedAttempts = int(t.count(ctx, ipFailuresKey(ip)))
	}
	if identity != "" {
		report.IdentityFailedAttempts = int(t.count(ctx, identityFailuresKey(identity)))
	}
	report.BruteForce = report.IPFailedAttempts >= t.config.Threshold
	report.MultipleFailedLogins = report.IdentityFailedAttempts >= t.config.Threshold

	if markSeen && identity != "" && ip != "" {
		alreadySeen, err := t.store.MarkSeen(ctx, seenIPKey(identity, ip), t.config.SeenIPTTL)
		if err != nil {
			t.storeError("mark_seen", err, identity, ip)
		} else {
			report.NewIP = !alreadySeen
		}
	}

	return report
}

// count reads a counter; missing keys and store errors both read as zero
func (t *LoginAttemptTracker) count(ctx context.Context, key string) int64 {
	n, ok, err := t.store.Get(ctx, key)
	if err != nil {
		t.storeError("get", err, "", "")
		return 0
	}
	if !ok {
		return 0
	}
	return n
}

func (t *LoginAttemptTracker) storeError(op string, err error, identity, ip string) {
	t.metrics.IncCounterStoreError(op)

	attrs := []any{slog.String("operation", op), slog.Any("error", err)}
	if identity != "" {
		attrs = append(attrs, slog.String("identity", logger.MaskIdentity(identity)))
	}
	if ip != "" {
		attrs = append(attrs, slog.String("ip_address", ip))
	}
	t.logger.Warn("counter store unavailable, failing open", attrs...)
}
