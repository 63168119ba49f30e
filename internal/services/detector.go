package services

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/BradenHooton/sentinel/internal/metrics"
	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/BradenHooton/sentinel/pkg/logger"
)

// AlertRecorder is the subset of the alert ledger the detector writes to
type AlertRecorder interface {
	Create(alert models.Alert) (models.Alert, error)
	CreateUnlessActive(alert models.Alert, key string, window time.Duration) (models.Alert, bool, error)
}

// AlertNotifier accepts alerts for asynchronous delivery. It must not block.
type AlertNotifier interface {
	Dispatch(alert models.Alert) bool
}

// DetectorConfig holds detection policy
type DetectorConfig struct {
	DedupWindow             time.Duration
	AllowedUploadExtensions []string
}

// Detector turns tracker signals and reported events into alerts
type Detector struct {
	tracker  *LoginAttemptTracker
	alerts   AlertRecorder
	notifier AlertNotifier
	metrics  *metrics.Registry
	security *logger.SecurityLogger
	logger   *slog.Logger

	dedupWindow time.Duration
	allowedExts map[string]bool
}

// NewDetector creates a new Detector. notifier may be nil.
func NewDetector(tracker *LoginAttemptTracker, alerts AlertRecorder, notifier AlertNotifier, config DetectorConfig, m *metrics.Registry, log *slog.Logger) *Detector {
	if config.DedupWindow <= 0 {
		config.DedupWindow = DefaultTrackerConfig().FailureWindow
	}
	allowed := make(map[string]bool, len(config.AllowedUploadExtensions))
	for _, ext := range config.AllowedUploadExtensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = true
	}
	return &Detector{
		tracker:     tracker,
		alerts:      alerts,
		notifier:    notifier,
		metrics:     m,
		security:    logger.NewSecurityLogger(log),
		logger:      log,
		dedupWindow: config.DedupWindow,
		allowedExts: allowed,
	}
}

// ProcessLoginAttempt records attempt and raises any alerts it triggers.
// Failed logins never mark the IP as known for the identity.
func (d *Detector) ProcessLoginAttempt(ctx context.Context, attempt models.LoginAttempt) []models.Alert {
	d.tracker.RecordAttempt(ctx, attempt)

	var report models.SuspicionReport
	if attempt.Success {
		report = d.tracker.CheckSuspiciousActivity(ctx, attempt.Identity, attempt.IPAddress)
	} else {
		report = d.tracker.FailureSignals(ctx, attempt.Identity, attempt.IPAddress)
	}

	identity := normalizeIdentity(attempt.Identity)
	masked := logger.MaskIdentity(identity)
	var raised []models.Alert

	if report.BruteForce {
		alert := models.Alert{
			Severity:  models.SeverityHigh,
			Type:      models.AlertTypeBruteForce,
			Message:   fmt.Sprintf("Brute force attack detected from IP %s", attempt.IPAddress),
			UserID:    attempt.UserID,
			IPAddress: models.StringPtr(attempt.IPAddress),
			Details: models.NewDetails(
				"failed_attempts", report.IPFailedAttempts,
				"threshold", d.tracker.Threshold(),
				"identity", masked,
			),
		}
		if a, ok := d.raise(alert, attempt.IPAddress, true); ok {
			raised = append(raised, a)
		}
	}

	if report.MultipleFailedLogins {
		alert := models.Alert{
			Severity:  models.SeverityHigh,
			Type:      models.AlertTypeMultipleFailedLogins,
			Message:   fmt.Sprintf("Multiple failed login attempts for %s", masked),
			UserID:    attempt.UserID,
			IPAddress: models.StringPtr(attempt.IPAddress),
			Details: models.NewDetails(
				"failed_attempts", report.IdentityFailedAttempts,
				"threshold", d.tracker.Threshold(),
				"identity", masked,
			),
		}
		if a, ok := d.raise(alert, identity, true); ok {
			raised = append(raised, a)
		}
	}

	if attempt.Success && report.NewIP {
		alert := models.Alert{
			Severity:  models.SeverityMedium,
			Type:      models.AlertTypeNewIPLogin,
			Message:   fmt.Sprintf("Login from new IP address %s", attempt.IPAddress),
			UserID:    attempt.UserID,
			IPAddress: models.StringPtr(attempt.IPAddress),
			Details: models.NewDetails(
				"identity", masked,
				"login_time", attempt.Timestamp.UTC().Format(time.RFC3339),
			),
		}
		if a, ok := d.raise(alert, "", false); ok {
			raised = append(raised, a)
		}
	}

	return raised
}

// UploadEvent describes a file upload reported by the host application
type UploadEvent struct {
	Filename    string
	ContentType string
	Size        int64
	UserID      *string
	IPAddress   string
}

// UploadVerdict is the outcome of inspecting an upload
type UploadVerdict struct {
	Allowed bool          `json:"allowed"`
	Reasons []string      `json:"reasons,omitempty"`
	Alert   *models.Alert `json:"alert,omitempty"`
}

// executableExtensions may not hide behind a second, allowed extension
var executableExtensions = map[string]bool{
	".exe": true, ".bat": true, ".cmd": true, ".com": true, ".scr": true, ".msi": true, ".dll": true,
	".js": true, ".vbs": true, ".ps1": true, ".sh": true, ".jar": true,
	".php": true, ".phtml": true, ".jsp": true, ".asp": true, ".aspx": true, ".cgi": true, ".py": true,
}

// ReportUpload validates an uploaded file name and raises SUSPICIOUS_UPLOAD if it fails
func (d *Detector) ReportUpload(ctx context.Context, event UploadEvent) UploadVerdict {
	reasons := d.uploadViolations(event.Filename)
	if len(reasons) == 0 {
		d.metrics.IncFileUpload("accepted")
		return UploadVerdict{Allowed: true}
	}
	d.metrics.IncFileUpload("rejected")

	alert := models.Alert{
		Severity:  models.SeverityHigh,
		Type:      models.AlertTypeSuspiciousUpload,
		Message:   fmt.Sprintf("Suspicious file upload rejected: %s", truncate(event.Filename, 100)),
		UserID:    event.UserID,
		IPAddress: models.StringPtr(event.IPAddress),
		Details: models.NewDetails(
			"filename", truncate(event.Filename, 255),
			"content_type", event.ContentType,
			"size", event.Size,
			"reasons", reasons,
		),
	}

	verdict := UploadVerdict{Allowed: false, Reasons: reasons}
	if a, ok := d.raise(alert, "", false); ok {
		verdict.Alert = &a
	}
	return verdict
}

func (d *Detector) uploadViolations(filename string) []string {
	var reasons []string

	name := strings.TrimSpace(filename)
	if name == "" {
		return []string{"empty filename"}
	}
	if strings.Contains(name, "..") || strings.ContainsAny(name, "/\\\x00") {
		reasons = append(reasons, "path traversal in filename")
	}

	base := strings.ToLower(path.Base(strings.ReplaceAll(name, "\\", "/")))
	parts := strings.Split(base, ".")
	ext := ""
	if len(parts) > 1 {
		ext = "." + parts[len(parts)-1]
	}
	if ext == "" || !d.allowedExts[ext] {
		reasons = append(reasons, fmt.Sprintf("extension %q not allowed", ext))
	}
	for _, inner := range parts[1 : max(len(parts)-1, 1)] {
		if executableExtensions["."+inner] {
			reasons = append(reasons, fmt.Sprintf("double extension hides .%s", inner))
			break
		}
	}

	return reasons
}

// PayloadEvent is request data to scan for injection attempts
type PayloadEvent struct {
	Source    string // where the payload came from, e.g. "query" or "body"
	Path      string
	Payload   string
	UserID    *string
	IPAddress string
}

type payloadRule struct {
	alertType models.AlertType
	pattern   *regexp.Regexp
}

var payloadRules = []payloadRule{
	{models.AlertTypeSQLInjectionAttempt, regexp.MustCompile(`(?i)\bunion\b\s+(all\s+)?\bselect\b`)},
	{models.AlertTypeSQLInjectionAttempt, regexp.MustCompile(`(?i)['"]\s*(or|and)\s+['"]?\w+['"]?\s*=\s*['"]?\w+`)},
	{models.AlertTypeSQLInjectionAttempt, regexp.MustCompile(`(?i);\s*(drop|delete|truncate|alter|insert|update)\s+`)},
	{models.AlertTypeSQLInjectionAttempt, regexp.MustCompile(`(?i)\b(drop|truncate)\s+table\b`)},
	{models.AlertTypeSQLInjectionAttempt, regexp.MustCompile(`(?i)\b(sleep|benchmark|pg_sleep)\s*\(|\bwaitfor\s+delay\b`)},
	{models.AlertTypeSQLInjectionAttempt, regexp.MustCompile(`'\s*(--|#|/\*)`)},
	{models.AlertTypeXSSAttempt, regexp.MustCompile(`(?i)<\s*script\b`)},
	{models.AlertTypeXSSAttempt, regexp.MustCompile(`(?i)javascript\s*:`)},
	{models.AlertTypeXSSAttempt, regexp.MustCompile(`(?i)\bon(load|error|click|mouseover|focus|submit)\s*=`)},
	{models.AlertTypeXSSAttempt, regexp.MustCompile(`(?i)<\s*(iframe|object|embed|svg)\b`)},
	{models.AlertTypeXSSAttempt, regexp.MustCompile(`(?i)document\.(cookie|location)`)},
}

// MatchPayload returns the distinct alert types whose patterns match payload
func MatchPayload(payload string) []models.AlertType {
	var found []models.AlertType
	seen := make(map[models.AlertType]bool)
	for _, rule := range payloadRules {
		if seen[rule.alertType] {
			continue
		}
		if rule.pattern.MatchString(payload) {
			seen[rule.alertType] = true
			found = append(found, rule.alertType)
		}
	}
	return found
}

// InspectPayload scans event.Payload for SQL injection and XSS and raises a
// CRITICAL alert per matched type, deduplicated per source IP.
func (d *Detector) InspectPayload(ctx context.Context, event PayloadEvent) []models.Alert {
	var raised []models.Alert
	for _, t := range MatchPayload(event.Payload) {
		alert := models.Alert{
			Severity:  models.SeverityCritical,
			Type:      t,
			Message:   fmt.Sprintf("%s detected from IP %s", t.Title(), event.IPAddress),
			UserID:    event.UserID,
			IPAddress: models.StringPtr(event.IPAddress),
			Details: models.NewDetails(
				"source", event.Source,
				"path", event.Path,
				"payload_preview", truncate(event.Payload, 200),
			),
		}
		if a, ok := d.raise(alert, event.IPAddress, event.IPAddress != ""); ok {
			raised = append(raised, a)
		}
	}
	return raised
}

// SecurityEvent is a security-relevant action reported by the host application
type SecurityEvent struct {
	Type      models.AlertType
	Message   string
	UserID    *string
	IPAddress string
	Details   models.Details
}

// RaiseSecurityEvent records privilege escalation and account lockout
// reports as HIGH alerts, deduplicated per user (or IP when anonymous).
func (d *Detector) RaiseSecurityEvent(ctx context.Context, event SecurityEvent) (models.Alert, bool, error) {
	if event.Type != models.AlertTypePrivilegeEscalation && event.Type != models.AlertTypeAccountLockout {
		return models.Alert{}, false, fmt.Errorf("%w: unsupported security event %q", models.ErrBadRequest, event.Type)
	}

	message := event.Message
	if message == "" {
		message = event.Type.Title() + " reported"
	}
	key := event.IPAddress
	if event.UserID != nil && *event.UserID != "" {
		key = *event.UserID
	}

	alert := models.Alert{
		Severity:  models.SeverityHigh,
		Type:      event.Type,
		Message:   message,
		UserID:    event.UserID,
		IPAddress: models.StringPtr(event.IPAddress),
		Details:   event.Details,
	}
	a, created := d.raise(alert, key, key != "")
	if a.ID == "" {
		return models.Alert{}, false, fmt.Errorf("record %s alert: %w", event.Type, models.ErrStoreUnavailable)
	}
	return a, created, nil
}

// raise stores alert, deduplicating on (type, key) when dedup is set. It
// returns the alert and whether it was newly created. Only new alerts are
// counted, logged and dispatched.
func (d *Detector) raise(alert models.Alert, key string, dedup bool) (models.Alert, bool) {
	var (
		stored  models.Alert
		created = true
		err     error
	)
	if dedup {
		stored, created, err = d.alerts.CreateUnlessActive(alert, key, d.dedupWindow)
	} else {
		stored, err = d.alerts.Create(alert)
	}
	if err != nil {
		d.logger.Error("failed to record alert",
			slog.String("alert_type", string(alert.Type)),
			slog.Any("error", err))
		return models.Alert{}, false
	}
	if !created {
		d.logger.Debug("alert suppressed by active duplicate",
			slog.String("alert_type", string(alert.Type)),
			slog.String("alert_id", stored.ID))
		return stored, false
	}

	d.metrics.IncSecurityEvent(stored.Type)
	d.security.LogAlertCreated(alertEvent(stored))

	if d.notifier != nil && stored.Severity.Notifiable() {
		d.notifier.Dispatch(stored)
	}
	return stored, true
}

func alertEvent(a models.Alert) logger.AlertEvent {
	ev := logger.AlertEvent{
		AlertID:   a.ID,
		AlertType: string(a.Type),
		Severity:  string(a.Severity),
		Message:   a.Message,
	}
	if a.UserID != nil {
		ev.UserID = *a.UserID
	}
	if a.IPAddress != nil {
		ev.IPAddress = *a.IPAddress
	}
	if a.ResolvedBy != nil {
		ev.ResolvedBy = *a.ResolvedBy
	}
	return ev
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
