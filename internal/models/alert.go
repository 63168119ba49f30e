package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// AlertSeverity ranks how urgently an alert needs attention
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// Severities lists every severity from least to most urgent
var Severities = []AlertSeverity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Rank orders severities; unknown values rank below low.
func (s AlertSeverity) Rank() int {
	for i, sev := range Severities {
		if sev == s {
			return i + 1
		}
	}
	return 0
}

// Notifiable reports whether alerts of this severity go out to notification channels
func (s AlertSeverity) Notifiable() bool {
	return s.Rank() >= SeverityHigh.Rank()
}

// ParseSeverity accepts any casing of a known severity
func ParseSeverity(value string) (AlertSeverity, error) {
	sev := AlertSeverity(strings.ToLower(strings.TrimSpace(value)))
	if sev.Rank() == 0 {
		return "", fmt.Errorf("%w: unknown severity %q", ErrBadRequest, value)
	}
	return sev, nil
}

// AlertType classifies the detected security event
type AlertType string

const (
	AlertTypeBruteForce           AlertType = "brute_force"
	AlertTypeNewIPLogin           AlertType = "new_ip_login"
	AlertTypeMultipleFailedLogins AlertType = "multiple_failed_logins"
	AlertTypeSuspiciousUpload     AlertType = "suspicious_upload"
	AlertTypeSQLInjectionAttempt  AlertType = "sql_injection_attempt"
	AlertTypeXSSAttempt           AlertType = "xss_attempt"
	AlertTypePrivilegeEscalation  AlertType = "privilege_escalation"
	AlertTypeAccountLockout       AlertType = "account_lockout"
)

// AlertTypes lists every known alert type
var AlertTypes = []AlertType{
	AlertTypeBruteForce,
	AlertTypeNewIPLogin,
	AlertTypeMultipleFailedLogins,
	AlertTypeSuspiciousUpload,
	AlertTypeSQLInjectionAttempt,
	AlertTypeXSSAttempt,
	AlertTypePrivilegeEscalation,
	AlertTypeAccountLockout,
}

// ParseAlertType accepts any casing of a known alert type
func ParseAlertType(value string) (AlertType, error) {
	t := AlertType(strings.ToLower(strings.TrimSpace(value)))
	for _, known := range AlertTypes {
		if known == t {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown alert type %q", ErrBadRequest, value)
}

// Title renders the type for humans ("brute_force" -> "Brute Force")
func (t AlertType) Title() string {
	words := strings.Split(string(t), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		switch w {
		case "ip", "sql", "xss":
			words[i] = strings.ToUpper(w)
		default:
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// Alert is a security alert held in the in-memory ledger
type Alert struct {
	ID         string        `json:"id"`
	Severity   AlertSeverity `json:"severity"`
	Type       AlertType     `json:"type"`
	Message    string        `json:"message"`
	CreatedAt  time.Time     `json:"created_at"`
	UserID     *string       `json:"user_id,omitempty"`
	IPAddress  *string       `json:"ip_address,omitempty"`
	Details    Details       `json:"details"`
	Resolved   bool          `json:"resolved"`
	ResolvedBy *string       `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty"`

	// DedupKey identifies the subject (ip, identity) an alert was raised for
	DedupKey string `json:"-"`
}

// Clone returns a deep copy so callers never share mutable state with the ledger
func (a Alert) Clone() Alert {
	out := a
	out.UserID = cloneString(a.UserID)
	out.IPAddress = cloneString(a.IPAddress)
	out.ResolvedBy = cloneString(a.ResolvedBy)
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		out.ResolvedAt = &t
	}
	out.Details = a.Details.Clone()
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StringPtr returns nil for empty strings
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// AlertFilter narrows an alert listing. Nil fields are not applied.
type AlertFilter struct {
	Limit    int
	Severity *AlertSeverity
	Type     *AlertType
	Resolved *bool
	Since    *time.Time
}

const (
	DefaultAlertListLimit = 100
	MaxAlertListLimit     = 1000
)

// EffectiveLimit clamps Limit into [1, MaxAlertListLimit]
func (f AlertFilter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultAlertListLimit
	case f.Limit > MaxAlertListLimit:
		return MaxAlertListLimit
	default:
		return f.Limit
	}
}

// Matches reports whether a passes every set filter
func (f AlertFilter) Matches(a *Alert) bool {
	if f.Severity != nil && a.Severity != *f.Severity {
		return false
	}
	if f.Type != nil && a.Type != *f.Type {
		return false
	}
	if f.Resolved != nil && a.Resolved != *f.Resolved {
		return false
	}
	if f.Since != nil && a.CreatedAt.Before(*f.Since) {
		return false
	}
	return true
}

// AlertStats summarises the ledger
type AlertStats struct {
	Total      int                   `json:"total"`
	Unresolved int                   `json:"unresolved"`
	BySeverity map[AlertSeverity]int `json:"by_severity"`
}

// Detail is a single key/value entry of alert context
type Detail struct {
	Key   string
	Value interface{}
}

// Details is an insertion-ordered string->value mapping, encoded as a JSON object
type Details []Detail

// NewDetails builds Details from alternating key, value arguments
func NewDetails(kv ...interface{}) Details {
	d := make(Details, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		d = d.Set(key, kv[i+1])
	}
	return d
}

// Set replaces an existing key in place or appends a new one
func (d Details) Set(key string, value interface{}) Details {
	for i := range d {
		if d[i].Key == key {
			d[i].Value = value
			return d
		}
	}
	return append(d, Detail{Key: key, Value: value})
}

// Get looks up a key
func (d Details) Get(key string) (interface{}, bool) {
	for _, entry := range d {
		if entry.Key == key {
			return entry.Value, true
		}
	}
	return nil, false
}

// Clone copies the entry slice; values are treated as immutable
func (d Details) Clone() Details {
	if d == nil {
		return nil
	}
	out := make(Details, len(d))
	copy(out, d)
	return out
}

// MarshalJSON implements json.Marshaler, preserving key order
func (d Details) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, entry := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(entry.Key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(entry.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal detail %q: %w", entry.Key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler, preserving key order
func (d *Details) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*d = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("%w: details must be a JSON object", ErrBadRequest)
	}

	out := Details{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("%w: details key must be a string", ErrBadRequest)
		}
		var value interface{}
		if err := dec.Decode(&value); err != nil {
			return err
		}
		out = out.Set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*d = out
	return nil
}
