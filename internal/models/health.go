package models

import "time"

// HealthStatus is the state of a component or of the whole system
type HealthStatus string

const (
	HealthOK       HealthStatus = "ok"
	HealthDegraded HealthStatus = "degraded"
	HealthDown     HealthStatus = "down"
)

func (s HealthStatus) severity() int {
	switch s {
	case HealthOK:
		return 0
	case HealthDegraded:
		return 1
	default:
		return 2
	}
}

// Worse returns the more severe of two statuses
func (s HealthStatus) Worse(other HealthStatus) HealthStatus {
	if other.severity() > s.severity() {
		return other
	}
	return s
}

// GaugeValue maps the status onto the health_component_status gauge (1 ok, 0.5 degraded, 0 down)
func (s HealthStatus) GaugeValue() float64 {
	switch s {
	case HealthOK:
		return 1
	case HealthDegraded:
		return 0.5
	default:
		return 0
	}
}

// HealthCheckResult is one probe outcome. Never mutated after creation.
type HealthCheckResult struct {
	Component string       `json:"component"`
	Status    HealthStatus `json:"status"`
	LatencyMs float64      `json:"latency_ms"`
	Message   string       `json:"message,omitempty"`
	CheckedAt time.Time    `json:"checked_at"`
}

// SystemInfo describes the host in detailed health output. Host identifiers
// such as hostname and kernel build are left out.
type SystemInfo struct {
	OS            string `json:"os"`
	Platform      string `json:"platform,omitempty"`
	CPUCores      int    `json:"cpu_cores"`
	UptimeSeconds uint64 `json:"uptime_seconds"`
	GoVersion     string `json:"go_version"`
	Goroutines    int    `json:"goroutines"`
}

// HealthReport is the composite view returned by the aggregator
type HealthReport struct {
	Status     HealthStatus        `json:"status"`
	CheckedAt  time.Time           `json:"checked_at"`
	Components []HealthCheckResult `json:"components,omitempty"`
	System     *SystemInfo         `json:"system,omitempty"`
}
