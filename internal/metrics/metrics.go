// Package metrics owns the service's Prometheus registry.
package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/BradenHooton/sentinel/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// Metric names
const (
	HTTPRequestsTotal          = "http_requests_total"
	HTTPRequestDurationSeconds = "http_request_duration_seconds"
	AuthAttemptsTotal          = "auth_attempts_total"
	ActiveSessionsCount        = "active_sessions_count"
	SecurityEventsTotal        = "security_events_total"
	FileUploadsTotal           = "file_uploads_total"
	NotificationsSentTotal     = "notifications_sent_total"
	NotificationsDroppedTotal  = "notifications_dropped_total"
	CounterStoreErrorsTotal    = "counter_store_errors_total"
	HealthComponentStatus      = "health_component_status"
	HealthProbeDurationSeconds = "health_probe_duration_seconds"
	DatabaseConnections        = "database_connections"
)

// Registry holds every collector the service exposes. All methods are safe
// for concurrent use.
type Registry struct {
	reg *prometheus.Registry

	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	authAttempts     *prometheus.CounterVec
	activeSessions   prometheus.Gauge
	securityEvents   *prometheus.CounterVec
	fileUploads      *prometheus.CounterVec
	notifySent       *prometheus.CounterVec
	notifyDropped    *prometheus.CounterVec
	storeErrors      *prometheus.CounterVec
	componentStatus  *prometheus.GaugeVec
	probeDuration    *prometheus.HistogramVec
	dbConnections    *prometheus.GaugeVec
	collectorsByName map[string]prometheus.Collector
}

// New creates a registry with the service metrics plus Go and process collectors
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: HTTPRequestsTotal,
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    HTTPRequestDurationSeconds,
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: AuthAttemptsTotal,
			Help: "Authentication attempts by outcome",
		}, []string{"result"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: ActiveSessionsCount,
			Help: "Active sessions reported by the host application",
		}),
		securityEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: SecurityEventsTotal,
			Help: "Security alerts raised by type",
		}, []string{"event_type"}),
		fileUploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: FileUploadsTotal,
			Help: "File uploads inspected by outcome",
		}, []string{"result"}),
		notifySent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: NotificationsSentTotal,
			Help: "Notification deliveries by channel and status",
		}, []string{"channel", "status"}),
		notifyDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: NotificationsDroppedTotal,
			Help: "Notifications dropped before delivery",
		}, []string{"channel", "reason"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: CounterStoreErrorsTotal,
			Help: "Counter store operations that failed",
		}, []string{"operation"}),
		componentStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: HealthComponentStatus,
			Help: "Component health (1 ok, 0.5 degraded, 0 down)",
		}, []string{"component"}),
		probeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    HealthProbeDurationSeconds,
			Help:    "Health probe latency in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"component"}),
		dbConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: DatabaseConnections,
			Help: "Database pool connections by state",
		}, []string{"state"}),
	}

	r.collectorsByName = map[string]prometheus.Collector{
		HTTPRequestsTotal:          r.httpRequests,
		HTTPRequestDurationSeconds: r.httpDuration,
		AuthAttemptsTotal:          r.authAttempts,
		ActiveSessionsCount:        r.activeSessions,
		SecurityEventsTotal:        r.securityEvents,
		FileUploadsTotal:           r.fileUploads,
		NotificationsSentTotal:     r.notifySent,
		NotificationsDroppedTotal:  r.notifyDropped,
		CounterStoreErrorsTotal:    r.storeErrors,
		HealthComponentStatus:      r.componentStatus,
		HealthProbeDurationSeconds: r.probeDuration,
		DatabaseConnections:        r.dbConnections,
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, c := range r.collectorsByName {
		r.reg.MustRegister(c)
	}

	return r
}

// Gatherer exposes the underlying registry, mainly for tests
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Observe records value against a named metric. Counters add value, gauges
// are set to it and histograms observe it. Unknown names and label sets that
// do not match the metric return an error.
func (r *Registry) Observe(name string, labels map[string]string, value float64) error {
	c, ok := r.collectorsByName[name]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrUnknownMetric, name)
	}

	switch m := c.(type) {
	case *prometheus.CounterVec:
		if value < 0 {
			return fmt.Errorf("%w: counter %s cannot decrease", models.ErrBadRequest, name)
		}
		counter, err := m.GetMetricWith(prometheus.Labels(labels))
		if err != nil {
			return fmt.Errorf("%w: %v", models.ErrBadRequest, err)
		}
		counter.Add(value)
	case *prometheus.GaugeVec:
		gauge, err := m.GetMetricWith(prometheus.Labels(labels))
		if err != nil {
			return fmt.Errorf("%w: %v", models.ErrBadRequest, err)
		}
		gauge.Set(value)
	case prometheus.Gauge:
		if len(labels) > 0 {
			return fmt.Errorf("%w: %s takes no labels", models.ErrBadRequest, name)
		}
		m.Set(value)
	case *prometheus.HistogramVec:
		hist, err := m.GetMetricWith(prometheus.Labels(labels))
		if err != nil {
			return fmt.Errorf("%w: %v", models.ErrBadRequest, err)
		}
		hist.Observe(value)
	default:
		return fmt.Errorf("%w: %s", models.ErrUnknownMetric, name)
	}
	return nil
}

// Render produces the Prometheus text exposition of a gathered snapshot
func (r *Registry) Render() (string, error) {
	families, err := r.reg.Gather()
	if err != nil {
		return "", fmt.Errorf("gather metrics: %w", err)
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return "", fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return buf.String(), nil
}

// Handler serves the registry over HTTP
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) ObserveHTTPRequest(method, endpoint string, status int, elapsed time.Duration) {
	endpoint = SanitizeEndpoint(endpoint)
	r.httpRequests.WithLabelValues(method, endpoint, fmt.Sprintf("%d", status)).Inc()
	r.httpDuration.WithLabelValues(method, endpoint).Observe(elapsed.Seconds())
}

func (r *Registry) IncAuthAttempt(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	r.authAttempts.WithLabelValues(result).Inc()
}

func (r *Registry) SetActiveSessions(n float64) {
	r.activeSessions.Set(n)
}

func (r *Registry) IncSecurityEvent(t models.AlertType) {
	r.securityEvents.WithLabelValues(string(t)).Inc()
}

func (r *Registry) IncFileUpload(result string) {
	r.fileUploads.WithLabelValues(result).Inc()
}

func (r *Registry) IncNotificationSent(channel, status string) {
	r.notifySent.WithLabelValues(channel, status).Inc()
}

func (r *Registry) IncNotificationDropped(channel, reason string) {
	r.notifyDropped.WithLabelValues(channel, reason).Inc()
}

func (r *Registry) IncCounterStoreError(operation string) {
	r.storeErrors.WithLabelValues(operation).Inc()
}

func (r *Registry) ObserveHealthProbe(component string, status models.HealthStatus, elapsed time.Duration) {
	r.componentStatus.WithLabelValues(component).Set(status.GaugeValue())
	r.probeDuration.WithLabelValues(component).Observe(elapsed.Seconds())
}

// SetDatabaseConnections records pool usage. State is acquired, idle or max.
func (r *Registry) SetDatabaseConnections(acquired, idle, maxConns int32) {
	r.dbConnections.WithLabelValues("acquired").Set(float64(acquired))
	r.dbConnections.WithLabelValues("idle").Set(float64(idle))
	r.dbConnections.WithLabelValues("max").Set(float64(maxConns))
}

var (
	uuidSegment    = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	numericSegment = regexp.MustCompile(`^[0-9]+$`)
)

// SanitizeEndpoint keeps label cardinality bounded: numeric and UUID path
// segments become {id} and email-looking segments are masked.
func SanitizeEndpoint(path string) string {
	if path == "" {
		return "/"
	}
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}

	segments := strings.Split(path, "/")
	for i, seg := range segments {
		switch {
		case seg == "":
		case numericSegment.MatchString(seg), uuidSegment.MatchString(seg):
			segments[i] = "{id}"
		case strings.Contains(seg, "@"):
			segments[i] = logger.MaskIdentity(seg)
		}
	}
	return strings.Join(segments, "/")
}
