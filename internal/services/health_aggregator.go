package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/sentinel/internal/metrics"
	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/benbjohnson/clock"
	"golang.org/x/sync/singleflight"
)

// HealthConfig holds aggregator timing
type HealthConfig struct {
	CacheTTL     time.Duration
	ProbeTimeout time.Duration
	Clock        clock.Clock
}

// HealthAggregator runs probes concurrently and caches the composite report.
// Concurrent callers on a cold cache share one probe run.
type HealthAggregator struct {
	probes  []Probe
	config  HealthConfig
	metrics *metrics.Registry
	logger  *slog.Logger
	system  SystemInfoFunc

	group    singleflight.Group
	mu       sync.RWMutex
	cached   *models.HealthReport
	cachedAt time.Time
}

func NewHealthAggregator(config HealthConfig, m *metrics.Registry, logger *slog.Logger, probes ...Probe) *HealthAggregator {
	if config.CacheTTL <= 0 {
		config.CacheTTL = 5 * time.Second
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = 2 * time.Second
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	return &HealthAggregator{
		probes:  probes,
		config:  config,
		metrics: m,
		logger:  logger,
		system:  CollectSystemInfo,
	}
}

// WithSystemInfo replaces the host information source; nil disables it
func (h *HealthAggregator) WithSystemInfo(fn SystemInfoFunc) *HealthAggregator {
	h.system = fn
	return h
}

// Check returns the composite health. detailed includes per-component results.
// ctx only bounds how long this caller waits; probe runs are not tied to it.
func (h *HealthAggregator) Check(ctx context.Context, detailed bool) models.HealthReport {
	report, ok := h.fromCache()
	if !ok {
		ch := h.group.DoChan("health", func() (interface{}, error) {
			if cached, ok := h.fromCache(); ok {
				return cached, nil
			}
			fresh := h.run()
			h.mu.Lock()
			h.cached = &fresh
			h.cachedAt = h.config.Clock.Now()
			h.mu.Unlock()
			return fresh, nil
		})

		select {
		case res := <-ch:
			report = res.Val.(models.HealthReport)
		case <-ctx.Done():
			return models.HealthReport{
				Status:    models.HealthDown,
				CheckedAt: h.config.Clock.Now().UTC(),
			}
		}
	}

	out := models.HealthReport{Status: report.Status, CheckedAt: report.CheckedAt}
	if detailed {
		out.Components = append([]models.HealthCheckResult(nil), report.Components...)
		if report.System != nil {
			info := *report.System
			out.System = &info
		}
	}
	return out
}

func (h *HealthAggregator) fromCache() (models.HealthReport, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.cached == nil || h.config.Clock.Since(h.cachedAt) >= h.config.CacheTTL {
		return models.HealthReport{}, false
	}
	return *h.cached, true
}

func (h *HealthAggregator) run() models.HealthReport {
	results := make([]models.HealthCheckResult, len(h.probes))

	var wg sync.WaitGroup
	for i, p := range h.probes {
		wg.Add(1)
		go func(i int, p Probe) {
			defer wg.Done()
			results[i] = h.probe(p)
		}(i, p)
	}
	wg.Wait()

	status := models.HealthOK
	for _, r := range results {
		status = status.Worse(r.Status)
	}
	return models.HealthReport{
		Status:     status,
		CheckedAt:  h.config.Clock.Now().UTC(),
		Components: results,
		System:     h.systemInfo(),
	}
}

// systemInfo never affects the overall status
func (h *HealthAggregator) systemInfo() *models.SystemInfo {
	if h.system == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.config.ProbeTimeout)
	defer cancel()

	info, err := h.system(ctx)
	if err != nil {
		h.logger.Debug("system info unavailable", slog.Any("error", err))
	}
	return info
}

type probeOutcome struct {
	status  models.HealthStatus
	message string
	err     error
}

// probe runs one probe under its own timeout. Errors, panics and timeouts
// all become DOWN.
func (h *HealthAggregator) probe(p Probe) models.HealthCheckResult {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.ProbeTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan probeOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- probeOutcome{status: models.HealthDown, err: fmt.Errorf("probe panicked: %v", r)}
			}
		}()
		status, msg, err := p.Check(ctx)
		done <- probeOutcome{status: status, message: msg, err: err}
	}()

	var out probeOutcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out = probeOutcome{
			status: models.HealthDown,
			err:    fmt.Errorf("%w after %s", models.ErrProbeTimeout, h.config.ProbeTimeout),
		}
	}
	elapsed := time.Since(start)

	if out.err != nil {
		out.status = models.HealthDown
		out.message = out.err.Error()
		h.logger.Warn("health probe failed",
			slog.String("component", p.Name()),
			slog.Any("error", out.err))
	} else if out.status == "" {
		out.status = models.HealthOK
	}

	h.metrics.ObserveHealthProbe(p.Name(), out.status, elapsed)

	return models.HealthCheckResult{
		Component: p.Name(),
		Status:    out.status,
		LatencyMs: float64(elapsed.Microseconds()) / 1000,
		Message:   out.message,
		CheckedAt: h.config.Clock.Now().UTC(),
	}
}
