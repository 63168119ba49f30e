package services

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/sentinel/internal/metrics"
	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// Probe checks one component. The aggregator owns timeouts and latency.
type Probe interface {
	Name() string
	Check(ctx context.Context) (models.HealthStatus, string, error)
}

// Pinger is anything with a connectivity check
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to Pinger
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// ConnectivityProbe reports DOWN when the ping fails and DEGRADED when it
// succeeds slower than slowThreshold.
type ConnectivityProbe struct {
	name          string
	pinger        Pinger
	slowThreshold time.Duration
}

func NewConnectivityProbe(name string, pinger Pinger, slowThreshold time.Duration) *ConnectivityProbe {
	return &ConnectivityProbe{name: name, pinger: pinger, slowThreshold: slowThreshold}
}

func (p *ConnectivityProbe) Name() string { return p.name }

func (p *ConnectivityProbe) Check(ctx context.Context) (models.HealthStatus, string, error) {
	start := time.Now()
	if err := p.pinger.Ping(ctx); err != nil {
		return models.HealthDown, "", err
	}
	if elapsed := time.Since(start); p.slowThreshold > 0 && elapsed > p.slowThreshold {
		return models.HealthDegraded, fmt.Sprintf("slow response (%dms)", elapsed.Milliseconds()), nil
	}
	return models.HealthOK, "", nil
}

// PoolPinger is a database handle that also reports pool usage
type PoolPinger interface {
	Pinger
	PoolStats() (acquired, idle, maxConns int32)
}

// DatabaseProbe checks connectivity like ConnectivityProbe and publishes pool
// usage to the database_connections gauge on every run.
type DatabaseProbe struct {
	conn    *ConnectivityProbe
	db      PoolPinger
	metrics *metrics.Registry
}

func NewDatabaseProbe(db PoolPinger, slowThreshold time.Duration, m *metrics.Registry) *DatabaseProbe {
	return &DatabaseProbe{
		conn:    NewConnectivityProbe("database", db, slowThreshold),
		db:      db,
		metrics: m,
	}
}

func (p *DatabaseProbe) Name() string { return p.conn.Name() }

func (p *DatabaseProbe) Check(ctx context.Context) (models.HealthStatus, string, error) {
	status, msg, err := p.conn.Check(ctx)

	acquired, idle, maxConns := p.db.PoolStats()
	if p.metrics != nil {
		p.metrics.SetDatabaseConnections(acquired, idle, maxConns)
	}
	usage := fmt.Sprintf("%d/%d connections in use", acquired, maxConns)
	if msg == "" {
		msg = usage
	} else {
		msg = msg + ", " + usage
	}
	return status, msg, err
}

// DiskUsageFunc matches disk.UsageWithContext
type DiskUsageFunc func(ctx context.Context, path string) (*disk.UsageStat, error)

// DiskProbe reports DEGRADED when free space drops below minFreePercent
type DiskProbe struct {
	path           string
	minFreePercent float64
	usage          DiskUsageFunc
}

func NewDiskProbe(path string, minFreePercent float64) *DiskProbe {
	return &DiskProbe{path: path, minFreePercent: minFreePercent, usage: disk.UsageWithContext}
}

// WithUsage replaces the usage source; used by tests
func (p *DiskProbe) WithUsage(fn DiskUsageFunc) *DiskProbe {
	p.usage = fn
	return p
}

func (p *DiskProbe) Name() string { return "disk" }

func (p *DiskProbe) Check(ctx context.Context) (models.HealthStatus, string, error) {
	stat, err := p.usage(ctx, p.path)
	if err != nil {
		return models.HealthDown, "", fmt.Errorf("disk usage %s: %w", p.path, err)
	}
	if stat.Total == 0 {
		return models.HealthDown, "", fmt.Errorf("disk usage %s: zero capacity reported", p.path)
	}

	free := float64(stat.Free) / float64(stat.Total) * 100
	msg := fmt.Sprintf("%.1f%% free", free)
	if free < p.minFreePercent {
		return models.HealthDegraded, msg, nil
	}
	return models.HealthOK, msg, nil
}

// MemoryStatFunc matches mem.VirtualMemoryWithContext
type MemoryStatFunc func(ctx context.Context) (*mem.VirtualMemoryStat, error)

// MemoryProbe reports DEGRADED when available memory drops below minAvailablePercent
type MemoryProbe struct {
	minAvailablePercent float64
	stat                MemoryStatFunc
}

func NewMemoryProbe(minAvailablePercent float64) *MemoryProbe {
	return &MemoryProbe{minAvailablePercent: minAvailablePercent, stat: mem.VirtualMemoryWithContext}
}

// WithStat replaces the memory source; used by tests
func (p *MemoryProbe) WithStat(fn MemoryStatFunc) *MemoryProbe {
	p.stat = fn
	return p
}

func (p *MemoryProbe) Name() string { return "memory" }

func (p *MemoryProbe) Check(ctx context.Context) (models.HealthStatus, string, error) {
	vm, err := p.stat(ctx)
	if err != nil {
		return models.HealthDown, "", fmt.Errorf("virtual memory: %w", err)
	}
	if vm.Total == 0 {
		return models.HealthDown, "", fmt.Errorf("virtual memory: zero total reported")
	}

	available := float64(vm.Available) / float64(vm.Total) * 100
	msg := fmt.Sprintf("%.1f%% available", available)
	if available < p.minAvailablePercent {
		return models.HealthDegraded, msg, nil
	}
	return models.HealthOK, msg, nil
}
