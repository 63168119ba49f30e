package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/sentinel/internal/metrics"
	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/benbjohnson/clock"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAggregator(clk clock.Clock, probes ...Probe) *HealthAggregator {
	return NewHealthAggregator(HealthConfig{
		CacheTTL:     5 * time.Second,
		ProbeTimeout: 100 * time.Millisecond,
		Clock:        clk,
	}, metrics.New(), testLogger(), probes...).WithSystemInfo(nil)
}

func componentStatus(report models.HealthReport, name string) models.HealthStatus {
	for _, c := range report.Components {
		if c.Component == name {
			return c.Status
		}
	}
	return ""
}

func TestHealthAggregator_WorstStatusWins(t *testing.T) {
	agg := newTestAggregator(clock.NewMock(),
		&staticProbe{name: "database", status: models.HealthOK},
		&staticProbe{name: "disk", status: models.HealthDegraded},
	)

	report := agg.Check(context.Background(), true)
	assert.Equal(t, models.HealthDegraded, report.Status)
	require.Len(t, report.Components, 2)
	assert.Equal(t, models.HealthOK, componentStatus(report, "database"))

	summary := agg.Check(context.Background(), false)
	assert.Equal(t, models.HealthDegraded, summary.Status)
	assert.Empty(t, summary.Components)
}

func TestHealthAggregator_FailuresAreDown(t *testing.T) {
	agg := newTestAggregator(clock.NewMock(),
		&staticProbe{name: "cache", err: errors.New("connection refused")},
		&staticProbe{name: "slow", status: models.HealthOK, delay: time.Second},
		&staticProbe{name: "broken", panics: true},
		&staticProbe{name: "memory", status: models.HealthOK},
	)

	report := agg.Check(context.Background(), true)
	assert.Equal(t, models.HealthDown, report.Status)
	assert.Equal(t, models.HealthDown, componentStatus(report, "cache"))
	assert.Equal(t, models.HealthDown, componentStatus(report, "slow"))
	assert.Equal(t, models.HealthDown, componentStatus(report, "broken"))
	assert.Equal(t, models.HealthOK, componentStatus(report, "memory"))
}

func TestHealthAggregator_CachesWithinTTL(t *testing.T) {
	clk := clock.NewMock()
	probe := &staticProbe{name: "database", status: models.HealthOK}
	agg := newTestAggregator(clk, probe)

	agg.Check(context.Background(), false)
	clk.Add(3 * time.Second)
	agg.Check(context.Background(), true)
	assert.Equal(t, 1, probe.Calls())

	clk.Add(3 * time.Second)
	agg.Check(context.Background(), false)
	assert.Equal(t, 2, probe.Calls())
}

func TestHealthAggregator_ConcurrentCallersShareRun(t *testing.T) {
	probe := &staticProbe{name: "database", status: models.HealthOK, delay: 50 * time.Millisecond}
	agg := newTestAggregator(clock.NewMock(), probe)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			agg.Check(context.Background(), false)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, probe.Calls())
}

func TestHealthAggregator_NoProbesIsOK(t *testing.T) {
	agg := newTestAggregator(clock.NewMock())
	assert.Equal(t, models.HealthOK, agg.Check(context.Background(), true).Status)
}

func TestHealthAggregator_SystemInfoOnlyWhenDetailed(t *testing.T) {
	agg := newTestAggregator(clock.NewMock(), &staticProbe{name: "database", status: models.HealthOK}).
		WithSystemInfo(func(ctx context.Context) (*models.SystemInfo, error) {
			return &models.SystemInfo{OS: "linux", CPUCores: 4, GoVersion: "go1.24"}, errors.New("uptime unavailable")
		})

	detailed := agg.Check(context.Background(), true)
	require.NotNil(t, detailed.System)
	assert.Equal(t, 4, detailed.System.CPUCores)
	assert.Equal(t, models.HealthOK, detailed.Status, "system info errors never change the status")

	assert.Nil(t, agg.Check(context.Background(), false).System)
}

func TestCollectSystemInfo(t *testing.T) {
	info, _ := CollectSystemInfo(context.Background())
	require.NotNil(t, info)
	assert.NotEmpty(t, info.OS)
	assert.NotEmpty(t, info.GoVersion)
	assert.Positive(t, info.CPUCores)
}

func TestDatabaseProbe_ReportsPoolUsage(t *testing.T) {
	m := metrics.New()
	pool := &MockPool{Acquired: 3, Idle: 2, Max: 10}

	status, msg, err := NewDatabaseProbe(pool, time.Second, m).Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.HealthOK, status)
	assert.Equal(t, "3/10 connections in use", msg)

	out, err := m.Render()
	require.NoError(t, err)
	assert.Contains(t, out, `database_connections{state="acquired"} 3`)
	assert.Contains(t, out, `database_connections{state="idle"} 2`)

	pool.PingFunc = func(ctx context.Context) error { return errors.New("refused") }
	status, msg, err = NewDatabaseProbe(pool, time.Second, m).Check(context.Background())
	assert.Error(t, err)
	assert.Equal(t, models.HealthDown, status)
	assert.Contains(t, msg, "connections in use")
}

func TestConnectivityProbe(t *testing.T) {
	ok := NewConnectivityProbe("cache", PingerFunc(func(ctx context.Context) error { return nil }), time.Second)
	status, _, err := ok.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.HealthOK, status)

	slow := NewConnectivityProbe("database", PingerFunc(func(ctx context.Context) error {
		time.Sleep(20 * time.Millisecond)
		return nil
	}), 5*time.Millisecond)
	status, msg, err := slow.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.HealthDegraded, status)
	assert.Contains(t, msg, "slow")

	down := NewConnectivityProbe("database", PingerFunc(func(ctx context.Context) error { return errors.New("refused") }), 0)
	status, _, err = down.Check(context.Background())
	assert.Error(t, err)
	assert.Equal(t, models.HealthDown, status)
}

func TestDiskProbe_Thresholds(t *testing.T) {
	usage := func(free uint64) DiskUsageFunc {
		return func(ctx context.Context, path string) (*disk.UsageStat, error) {
			return &disk.UsageStat{Path: path, Total: 100, Free: free}, nil
		}
	}

	status, _, err := NewDiskProbe("/", 10).WithUsage(usage(50)).Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.HealthOK, status)

	status, msg, err := NewDiskProbe("/", 10).WithUsage(usage(5)).Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.HealthDegraded, status)
	assert.Equal(t, "5.0% free", msg)
}

func TestMemoryProbe_Thresholds(t *testing.T) {
	stat := func(available uint64) MemoryStatFunc {
		return func(ctx context.Context) (*mem.VirtualMemoryStat, error) {
			return &mem.VirtualMemoryStat{Total: 1000, Available: available}, nil
		}
	}

	status, _, err := NewMemoryProbe(20).WithStat(stat(500)).Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.HealthOK, status)

	status, _, err = NewMemoryProbe(20).WithStat(stat(100)).Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.HealthDegraded, status)

	_, _, err = NewMemoryProbe(20).WithStat(func(ctx context.Context) (*mem.VirtualMemoryStat, error) {
		return nil, errors.New("unsupported")
	}).Check(context.Background())
	assert.Error(t, err)
}
