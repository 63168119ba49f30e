package services

import (
	"context"
	"fmt"
	"runtime"

	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
)

// SystemInfoFunc gathers host details for detailed health
type SystemInfoFunc func(ctx context.Context) (*models.SystemInfo, error)

// CollectSystemInfo reads host details through gopsutil. Fields it cannot
// read are left zero and the first error is returned with the partial result.
func CollectSystemInfo(ctx context.Context) (*models.SystemInfo, error) {
	info := &models.SystemInfo{
		OS:         runtime.GOOS,
		CPUCores:   runtime.NumCPU(),
		GoVersion:  runtime.Version(),
		Goroutines: runtime.NumGoroutine(),
	}

	var firstErr error
	if h, err := host.InfoWithContext(ctx); err != nil {
		firstErr = fmt.Errorf("host info: %w", err)
	} else {
		info.Platform = h.Platform
		info.UptimeSeconds = h.Uptime
	}

	if cores, err := cpu.CountsWithContext(ctx, true); err == nil && cores > 0 {
		info.CPUCores = cores
	} else if err != nil && firstErr == nil {
		firstErr = fmt.Errorf("cpu count: %w", err)
	}

	return info, firstErr
}
