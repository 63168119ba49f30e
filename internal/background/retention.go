package background

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Pruner drops aged records and reports how many were removed
type Pruner interface {
	Prune() int
}

// RetentionManager periodically prunes the alert ledger so aged alerts leave
// even when no new alerts are created
type RetentionManager struct {
	pruner   Pruner
	logger   *slog.Logger
	interval time.Duration
	clock    clock.Clock
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRetentionManager creates a new retention manager
func NewRetentionManager(pruner Pruner, logger *slog.Logger, interval time.Duration, clk clock.Clock) *RetentionManager {
	if interval <= 0 {
		interval = time.Minute
	}
	if clk == nil {
		clk = clock.New()
	}
	return &RetentionManager{
		pruner:   pruner,
		logger:   logger,
		interval: interval,
		clock:    clk,
		stopCh:   make(chan struct{}),
	}
}

// Start runs until Stop is called or ctx is cancelled
func (rm *RetentionManager) Start(ctx context.Context) {
	ticker := rm.clock.Ticker(rm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rm.runPrune()
		case <-rm.stopCh:
			rm.logger.Info("retention manager stopped")
			return
		case <-ctx.Done():
			rm.logger.Info("retention manager context cancelled")
			return
		}
	}
}

func (rm *RetentionManager) runPrune() {
	if removed := rm.pruner.Prune(); removed > 0 {
		rm.logger.Info("expired alerts pruned", slog.Int("removed", removed))
	}
}

// Stop signals the retention manager to stop
func (rm *RetentionManager) Stop() {
	rm.stopOnce.Do(func() { close(rm.stopCh) })
}
