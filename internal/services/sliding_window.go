package services

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// SlidingWindowLimiter allows at most limit events in any rolling window.
// A non-positive limit allows everything.
type SlidingWindowLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	clock  clock.Clock
	events []time.Time
}

func NewSlidingWindowLimiter(limit int, window time.Duration, clk clock.Clock) *SlidingWindowLimiter {
	if clk == nil {
		clk = clock.New()
	}
	return &SlidingWindowLimiter{
		limit:  limit,
		window: window,
		clock:  clk,
	}
}

// Allow records an event and reports whether it fits in the window
func (l *SlidingWindowLimiter) Allow() bool {
	if l.limit <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	keep := 0
	for _, t := range l.events {
		if now.Sub(t) < l.window {
			l.events[keep] = t
			keep++
		}
	}
	l.events = l.events[:keep]

	if len(l.events) >= l.limit {
		return false
	}
	l.events = append(l.events, now)
	return true
}
