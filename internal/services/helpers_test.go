package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// MockCounterStore implements CounterStore for testing
type MockCounterStore struct {
	IncrementFunc func(ctx context.Context, key string, ttl time.Duration) (int64, error)
	GetFunc       func(ctx context.Context, key string) (int64, bool, error)
	MarkSeenFunc  func(ctx context.Context, key string, ttl time.Duration) (bool, error)
	DeleteFunc    func(ctx context.Context, keys ...string) error
	PingFunc      func(ctx context.Context) error
}

func (m *MockCounterStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if m.IncrementFunc != nil {
		return m.IncrementFunc(ctx, key, ttl)
	}
	return 1, nil
}

func (m *MockCounterStore) Get(ctx context.Context, key string) (int64, bool, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	return 0, false, nil
}

func (m *MockCounterStore) MarkSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if m.MarkSeenFunc != nil {
		return m.MarkSeenFunc(ctx, key, ttl)
	}
	return true, nil
}

func (m *MockCounterStore) Delete(ctx context.Context, keys ...string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, keys...)
	}
	return nil
}

func (m *MockCounterStore) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

// MockPool implements PoolPinger with fixed pool statistics
type MockPool struct {
	PingFunc            func(ctx context.Context) error
	Acquired, Idle, Max int32
}

func (m *MockPool) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

func (m *MockPool) PoolStats() (acquired, idle, maxConns int32) {
	return m.Acquired, m.Idle, m.Max
}

// MockChannel implements Channel for testing and records delivered alerts
type MockChannel struct {
	NameValue string
	SendFunc  func(ctx context.Context, alert models.Alert) error

	mu   sync.Mutex
	sent []models.Alert
	hits int
}

func (m *MockChannel) Name() string {
	if m.NameValue == "" {
		return "mock"
	}
	return m.NameValue
}

func (m *MockChannel) Send(ctx context.Context, alert models.Alert) error {
	m.mu.Lock()
	m.hits++
	m.mu.Unlock()

	if m.SendFunc != nil {
		if err := m.SendFunc(ctx, alert); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.sent = append(m.sent, alert)
	m.mu.Unlock()
	return nil
}

// Sent returns alerts delivered successfully
func (m *MockChannel) Sent() []models.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Alert(nil), m.sent...)
}

// Attempts returns the number of Send calls
func (m *MockChannel) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits
}

// recordingNotifier implements AlertNotifier and keeps every dispatched alert
type recordingNotifier struct {
	mu     sync.Mutex
	alerts []models.Alert
}

func (n *recordingNotifier) Dispatch(alert models.Alert) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return true
}

func (n *recordingNotifier) Dispatched() []models.Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.Alert(nil), n.alerts...)
}

// staticProbe implements Probe with a fixed outcome
type staticProbe struct {
	name   string
	status models.HealthStatus
	err    error
	delay  time.Duration
	panics bool

	mu    sync.Mutex
	calls int
}

func (p *staticProbe) Name() string { return p.name }

func (p *staticProbe) Check(ctx context.Context) (models.HealthStatus, string, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	if p.panics {
		panic("probe exploded")
	}
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return models.HealthDown, "", ctx.Err()
		}
	}
	return p.status, "", p.err
}

func (p *staticProbe) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
