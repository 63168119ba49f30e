package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/sentinel/internal/metrics"
	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func highAlert(id string) models.Alert {
	return models.Alert{ID: id, Severity: models.SeverityHigh, Type: models.AlertTypeBruteForce, Message: "test"}
}

func testDispatcherConfig(clk clock.Clock) DispatcherConfig {
	return DispatcherConfig{
		QueueSize:    10,
		SendTimeout:  time.Second,
		RetryBackoff: time.Millisecond,
		RateWindow:   time.Minute,
		Clock:        clk,
	}
}

func TestSlidingWindowLimiter(t *testing.T) {
	clk := clock.NewMock()
	l := NewSlidingWindowLimiter(3, time.Minute, clk)

	assert.True(t, l.Allow())
	clk.Add(20 * time.Second)
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())

	// First event leaves the window
	clk.Add(40 * time.Second)
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())

	assert.True(t, NewSlidingWindowLimiter(0, time.Minute, clk).Allow())
}

func TestDispatcher_RateLimitPerChannel(t *testing.T) {
	clk := clock.NewMock()
	m := metrics.New()
	limited := &MockChannel{NameValue: "email"}
	unlimited := &MockChannel{NameValue: "log"}

	d := NewNotificationDispatcher(testDispatcherConfig(clk), m, testLogger(),
		ChannelRegistration{Channel: limited, RateLimit: 3},
		ChannelRegistration{Channel: unlimited},
	)
	d.Start(context.Background())

	for i := 0; i < 5; i++ {
		assert.True(t, d.Dispatch(highAlert("a")))
	}
	d.Stop()

	assert.Len(t, limited.Sent(), 3)
	assert.Len(t, unlimited.Sent(), 5)

	out, err := m.Render()
	require.NoError(t, err)
	assert.Contains(t, out, `notifications_dropped_total{channel="email",reason="rate_limited"} 2`)
	assert.Contains(t, out, `notifications_sent_total{channel="email",status="success"} 3`)
}

func TestDispatcher_RateLimitCountsDeliveriesNotEnqueues(t *testing.T) {
	clk := clock.NewMock()
	m := metrics.New()
	gate := make(chan struct{})

	var mu sync.Mutex
	var sentAt []time.Time
	ch := &MockChannel{
		NameValue: "email",
		SendFunc: func(ctx context.Context, alert models.Alert) error {
			mu.Lock()
			sentAt = append(sentAt, clk.Now())
			mu.Unlock()
			select {
			case <-gate:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}

	cfg := testDispatcherConfig(clk)
	cfg.SendTimeout = 5 * time.Second
	d := NewNotificationDispatcher(cfg, m, testLogger(), ChannelRegistration{Channel: ch, RateLimit: 3})
	d.Start(context.Background())

	for i := 0; i < 3; i++ {
		require.True(t, d.Dispatch(highAlert("first")))
	}
	require.Eventually(t, func() bool { return ch.Attempts() == 1 }, 2*time.Second, 5*time.Millisecond)

	// The channel is stuck while the next window opens and more alerts queue up
	clk.Add(61 * time.Second)
	for i := 0; i < 3; i++ {
		require.True(t, d.Dispatch(highAlert("second")))
	}

	close(gate)
	d.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sentAt, 4)
	for i := range sentAt {
		inWindow := 0
		for _, ts := range sentAt {
			if !ts.Before(sentAt[i]) && ts.Sub(sentAt[i]) < time.Minute {
				inWindow++
			}
		}
		assert.LessOrEqual(t, inWindow, 3, "deliveries within one minute of %s", sentAt[i])
	}

	out, err := m.Render()
	require.NoError(t, err)
	assert.Contains(t, out, `notifications_dropped_total{channel="email",reason="rate_limited"} 2`)
	assert.Contains(t, out, `notifications_sent_total{channel="email",status="success"} 4`)
}

func TestDispatcher_QueueFullDoesNotSpendRateBudget(t *testing.T) {
	clk := clock.NewMock()
	m := metrics.New()
	gate := make(chan struct{})
	ch := &MockChannel{
		NameValue: "telegram",
		SendFunc: func(ctx context.Context, alert models.Alert) error {
			select {
			case <-gate:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}

	cfg := testDispatcherConfig(clk)
	cfg.QueueSize = 1
	cfg.SendTimeout = 5 * time.Second
	d := NewNotificationDispatcher(cfg, m, testLogger(), ChannelRegistration{Channel: ch, RateLimit: 3})
	d.Start(context.Background())

	require.True(t, d.Dispatch(highAlert("in-flight")))
	require.Eventually(t, func() bool { return ch.Attempts() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.True(t, d.Dispatch(highAlert("queued")))
	for i := 0; i < 5; i++ {
		assert.False(t, d.Dispatch(highAlert("overflow")))
	}

	close(gate)
	require.Eventually(t, func() bool { return len(ch.Sent()) == 2 }, 2*time.Second, 5*time.Millisecond)

	// One slot of the window is still free after the overflow
	require.True(t, d.Dispatch(highAlert("after")))
	d.Stop()

	assert.Len(t, ch.Sent(), 3)
	out, err := m.Render()
	require.NoError(t, err)
	assert.Contains(t, out, `notifications_dropped_total{channel="telegram",reason="queue_full"} 5`)
	assert.NotContains(t, out, `reason="rate_limited"`)
}

func TestDispatcher_TypeCooldownSuppressesRepeats(t *testing.T) {
	clk := clock.NewMock()
	m := metrics.New()
	email := &MockChannel{NameValue: "email"}
	d := NewNotificationDispatcher(testDispatcherConfig(clk), m, testLogger(),
		ChannelRegistration{Channel: email, TypeCooldown: 10 * time.Minute},
	)
	d.Start(context.Background())

	sqli := highAlert("sqli")
	sqli.Type = models.AlertTypeSQLInjectionAttempt

	d.Dispatch(highAlert("brute-1"))
	d.Dispatch(sqli)
	require.Eventually(t, func() bool { return len(email.Sent()) == 2 }, 2*time.Second, 5*time.Millisecond)

	d.Dispatch(highAlert("brute-2"))
	require.Eventually(t, func() bool {
		out, _ := m.Render()
		return strings.Contains(out, `notifications_dropped_total{channel="email",reason="suppressed"} 1`)
	}, 2*time.Second, 5*time.Millisecond)

	clk.Add(10 * time.Minute)
	d.Dispatch(highAlert("brute-3"))
	d.Stop()

	sent := email.Sent()
	require.Len(t, sent, 3)
	assert.Equal(t, "brute-3", sent[2].ID)
}

func TestDispatcher_IgnoresLowSeverity(t *testing.T) {
	ch := &MockChannel{}
	d := NewNotificationDispatcher(testDispatcherConfig(clock.NewMock()), metrics.New(), testLogger(), ChannelRegistration{Channel: ch})
	d.Start(context.Background())

	alert := highAlert("low")
	alert.Severity = models.SeverityMedium
	assert.False(t, d.Dispatch(alert))
	d.Stop()

	assert.Zero(t, ch.Attempts())
}

func TestDispatcher_RetriesOnceThenAbandons(t *testing.T) {
	m := metrics.New()
	failing := &MockChannel{
		NameValue: "telegram",
		SendFunc: func(ctx context.Context, alert models.Alert) error {
			return models.ErrChannelDelivery
		},
	}
	d := NewNotificationDispatcher(testDispatcherConfig(clock.NewMock()), m, testLogger(), ChannelRegistration{Channel: failing})
	d.Start(context.Background())
	d.Dispatch(highAlert("x"))
	d.Stop()

	assert.Equal(t, 2, failing.Attempts())
	out, err := m.Render()
	require.NoError(t, err)
	assert.Contains(t, out, `notifications_sent_total{channel="telegram",status="failure"} 1`)
}

func TestDispatcher_RecoversOnRetry(t *testing.T) {
	calls := 0
	flaky := &MockChannel{
		SendFunc: func(ctx context.Context, alert models.Alert) error {
			calls++
			if calls == 1 {
				return errors.New("temporary")
			}
			return nil
		},
	}
	d := NewNotificationDispatcher(testDispatcherConfig(clock.NewMock()), metrics.New(), testLogger(), ChannelRegistration{Channel: flaky})
	d.Start(context.Background())
	d.Dispatch(highAlert("x"))
	d.Stop()

	assert.Len(t, flaky.Sent(), 1)
	assert.Equal(t, 2, flaky.Attempts())
}

func TestDispatcher_HungChannelDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	hung := &MockChannel{
		NameValue: "hung",
		SendFunc: func(ctx context.Context, alert models.Alert) error {
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
	fast := &MockChannel{NameValue: "fast"}

	cfg := testDispatcherConfig(clock.NewMock())
	cfg.QueueSize = 1
	cfg.SendTimeout = 5 * time.Second
	m := metrics.New()
	d := NewNotificationDispatcher(cfg, m, testLogger(),
		ChannelRegistration{Channel: hung},
		ChannelRegistration{Channel: fast},
	)
	d.Start(context.Background())

	for i := 0; i < 4; i++ {
		start := time.Now()
		d.Dispatch(highAlert("x"))
		assert.Less(t, time.Since(start), 100*time.Millisecond, "dispatch must not block on a hung channel")

		want := i + 1
		assert.Eventually(t, func() bool { return len(fast.Sent()) == want }, 2*time.Second, 5*time.Millisecond)
	}

	close(release)
	d.Stop()

	out, err := m.Render()
	require.NoError(t, err)
	assert.Contains(t, out, `notifications_dropped_total{channel="hung",reason="queue_full"}`)
}

func TestDispatcher_StopDrainsAndRejects(t *testing.T) {
	ch := &MockChannel{}
	d := NewNotificationDispatcher(testDispatcherConfig(clock.NewMock()), metrics.New(), testLogger(), ChannelRegistration{Channel: ch})

	// Queued before Start, delivered once workers run
	d.Dispatch(highAlert("early"))
	d.Start(context.Background())
	d.Stop()
	d.Stop()

	assert.Len(t, ch.Sent(), 1)
	assert.False(t, d.Dispatch(highAlert("late")))
}
