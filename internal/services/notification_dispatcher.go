package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/sentinel/internal/metrics"
	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
)

// Channel delivers a single alert to an external destination
type Channel interface {
	Name() string
	Send(ctx context.Context, alert models.Alert) error
}

// ChannelRegistration binds a channel to its rate limit (sends per RateWindow).
// A positive TypeCooldown suppresses repeats of an alert type delivered
// within that long.
type ChannelRegistration struct {
	Channel      Channel
	RateLimit    int
	TypeCooldown time.Duration
}

// DispatcherConfig holds delivery settings shared by every channel
type DispatcherConfig struct {
	QueueSize    int
	SendTimeout  time.Duration
	RetryBackoff time.Duration
	RateWindow   time.Duration
	Clock        clock.Clock
}

// Drop reasons reported on notifications_dropped_total
const (
	DropRateLimited = "rate_limited"
	DropQueueFull   = "queue_full"
	DropStopped     = "stopped"
	DropSuppressed  = "suppressed"
)

type lane struct {
	channel Channel
	limiter *SlidingWindowLimiter
	queue   chan models.Alert

	// owned by the lane worker
	cooldown time.Duration
	lastSent map[models.AlertType]time.Time
}

func (l *lane) suppressed(alert models.Alert, now time.Time) bool {
	if l.cooldown <= 0 {
		return false
	}
	last, ok := l.lastSent[alert.Type]
	return ok && now.Sub(last) < l.cooldown
}

// NotificationDispatcher fans HIGH and CRITICAL alerts out to channels.
// Every channel has its own limiter, queue and worker, so a slow or failing
// channel never delays another channel or the caller.
type NotificationDispatcher struct {
	lanes   []*lane
	config  DispatcherConfig
	metrics *metrics.Registry
	logger  *slog.Logger

	mu      sync.RWMutex
	started bool
	stopped bool
	wg      sync.WaitGroup
}

// NewNotificationDispatcher creates a dispatcher. Workers start with Start.
func NewNotificationDispatcher(config DispatcherConfig, m *metrics.Registry, logger *slog.Logger, channels ...ChannelRegistration) *NotificationDispatcher {
	if config.QueueSize <= 0 {
		config.QueueSize = 100
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = 10 * time.Second
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = 2 * time.Second
	}
	if config.RateWindow <= 0 {
		config.RateWindow = time.Minute
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}

	d := &NotificationDispatcher{
		config:  config,
		metrics: m,
		logger:  logger,
	}
	for _, reg := range channels {
		if reg.Channel == nil {
			continue
		}
		d.lanes = append(d.lanes, &lane{
			channel: reg.Channel,
			limiter:  NewSlidingWindowLimiter(reg.RateLimit, config.RateWindow, config.Clock),
			queue:    make(chan models.Alert, config.QueueSize),
			cooldown: reg.TypeCooldown,
			lastSent: make(map[models.AlertType]time.Time),
		})
	}
	return d
}

// Channels lists registered channel names
func (d *NotificationDispatcher) Channels() []string {
	names := make([]string, len(d.lanes))
	for i, l := range d.lanes {
		names[i] = l.channel.Name()
	}
	return names
}

// Start launches one worker per channel. Cancelling ctx aborts in-flight sends.
func (d *NotificationDispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true

	for _, l := range d.lanes {
		d.wg.Add(1)
		go d.work(ctx, l)
	}
	d.logger.Info("notification dispatcher started", slog.Any("channels", d.Channels()))
}

// Stop stops accepting alerts and waits for queued deliveries to finish
func (d *NotificationDispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	for _, l := range d.lanes {
		close(l.queue)
	}
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info("notification dispatcher stopped")
}

// Dispatch enqueues alert on every channel that has queue capacity. It never
// blocks and reports whether at least one channel accepted the alert.
// Alerts below HIGH are ignored. Rate limits apply at delivery time.
func (d *NotificationDispatcher) Dispatch(alert models.Alert) bool {
	if !alert.Severity.Notifiable() {
		return false
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	accepted := false
	for _, l := range d.lanes {
		name := l.channel.Name()
		if d.stopped {
			d.drop(name, DropStopped, alert)
			continue
		}
		select {
		case l.queue <- alert.Clone():
			accepted = true
		default:
			d.drop(name, DropQueueFull, alert)
		}
	}
	return accepted
}

func (d *NotificationDispatcher) drop(channel, reason string, alert models.Alert) {
	d.metrics.IncNotificationDropped(channel, reason)
	d.logger.Warn("notification dropped",
		slog.String("channel", channel),
		slog.String("reason", reason),
		slog.String("alert_id", alert.ID))
}

func (d *NotificationDispatcher) work(ctx context.Context, l *lane) {
	defer d.wg.Done()
	for alert := range l.queue {
		if l.suppressed(alert, d.config.Clock.Now()) {
			d.drop(l.channel.Name(), DropSuppressed, alert)
			continue
		}
		// The window counts sends, so a backlog cannot burst past the limit
		if !l.limiter.Allow() {
			d.drop(l.channel.Name(), DropRateLimited, alert)
			continue
		}
		if d.deliver(ctx, l.channel, alert) && l.cooldown > 0 {
			l.lastSent[alert.Type] = d.config.Clock.Now()
		}
	}
}

// deliver sends with a per-attempt timeout, retrying once after a backoff.
// It reports whether the alert was delivered.
func (d *NotificationDispatcher) deliver(ctx context.Context, ch Channel, alert models.Alert) (delivered bool) {
	defer func() {
		if r := recover(); r != nil {
			delivered = false
			d.metrics.IncNotificationSent(ch.Name(), "failure")
			d.logger.Error("notification channel panicked",
				slog.String("channel", ch.Name()),
				slog.Any("panic", r))
		}
	}()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.config.RetryBackoff
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	attempt := 0
	op := func() error {
		attempt++
		sendCtx, cancel := context.WithTimeout(ctx, d.config.SendTimeout)
		defer cancel()
		err := ch.Send(sendCtx, alert)
		if err != nil && errors.Is(sendCtx.Err(), context.DeadlineExceeded) {
			return errors.Join(models.ErrChannelDelivery, err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		d.logger.Warn("notification failed, retrying",
			slog.String("channel", ch.Name()),
			slog.String("alert_id", alert.ID),
			slog.Duration("retry_in", wait),
			slog.Any("error", err))
	}

	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(b, 1), ctx), notify)
	if err != nil {
		d.metrics.IncNotificationSent(ch.Name(), "failure")
		d.logger.Error("notification abandoned",
			slog.String("channel", ch.Name()),
			slog.String("alert_id", alert.ID),
			slog.Int("attempts", attempt),
			slog.Any("error", err))
		return false
	}

	d.metrics.IncNotificationSent(ch.Name(), "success")
	d.logger.Debug("notification delivered",
		slog.String("channel", ch.Name()),
		slog.String("alert_id", alert.ID))
	return true
}
