package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alem-hub/explorer-points/internal/domain/notification"
	"github.com/alem-hub/explorer-points/pkg/circuitbreaker"
)

// DispatcherConfig configures the notification worker pool.
type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
}

// DefaultDispatcherConfig returns the production defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Workers:     4,
		QueueSize:   256,
		SendTimeout: 10 * time.Second,
	}
}

// DispatcherStats counts dispatcher outcomes since start.
type DispatcherStats struct {
	Sent     int64
	Failed   int64
	Rejected int64
	Dropped  int64
}

type job struct {
	learnerID string
	msg       notification.Message
	delivered func(ctx context.Context) error
}

// NotificationDispatcher delivers parent notifications off the award path.
// Send never blocks: a full queue or a stopped dispatcher drops the message
// with a warning. Failures are logged per learner and never reach the caller.
type NotificationDispatcher struct {
	notifier notification.Notifier
	breaker  *circuitbreaker.CircuitBreaker
	config   DispatcherConfig
	logger   *slog.Logger

	mu      sync.RWMutex
	jobs    chan job
	started bool
	closed  bool
	wg      sync.WaitGroup

	sent     atomic.Int64
	failed   atomic.Int64
	rejected atomic.Int64
	dropped  atomic.Int64
}

// NewNotificationDispatcher creates a dispatcher. breaker may be nil.
func NewNotificationDispatcher(notifier notification.Notifier, breaker *circuitbreaker.CircuitBreaker, config DispatcherConfig, logger *slog.Logger) *NotificationDispatcher {
	defaults := DefaultDispatcherConfig()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = defaults.SendTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationDispatcher{
		notifier: notifier,
		breaker:  breaker,
		config:   config,
		logger:   logger.With("component", "notification_dispatcher"),
		jobs:     make(chan job, config.QueueSize),
	}
}

// Start launches the workers. Deliveries run detached from ctx cancellation
// so queued messages still go out while Close drains.
func (d *NotificationDispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true

	base := context.WithoutCancel(ctx)
	for i := 0; i < d.config.Workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for j := range d.jobs {
				d.deliver(base, j)
			}
		}()
	}
	d.logger.Info("notification dispatcher started",
		"workers", d.config.Workers,
		"queue_size", d.config.QueueSize,
	)
}

// Send implements command.NotificationSender.
func (d *NotificationDispatcher) Send(learnerID string, msg notification.Message, delivered func(ctx context.Context) error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(learnerID, msg, "dispatcher closed")
		return
	}
	select {
	case d.jobs <- job{learnerID: learnerID, msg: msg, delivered: delivered}:
	default:
		d.drop(learnerID, msg, "queue full")
	}
}

// Close stops accepting messages and waits for the queue to drain or ctx to end.
func (d *NotificationDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.jobs)
	started := d.started
	d.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.logger.Info("notification dispatcher stopped", "sent", d.sent.Load(), "failed", d.failed.Load())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the counters.
func (d *NotificationDispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Sent:     d.sent.Load(),
		Failed:   d.failed.Load(),
		Rejected: d.rejected.Load(),
		Dropped:  d.dropped.Load(),
	}
}

func (d *NotificationDispatcher) deliver(base context.Context, j job) {
	ctx, cancel := context.WithTimeout(base, d.config.SendTimeout)
	defer cancel()

	send := func(ctx context.Context) error {
		return d.notifier.Notify(ctx, j.learnerID, j.msg)
	}
	var err error
	if d.breaker != nil {
		err = d.breaker.Execute(ctx, send)
	} else {
		err = send(ctx)
	}

	if err != nil {
		if circuitbreaker.IsRejected(err) {
			d.rejected.Add(1)
		} else {
			d.failed.Add(1)
		}
		d.logger.Warn("notification delivery failed",
			"learner_id", j.learnerID,
			"type", j.msg.Type,
			"error", err,
		)
		return
	}

	d.sent.Add(1)
	if j.delivered == nil {
		return
	}
	if err := j.delivered(ctx); err != nil && !errors.Is(err, context.Canceled) {
		d.logger.Warn("failed to record notification delivery",
			"learner_id", j.learnerID,
			"type", j.msg.Type,
			"error", err,
		)
	}
}

func (d *NotificationDispatcher) drop(learnerID string, msg notification.Message, reason string) {
	d.dropped.Add(1)
	d.logger.Warn("notification dropped",
		"learner_id", learnerID,
		"type", msg.Type,
		"reason", reason,
	)
}
