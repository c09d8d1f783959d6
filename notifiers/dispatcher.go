// notifiers/dispatcher.go
package notifiers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"netpoller/alerting"
)

// Dispatcher defaults
const (
	DefaultQueueSize     = 100
	DefaultWorkers       = 2
	DefaultNotifyTimeout = 30 * time.Second
	DefaultRetries       = 3
	DefaultRetryDelay    = time.Second
)

// DispatcherOptions tune the delivery pipeline
type DispatcherOptions struct {
	QueueSize     int
	Workers       int
	RatePerSecond float64
	Timeout       time.Duration
	Retries       int
	RetryDelay    time.Duration
}

func (o *DispatcherOptions) applyDefaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultNotifyTimeout
	}
	if o.Retries <= 0 {
		o.Retries = DefaultRetries
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	} else if o.RetryDelay == 0 {
		o.RetryDelay = DefaultRetryDelay
	}
}

// Dispatcher delivers alert events to every registered notifier from a
// bounded queue drained by a worker pool. Publish never blocks: when the
// queue is full the notification is dropped and logged.
type Dispatcher struct {
	registry *Registry
	opts     DispatcherOptions
	limiter  *rate.Limiter
	logger   *zap.Logger

	queue chan Notification

	mu      sync.RWMutex
	started bool
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher over the notifiers in registry
func NewDispatcher(registry *Registry, opts DispatcherOptions, logger *zap.Logger) *Dispatcher {
	opts.applyDefaults()

	limit := rate.Inf
	burst := 1
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
		burst = max(1, int(opts.RatePerSecond))
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		registry: registry,
		opts:     opts,
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logger.Named("dispatcher"),
		queue:    make(chan Notification, opts.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the worker pool. Calling it more than once has no effect.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true

	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	d.logger.Info("Dispatcher started",
		zap.Int("workers", d.opts.Workers),
		zap.Int("queue_size", d.opts.QueueSize),
		zap.Strings("notifiers", d.registry.NotifierNames()))
}

// Publish implements alerting.Publisher
func (d *Dispatcher) Publish(ev alerting.Event) {
	d.Enqueue(FromEvent(ev))
}

// Enqueue queues n for delivery and reports whether it was accepted
func (d *Dispatcher) Enqueue(n Notification) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("Dispatcher closed, dropping notification", zap.String("alert_id", n.Event.AlertID))
		return false
	}

	select {
	case d.queue <- n:
		d.logger.Debug("Queued notification",
			zap.String("id", n.ID.String()),
			zap.String("alert_id", n.Event.AlertID))
		return true
	default:
		d.logger.Error("Queue full, dropping notification",
			zap.String("id", n.ID.String()),
			zap.String("alert_id", n.Event.AlertID))
		return false
	}
}

// Close stops accepting notifications and waits for the queue to drain.
// If ctx ends first, in-flight deliveries are cancelled and ctx.Err is
// returned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		d.cancel()
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for n := range d.queue {
		d.deliver(n)
	}
	d.logger.Debug("Worker stopped", zap.Int("worker", id))
}

func (d *Dispatcher) deliver(n Notification) {
	if err := d.limiter.Wait(d.ctx); err != nil {
		d.logger.Error("Dropping notification", zap.String("alert_id", n.Event.AlertID), zap.Error(err))
		return
	}

	for _, notifier := range d.registry.GetAll() {
		err := d.retry(func() error {
			ctx, cancel := context.WithTimeout(d.ctx, d.opts.Timeout)
			defer cancel()
			return notifier.Notify(ctx, n)
		})
		if err != nil {
			d.logger.Error("Failed to send notification",
				zap.String("notifier", notifier.Name()),
				zap.String("alert_id", n.Event.AlertID),
				zap.Error(err))
			continue
		}
		d.logger.Info("Notification sent",
			zap.String("notifier", notifier.Name()),
			zap.String("kind", n.Kind),
			zap.String("alert_id", n.Event.AlertID))
	}
}

func (d *Dispatcher) retry(fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= d.opts.Retries; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt == d.opts.Retries {
			break
		}
		d.logger.Debug("Notify attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", d.opts.Retries),
			zap.Error(lastErr))

		select {
		case <-d.ctx.Done():
			return fmt.Errorf("failed after %d attempts: %w", attempt, d.ctx.Err())
		case <-time.After(d.opts.RetryDelay):
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", d.opts.Retries, lastErr)
}
