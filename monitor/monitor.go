// monitor/monitor.go
package monitor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"netpoller/collectors"
	"netpoller/config"
)

// ErrAlreadyRunning is returned by Run and Register once scheduling started
var ErrAlreadyRunning = errors.New("scheduler already running")

// Scheduler runs every registered collector on its own interval. A failing
// collector is retried after a back-off; a loop that exits unexpectedly,
// including by panic, is restarted with exponential back-off. Collectors
// never affect each other.
type Scheduler struct {
	logger  *zap.Logger
	clock   Clock
	metrics *Metrics

	errorBackoff      time.Duration
	collectTimeout    time.Duration
	restartBackoff    time.Duration
	maxRestartBackoff time.Duration

	mu      sync.Mutex
	tasks   []*task
	names   map[string]bool
	running bool
}

type task struct {
	collector collectors.Collector
	interval  time.Duration
	settings  map[string]interface{}

	mu     sync.Mutex
	status CollectorStatus
}

// CollectorStatus is a snapshot of one collector loop
type CollectorStatus struct {
	Name         string        `json:"name"`
	Interval     time.Duration `json:"interval"`
	Running      bool          `json:"running"`
	Cycles       int64         `json:"cycles"`
	Failures     int64         `json:"failures"`
	Restarts     int64         `json:"restarts"`
	LastError    string        `json:"last_error,omitempty"`
	LastRun      time.Time     `json:"last_run"`
	LastDuration time.Duration `json:"last_duration"`
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithClock replaces the wall clock
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithMetrics records self-metrics into m
func WithMetrics(m *Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithErrorBackoff sets the wait after a failed cycle. It is clamped to the
// collector interval.
func WithErrorBackoff(d time.Duration) Option {
	return func(s *Scheduler) { s.errorBackoff = d }
}

// WithCollectTimeout bounds a single Collect call
func WithCollectTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.collectTimeout = d }
}

// WithRestartBackoff sets the first and the largest wait before a loop restart
func WithRestartBackoff(initial, maximum time.Duration) Option {
	return func(s *Scheduler) {
		s.restartBackoff = initial
		s.maxRestartBackoff = maximum
	}
}

// FromConfig maps the monitor section onto scheduler options
func FromConfig(m config.MonitorConfig) []Option {
	initial, maximum := m.RestartBackoff()
	return []Option{
		WithErrorBackoff(m.ErrorBackoff()),
		WithCollectTimeout(m.CollectTimeout()),
		WithRestartBackoff(initial, maximum),
	}
}

// NewScheduler creates an empty scheduler
func NewScheduler(logger *zap.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		logger:            logger.Named("scheduler"),
		clock:             realClock{},
		errorBackoff:      config.DefaultErrorBackoffSeconds * time.Second,
		collectTimeout:    config.DefaultCollectTimeoutSeconds * time.Second,
		restartBackoff:    config.DefaultRestartBackoffSeconds * time.Second,
		maxRestartBackoff: config.DefaultMaxRestartBackoffSeconds * time.Second,
		names:             make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxRestartBackoff < s.restartBackoff {
		s.maxRestartBackoff = s.restartBackoff
	}
	return s
}

// Register adds a collector. Init is called with settings from the
// collector loop before the first Collect.
func (s *Scheduler) Register(c collectors.Collector, interval time.Duration, settings map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	name := c.Name()
	if name == "" {
		return fmt.Errorf("collector has empty name")
	}
	if s.names[name] {
		return fmt.Errorf("collector %q: %w", name, collectors.ErrDuplicateCollector)
	}
	if interval <= 0 {
		return fmt.Errorf("collector %q: interval must be positive, got %s", name, interval)
	}
	if settings == nil {
		settings = make(map[string]interface{})
	}

	s.names[name] = true
	s.tasks = append(s.tasks, &task{
		collector: c,
		interval:  interval,
		settings:  settings,
		status:    CollectorStatus{Name: name, Interval: interval},
	})
	return nil
}

// Run starts one loop per collector and blocks until ctx is cancelled and
// every loop has finished its in-flight cycle. Collectors are cleaned up
// before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	tasks := append([]*task(nil), s.tasks...)
	s.mu.Unlock()

	s.logger.Info("Starting collectors", zap.Int("collectors", len(tasks)))

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		g.Go(func() error {
			s.supervise(gctx, t)
			return nil
		})
	}
	err := g.Wait()

	for _, t := range tasks {
		if cerr := t.collector.Cleanup(); cerr != nil {
			s.logger.Error("Error cleaning up collector",
				zap.String("collector", t.collector.Name()),
				zap.Error(cerr))
		}
	}
	s.logger.Info("All collectors stopped")
	return err
}

// Status returns a snapshot of every collector in registration order
func (s *Scheduler) Status() []CollectorStatus {
	s.mu.Lock()
	tasks := append([]*task(nil), s.tasks...)
	s.mu.Unlock()

	out := make([]CollectorStatus, 0, len(tasks))
	for _, t := range tasks {
		t.mu.Lock()
		out = append(out, t.status)
		t.mu.Unlock()
	}
	return out
}

// supervise keeps the collector loop alive until ctx is done
func (s *Scheduler) supervise(ctx context.Context, t *task) {
	name := t.collector.Name()
	logger := s.logger.With(zap.String("collector", name))
	backoff := s.restartBackoff

	for {
		s.setRunning(t, true)
		err := s.runLoop(ctx, t, func() { backoff = s.restartBackoff })
		s.setRunning(t, false)

		if ctx.Err() != nil {
			logger.Info("Collector stopped")
			return
		}

		t.mu.Lock()
		t.status.Restarts++
		if err != nil {
			t.status.LastError = err.Error()
		}
		t.mu.Unlock()
		s.metrics.restarted(name)

		logger.Error("Collector loop exited unexpectedly, restarting",
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-ctx.Done():
			logger.Info("Collector stopped")
			return
		case <-s.clock.After(backoff):
		}
		backoff = min(backoff*2, s.maxRestartBackoff)
	}
}

// runLoop runs the loop and turns a panic into an error
func (s *Scheduler) runLoop(ctx context.Context, t *task, onClean func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.logger.Debug("Recovered collector panic",
				zap.String("collector", t.collector.Name()),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	return s.loop(ctx, t, onClean)
}

// loop is the per-collector cycle: collect immediately, then wait the
// interval after a success or the error back-off after a failure. It only
// returns when ctx is done or Init fails.
func (s *Scheduler) loop(ctx context.Context, t *task, onClean func()) error {
	name := t.collector.Name()
	if err := t.collector.Init(t.settings); err != nil {
		return fmt.Errorf("initializing collector %s: %w", name, err)
	}

	backoff := min(s.errorBackoff, t.interval)
	for {
		wait := t.interval
		if err := s.collect(ctx, t); err != nil {
			s.logger.Error("Collection failed",
				zap.String("collector", name),
				zap.Duration("retry_in", backoff),
				zap.Error(err))
			wait = backoff
		} else {
			onClean()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-s.clock.After(wait):
		}
	}
}

// collect runs one cycle. Cancelling the scheduler does not abort a cycle
// in progress; only the collect timeout does.
func (s *Scheduler) collect(ctx context.Context, t *task) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.collectTimeout)
	defer cancel()

	start := s.clock.Now()
	err := t.collector.Collect(cctx)
	elapsed := s.clock.Now().Sub(start)

	t.mu.Lock()
	t.status.Cycles++
	t.status.LastRun = start
	t.status.LastDuration = elapsed
	if err != nil {
		t.status.Failures++
		t.status.LastError = err.Error()
	} else {
		t.status.LastError = ""
	}
	t.mu.Unlock()

	s.metrics.observeCycle(t.collector.Name(), elapsed, err)
	return err
}

func (s *Scheduler) setRunning(t *task, running bool) {
	t.mu.Lock()
	t.status.Running = running
	t.mu.Unlock()
	s.metrics.setRunning(t.collector.Name(), running)
}
