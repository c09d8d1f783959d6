// collectors/device_collector.go
package collectors

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"netpoller/telemetry"
)

// Converter turns one device result into observations stamped with ts
type Converter[T any] func(d Device, v T, ts time.Time) []telemetry.Observation

// DeviceCollector is a Collector that runs one Querier over a set of devices
// and writes everything the cycle produced as a single batch.
type DeviceCollector[T any] struct {
	name     string
	devices  []Device
	query    Querier[T]
	convert  Converter[T]
	sink     Sink
	logger   *zap.Logger
	now      func() time.Time
	onInit   func(settings map[string]interface{}) error
	onResult func(ctx context.Context, d Device, v T)
	cleanup  func() error

	initMu      sync.Mutex
	initialized bool
}

// DeviceOption customizes a DeviceCollector
type DeviceOption[T any] func(*DeviceCollector[T])

// WithInit runs fn from Init with the collector settings until it succeeds
func WithInit[T any](fn func(settings map[string]interface{}) error) DeviceOption[T] {
	return func(c *DeviceCollector[T]) { c.onInit = fn }
}

// WithResultHook calls fn for every device result, after conversion
func WithResultHook[T any](fn func(ctx context.Context, d Device, v T)) DeviceOption[T] {
	return func(c *DeviceCollector[T]) { c.onResult = fn }
}

// WithCleanup runs fn from Cleanup
func WithCleanup[T any](fn func() error) DeviceOption[T] {
	return func(c *DeviceCollector[T]) { c.cleanup = fn }
}

// WithClock overrides the timestamp source
func WithClock[T any](now func() time.Time) DeviceOption[T] {
	return func(c *DeviceCollector[T]) { c.now = now }
}

// NewDeviceCollector creates a collector named name
func NewDeviceCollector[T any](name string, devices []Device, q Querier[T], convert Converter[T], sink Sink, logger *zap.Logger, opts ...DeviceOption[T]) *DeviceCollector[T] {
	c := &DeviceCollector[T]{
		name:    name,
		devices: devices,
		query:   q,
		convert: convert,
		sink:    sink,
		logger:  logger.Named(name),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the name of the collector
func (c *DeviceCollector[T]) Name() string {
	return c.name
}

// Init applies settings. Once it has succeeded later calls are no-ops; a
// failed Init is attempted again on the next call.
func (c *DeviceCollector[T]) Init(settings map[string]interface{}) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	if c.initialized {
		return nil
	}
	if c.onInit != nil {
		if err := c.onInit(settings); err != nil {
			return err
		}
	}
	c.initialized = true
	c.logger.Info("Collector initialized", zap.Int("devices", len(c.devices)))
	return nil
}

// Collect queries every device. A failure on one device is logged and does
// not stop the others; only a failed sink write is returned.
func (c *DeviceCollector[T]) Collect(ctx context.Context) error {
	start := time.Now()
	ts := c.now()

	var batch []telemetry.Observation
	var errs []error
	for _, d := range c.devices {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		obs, err := c.collectDevice(ctx, d, ts)
		if err != nil {
			errs = append(errs, fmt.Errorf("device %s: %w", d.ID, err))
			continue
		}
		batch = append(batch, obs...)
	}

	if len(errs) > 0 {
		c.logger.Warn("Some devices were skipped this cycle",
			zap.Int("failed", len(errs)),
			zap.Error(errors.Join(errs...)))
	}

	if err := c.sink.Write(ctx, batch); err != nil {
		return fmt.Errorf("writing %d observations: %w", len(batch), err)
	}

	c.logger.Debug("Collection cycle finished",
		zap.Int("observations", len(batch)),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (c *DeviceCollector[T]) collectDevice(ctx context.Context, d Device, ts time.Time) (obs []telemetry.Observation, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while collecting: %v", r)
		}
	}()

	v, err := c.query.Query(ctx, d)
	if err != nil {
		return nil, err
	}

	obs = c.convert(d, v, ts)
	if c.onResult != nil {
		c.onResult(ctx, d, v)
	}
	return obs, nil
}

// Cleanup performs any necessary cleanup
func (c *DeviceCollector[T]) Cleanup() error {
	if c.cleanup != nil {
		return c.cleanup()
	}
	return nil
}
