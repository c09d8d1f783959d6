// collectors/system/system.go
package system

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"netpoller/alerting"
	"netpoller/collectors"
	"netpoller/telemetry"
)

// Name is the module name of this collector
const Name = "system"

// SystemCollector reports CPU, memory, disk and network usage of the
// machine the poller runs on and checks the usage thresholds.
type SystemCollector struct {
	source      Source
	sink        collectors.Sink
	alerts      *alerting.Evaluator
	logger      *zap.Logger
	now         func() time.Time
	mountpoints map[string]bool

	initMu      sync.Mutex
	initialized bool
	host        HostInfo
}

// NewSystemCollector creates a system collector reading from source
func NewSystemCollector(source Source, sink collectors.Sink, alerts *alerting.Evaluator, logger *zap.Logger) *SystemCollector {
	return &SystemCollector{
		source: source,
		sink:   sink,
		alerts: alerts,
		logger: logger.Named(Name),
		now:    time.Now,
	}
}

// New is the registry factory
func New(deps collectors.Deps) (collectors.Collector, error) {
	return NewSystemCollector(Gopsutil{CPUInterval: time.Second}, deps.Sink, deps.Alerts, deps.Logger), nil
}

// Name returns the name of the collector
func (c *SystemCollector) Name() string {
	return Name
}

// Init reads the static host information. The optional "mountpoints"
// setting restricts disk metrics to the listed paths. A failed Init is
// attempted again on the next call.
func (c *SystemCollector) Init(settings map[string]interface{}) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	if c.initialized {
		return nil
	}
	if err := c.init(settings); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

func (c *SystemCollector) init(settings map[string]interface{}) error {
	var mountpoints map[string]bool
	if raw, ok := settings["mountpoints"]; ok {
		paths, ok := raw.([]interface{})
		if !ok {
			return fmt.Errorf("'mountpoints' should be an array")
		}
		mountpoints = make(map[string]bool, len(paths))
		for _, p := range paths {
			path, ok := p.(string)
			if !ok {
				return fmt.Errorf("mountpoint must be a string")
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				return fmt.Errorf("could not resolve path %s: %w", path, err)
			}
			mountpoints[abs] = true
		}
	}

	info, err := c.source.Host(context.Background())
	if err != nil {
		return err
	}
	c.mountpoints = mountpoints
	c.host = info
	c.logger.Info("Initialized system collector",
		zap.String("hostname", info.Hostname),
		zap.String("os", info.OS))
	return nil
}

func (c *SystemCollector) tags(extra map[string]string) map[string]string {
	tags := map[string]string{
		"hostname": c.host.Hostname,
		"os":       c.host.OS,
		"type":     "system",
	}
	for k, v := range extra {
		tags[k] = v
	}
	return tags
}

// Collect gathers one sample of every metric group. A group that fails is
// logged and skipped; the cycle fails only if nothing could be read or the
// sink write fails.
func (c *SystemCollector) Collect(ctx context.Context) error {
	start := time.Now()
	ts := c.now()

	var batch []telemetry.Observation
	var errs []error

	cpuStats, err := c.source.CPU(ctx)
	if err != nil {
		errs = append(errs, err)
	} else {
		batch = append(batch, c.cpuObservation(cpuStats, ts))
		c.check(ctx, alerting.TypeCPU, "", cpuStats.Percent)
	}

	memStats, err := c.source.Memory(ctx)
	if err != nil {
		errs = append(errs, err)
	} else {
		batch = append(batch, c.memoryObservation(memStats, ts))
		c.check(ctx, alerting.TypeMemory, "", memStats.Percent)
	}

	disks, err := c.source.Disks(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	for _, d := range disks {
		if c.mountpoints != nil && !c.mountpoints[d.Mountpoint] {
			continue
		}
		batch = append(batch, c.diskObservation(d, ts))
		c.check(ctx, alerting.TypeDisk, d.Mountpoint, d.Percent)
	}

	nics, err := c.source.Network(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	for _, n := range nics {
		batch = append(batch, c.networkObservation(n, ts))
	}

	if len(errs) > 0 {
		if len(batch) == 0 {
			return fmt.Errorf("collecting system metrics: %w", errors.Join(errs...))
		}
		c.logger.Warn("Some system metrics could not be read", zap.Error(errors.Join(errs...)))
	}

	if err := c.sink.Write(ctx, batch); err != nil {
		return fmt.Errorf("writing %d observations: %w", len(batch), err)
	}

	c.logger.Debug("Completed system metrics collection",
		zap.Int("observations", len(batch)),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (c *SystemCollector) check(ctx context.Context, alertType, resource string, value float64) {
	c.alerts.Check(ctx, alerting.Sample{
		Type:       alertType,
		DeviceID:   c.host.Hostname,
		DeviceName: c.host.Hostname,
		Resource:   resource,
		Value:      value,
	})
}

func (c *SystemCollector) cpuObservation(s CPUStats, ts time.Time) telemetry.Observation {
	return telemetry.NewObservation("cpu_metrics", c.tags(nil), map[string]float64{
		"cpu_percent":    s.Percent,
		"user_percent":   s.UserPercent,
		"system_percent": s.SystemPercent,
		"idle_percent":   s.IdlePercent,
	}, ts)
}

func (c *SystemCollector) memoryObservation(s MemoryStats, ts time.Time) telemetry.Observation {
	return telemetry.NewObservation("memory_metrics", c.tags(nil), map[string]float64{
		"total":        float64(s.Total),
		"available":    float64(s.Available),
		"used":         float64(s.Used),
		"free":         float64(s.Free),
		"percent":      s.Percent,
		"swap_total":   float64(s.SwapTotal),
		"swap_used":    float64(s.SwapUsed),
		"swap_free":    float64(s.SwapFree),
		"swap_percent": s.SwapPercent,
	}, ts)
}

func (c *SystemCollector) diskObservation(d DiskStats, ts time.Time) telemetry.Observation {
	return telemetry.NewObservation("disk_metrics", c.tags(map[string]string{
		"device":     d.Device,
		"mountpoint": d.Mountpoint,
		"fstype":     d.Fstype,
	}), map[string]float64{
		"total":   float64(d.Total),
		"used":    float64(d.Used),
		"free":    float64(d.Free),
		"percent": d.Percent,
	}, ts)
}

func (c *SystemCollector) networkObservation(n NetStats, ts time.Time) telemetry.Observation {
	return telemetry.NewObservation("network_metrics", c.tags(map[string]string{
		"interface": n.Interface,
	}), map[string]float64{
		"bytes_sent":   float64(n.BytesSent),
		"bytes_recv":   float64(n.BytesRecv),
		"packets_sent": float64(n.PacketsSent),
		"packets_recv": float64(n.PacketsRecv),
		"errin":        float64(n.Errin),
		"errout":       float64(n.Errout),
		"dropin":       float64(n.Dropin),
		"dropout":      float64(n.Dropout),
	}, ts)
}

// Cleanup performs any necessary cleanup
func (c *SystemCollector) Cleanup() error {
	return nil
}
