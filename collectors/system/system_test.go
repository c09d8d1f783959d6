package system

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"netpoller/alerting"
	"netpoller/collectors"
	"netpoller/config"
	"netpoller/telemetry"
)

type fakeSource struct {
	cpu     CPUStats
	mem     MemoryStats
	disks   []DiskStats
	nics    []NetStats
	failAll bool
}

var errRead = errors.New("read failed")

func (f *fakeSource) Host(context.Context) (HostInfo, error) {
	return HostInfo{Hostname: "poller-1", OS: "linux"}, nil
}

func (f *fakeSource) CPU(context.Context) (CPUStats, error) {
	if f.failAll {
		return CPUStats{}, errRead
	}
	return f.cpu, nil
}

func (f *fakeSource) Memory(context.Context) (MemoryStats, error) {
	if f.failAll {
		return MemoryStats{}, errRead
	}
	return f.mem, nil
}

func (f *fakeSource) Disks(context.Context) ([]DiskStats, error) {
	if f.failAll {
		return nil, errRead
	}
	return f.disks, nil
}

func (f *fakeSource) Network(context.Context) ([]NetStats, error) {
	if f.failAll {
		return nil, errRead
	}
	return f.nics, nil
}

type captureSink struct {
	mu  sync.Mutex
	obs []telemetry.Observation
}

func (s *captureSink) Write(_ context.Context, obs []telemetry.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.obs = append(s.obs, obs...)
	return nil
}

func (s *captureSink) byMeasurement(m string) []telemetry.Observation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []telemetry.Observation
	for _, o := range s.obs {
		if o.Measurement == m {
			out = append(out, o)
		}
	}
	return out
}

func newEvaluator() (*alerting.Engine, *alerting.Evaluator) {
	engine := alerting.NewEngine(alerting.NewStore(), nil, zap.NewNop())
	return engine, alerting.NewEvaluator(engine, config.ThresholdConfig{CPU: 80, Memory: 85, Disk: 90}, true)
}

func TestCollect(t *testing.T) {
	src := &fakeSource{
		cpu: CPUStats{Percent: 95, UserPercent: 70, SystemPercent: 25},
		mem: MemoryStats{Total: 8 << 30, Used: 2 << 30, Percent: 25},
		disks: []DiskStats{
			{Device: "/dev/sda1", Mountpoint: "/", Fstype: "ext4", Percent: 50},
			{Device: "/dev/sdb1", Mountpoint: "/data", Fstype: "xfs", Percent: 97},
		},
		nics: []NetStats{{Interface: "eth0", BytesRecv: 1000}},
	}
	sink := &captureSink{}
	engine, ev := newEvaluator()

	c := NewSystemCollector(src, sink, ev, zap.NewNop())
	if err := c.Init(nil); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := c.Collect(context.Background()); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	cpu := sink.byMeasurement("cpu_metrics")
	if len(cpu) != 1 || cpu[0].Fields["cpu_percent"] != 95 {
		t.Fatalf("cpu_metrics = %+v", cpu)
	}
	if cpu[0].Tags["hostname"] != "poller-1" || cpu[0].Tags["type"] != "system" {
		t.Errorf("cpu tags = %v", cpu[0].Tags)
	}
	if got := len(sink.byMeasurement("disk_metrics")); got != 2 {
		t.Errorf("disk_metrics = %d, want 2", got)
	}
	if got := sink.byMeasurement("network_metrics"); len(got) != 1 || got[0].Tags["interface"] != "eth0" {
		t.Errorf("network_metrics = %+v", got)
	}

	active := engine.Active()
	if len(active) != 2 {
		t.Fatalf("active alerts = %d, want 2 (cpu and /data)", len(active))
	}
	if !engine.IsActive(alerting.Key{Type: alerting.TypeDisk, DeviceID: "poller-1", Resource: "/data"}) {
		t.Error("disk alert for /data not raised")
	}
	if engine.IsActive(alerting.Key{Type: alerting.TypeMemory, DeviceID: "poller-1"}) {
		t.Error("memory alert raised below threshold")
	}

	// back under threshold clears the cpu alert
	src.cpu.Percent = 10
	if err := c.Collect(context.Background()); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if engine.IsActive(alerting.Key{Type: alerting.TypeCPU, DeviceID: "poller-1"}) {
		t.Error("cpu alert still active after recovery")
	}
}

func TestCollectMountpointFilter(t *testing.T) {
	src := &fakeSource{disks: []DiskStats{{Mountpoint: "/"}, {Mountpoint: "/data"}}}
	sink := &captureSink{}

	c := NewSystemCollector(src, sink, nil, zap.NewNop())
	if err := c.Init(map[string]interface{}{"mountpoints": []interface{}{"/data"}}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := c.Collect(context.Background()); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	disks := sink.byMeasurement("disk_metrics")
	if len(disks) != 1 || disks[0].Tags["mountpoint"] != "/data" {
		t.Errorf("disk_metrics = %+v", disks)
	}
}

func TestInitRejectsBadMountpoints(t *testing.T) {
	c := NewSystemCollector(&fakeSource{}, &captureSink{}, nil, zap.NewNop())
	if err := c.Init(map[string]interface{}{"mountpoints": "/"}); err == nil {
		t.Error("Init accepted a non-array mountpoints setting")
	}
	if err := c.Init(map[string]interface{}{"mountpoints": []interface{}{"/", 7}}); err == nil {
		t.Error("Init accepted a non-string mountpoint")
	}

	// a failed Init is retried; the corrected settings take effect
	if err := c.Init(map[string]interface{}{"mountpoints": []interface{}{"/"}}); err != nil {
		t.Fatalf("Init after failure: %v", err)
	}
	if len(c.mountpoints) != 1 || !c.mountpoints["/"] {
		t.Errorf("mountpoints = %v, want [/]", c.mountpoints)
	}
	if c.host.Hostname != "poller-1" {
		t.Errorf("hostname = %q, want poller-1", c.host.Hostname)
	}

	// settings are applied once after success
	if err := c.Init(map[string]interface{}{"mountpoints": "/"}); err != nil {
		t.Errorf("Init after success = %v, want nil", err)
	}
}

func TestCollectFailsWhenNothingRead(t *testing.T) {
	c := NewSystemCollector(&fakeSource{failAll: true}, &captureSink{}, nil, zap.NewNop())
	if err := c.Init(nil); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := c.Collect(context.Background()); !errors.Is(err, errRead) {
		t.Errorf("Collect error = %v, want %v", err, errRead)
	}
}

func TestGopsutilSource(t *testing.T) {
	if testing.Short() {
		t.Skip("reads the live host")
	}
	src := Gopsutil{CPUInterval: 10 * time.Millisecond}
	ctx := context.Background()

	if _, err := src.Host(ctx); err != nil {
		t.Fatalf("Host: %v", err)
	}
	m, err := src.Memory(ctx)
	if err != nil {
		t.Fatalf("Memory: %v", err)
	}
	if m.Total == 0 || m.Percent < 0 || m.Percent > 100 {
		t.Errorf("memory = %+v", m)
	}
}

var _ collectors.Collector = (*SystemCollector)(nil)
