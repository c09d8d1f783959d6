package collectors

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"netpoller/telemetry"
)

func TestParseBandwidthLimit(t *testing.T) {
	tests := []struct {
		in   string
		want Bandwidth
	}{
		{"10M/5M", Bandwidth{Download: 10_000_000, Upload: 5_000_000}},
		{"1G/512k", Bandwidth{Download: 1_000_000_000, Upload: 512_000}},
		{"1.5M/750K", Bandwidth{Download: 1_500_000, Upload: 750_000}},
		{"64000/32000", Bandwidth{Download: 64000, Upload: 32000}},
		{"2M", Bandwidth{Download: 2_000_000, Upload: 2_000_000}},
		{"0/0", Bandwidth{}},
		{"0", Bandwidth{}},
		{"", Bandwidth{}},
		{"abc/5M", Bandwidth{}},
		{"10X/5M", Bandwidth{}},
		{"1/2/3", Bandwidth{}},
		{"1..2M/1M", Bandwidth{}},
		{"M/M", Bandwidth{}},
		{"99999999999G/1M", Bandwidth{}},
		{"1M/9223372036854775807", Bandwidth{}},
		{"9223372036854775806/1", Bandwidth{}},
	}
	for _, tt := range tests {
		if got := ParseBandwidthLimit(tt.in); got != tt.want {
			t.Errorf("ParseBandwidthLimit(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestParseDurationSeconds(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"1h23m45s", 5025},
		{"45s", 45},
		{"", 0},
		{"2m", 120},
		{"3h", 10800},
		{"1h5s", 3605},
		{"1d2h", 93600},
		{"1w", 604800},
		{"45", 0},
		{"h", 0},
		{"1x", 0},
		{"99999999999999999999s", 0},
		{"9999999999999999w", 0},
	}
	for _, tt := range tests {
		if got := ParseDurationSeconds(tt.in); got != tt.want {
			t.Errorf("ParseDurationSeconds(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestPeriodOf(t *testing.T) {
	at := func(h int) time.Time { return time.Date(2024, 1, 1, h, 30, 0, 0, time.Local) }
	tests := []struct {
		hour int
		want DayPeriod
	}{
		{3, Night}, {8, BusinessHours}, {18, BusinessHours}, {19, Evening}, {23, Evening}, {0, Night},
	}
	for _, tt := range tests {
		if got := PeriodOf(at(tt.hour)); got != tt.want {
			t.Errorf("PeriodOf(%02d:30) = %v, want %v", tt.hour, got, tt.want)
		}
	}
}

func TestRandBetween(t *testing.T) {
	for i := 0; i < 200; i++ {
		if v := RandBetween(-5, 15); v < -5 || v > 15 {
			t.Fatalf("RandBetween(-5, 15) = %d", v)
		}
	}
	if v := RandBetween(7, 7); v != 7 {
		t.Errorf("RandBetween(7, 7) = %d", v)
	}
}

var errQuery = errors.New("query failed")

func synthValue(d Device, _ time.Time) float64 { return 42 }

func TestDemoFallback(t *testing.T) {
	ctx := context.Background()
	reachable := ProberFunc(func(context.Context, Device) error { return nil })
	unreachable := ProberFunc(func(context.Context, Device) error { return ErrUnreachable })
	ok := QuerierFunc[float64](func(context.Context, Device) (float64, error) { return 7, nil })
	failing := QuerierFunc[float64](func(context.Context, Device) (float64, error) { return 0, errQuery })

	tests := []struct {
		name    string
		q       Querier[float64]
		prober  Prober
		enabled bool
		device  Device
		want    float64
		wantErr error
	}{
		{"real data", ok, reachable, true, Device{ID: "r1"}, 7, nil},
		{"probe fails", ok, unreachable, true, Device{ID: "r1"}, 42, nil},
		{"query fails", failing, reachable, true, Device{ID: "r1"}, 42, nil},
		{"demo mode", ok, reachable, false, Device{ID: "r1", DemoMode: true}, 42, nil},
		{"disabled probe fails", ok, unreachable, false, Device{ID: "r1"}, 0, ErrUnreachable},
		{"disabled query fails", failing, reachable, false, Device{ID: "r1"}, 0, errQuery},
		{"no prober", ok, nil, true, Device{ID: "r1"}, 7, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := WithDemoFallback[float64](tt.q, tt.prober, synthValue, tt.enabled, zap.NewNop())
			got, err := f.Query(ctx, tt.device)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("value = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDemoFallbackRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	failing := QuerierFunc[float64](func(ctx context.Context, _ Device) (float64, error) { return 0, ctx.Err() })
	f := WithDemoFallback[float64](failing, nil, synthValue, true, zap.NewNop())
	if _, err := f.Query(ctx, Device{ID: "r1"}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestTCPProber(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	d := Device{ID: "local", Host: "127.0.0.1", ProbePort: port, ProbeTimeout: time.Second}
	if err := (TCPProber{}).Probe(context.Background(), d); err != nil {
		t.Errorf("Probe(open port) = %v", err)
	}

	ln.Close()
	if err := (TCPProber{}).Probe(context.Background(), d); !errors.Is(err, ErrUnreachable) {
		t.Errorf("Probe(closed port) = %v, want ErrUnreachable", err)
	}

	if err := (TCPProber{}).Probe(context.Background(), Device{ID: "nohost"}); !errors.Is(err, ErrUnreachable) {
		t.Errorf("Probe(no host) = %v, want ErrUnreachable", err)
	}
}

type batchRecorder struct {
	mu      sync.Mutex
	batches [][]telemetry.Observation
	err     error
}

func (r *batchRecorder) Write(_ context.Context, batch []telemetry.Observation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, batch)
	return r.err
}

func valueObs(d Device, v float64, ts time.Time) []telemetry.Observation {
	return []telemetry.Observation{
		telemetry.NewObservation("test_metrics", d.Tags(), map[string]float64{"value": v}, ts),
	}
}

func TestDeviceCollectorIsolatesDevices(t *testing.T) {
	devices := []Device{{ID: "ok1"}, {ID: "fails"}, {ID: "panics"}, {ID: "ok2"}}
	q := QuerierFunc[float64](func(_ context.Context, d Device) (float64, error) {
		switch d.ID {
		case "fails":
			return 0, errQuery
		case "panics":
			panic("boom")
		}
		return 1, nil
	})

	sink := &batchRecorder{}
	var hooked []string
	c := NewDeviceCollector[float64]("test", devices, q, valueObs, sink, zap.NewNop(),
		WithResultHook(func(_ context.Context, d Device, _ float64) { hooked = append(hooked, d.ID) }))

	if err := c.Collect(context.Background()); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(sink.batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(sink.batches))
	}
	batch := sink.batches[0]
	if len(batch) != 2 {
		t.Fatalf("observations = %d, want 2", len(batch))
	}
	if batch[0].Tags["device_id"] != "ok1" || batch[1].Tags["device_id"] != "ok2" {
		t.Errorf("devices in batch = %s, %s", batch[0].Tags["device_id"], batch[1].Tags["device_id"])
	}
	if !batch[0].Time.Equal(batch[1].Time) {
		t.Error("observations of one cycle have different timestamps")
	}
	if len(hooked) != 2 {
		t.Errorf("result hook calls = %d, want 2", len(hooked))
	}
}

func TestDeviceCollectorAllDevicesFailWithFallback(t *testing.T) {
	devices := []Device{{ID: "r1", Host: "10.0.0.1"}, {ID: "r2", Host: "10.0.0.2"}}
	failing := QuerierFunc[float64](func(context.Context, Device) (float64, error) { return 0, errQuery })
	unreachable := ProberFunc(func(context.Context, Device) error { return ErrUnreachable })
	q := WithDemoFallback[float64](failing, unreachable, synthValue, true, zap.NewNop())

	sink := &batchRecorder{}
	c := NewDeviceCollector[float64]("test", devices, q, valueObs, sink, zap.NewNop())
	if err := c.Collect(context.Background()); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got := len(sink.batches[0]); got != 2 {
		t.Errorf("observations = %d, want 2 synthetic", got)
	}
	if v := sink.batches[0][0].Fields["value"]; v != 42 {
		t.Errorf("value = %v, want synthetic 42", v)
	}
}

func TestDeviceCollectorReturnsSinkError(t *testing.T) {
	sink := &batchRecorder{err: errors.New("sink down")}
	q := QuerierFunc[float64](func(context.Context, Device) (float64, error) { return 1, nil })
	c := NewDeviceCollector[float64]("test", []Device{{ID: "r1"}}, q, valueObs, sink, zap.NewNop())
	if err := c.Collect(context.Background()); err == nil {
		t.Error("Collect returned nil with a failing sink")
	}
}

func TestDeviceCollectorInitOnce(t *testing.T) {
	calls := 0
	q := QuerierFunc[float64](func(context.Context, Device) (float64, error) { return 1, nil })
	c := NewDeviceCollector[float64]("test", nil, q, valueObs, &batchRecorder{}, zap.NewNop(),
		WithInit[float64](func(map[string]interface{}) error { calls++; return nil }))

	for i := 0; i < 3; i++ {
		if err := c.Init(nil); err != nil {
			t.Fatalf("Init: %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("init calls = %d, want 1", calls)
	}
}

func TestDeviceCollectorInitRetriesAfterFailure(t *testing.T) {
	calls := 0
	q := QuerierFunc[float64](func(context.Context, Device) (float64, error) { return 1, nil })
	c := NewDeviceCollector[float64]("test", nil, q, valueObs, &batchRecorder{}, zap.NewNop(),
		WithInit[float64](func(map[string]interface{}) error {
			calls++
			if calls == 1 {
				return errors.New("router api not ready")
			}
			return nil
		}))

	if err := c.Init(nil); err == nil {
		t.Fatal("first Init = nil, want error")
	}
	if err := c.Init(nil); err != nil {
		t.Fatalf("second Init: %v", err)
	}
	if err := c.Init(nil); err != nil {
		t.Fatalf("third Init: %v", err)
	}
	if calls != 2 {
		t.Errorf("init calls = %d, want 2", calls)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	factory := func(deps Deps) (Collector, error) {
		q := QuerierFunc[float64](func(context.Context, Device) (float64, error) { return 1, nil })
		return NewDeviceCollector[float64]("a", deps.Devices, q, valueObs, deps.Sink, deps.Logger), nil
	}

	if err := r.Register("a", factory); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register("a", factory); !errors.Is(err, ErrDuplicateCollector) {
		t.Errorf("duplicate Register = %v, want ErrDuplicateCollector", err)
	}
	if err := r.Register("", factory); err == nil {
		t.Error("Register accepted empty name")
	}

	c, err := r.Build("a", Deps{Sink: &batchRecorder{}, Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if c.Name() != "a" {
		t.Errorf("Name() = %q, want a", c.Name())
	}
	if _, err := r.Build("missing", Deps{}); err == nil {
		t.Error("Build of unknown collector succeeded")
	}
	if names := r.CollectorNames(); len(names) != 1 || names[0] != "a" {
		t.Errorf("CollectorNames() = %v", names)
	}
}

func TestOfType(t *testing.T) {
	devices := []Device{{ID: "a", Type: "mikrotik"}, {ID: "b", Type: "ubiquiti"}, {ID: "c", Type: "mikrotik"}}
	got := OfType(devices, "mikrotik")
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Errorf("OfType = %+v", got)
	}
}
