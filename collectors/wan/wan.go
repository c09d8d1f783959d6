// collectors/wan/wan.go
package wan

import (
	"context"
	"fmt"
	"time"

	"github.com/go-ping/ping"

	"netpoller/collectors"
	"netpoller/telemetry"
)

// Name is the module name of this collector
const Name = "wan"

// DefaultTargets are pinged when no targets are configured
var DefaultTargets = []string{"8.8.8.8", "1.1.1.1"}

// Result is the outcome of pinging one target
type Result struct {
	Success    bool
	PacketLoss float64
	RTTMin     time.Duration
	RTTAvg     time.Duration
	RTTMax     time.Duration
	RTTMdev    time.Duration
}

// PingFunc sends count echo requests to target
type PingFunc func(ctx context.Context, target string, count int, timeout time.Duration) (*ping.Statistics, error)

// Querier pings the device host. A failed ping is a result, not an error:
// loss is the signal this collector exists to record.
type Querier struct {
	Ping    PingFunc
	Count   int
	Timeout time.Duration
}

// Query implements collectors.Querier
func (q *Querier) Query(ctx context.Context, d collectors.Device) (Result, error) {
	stats, err := q.Ping(ctx, d.Host, q.Count, q.Timeout)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, ctxErr
	}
	if err != nil || stats == nil || stats.PacketsRecv == 0 {
		return Result{PacketLoss: 100}, nil
	}
	return Result{
		Success:    true,
		PacketLoss: stats.PacketLoss,
		RTTMin:     stats.MinRtt,
		RTTAvg:     stats.AvgRtt,
		RTTMax:     stats.MaxRtt,
		RTTMdev:    stats.StdDevRtt,
	}, nil
}

// ICMP pings target with go-ping in unprivileged (UDP) mode
func ICMP(ctx context.Context, target string, count int, timeout time.Duration) (*ping.Statistics, error) {
	pinger, err := ping.NewPinger(target)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", target, err)
	}
	pinger.Count = count
	pinger.Timeout = timeout
	pinger.SetPrivileged(false)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			pinger.Stop()
		case <-done:
		}
	}()

	if err := pinger.Run(); err != nil {
		return nil, fmt.Errorf("pinging %s: %w", target, err)
	}
	return pinger.Statistics(), nil
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Observations converts a ping result into wan_connectivity
func Observations(d collectors.Device, r Result, ts time.Time) []telemetry.Observation {
	return []telemetry.Observation{
		telemetry.NewObservation("wan_connectivity", map[string]string{
			"target": d.Host,
			"type":   "ping",
		}, map[string]float64{
			"success":     telemetry.Bool(r.Success),
			"packet_loss": r.PacketLoss,
			"rtt_min":     ms(r.RTTMin),
			"rtt_avg":     ms(r.RTTAvg),
			"rtt_max":     ms(r.RTTMax),
			"rtt_mdev":    ms(r.RTTMdev),
		}, ts),
	}
}

// Targets reads settings.targets, falling back to DefaultTargets
func Targets(settings map[string]interface{}) []collectors.Device {
	var hosts []string
	if raw, ok := settings["targets"].([]interface{}); ok {
		for _, t := range raw {
			if s, ok := t.(string); ok && s != "" {
				hosts = append(hosts, s)
			}
		}
	}
	if len(hosts) == 0 {
		hosts = DefaultTargets
	}

	devices := make([]collectors.Device, 0, len(hosts))
	for _, h := range hosts {
		devices = append(devices, collectors.Device{ID: h, Name: h, Type: Name, Host: h})
	}
	return devices
}

// New builds the collector. Targets are not probed and get no demo data.
func New(deps collectors.Deps) (collectors.Collector, error) {
	count := 5
	if v, ok := deps.Settings["count"].(int); ok && v > 0 {
		count = v
	}
	q := &Querier{Ping: ICMP, Count: count, Timeout: 10 * time.Second}
	return collectors.NewDeviceCollector[Result](Name, Targets(deps.Settings), q, Observations, deps.Sink, deps.Logger), nil
}
