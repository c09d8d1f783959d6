// collectors/mikrotik/mikrotik.go
package mikrotik

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"netpoller/alerting"
	"netpoller/collectors"
	"netpoller/collectors/routeros"
	"netpoller/collectors/snmp"
	"netpoller/telemetry"
)

// Name is the module name of this collector
const Name = "mikrotik"

// MikroTik enterprise OIDs
const (
	oidCPULoad     = "1.3.6.1.4.1.14988.1.1.3.14.0"
	oidTotalMemory = "1.3.6.1.4.1.14988.1.1.3.10.0"
	oidFreeMemory  = "1.3.6.1.4.1.14988.1.1.3.11.0"

	// IF-MIB
	oidIfDescr      = "1.3.6.1.2.1.2.2.1.2"
	oidIfOperStatus = "1.3.6.1.2.1.2.2.1.8"
	oidIfHCIn       = "1.3.6.1.2.1.31.1.1.1.6"
	oidIfHCOut      = "1.3.6.1.2.1.31.1.1.1.10"
)

// Interface is the traffic state of one router interface
type Interface struct {
	Name    string
	RxBits  float64
	TxBits  float64
	Running bool
}

// Snapshot is one poll of a router
type Snapshot struct {
	CPULoad     float64
	MemoryUsage float64
	Interfaces  []Interface
}

// Querier reads a router over the REST API when credentials are set and
// over SNMP otherwise.
type Querier struct {
	API  *routeros.Client
	SNMP *snmp.Client
}

// Query implements collectors.Querier
func (q *Querier) Query(ctx context.Context, d collectors.Device) (Snapshot, error) {
	if d.APIUser != "" {
		return q.viaAPI(ctx, d)
	}
	return q.viaSNMP(ctx, d)
}

func (q *Querier) viaAPI(ctx context.Context, d collectors.Device) (Snapshot, error) {
	res, err := q.API.Get(ctx, d, "system/resource")
	if err != nil {
		return Snapshot{}, err
	}
	if len(res) == 0 {
		return Snapshot{}, fmt.Errorf("empty system/resource response")
	}
	r := res[0]
	snap := Snapshot{
		CPULoad:     r.Float("cpu-load"),
		MemoryUsage: memoryUsage(r.Float("total-memory"), r.Float("free-memory")),
	}

	ifaces, err := q.API.Get(ctx, d, "interface")
	if err != nil {
		return Snapshot{}, err
	}
	for _, iface := range ifaces {
		name := iface.String("name", "unknown")
		if skipInterface(name) {
			continue
		}
		stats, err := q.API.Post(ctx, d, "interface/monitor-traffic", map[string]any{
			"interface": name,
			"once":      "",
		})
		if err != nil {
			return Snapshot{}, err
		}
		var rx, tx float64
		if len(stats) > 0 {
			rx = stats[0].Float("rx-bits-per-second")
			tx = stats[0].Float("tx-bits-per-second")
		}
		snap.Interfaces = append(snap.Interfaces, Interface{
			Name:    name,
			RxBits:  rx,
			TxBits:  tx,
			Running: iface.Bool("running"),
		})
	}
	return snap, nil
}

func (q *Querier) viaSNMP(ctx context.Context, d collectors.Device) (Snapshot, error) {
	vals, err := q.SNMP.GetFloats(ctx, d, oidCPULoad, oidTotalMemory, oidFreeMemory)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{
		CPULoad:     vals[oidCPULoad],
		MemoryUsage: memoryUsage(vals[oidTotalMemory], vals[oidFreeMemory]),
	}

	names, err := q.SNMP.Walk(ctx, d, oidIfDescr)
	if err != nil {
		return Snapshot{}, err
	}
	status, err := q.SNMP.Walk(ctx, d, oidIfOperStatus)
	if err != nil {
		return Snapshot{}, err
	}
	in, err := q.SNMP.Walk(ctx, d, oidIfHCIn)
	if err != nil {
		return Snapshot{}, err
	}
	out, err := q.SNMP.Walk(ctx, d, oidIfHCOut)
	if err != nil {
		return Snapshot{}, err
	}

	for idx, pdu := range names {
		name := snmp.String(pdu)
		if skipInterface(name) {
			continue
		}
		// SNMP exposes octet counters, not rates
		snap.Interfaces = append(snap.Interfaces, Interface{
			Name:    name,
			RxBits:  snmp.Float(in[idx]) * 8,
			TxBits:  snmp.Float(out[idx]) * 8,
			Running: snmp.Float(status[idx]) == 1,
		})
	}
	return snap, nil
}

func memoryUsage(total, free float64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round((total-free)/total*10000) / 100
}

// vlan and bridge interfaces double count the physical ports
func skipInterface(name string) bool {
	return strings.HasPrefix(name, "vlan") || strings.HasPrefix(name, "bridge")
}

// Synthesize returns plausible router load for the time of day
func Synthesize(_ collectors.Device, now time.Time) Snapshot {
	base := 15
	if collectors.PeriodOf(now) == collectors.BusinessHours {
		base = 30
	}
	return Snapshot{
		CPULoad:     float64(base + collectors.RandBetween(-5, 15)),
		MemoryUsage: float64(base + 10 + collectors.RandBetween(0, 25)),
		Interfaces: []Interface{
			{Name: "ether1", RxBits: float64(collectors.RandBetween(500_000, 2_000_000)), TxBits: float64(collectors.RandBetween(100_000, 1_000_000)), Running: true},
			{Name: "ether2", RxBits: float64(collectors.RandBetween(100_000, 500_000)), TxBits: float64(collectors.RandBetween(50_000, 250_000)), Running: true},
			{Name: "wlan1", RxBits: float64(collectors.RandBetween(250_000, 1_500_000)), TxBits: float64(collectors.RandBetween(100_000, 800_000)), Running: true},
		},
	}
}

// Observations converts a snapshot into system_metrics and interface_metrics
func Observations(d collectors.Device, s Snapshot, ts time.Time) []telemetry.Observation {
	obs := []telemetry.Observation{
		telemetry.NewObservation("system_metrics", d.Tags(), map[string]float64{
			"cpu_load":     s.CPULoad,
			"memory_usage": s.MemoryUsage,
		}, ts),
	}
	for _, iface := range s.Interfaces {
		itags := d.Tags()
		itags["interface"] = iface.Name
		obs = append(obs, telemetry.NewObservation("interface_metrics", itags, map[string]float64{
			"rx_bytes": iface.RxBits,
			"tx_bytes": iface.TxBits,
			"status":   telemetry.Bool(iface.Running),
		}, ts))
	}
	return obs
}

// New builds the collector for every mikrotik device
func New(deps collectors.Deps) (collectors.Collector, error) {
	q := &Querier{
		API:  routeros.NewClient(10 * time.Second),
		SNMP: snmp.NewClient(2 * time.Second),
	}
	fallback := collectors.WithDemoFallback[Snapshot](q, deps.Prober, Synthesize, deps.Demo, deps.Logger.Named(Name))

	return collectors.NewDeviceCollector[Snapshot](Name, collectors.OfType(deps.Devices, Name), fallback, Observations,
		deps.Sink, deps.Logger,
		collectors.WithResultHook(func(ctx context.Context, d collectors.Device, s Snapshot) {
			deps.Alerts.Check(ctx, alerting.Sample{Type: alerting.TypeCPU, DeviceID: d.ID, DeviceName: d.Name, Value: s.CPULoad})
			deps.Alerts.Check(ctx, alerting.Sample{Type: alerting.TypeMemory, DeviceID: d.ID, DeviceName: d.Name, Value: s.MemoryUsage})
		}),
	), nil
}
