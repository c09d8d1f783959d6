// collectors/wireless/wireless.go
package wireless

import (
	"context"
	"fmt"
	"time"

	"netpoller/collectors"
	"netpoller/collectors/routeros"
	"netpoller/telemetry"
)

// Name is the module name of this collector
const Name = "wireless"

// Radio is one wireless interface
type Radio struct {
	Name         string
	MACAddress   string
	SSID         string
	Frequency    float64
	Band         string
	ChannelWidth string
	Mode         string
	TxPower      float64
	Running      bool
}

// Client is one registered wireless station
type Client struct {
	MACAddress     string
	Interface      string
	SignalStrength float64
	SignalToNoise  float64
	TxRate         float64
	RxRate         float64
	Uptime         string
}

// Snapshot is one poll of an access point
type Snapshot struct {
	Radios  []Radio
	Clients []Client
}

// Querier reads radios and the registration table over the REST API
type Querier struct {
	API *routeros.Client
}

// Query implements collectors.Querier
func (q *Querier) Query(ctx context.Context, d collectors.Device) (Snapshot, error) {
	if d.APIUser == "" {
		return Snapshot{}, fmt.Errorf("device %s has no api credentials", d.ID)
	}

	radios, err := q.API.Get(ctx, d, "interface/wireless")
	if err != nil {
		return Snapshot{}, err
	}
	regs, err := q.API.Get(ctx, d, "interface/wireless/registration-table")
	if err != nil {
		return Snapshot{}, err
	}

	var snap Snapshot
	for _, r := range radios {
		snap.Radios = append(snap.Radios, Radio{
			Name:         r.String("name", "unknown"),
			MACAddress:   r.String("mac-address", ""),
			SSID:         r.String("ssid", ""),
			Frequency:    r.Float("frequency"),
			Band:         r.String("band", ""),
			ChannelWidth: r.String("channel-width", ""),
			Mode:         r.String("mode", ""),
			TxPower:      r.Float("tx-power"),
			Running:      r.Bool("running"),
		})
	}
	for _, c := range regs {
		snap.Clients = append(snap.Clients, Client{
			MACAddress:     c.String("mac-address", ""),
			Interface:      c.String("interface", ""),
			SignalStrength: c.Float("signal-strength"),
			SignalToNoise:  c.Float("signal-to-noise"),
			TxRate:         c.Float("tx-rate"),
			RxRate:         c.Float("rx-rate"),
			Uptime:         c.String("uptime", ""),
		})
	}
	return snap, nil
}

// Synthesize returns two radios and a time-of-day dependent client count
func Synthesize(_ collectors.Device, now time.Time) Snapshot {
	snap := Snapshot{
		Radios: []Radio{
			{Name: "wlan1", MACAddress: "00:11:22:33:44:55", SSID: "MainWiFi", Frequency: 2462, Band: "2ghz-b/g/n", ChannelWidth: "20MHz", Mode: "ap-bridge", TxPower: 20, Running: true},
			{Name: "wlan2", MACAddress: "00:11:22:33:44:56", SSID: "5G-Network", Frequency: 5500, Band: "5ghz-a/n/ac", ChannelWidth: "80MHz", Mode: "ap-bridge", TxPower: 23, Running: true},
		},
	}

	count := 1
	if collectors.PeriodOf(now) == collectors.BusinessHours {
		count = 3
	}
	for i := 0; i < count; i++ {
		iface, lo, hi := "wlan1", 15_000, 72_000
		if i%2 == 1 {
			iface, lo, hi = "wlan2", 54_000, 433_000
		}
		up := collectors.RandBetween(300, 172_800)
		snap.Clients = append(snap.Clients, Client{
			MACAddress:     randomMAC(),
			Interface:      iface,
			SignalStrength: float64(collectors.RandBetween(-80, -50)),
			SignalToNoise:  float64(collectors.RandBetween(20, 35)),
			TxRate:         float64(collectors.RandBetween(lo, hi)),
			RxRate:         float64(collectors.RandBetween(lo, hi)),
			Uptime:         fmt.Sprintf("%dh%dm%ds", up/3600, up%3600/60, up%60),
		})
	}
	return snap
}

func randomMAC() string {
	b := make([]any, 6)
	for i := range b {
		b[i] = collectors.RandBetween(0, 255)
	}
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", b...)
}

// Observations converts a snapshot into wireless_interface and
// wireless_client observations
func Observations(d collectors.Device, s Snapshot, ts time.Time) []telemetry.Observation {
	var obs []telemetry.Observation
	for _, r := range s.Radios {
		obs = append(obs, telemetry.NewObservation("wireless_interface", map[string]string{
			"device_id":   d.ID,
			"device_name": d.Name,
			"interface":   r.Name,
			"mac_address": r.MACAddress,
			"ssid":        r.SSID,
			"band":        r.Band,
			"mode":        r.Mode,
		}, map[string]float64{
			"frequency": r.Frequency,
			"tx_power":  r.TxPower,
			"status":    telemetry.Bool(r.Running),
		}, ts))
	}
	for _, c := range s.Clients {
		obs = append(obs, telemetry.NewObservation("wireless_client", map[string]string{
			"device_id":   d.ID,
			"device_name": d.Name,
			"interface":   c.Interface,
			"mac_address": c.MACAddress,
		}, map[string]float64{
			"signal_strength": c.SignalStrength,
			"signal_to_noise": c.SignalToNoise,
			"tx_rate":         c.TxRate,
			"rx_rate":         c.RxRate,
			"uptime_seconds":  float64(collectors.ParseDurationSeconds(c.Uptime)),
		}, ts))
	}
	return obs
}

// New builds the collector for every mikrotik device
func New(deps collectors.Deps) (collectors.Collector, error) {
	q := &Querier{API: routeros.NewClient(10 * time.Second)}
	fallback := collectors.WithDemoFallback[Snapshot](q, deps.Prober, Synthesize, deps.Demo, deps.Logger.Named(Name))
	return collectors.NewDeviceCollector[Snapshot](Name, collectors.OfType(deps.Devices, "mikrotik"), fallback, Observations,
		deps.Sink, deps.Logger), nil
}
