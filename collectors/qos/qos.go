// collectors/qos/qos.go
package qos

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"netpoller/collectors"
	"netpoller/collectors/routeros"
	"netpoller/telemetry"
)

// Name is the module name of this collector
const Name = "qos"

// Queue is one RouterOS simple queue
type Queue struct {
	Name            string
	Target          string
	Parent          string
	MaxLimit        collectors.Bandwidth
	LimitAt         collectors.Bandwidth
	Priority        int
	Disabled        bool
	CurrentDownload float64
	CurrentUpload   float64
}

// Querier reads /queue/simple over the REST API
type Querier struct {
	API *routeros.Client
}

// Query implements collectors.Querier
func (q *Querier) Query(ctx context.Context, d collectors.Device) ([]Queue, error) {
	if d.APIUser == "" {
		return nil, fmt.Errorf("device %s has no api credentials", d.ID)
	}

	rows, err := q.API.Get(ctx, d, "queue/simple")
	if err != nil {
		return nil, err
	}

	queues := make([]Queue, 0, len(rows))
	for _, r := range rows {
		// rate is "download/upload" in bits per second
		rate := collectors.ParseBandwidthLimit(r.String("rate", "0/0"))
		queues = append(queues, Queue{
			Name:            r.String("name", "unknown"),
			Target:          r.String("target", ""),
			Parent:          r.String("parent", "none"),
			MaxLimit:        collectors.ParseBandwidthLimit(r.String("max-limit", "0/0")),
			LimitAt:         collectors.ParseBandwidthLimit(r.String("limit-at", "0/0")),
			Priority:        parsePriority(r.String("priority", "8")),
			Disabled:        r.Bool("disabled"),
			CurrentDownload: float64(rate.Download),
			CurrentUpload:   float64(rate.Upload),
		})
	}
	return queues, nil
}

// RouterOS reports priority as "8/8" (download/upload); the download side is kept
func parsePriority(s string) int {
	down, _, _ := strings.Cut(s, "/")
	p, err := strconv.Atoi(down)
	if err != nil {
		return 8
	}
	return p
}

type demoQueue struct {
	name, target string
	priority     int
	maxLimit     collectors.Bandwidth
	limitAt      collectors.Bandwidth
	// usage share of max-limit per period
	business, evening, night float64
}

var demoQueues = []demoQueue{
	{"Internet", "192.168.1.0/24", 5, collectors.Bandwidth{Download: 50_000_000, Upload: 20_000_000}, collectors.Bandwidth{Download: 20_000_000, Upload: 10_000_000}, 0.8, 0.6, 0.3},
	{"VoIP", "192.168.1.10", 1, collectors.Bandwidth{Download: 1_000_000, Upload: 1_000_000}, collectors.Bandwidth{Download: 1_000_000, Upload: 1_000_000}, 0.7, 0.3, 0.1},
	{"Streaming", "192.168.1.20", 6, collectors.Bandwidth{Download: 20_000_000, Upload: 5_000_000}, collectors.Bandwidth{Download: 10_000_000, Upload: 2_000_000}, 0.4, 0.9, 0.2},
	{"Gaming", "192.168.1.30", 3, collectors.Bandwidth{Download: 15_000_000, Upload: 10_000_000}, collectors.Bandwidth{Download: 10_000_000, Upload: 5_000_000}, 0.2, 0.7, 0.1},
}

// Synthesize returns four queues whose usage follows the time of day
func Synthesize(_ collectors.Device, now time.Time) []Queue {
	period := collectors.PeriodOf(now)

	queues := make([]Queue, 0, len(demoQueues))
	for _, dq := range demoQueues {
		base := dq.night
		switch period {
		case collectors.BusinessHours:
			base = dq.business
		case collectors.Evening:
			base = dq.evening
		}
		usage := collectors.RandFactor(base, 0.1, 0.05, 0.95)

		queues = append(queues, Queue{
			Name:            dq.name,
			Target:          dq.target,
			Parent:          "none",
			MaxLimit:        dq.maxLimit,
			LimitAt:         dq.limitAt,
			Priority:        dq.priority,
			CurrentDownload: float64(int64(float64(dq.maxLimit.Download) * usage)),
			CurrentUpload:   float64(int64(float64(dq.maxLimit.Upload) * usage)),
		})
	}
	return queues
}

// Observations converts queues into qos_queue observations
func Observations(d collectors.Device, queues []Queue, ts time.Time) []telemetry.Observation {
	obs := make([]telemetry.Observation, 0, len(queues))
	for _, q := range queues {
		obs = append(obs, telemetry.NewObservation("qos_queue", map[string]string{
			"device_id":   d.ID,
			"device_name": d.Name,
			"queue_name":  q.Name,
			"target":      q.Target,
			"parent":      q.Parent,
			"priority":    strconv.Itoa(q.Priority),
		}, map[string]float64{
			"max_limit_download": float64(q.MaxLimit.Download),
			"max_limit_upload":   float64(q.MaxLimit.Upload),
			"limit_at_download":  float64(q.LimitAt.Download),
			"limit_at_upload":    float64(q.LimitAt.Upload),
			"current_download":   q.CurrentDownload,
			"current_upload":     q.CurrentUpload,
			"disabled":           telemetry.Bool(q.Disabled),
		}, ts))
	}
	return obs
}

// New builds the collector for every mikrotik device
func New(deps collectors.Deps) (collectors.Collector, error) {
	q := &Querier{API: routeros.NewClient(10 * time.Second)}
	fallback := collectors.WithDemoFallback[[]Queue](q, deps.Prober, Synthesize, deps.Demo, deps.Logger.Named(Name))
	return collectors.NewDeviceCollector[[]Queue](Name, collectors.OfType(deps.Devices, "mikrotik"), fallback, Observations,
		deps.Sink, deps.Logger), nil
}
