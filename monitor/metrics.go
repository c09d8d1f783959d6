// monitor/metrics.go
package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the scheduler self-metrics
type Metrics struct {
	cycles   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	restarts *prometheus.CounterVec
	running  *prometheus.GaugeVec
}

// NewMetrics creates the scheduler metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netpoller",
			Name:      "collector_cycles_total",
			Help:      "Collection cycles by collector and result.",
		}, []string{"collector", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "netpoller",
			Name:      "collector_cycle_duration_seconds",
			Help:      "Duration of collection cycles.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"collector"}),
		restarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netpoller",
			Name:      "collector_restarts_total",
			Help:      "Collector loops restarted after an unexpected exit.",
		}, []string{"collector"}),
		running: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "netpoller",
			Name:      "collector_running",
			Help:      "Whether the collector loop is running.",
		}, []string{"collector"}),
	}
	if reg != nil {
		reg.MustRegister(m.cycles, m.duration, m.restarts, m.running)
	}
	return m
}

func (m *Metrics) observeCycle(name string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.cycles.WithLabelValues(name, result).Inc()
	m.duration.WithLabelValues(name).Observe(elapsed.Seconds())
}

func (m *Metrics) restarted(name string) {
	if m == nil {
		return
	}
	m.restarts.WithLabelValues(name).Inc()
}

func (m *Metrics) setRunning(name string, running bool) {
	if m == nil {
		return
	}
	v := 0.0
	if running {
		v = 1
	}
	m.running.WithLabelValues(name).Set(v)
}
