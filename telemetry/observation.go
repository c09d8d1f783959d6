// telemetry/observation.go
package telemetry

import (
	"maps"
	"sort"
	"strings"
	"time"
)

// Observation is one tagged, timestamped set of numeric fields for a measurement.
// Tags identify the series; fields carry the values.
type Observation struct {
	Measurement string             `json:"measurement"`
	Tags        map[string]string  `json:"tags"`
	Fields      map[string]float64 `json:"fields"`
	Time        time.Time          `json:"time"`
}

// NewObservation builds an observation stamped with ts. Tags and fields are
// copied so the caller can keep mutating its own maps.
func NewObservation(measurement string, tags map[string]string, fields map[string]float64, ts time.Time) Observation {
	return Observation{
		Measurement: measurement,
		Tags:        maps.Clone(tags),
		Fields:      maps.Clone(fields),
		Time:        ts,
	}
}

// SeriesKey returns a stable identifier for the series: the measurement
// followed by its tags sorted by key.
func (o Observation) SeriesKey() string {
	keys := make([]string, 0, len(o.Tags))
	for k := range o.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(o.Measurement)
	for _, k := range keys {
		b.WriteByte(',')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(o.Tags[k])
	}
	return b.String()
}

// Bool converts a flag into the 1/0 field encoding used by every measurement.
func Bool(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
