// collectors/collector.go
package collectors

import (
	"context"
	"errors"

	"netpoller/telemetry"
)

var (
	// ErrUnreachable is returned when a device fails its reachability probe
	ErrUnreachable = errors.New("device unreachable")

	// ErrDuplicateCollector is returned when two collectors share a name
	ErrDuplicateCollector = errors.New("collector already registered")
)

// Collector defines the interface that all collectors must implement
type Collector interface {
	// Name returns the unique name of the collector
	Name() string

	// Init prepares the collector from its settings. It is called once
	// before the first Collect and is safe to call again.
	Init(settings map[string]interface{}) error

	// Collect runs one cycle: query every device, normalize the results and
	// write them to the sink as a single batch. Device failures are handled
	// inside the cycle; a returned error means the cycle as a whole failed.
	Collect(ctx context.Context) error

	// Cleanup performs any necessary cleanup operations
	Cleanup() error
}

// Sink receives the observations of one collection cycle
type Sink interface {
	Write(ctx context.Context, batch []telemetry.Observation) error
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(ctx context.Context, batch []telemetry.Observation) error

// Write calls f(ctx, batch)
func (f SinkFunc) Write(ctx context.Context, batch []telemetry.Observation) error {
	return f(ctx, batch)
}
