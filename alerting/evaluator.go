// alerting/evaluator.go
package alerting

import (
	"context"
	"fmt"

	"netpoller/config"
)

// Sample is one measured percentage to check against its threshold
type Sample struct {
	Type       string
	DeviceID   string
	DeviceName string
	Resource   string
	Value      float64
}

// Evaluator compares samples with the configured thresholds. It raises
// when a value is above its threshold and, with auto-clear on, clears an
// active alert once a value is back at or below it.
type Evaluator struct {
	engine     *Engine
	thresholds map[string]float64
	autoClear  bool
}

// NewEvaluator creates an evaluator for the cpu, memory and disk thresholds
func NewEvaluator(engine *Engine, th config.ThresholdConfig, autoClear bool) *Evaluator {
	return &Evaluator{
		engine: engine,
		thresholds: map[string]float64{
			TypeCPU:    th.CPU,
			TypeMemory: th.Memory,
			TypeDisk:   th.Disk,
		},
		autoClear: autoClear,
	}
}

// Threshold returns the configured threshold for an alert type
func (ev *Evaluator) Threshold(alertType string) (float64, bool) {
	th, ok := ev.thresholds[alertType]
	return th, ok
}

// Check evaluates one sample. Samples of unknown type are ignored.
func (ev *Evaluator) Check(ctx context.Context, s Sample) {
	if ev == nil {
		return
	}
	threshold, ok := ev.thresholds[s.Type]
	if !ok {
		return
	}

	b := Breach{
		Type:       s.Type,
		DeviceID:   s.DeviceID,
		DeviceName: s.DeviceName,
		Resource:   s.Resource,
		Value:      s.Value,
		Threshold:  threshold,
	}

	if s.Value > threshold {
		b.Message = message(s, threshold)
		ev.engine.Raise(ctx, b)
		return
	}

	if ev.autoClear && ev.engine.IsActive(b.Key()) {
		ev.engine.Clear(ctx, b.Key())
	}
}

func message(s Sample, threshold float64) string {
	switch s.Type {
	case TypeCPU:
		return fmt.Sprintf("CPU usage alert: %.1f%% (threshold: %.1f%%)", s.Value, threshold)
	case TypeMemory:
		return fmt.Sprintf("Memory usage alert: %.1f%% (threshold: %.1f%%)", s.Value, threshold)
	case TypeDisk:
		return fmt.Sprintf("Disk usage alert: %s at %.1f%% (threshold: %.1f%%)", s.Resource, s.Value, threshold)
	default:
		return fmt.Sprintf("%s alert: %.1f (threshold: %.1f)", s.Type, s.Value, threshold)
	}
}
