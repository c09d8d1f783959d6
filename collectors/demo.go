// collectors/demo.go
package collectors

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Querier is the uniform fallible device query used by every collector
type Querier[T any] interface {
	Query(ctx context.Context, d Device) (T, error)
}

// QuerierFunc adapts a function to the Querier interface
type QuerierFunc[T any] func(ctx context.Context, d Device) (T, error)

// Query calls f(ctx, d)
func (f QuerierFunc[T]) Query(ctx context.Context, d Device) (T, error) {
	return f(ctx, d)
}

// Synthesizer produces plausible values for a device at a point in time
type Synthesizer[T any] func(d Device, now time.Time) T

// DemoFallback wraps a Querier and substitutes synthetic values when the
// device fails its probe or the query itself fails.
type DemoFallback[T any] struct {
	next    Querier[T]
	prober  Prober
	synth   Synthesizer[T]
	enabled bool
	logger  *zap.Logger
	now     func() time.Time
}

// WithDemoFallback decorates next. When enabled is false, probe and query
// failures are returned to the caller; devices in demo mode are always
// synthesized.
func WithDemoFallback[T any](next Querier[T], prober Prober, synth Synthesizer[T], enabled bool, logger *zap.Logger) *DemoFallback[T] {
	return &DemoFallback[T]{
		next:    next,
		prober:  prober,
		synth:   synth,
		enabled: enabled,
		logger:  logger,
		now:     time.Now,
	}
}

// Query implements Querier
func (f *DemoFallback[T]) Query(ctx context.Context, d Device) (T, error) {
	if d.DemoMode {
		f.logger.Debug("Using demo data", zap.String("device", d.ID))
		return f.synth(d, f.now()), nil
	}

	if f.prober != nil {
		if err := f.prober.Probe(ctx, d); err != nil {
			return f.fallback(ctx, d, err)
		}
	}

	v, err := f.next.Query(ctx, d)
	if err != nil {
		return f.fallback(ctx, d, err)
	}
	return v, nil
}

func (f *DemoFallback[T]) fallback(ctx context.Context, d Device, cause error) (T, error) {
	var zero T
	if ctxErr := ctx.Err(); ctxErr != nil {
		return zero, ctxErr
	}
	if !f.enabled {
		return zero, cause
	}

	f.logger.Warn("Device query failed, falling back to demo data",
		zap.String("device", d.ID),
		zap.String("host", d.Host),
		zap.Error(cause))
	return f.synth(d, f.now()), nil
}

// DayPeriod buckets the hour of day for demo load shaping
type DayPeriod int

const (
	Night DayPeriod = iota
	BusinessHours
	Evening
)

// PeriodOf returns the period of t's local hour: 8-18 business, 19-23 evening
func PeriodOf(t time.Time) DayPeriod {
	switch h := t.Hour(); {
	case h >= 8 && h <= 18:
		return BusinessHours
	case h >= 19 && h <= 23:
		return Evening
	default:
		return Night
	}
}

// RandBetween returns a uniform integer in [lo, hi]
func RandBetween(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rand.IntN(hi-lo+1)
}

// RandFactor returns base moved by up to ±spread, clamped to [lo, hi]
func RandFactor(base, spread, lo, hi float64) float64 {
	v := base + (rand.Float64()*2-1)*spread
	return min(max(v, lo), hi)
}
