// alerting/engine.go
package alerting

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"netpoller/config"
	"netpoller/telemetry"
)

// DefaultSuppressionWindow is how long repeat triggers stay quiet
const DefaultSuppressionWindow = 5 * time.Minute

// AlertWriter persists alert state transitions
type AlertWriter interface {
	WriteAlert(ctx context.Context, rec telemetry.AlertRecord) error
}

// Publisher delivers alert events. Publish must not block.
type Publisher interface {
	Publish(ev Event)
}

// Anchor selects what the suppression window is measured from
type Anchor int

const (
	// FromLastNotification re-notifies at most once per window
	FromLastNotification Anchor = iota
	// FromFirstSeen re-notifies on every trigger once the window since the
	// first occurrence has passed
	FromFirstSeen
)

// ParseAnchor maps the config value onto an Anchor
func ParseAnchor(s string) (Anchor, error) {
	switch s {
	case "", config.AnchorLastNotification:
		return FromLastNotification, nil
	case config.AnchorFirstSeen:
		return FromFirstSeen, nil
	default:
		return 0, fmt.Errorf("unknown suppression anchor %q", s)
	}
}

// Breach is one threshold violation reported by a caller
type Breach struct {
	Type       string
	DeviceID   string
	DeviceName string
	Resource   string
	Message    string
	Value      float64
	Threshold  float64
}

// Key returns the alert key of the breach
func (b Breach) Key() Key {
	return Key{Type: b.Type, DeviceID: b.DeviceID, Resource: b.Resource}
}

// Engine deduplicates breaches into alerts, persists every transition and
// emits notifications outside the suppression window.
type Engine struct {
	store     *Store
	writer    AlertWriter
	publisher Publisher
	window    time.Duration
	anchor    Anchor
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithSuppressionWindow sets the re-notification window
func WithSuppressionWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.window = d
		}
	}
}

// WithAnchor sets what the suppression window is measured from
func WithAnchor(a Anchor) Option {
	return func(e *Engine) { e.anchor = a }
}

// WithPublisher sets the notification target
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine over store persisting through writer
func NewEngine(store *Store, writer AlertWriter, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		writer: writer,
		window: DefaultSuppressionWindow,
		anchor: FromLastNotification,
		logger: logger.Named("alerting"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Raise records a breach. A new key creates an alert and notifies; an
// existing key updates count, value and last-seen, and notifies only once
// the suppression window has elapsed. Every call persists a record.
// It reports whether a notification was emitted.
func (e *Engine) Raise(ctx context.Context, b Breach) (Alert, bool) {
	key := b.Key()
	msg := b.Message
	if msg == "" {
		msg = defaultMessage(b)
	}

	var (
		result Alert
		notify bool
	)
	e.store.Update(key, func(cur *Alert) *Alert {
		now := e.now()

		var a Alert
		if cur == nil {
			a = Alert{
				Key:          key,
				ID:           key.ID(),
				Type:         b.Type,
				DeviceID:     b.DeviceID,
				DeviceName:   b.DeviceName,
				Resource:     b.Resource,
				Message:      msg,
				Value:        b.Value,
				Threshold:    b.Threshold,
				Count:        1,
				FirstSeen:    now,
				LastSeen:     now,
				LastNotified: now,
				Active:       true,
			}
			notify = true
		} else {
			a = *cur
			a.Count++
			a.LastSeen = now
			a.Value = b.Value
			a.Message = msg
			if b.DeviceName != "" {
				a.DeviceName = b.DeviceName
			}

			since := a.LastNotified
			if e.anchor == FromFirstSeen {
				since = a.FirstSeen
			}
			if now.Sub(since) >= e.window {
				notify = true
				a.LastNotified = now
			}
		}

		e.persist(ctx, a.Record(now))
		result = a
		return &a
	})

	if notify {
		e.logger.Warn("ALERT", zap.String("alert_id", result.ID), zap.String("message", result.Message),
			zap.Int("count", result.Count))
		e.publish(eventOf(result, false, result.LastSeen))
	} else {
		e.logger.Debug("Suppressing repeated alert", zap.String("alert_id", result.ID),
			zap.Int("count", result.Count))
	}
	return result, notify
}

// Clear deactivates the alert for key: a record with active=false and a
// CLEARED message is persisted and the key is removed. Clearing an unknown
// key is a no-op. It reports whether an alert was cleared.
func (e *Engine) Clear(ctx context.Context, key Key) bool {
	var (
		cleared Alert
		found   bool
	)
	e.store.Update(key, func(cur *Alert) *Alert {
		if cur == nil {
			return nil
		}
		now := e.now()

		cleared = *cur
		cleared.Active = false
		cleared.LastSeen = now
		cleared.Message = "CLEARED: " + cur.Message
		found = true

		e.persist(ctx, cleared.Record(now))
		return nil
	})

	if !found {
		e.logger.Debug("Cannot clear non-existent alert", zap.String("alert_id", key.ID()))
		return false
	}

	e.logger.Info("Cleared alert", zap.String("alert_id", cleared.ID))
	e.publish(eventOf(cleared, true, cleared.LastSeen))
	return true
}

// IsActive reports whether key has an active alert
func (e *Engine) IsActive(key Key) bool {
	_, ok := e.store.Get(key)
	return ok
}

// Active returns a snapshot of the active alerts
func (e *Engine) Active() []Alert {
	return e.store.Active()
}

func (e *Engine) persist(ctx context.Context, rec telemetry.AlertRecord) {
	if e.writer == nil {
		return
	}
	if err := e.writer.WriteAlert(ctx, rec); err != nil {
		e.logger.Error("Error storing alert", zap.String("alert_id", rec.AlertID), zap.Error(err))
	}
}

func (e *Engine) publish(ev Event) {
	if e.publisher != nil {
		e.publisher.Publish(ev)
	}
}

func defaultMessage(b Breach) string {
	target := b.DeviceID
	if b.Resource != "" {
		target += " " + b.Resource
	}
	return fmt.Sprintf("%s alert on %s: %.2f (threshold: %.2f)", b.Type, target, b.Value, b.Threshold)
}
