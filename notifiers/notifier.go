// notifiers/notifier.go
package notifiers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"netpoller/alerting"
)

// Kinds of notification
const (
	KindAlert    = "alert"
	KindResolved = "resolved"
)

// Notification is one alert message to deliver to every notifier
type Notification struct {
	ID        uuid.UUID      `json:"id"`
	Kind      string         `json:"kind"`
	Subject   string         `json:"subject"`
	Body      string         `json:"body"`
	Event     alerting.Event `json:"event"`
	CreatedAt time.Time      `json:"created_at"`
}

// FromEvent builds the notification for an alert event
func FromEvent(ev alerting.Event) Notification {
	kind := KindAlert
	if ev.Cleared {
		kind = KindResolved
	}

	target := ev.DeviceName
	if target == "" {
		target = ev.DeviceID
	}
	if ev.Resource != "" {
		target += " " + ev.Resource
	}

	subject := fmt.Sprintf("[%s] %s alert on %s", strings.ToUpper(kind), ev.Type, target)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", ev.Message)
	fmt.Fprintf(&b, "Alert ID: %s\n", ev.AlertID)
	fmt.Fprintf(&b, "Device: %s (%s)\n", ev.DeviceName, ev.DeviceID)
	if ev.Resource != "" {
		fmt.Fprintf(&b, "Resource: %s\n", ev.Resource)
	}
	fmt.Fprintf(&b, "Value: %.2f\n", ev.Value)
	fmt.Fprintf(&b, "Threshold: %.2f\n", ev.Threshold)
	fmt.Fprintf(&b, "Occurrences: %d\n", ev.Count)
	fmt.Fprintf(&b, "Time: %s\n", ev.Time.Format(time.RFC1123))

	return Notification{
		ID:        uuid.New(),
		Kind:      kind,
		Subject:   subject,
		Body:      b.String(),
		Event:     ev,
		CreatedAt: ev.Time,
	}
}

// Notifier defines the interface that all notification methods must implement
type Notifier interface {
	// Name returns the unique name of the notifier
	Name() string

	// Notify delivers one notification
	Notify(ctx context.Context, n Notification) error

	// Close performs any necessary cleanup operations
	Close() error
}
