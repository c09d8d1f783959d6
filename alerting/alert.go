// alerting/alert.go
package alerting

import (
	"time"

	"netpoller/telemetry"
)

// Alert types raised by the threshold evaluator
const (
	TypeCPU    = "cpu"
	TypeMemory = "memory"
	TypeDisk   = "disk"
)

// Key identifies an alert. At most one active alert exists per key.
type Key struct {
	Type     string
	DeviceID string
	Resource string
}

// ID returns the stable alert id: type_device or type_device_resource
func (k Key) ID() string {
	id := k.Type + "_" + k.DeviceID
	if k.Resource != "" {
		id += "_" + k.Resource
	}
	return id
}

// Alert is the tracked state of one alert key
type Alert struct {
	Key          Key       `json:"-"`
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	DeviceID     string    `json:"device_id"`
	DeviceName   string    `json:"device_name"`
	Resource     string    `json:"resource,omitempty"`
	Message      string    `json:"message"`
	Value        float64   `json:"value"`
	Threshold    float64   `json:"threshold"`
	Count        int       `json:"count"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	LastNotified time.Time `json:"last_notified"`
	Active       bool      `json:"active"`
}

// Record converts the alert into the persisted form
func (a Alert) Record(ts time.Time) telemetry.AlertRecord {
	resource := a.Resource
	if resource == "" {
		resource = telemetry.NoResource
	}
	name := a.DeviceName
	if name == "" {
		name = a.DeviceID
	}
	return telemetry.AlertRecord{
		AlertID:    a.ID,
		Type:       a.Type,
		DeviceID:   a.DeviceID,
		DeviceName: name,
		Resource:   resource,
		Message:    a.Message,
		Value:      a.Value,
		Threshold:  a.Threshold,
		Count:      a.Count,
		Active:     a.Active,
		Time:       ts,
	}
}

// Event is emitted to notifiers when an alert fires or clears
type Event struct {
	AlertID    string
	Type       string
	DeviceID   string
	DeviceName string
	Resource   string
	Message    string
	Value      float64
	Threshold  float64
	Count      int
	Cleared    bool
	Time       time.Time
}

func eventOf(a Alert, cleared bool, ts time.Time) Event {
	return Event{
		AlertID:    a.ID,
		Type:       a.Type,
		DeviceID:   a.DeviceID,
		DeviceName: a.DeviceName,
		Resource:   a.Resource,
		Message:    a.Message,
		Value:      a.Value,
		Threshold:  a.Threshold,
		Count:      a.Count,
		Cleared:    cleared,
		Time:       ts,
	}
}
