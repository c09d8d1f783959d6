// telemetry/alert.go
package telemetry

import "time"

// AlertMeasurement is the measurement name alert state transitions are stored under.
const AlertMeasurement = "alerts"

// NoResource is stored in the resource column when an alert has no resource.
const NoResource = "none"

// AlertRecord is one persisted alert state transition.
type AlertRecord struct {
	AlertID    string    `json:"alert_id"`
	Type       string    `json:"type"`
	DeviceID   string    `json:"device_id"`
	DeviceName string    `json:"device_name"`
	Resource   string    `json:"resource"`
	Message    string    `json:"message"`
	Value      float64   `json:"value"`
	Threshold  float64   `json:"threshold"`
	Count      int       `json:"count"`
	Active     bool      `json:"active"`
	Time       time.Time `json:"time"`
}
