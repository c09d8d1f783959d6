// sink/queries.go
package sink

import (
	"context"
	"fmt"
	"time"

	"netpoller/telemetry"
)

// DeviceStatus is the latest system snapshot of one device.
type DeviceStatus struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	Type     string             `json:"type"`
	Status   string             `json:"status"`
	LastSeen time.Time          `json:"last_seen"`
	Metrics  map[string]float64 `json:"metrics"`
}

// DeviceStatus returns every device that reported system_metrics within the
// window, with the newest value of each field.
func (c *Client) DeviceStatus(ctx context.Context, window time.Duration) ([]DeviceStatus, error) {
	tables, err := c.Query(ctx, deviceStatusSQL, time.Now().Add(-window).UTC())
	if err != nil {
		return nil, err
	}

	devices := make(map[string]*DeviceStatus)
	var order []string
	for _, t := range tables {
		for _, row := range t.Rows {
			if len(row) < 6 {
				continue
			}
			id := asString(row[0])
			d, ok := devices[id]
			if !ok {
				d = &DeviceStatus{
					ID:       id,
					Name:     asString(row[1]),
					Type:     asString(row[2]),
					Status:   "online",
					LastSeen: asTime(row[5]),
					Metrics:  make(map[string]float64),
				}
				devices[id] = d
				order = append(order, id)
			}
			field := asString(row[3])
			// rows are newest first; keep the first value seen per field
			if _, seen := d.Metrics[field]; !seen {
				d.Metrics[field] = asFloat(row[4])
			}
		}
	}

	out := make([]DeviceStatus, 0, len(order))
	for _, id := range order {
		out = append(out, *devices[id])
	}
	return out, nil
}

// AlertHistory returns up to limit alert records newer than since, newest first.
func (c *Client) AlertHistory(ctx context.Context, since time.Time, limit int) ([]telemetry.AlertRecord, error) {
	tables, err := c.Query(ctx, alertHistorySQL, since.UTC(), limit)
	if err != nil {
		return nil, err
	}

	var out []telemetry.AlertRecord
	for _, t := range tables {
		for _, row := range t.Rows {
			if len(row) < 11 {
				return nil, fmt.Errorf("alert history: unexpected row width %d", len(row))
			}
			out = append(out, telemetry.AlertRecord{
				Time:       asTime(row[0]),
				AlertID:    asString(row[1]),
				Type:       asString(row[2]),
				DeviceID:   asString(row[3]),
				DeviceName: asString(row[4]),
				Resource:   asString(row[5]),
				Message:    asString(row[6]),
				Value:      asFloat(row[7]),
				Threshold:  asFloat(row[8]),
				Count:      int(asFloat(row[9])),
				Active:     asBool(row[10]),
			})
		}
	}
	return out, nil
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int64:
		return float64(t)
	case int32:
		return float64(t)
	case int:
		return float64(t)
	default:
		return 0
	}
}

func asTime(v any) time.Time {
	if t, ok := v.(time.Time); ok {
		return t
	}
	return time.Time{}
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}
