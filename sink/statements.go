// sink/statements.go
package sink

import "netpoller/telemetry"

// Statements use $n placeholders, which DuckDB and PostgreSQL both accept.
const (
	insertObservationSQL = `INSERT INTO observations (ts, measurement, series, tags, field, value)
		VALUES ($1, $2, $3, $4, $5, $6)`

	insertAlertSQL = `INSERT INTO alerts (ts, alert_id, type, device_id, device_name, resource,
		message, value, threshold, count, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	// JSON extraction is parenthesised; DuckDB binds ->> looser than =.
	deviceStatusSQL = `SELECT (tags->>'device_id') AS device_id,
		(tags->>'device_name') AS device_name,
		(tags->>'device_type') AS device_type,
		field, value, ts
		FROM observations
		WHERE measurement = 'system_metrics' AND ts >= $1
		ORDER BY ts DESC`

	alertHistorySQL = `SELECT ts, alert_id, type, device_id, device_name, resource,
		message, value, threshold, count, active
		FROM alerts
		WHERE ts >= $1
		ORDER BY ts DESC
		LIMIT $2`
)

var deleteBeforeSQL = []string{
	`DELETE FROM observations WHERE ts < $1`,
	`DELETE FROM alerts WHERE ts < $1`,
}

func alertArgs(rec telemetry.AlertRecord) []any {
	resource := rec.Resource
	if resource == "" {
		resource = telemetry.NoResource
	}
	deviceName := rec.DeviceName
	if deviceName == "" {
		deviceName = rec.DeviceID
	}
	return []any{
		rec.Time.UTC(), rec.AlertID, rec.Type, rec.DeviceID, deviceName, resource,
		rec.Message, rec.Value, rec.Threshold, rec.Count, rec.Active,
	}
}
