// sink/duckdb.go
package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"netpoller/telemetry"
)

// DuckDB is an embedded Backend. All connections of the pool share one
// database, so an empty path gives a process-local in-memory store.
type DuckDB struct {
	db *sql.DB
}

// NewDuckDB opens or creates the database at path and applies migrations.
// If path is empty, an in-memory database is used.
func NewDuckDB(path string) (*DuckDB, error) {
	dsn := ""
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		dsn = path
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, err
	}

	if err := migrateDuckDB(db); err != nil {
		db.Close()
		return nil, err
	}

	return &DuckDB{db: db}, nil
}

func migrateDuckDB(db *sql.DB) error {
	if _, err := db.Exec(schemaMigrationsDDL); err != nil {
		return fmt.Errorf("bootstrap schema_migrations: %w", err)
	}

	var applied sql.NullInt64
	if err := db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&applied); err != nil {
		return fmt.Errorf("reading applied version: %w", err)
	}

	migs, err := loadMigrations("duckdb")
	if err != nil {
		return err
	}

	for _, m := range pending(migs, int(applied.Int64)) {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for %s: %w", m.name, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing %s: %w", m.name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.version, m.name); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording %s: %w", m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", m.name, err)
		}
	}
	return nil
}

// WriteBatch stores every field of every observation in one transaction.
func (d *DuckDB) WriteBatch(ctx context.Context, batch []telemetry.Observation) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertObservationSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, obs := range batch {
		tags, err := json.Marshal(obs.Tags)
		if err != nil {
			return fmt.Errorf("encoding tags for %s: %w", obs.Measurement, err)
		}
		series := obs.SeriesKey()
		for field, value := range obs.Fields {
			if _, err := stmt.ExecContext(ctx, obs.Time.UTC(), obs.Measurement, series, string(tags), field, value); err != nil {
				return fmt.Errorf("inserting %s.%s: %w", obs.Measurement, field, err)
			}
		}
	}

	return tx.Commit()
}

// WriteAlert appends one alert state transition.
func (d *DuckDB) WriteAlert(ctx context.Context, rec telemetry.AlertRecord) error {
	_, err := d.db.ExecContext(ctx, insertAlertSQL, alertArgs(rec)...)
	return err
}

// Query runs a SQL expression and returns its single result set.
func (d *DuckDB) Query(ctx context.Context, expr string, args ...any) ([]Table, error) {
	rows, err := d.db.QueryContext(ctx, expr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	table := Table{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		table.Rows = append(table.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return []Table{table}, nil
}

// DeleteBefore removes observations and alert records older than cutoff.
func (d *DuckDB) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	for _, stmt := range deleteBeforeSQL {
		res, err := d.db.ExecContext(ctx, stmt, cutoff.UTC())
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// Close closes the database.
func (d *DuckDB) Close() error {
	return d.db.Close()
}
