// sink/postgres.go
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"netpoller/telemetry"
)

// Postgres is a Backend on a PostgreSQL (or TimescaleDB) server.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn, verifies the connection and applies migrations.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}

	p := &Postgres{pool: pool}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaMigrationsDDL); err != nil {
		return fmt.Errorf("bootstrap schema_migrations: %w", err)
	}

	var applied *int
	if err := p.pool.QueryRow(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&applied); err != nil {
		return fmt.Errorf("reading applied version: %w", err)
	}
	current := 0
	if applied != nil {
		current = *applied
	}

	migs, err := loadMigrations("postgres")
	if err != nil {
		return err
	}

	for _, m := range pending(migs, current) {
		err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.sql); err != nil {
				return fmt.Errorf("executing %s: %w", m.name, err)
			}
			if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version, name) VALUES ($1, $2)", m.version, m.name); err != nil {
				return fmt.Errorf("recording %s: %w", m.name, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteBatch queues one insert per field and sends them in a single transaction.
func (p *Postgres) WriteBatch(ctx context.Context, batch []telemetry.Observation) error {
	b := &pgx.Batch{}
	for _, obs := range batch {
		tags, err := json.Marshal(obs.Tags)
		if err != nil {
			return fmt.Errorf("encoding tags for %s: %w", obs.Measurement, err)
		}
		series := obs.SeriesKey()
		for field, value := range obs.Fields {
			b.Queue(insertObservationSQL, obs.Time.UTC(), obs.Measurement, series, string(tags), field, value)
		}
	}

	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, b).Close()
	})
}

// WriteAlert appends one alert state transition.
func (p *Postgres) WriteAlert(ctx context.Context, rec telemetry.AlertRecord) error {
	_, err := p.pool.Exec(ctx, insertAlertSQL, alertArgs(rec)...)
	return err
}

// Query runs a SQL expression and returns its result set.
func (p *Postgres) Query(ctx context.Context, expr string, args ...any) ([]Table, error) {
	rows, err := p.pool.Query(ctx, expr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var table Table
	for _, fd := range rows.FieldDescriptions() {
		table.Columns = append(table.Columns, fd.Name)
	}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
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
func (p *Postgres) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	for _, stmt := range deleteBeforeSQL {
		tag, err := p.pool.Exec(ctx, stmt, cutoff.UTC())
		if err != nil {
			return total, err
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

// Close closes the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
