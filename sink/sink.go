// sink/sink.go
package sink

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"netpoller/config"
	"netpoller/telemetry"
)

// ErrClosed is returned by a Client after Close.
var ErrClosed = errors.New("sink: client closed")

// Table is the result of a query: column names and row values in column order.
type Table struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Backend is a concrete time-series store. Implementations must be safe for
// concurrent use; each WriteBatch call is applied as one unit.
type Backend interface {
	WriteBatch(ctx context.Context, batch []telemetry.Observation) error
	WriteAlert(ctx context.Context, rec telemetry.AlertRecord) error
	Query(ctx context.Context, expr string, args ...any) ([]Table, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

// Opener connects a new Backend. The Client calls it at start-up and again
// whenever a write or query fails.
type Opener func(ctx context.Context) (Backend, error)

// FromConfig returns the Opener for the configured driver.
func FromConfig(cfg config.SinkConfig) (Opener, error) {
	switch cfg.Driver {
	case "", "duckdb":
		path := cfg.Path
		return func(context.Context) (Backend, error) {
			return NewDuckDB(path)
		}, nil
	case "postgres":
		dsn := postgresDSN(cfg)
		return func(ctx context.Context) (Backend, error) {
			return NewPostgres(ctx, dsn)
		}, nil
	default:
		return nil, fmt.Errorf("unknown sink driver %q", cfg.Driver)
	}
}

// postgresDSN maps the generic sink parameters onto a connection URL: org is
// the database role, token its password and bucket the database name.
func postgresDSN(cfg config.SinkConfig) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Bucket,
	}
	if cfg.Org != "" {
		u.User = url.UserPassword(cfg.Org, cfg.Token)
	}
	return u.String()
}
