// sink/client.go
package sink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"netpoller/telemetry"
)

// Client is the process-wide handle to the metric sink. It owns one Backend
// and re-opens it once after any failed call; the failed call itself is
// logged and dropped.
type Client struct {
	open    Opener
	logger  *zap.Logger
	mu      sync.RWMutex
	backend Backend
	closed  bool
}

// NewClient creates a client and makes a first connection attempt. A failed
// attempt is logged only; the next call retries.
func NewClient(ctx context.Context, open Opener, logger *zap.Logger) *Client {
	c := &Client{
		open:   open,
		logger: logger.Named("sink"),
	}

	backend, err := open(ctx)
	if err != nil {
		c.logger.Error("Failed to connect to metric sink", zap.Error(err))
	} else {
		c.backend = backend
		c.logger.Info("Connected to metric sink")
	}
	return c
}

// Write submits one collection cycle's observations as a single batch.
func (c *Client) Write(ctx context.Context, batch []telemetry.Observation) error {
	if len(batch) == 0 {
		return nil
	}
	return c.do(ctx, "write", func(b Backend) error {
		return b.WriteBatch(ctx, batch)
	})
}

// WriteAlert stores one alert state transition.
func (c *Client) WriteAlert(ctx context.Context, rec telemetry.AlertRecord) error {
	return c.do(ctx, "write alert", func(b Backend) error {
		return b.WriteAlert(ctx, rec)
	})
}

// Query runs a backend query expression.
func (c *Client) Query(ctx context.Context, expr string, args ...any) ([]Table, error) {
	var tables []Table
	err := c.do(ctx, "query", func(b Backend) error {
		var err error
		tables, err = b.Query(ctx, expr, args...)
		return err
	})
	return tables, err
}

// DeleteBefore removes observations older than cutoff.
func (c *Client) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := c.do(ctx, "delete", func(b Backend) error {
		var err error
		n, err = b.DeleteBefore(ctx, cutoff)
		return err
	})
	return n, err
}

// Close releases the backend. Calls after Close return ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.backend == nil {
		return nil
	}
	err := c.backend.Close()
	c.backend = nil
	return err
}

func (c *Client) do(ctx context.Context, op string, fn func(Backend) error) error {
	b, err := c.current(ctx)
	if err != nil {
		c.logger.Error("Cannot "+op+": metric sink not connected", zap.Error(err))
		return err
	}

	if err := fn(b); err != nil {
		c.logger.Error("Metric sink "+op+" failed", zap.Error(err))
		c.reconnect(ctx, b)
		return fmt.Errorf("sink %s: %w", op, err)
	}
	return nil
}

// current returns the live backend, connecting if there is none.
func (c *Client) current(ctx context.Context) (Backend, error) {
	c.mu.RLock()
	b, closed := c.backend, c.closed
	c.mu.RUnlock()

	if closed {
		return nil, ErrClosed
	}
	if b != nil {
		return b, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.backend != nil {
		return c.backend, nil
	}
	b, err := c.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	c.backend = b
	c.logger.Info("Connected to metric sink")
	return b, nil
}

// reconnect replaces failed with a fresh backend unless another caller
// already did so.
func (c *Client) reconnect(ctx context.Context, failed Backend) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.backend != failed {
		return
	}
	if err := failed.Close(); err != nil {
		c.logger.Warn("Error closing failed sink backend", zap.Error(err))
	}
	c.backend = nil

	b, err := c.open(ctx)
	if err != nil {
		c.logger.Error("Failed to reconnect to metric sink", zap.Error(err))
		return
	}
	c.backend = b
	c.logger.Info("Reconnected to metric sink")
}
