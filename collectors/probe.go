// collectors/probe.go
package collectors

import (
	"context"
	"fmt"
	"net"

	"netpoller/config"
)

// Prober decides whether a device can be reached at all
type Prober interface {
	Probe(ctx context.Context, d Device) error
}

// ProberFunc adapts a function to the Prober interface
type ProberFunc func(ctx context.Context, d Device) error

// Probe calls f(ctx, d)
func (f ProberFunc) Probe(ctx context.Context, d Device) error {
	return f(ctx, d)
}

// TCPProber opens and closes a TCP connection to the device probe port
type TCPProber struct{}

// Probe returns an error wrapping ErrUnreachable if the connection fails
func (TCPProber) Probe(ctx context.Context, d Device) error {
	if d.Host == "" {
		return fmt.Errorf("%w: %s has no host", ErrUnreachable, d.ID)
	}

	timeout := d.ProbeTimeout
	if timeout <= 0 {
		timeout = config.DefaultProbeTimeout
	}
	dialer := net.Dialer{Timeout: timeout}

	addr := d.ProbeAddr()
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnreachable, addr, err)
	}
	return conn.Close()
}
