// collectors/snmp/snmp.go
package snmp

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"netpoller/collectors"
)

// Client performs SNMPv2c reads against a device
type Client struct {
	Port    uint16
	Timeout time.Duration
	Retries int
}

// NewClient returns a client for the standard agent port
func NewClient(timeout time.Duration) *Client {
	return &Client{Port: 161, Timeout: timeout, Retries: 1}
}

func (c *Client) session(ctx context.Context, d collectors.Device) (*gosnmp.GoSNMP, error) {
	community := d.SNMPCommunity
	if community == "" {
		community = "public"
	}
	g := &gosnmp.GoSNMP{
		Context:   ctx,
		Target:    d.Host,
		Port:      c.Port,
		Community: community,
		Version:   gosnmp.Version2c,
		Timeout:   c.Timeout,
		Retries:   c.Retries,
	}
	if err := g.Connect(); err != nil {
		return nil, fmt.Errorf("snmp connect %s: %w", d.Host, err)
	}
	return g, nil
}

// GetFloats reads scalar OIDs and returns their numeric values keyed by OID
// without the leading dot. Missing objects are an error.
func (c *Client) GetFloats(ctx context.Context, d collectors.Device, oids ...string) (map[string]float64, error) {
	g, err := c.session(ctx, d)
	if err != nil {
		return nil, err
	}
	defer g.Conn.Close()

	pkt, err := g.Get(oids)
	if err != nil {
		return nil, fmt.Errorf("snmp get %s: %w", d.Host, err)
	}
	if pkt.Error != gosnmp.NoError {
		return nil, fmt.Errorf("snmp get %s: %s", d.Host, pkt.Error)
	}

	out := make(map[string]float64, len(pkt.Variables))
	for _, v := range pkt.Variables {
		oid := strings.TrimPrefix(v.Name, ".")
		switch v.Type {
		case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView, gosnmp.Null:
			return nil, fmt.Errorf("snmp get %s: %s not available", d.Host, oid)
		}
		out[oid] = toFloat(v)
	}
	return out, nil
}

// Walk returns every value below root keyed by the index suffix, for
// example "3" for root.3.
func (c *Client) Walk(ctx context.Context, d collectors.Device, root string) (map[string]gosnmp.SnmpPDU, error) {
	g, err := c.session(ctx, d)
	if err != nil {
		return nil, err
	}
	defer g.Conn.Close()

	pdus, err := g.BulkWalkAll(root)
	if err != nil {
		return nil, fmt.Errorf("snmp walk %s %s: %w", d.Host, root, err)
	}

	prefix := "." + strings.TrimPrefix(root, ".") + "."
	out := make(map[string]gosnmp.SnmpPDU, len(pdus))
	for _, p := range pdus {
		if idx, ok := strings.CutPrefix(p.Name, prefix); ok {
			out[idx] = p
		}
	}
	return out, nil
}

// Float converts a numeric PDU value
func Float(p gosnmp.SnmpPDU) float64 {
	return toFloat(p)
}

// String converts an OctetString PDU value
func String(p gosnmp.SnmpPDU) string {
	if b, ok := p.Value.([]byte); ok {
		return string(b)
	}
	return fmt.Sprint(p.Value)
}

func toFloat(p gosnmp.SnmpPDU) float64 {
	n := gosnmp.ToBigInt(p.Value)
	if n == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(n).Float64()
	return f
}
