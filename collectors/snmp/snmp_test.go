package snmp

import (
	"context"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"

	"netpoller/collectors"
)

func TestFloat(t *testing.T) {
	tests := []struct {
		name string
		pdu  gosnmp.SnmpPDU
		want float64
	}{
		{"integer", gosnmp.SnmpPDU{Type: gosnmp.Integer, Value: 42}, 42},
		{"gauge", gosnmp.SnmpPDU{Type: gosnmp.Gauge32, Value: uint(268435456)}, 268435456},
		{"counter64", gosnmp.SnmpPDU{Type: gosnmp.Counter64, Value: uint64(1) << 40}, 1 << 40},
		{"counter32", gosnmp.SnmpPDU{Type: gosnmp.Counter32, Value: uint(7)}, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Float(tt.pdu); got != tt.want {
				t.Errorf("Float = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestString(t *testing.T) {
	if got := String(gosnmp.SnmpPDU{Type: gosnmp.OctetString, Value: []byte("ether1")}); got != "ether1" {
		t.Errorf("String = %q, want ether1", got)
	}
	if got := String(gosnmp.SnmpPDU{Type: gosnmp.Integer, Value: 3}); got != "3" {
		t.Errorf("String = %q, want 3", got)
	}
}

func TestGetFloatsUnreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("sends UDP")
	}
	c := &Client{Port: 9, Timeout: 50 * time.Millisecond, Retries: 0}
	d := collectors.Device{ID: "r1", Host: "127.0.0.1"}
	if _, err := c.GetFloats(context.Background(), d, "1.3.6.1.2.1.1.3.0"); err == nil {
		t.Error("expected error from a closed port")
	}
}
