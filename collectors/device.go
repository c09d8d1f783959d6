// collectors/device.go
package collectors

import (
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"netpoller/alerting"
	"netpoller/config"
)

// Device describes one polled network device
type Device struct {
	ID            string
	Name          string
	Type          string
	Host          string
	SNMPCommunity string
	APIUser       string
	APIPassword   string
	APIPort       int
	UseTLS        bool
	ProbePort     int
	ProbeTimeout  time.Duration
	DemoMode      bool
}

// DeviceFromConfig converts a validated device entry
func DeviceFromConfig(c config.DeviceConfig) Device {
	return Device{
		ID:            c.ID,
		Name:          c.Name,
		Type:          c.Type,
		Host:          c.Host,
		SNMPCommunity: c.SNMPCommunity,
		APIUser:       c.APIUser,
		APIPassword:   c.APIPassword,
		APIPort:       c.APIPort,
		UseTLS:        c.UseTLS,
		ProbePort:     c.ProbePort,
		ProbeTimeout:  c.ProbeTimeout(),
		DemoMode:      c.DemoMode,
	}
}

// DevicesFromConfig converts every configured device
func DevicesFromConfig(cs []config.DeviceConfig) []Device {
	devices := make([]Device, 0, len(cs))
	for _, c := range cs {
		devices = append(devices, DeviceFromConfig(c))
	}
	return devices
}

// ProbeAddr is the host:port used for the reachability probe
func (d Device) ProbeAddr() string {
	port := d.ProbePort
	if port == 0 {
		port = config.DefaultProbePort
	}
	return net.JoinHostPort(d.Host, strconv.Itoa(port))
}

// Tags returns the identity tags shared by every observation of the device
func (d Device) Tags() map[string]string {
	return map[string]string{
		"device_id":   d.ID,
		"device_name": d.Name,
		"device_type": d.Type,
	}
}

// OfType returns the devices whose Type is one of types
func OfType(devices []Device, types ...string) []Device {
	var out []Device
	for _, d := range devices {
		for _, t := range types {
			if d.Type == t {
				out = append(out, d)
				break
			}
		}
	}
	return out
}

// Deps are the shared collaborators handed to every collector factory
type Deps struct {
	Sink     Sink
	Devices  []Device
	Prober   Prober
	Demo     bool
	Alerts   *alerting.Evaluator
	Settings map[string]interface{}
	Logger   *zap.Logger
}
