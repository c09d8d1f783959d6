// collectors/system/source.go
package system

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	psnet "github.com/shirou/gopsutil/v3/net"
	"golang.org/x/sys/unix"
)

// HostInfo identifies the local machine
type HostInfo struct {
	Hostname string
	OS       string
}

// CPUStats is the CPU utilisation over one sampling interval
type CPUStats struct {
	Percent       float64
	UserPercent   float64
	SystemPercent float64
	IdlePercent   float64
}

// MemoryStats covers physical memory and swap, in bytes
type MemoryStats struct {
	Total       uint64
	Available   uint64
	Used        uint64
	Free        uint64
	Percent     float64
	SwapTotal   uint64
	SwapUsed    uint64
	SwapFree    uint64
	SwapPercent float64
}

// DiskStats is the usage of one mounted partition
type DiskStats struct {
	Device     string
	Mountpoint string
	Fstype     string
	Total      uint64
	Used       uint64
	Free       uint64
	Percent    float64
}

// NetStats are the cumulative counters of one network interface
type NetStats struct {
	Interface   string
	BytesSent   uint64
	BytesRecv   uint64
	PacketsSent uint64
	PacketsRecv uint64
	Errin       uint64
	Errout      uint64
	Dropin      uint64
	Dropout     uint64
}

// Source reads metrics from the local host
type Source interface {
	Host(ctx context.Context) (HostInfo, error)
	CPU(ctx context.Context) (CPUStats, error)
	Memory(ctx context.Context) (MemoryStats, error)
	Disks(ctx context.Context) ([]DiskStats, error)
	Network(ctx context.Context) ([]NetStats, error)
}

// Gopsutil is the Source backed by gopsutil
type Gopsutil struct {
	// CPUInterval is how long CPU usage is sampled for
	CPUInterval time.Duration
}

// Host implements Source
func (g Gopsutil) Host(ctx context.Context) (HostInfo, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return HostInfo{}, fmt.Errorf("reading host info: %w", err)
	}
	return HostInfo{Hostname: info.Hostname, OS: info.OS}, nil
}

// CPU implements Source. The user/system/idle split comes from the CPU
// time counters read on both sides of the sampling interval.
func (g Gopsutil) CPU(ctx context.Context) (CPUStats, error) {
	interval := g.CPUInterval
	if interval <= 0 {
		interval = time.Second
	}

	before, err := cpu.TimesWithContext(ctx, false)
	if err != nil {
		return CPUStats{}, fmt.Errorf("reading cpu times: %w", err)
	}
	percent, err := cpu.PercentWithContext(ctx, interval, false)
	if err != nil {
		return CPUStats{}, fmt.Errorf("reading cpu percent: %w", err)
	}
	after, err := cpu.TimesWithContext(ctx, false)
	if err != nil {
		return CPUStats{}, fmt.Errorf("reading cpu times: %w", err)
	}

	stats := CPUStats{}
	if len(percent) > 0 {
		stats.Percent = percent[0]
	}
	if len(before) > 0 && len(after) > 0 {
		stats.UserPercent, stats.SystemPercent, stats.IdlePercent = timesPercent(before[0], after[0])
	}
	return stats, nil
}

func timesPercent(a, b cpu.TimesStat) (user, system, idle float64) {
	total := b.Total() - a.Total()
	if total <= 0 {
		return 0, 0, 0
	}
	return (b.User - a.User) / total * 100,
		(b.System - a.System) / total * 100,
		(b.Idle - a.Idle) / total * 100
}

// Memory implements Source
func (g Gopsutil) Memory(ctx context.Context) (MemoryStats, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return MemoryStats{}, fmt.Errorf("reading memory stats: %w", err)
	}
	swap, err := mem.SwapMemoryWithContext(ctx)
	if err != nil {
		return MemoryStats{}, fmt.Errorf("reading swap stats: %w", err)
	}
	return MemoryStats{
		Total:       vm.Total,
		Available:   vm.Available,
		Used:        vm.Used,
		Free:        vm.Free,
		Percent:     vm.UsedPercent,
		SwapTotal:   swap.Total,
		SwapUsed:    swap.Used,
		SwapFree:    swap.Free,
		SwapPercent: swap.UsedPercent,
	}, nil
}

// Disks implements Source. Partitions without a filesystem type, or that
// cannot be stat'ed, are skipped.
func (g Gopsutil) Disks(ctx context.Context) ([]DiskStats, error) {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("listing partitions: %w", err)
	}

	var out []DiskStats
	for _, p := range parts {
		if p.Fstype == "" {
			continue
		}
		d, err := statfs(p.Mountpoint)
		if err != nil {
			continue
		}
		d.Device = p.Device
		d.Fstype = p.Fstype
		out = append(out, d)
	}
	return out, nil
}

func statfs(mountpoint string) (DiskStats, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(mountpoint, &stat); err != nil {
		return DiskStats{}, fmt.Errorf("failed to get disk stats for %s: %w", mountpoint, err)
	}

	bsize := uint64(stat.Bsize)
	total := stat.Blocks * bsize
	used := (stat.Blocks - stat.Bfree) * bsize
	free := stat.Bavail * bsize

	d := DiskStats{Mountpoint: mountpoint, Total: total, Used: used, Free: free}
	if used+free > 0 {
		d.Percent = float64(used) / float64(used+free) * 100
	}
	return d, nil
}

// Network implements Source
func (g Gopsutil) Network(ctx context.Context) ([]NetStats, error) {
	counters, err := psnet.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("reading network counters: %w", err)
	}

	out := make([]NetStats, 0, len(counters))
	for _, c := range counters {
		out = append(out, NetStats{
			Interface:   c.Name,
			BytesSent:   c.BytesSent,
			BytesRecv:   c.BytesRecv,
			PacketsSent: c.PacketsSent,
			PacketsRecv: c.PacketsRecv,
			Errin:       c.Errin,
			Errout:      c.Errout,
			Dropin:      c.Dropin,
			Dropout:     c.Dropout,
		})
	}
	return out, nil
}
