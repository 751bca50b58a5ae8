package sysstat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// SysMetrics is a point-in-time snapshot of host load.
type SysMetrics struct {
	CPUPercent      float64       `json:"cpu_percent"`
	CPUCount        int           `json:"cpu_count"`
	MemUsedPercent  float64       `json:"mem_used_percent"`
	MemUsed         uint64        `json:"mem_used"`
	MemTotal        uint64        `json:"mem_total"`
	SwapUsedPercent float64       `json:"swap_used_percent"`
	Load1           float64       `json:"load1"`
	Load5           float64       `json:"load5"`
	Load15          float64       `json:"load15"`
	Uptime          time.Duration `json:"uptime"`
	Disks           []DiskUsage   `json:"disks,omitempty"`
}

// DiskUsage is usage for one mount point.
type DiskUsage struct {
	Path        string  `json:"path"`
	FSType      string  `json:"fstype"`
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	UsedPercent float64 `json:"used_percent"`
}

// MetricsConfig controls which disks are reported.
type MetricsConfig struct {
	// Mounts restricts disk collection to these paths. Empty collects
	// every non-virtual partition.
	Mounts []string
}

// MetricsSource gathers SysMetrics through gopsutil.
type MetricsSource struct {
	cfg MetricsConfig
}

// NewMetricsSource creates a MetricsSource.
func NewMetricsSource(cfg MetricsConfig) *MetricsSource {
	return &MetricsSource{cfg: cfg}
}

// Fetch collects every sub-metric. Partial failures still return the data
// that was gathered; only a total failure is an error.
func (s *MetricsSource) Fetch(ctx context.Context) (SysMetrics, error) {
	if err := ctx.Err(); err != nil {
		return SysMetrics{}, err
	}

	var m SysMetrics
	steps := []struct {
		name string
		fn   func(context.Context, *SysMetrics) error
	}{
		{"cpu", collectCPU},
		{"memory", collectMemory},
		{"disk", s.collectDisks},
		{"load", collectLoad},
		{"uptime", collectUptime},
	}

	var errs []error
	for _, st := range steps {
		if err := st.fn(ctx, &m); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", st.name, err))
		}
	}
	if len(errs) == len(steps) {
		return SysMetrics{}, fmt.Errorf("sysmetrics: all collectors failed: %w", errors.Join(errs...))
	}
	return m, nil
}

func collectCPU(ctx context.Context, m *SysMetrics) error {
	// interval 0 compares against the previous call; the first sample after
	// boot of the process is the average since boot.
	total, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return err
	}
	if len(total) > 0 {
		m.CPUPercent = total[0]
	}
	n, err := cpu.CountsWithContext(ctx, true)
	if err == nil {
		m.CPUCount = n
	}
	return nil
}

func collectMemory(ctx context.Context, m *SysMetrics) error {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return err
	}
	m.MemUsedPercent = vm.UsedPercent
	m.MemUsed = vm.Used
	m.MemTotal = vm.Total

	// Swap may be absent.
	if sw, err := mem.SwapMemoryWithContext(ctx); err == nil && sw.Total > 0 {
		m.SwapUsedPercent = sw.UsedPercent
	}
	return nil
}

func (s *MetricsSource) collectDisks(ctx context.Context, m *SysMetrics) error {
	mounts := s.cfg.Mounts
	if len(mounts) == 0 {
		parts, err := disk.PartitionsWithContext(ctx, false)
		if err != nil {
			return err
		}
		for _, p := range parts {
			if !isVirtualFS(p.Fstype) {
				mounts = append(mounts, p.Mountpoint)
			}
		}
	}
	for _, mp := range mounts {
		u, err := disk.UsageWithContext(ctx, mp)
		if err != nil {
			continue
		}
		m.Disks = append(m.Disks, DiskUsage{
			Path:        u.Path,
			FSType:      u.Fstype,
			Total:       u.Total,
			Used:        u.Used,
			UsedPercent: u.UsedPercent,
		})
	}
	return nil
}

func collectLoad(ctx context.Context, m *SysMetrics) error {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return err
	}
	m.Load1, m.Load5, m.Load15 = avg.Load1, avg.Load5, avg.Load15
	return nil
}

func collectUptime(ctx context.Context, m *SysMetrics) error {
	secs, err := host.UptimeWithContext(ctx)
	if err != nil {
		return err
	}
	m.Uptime = time.Duration(secs) * time.Second
	return nil
}

// isVirtualFS reports filesystem types that are not real storage.
func isVirtualFS(fstype string) bool {
	switch fstype {
	case "devfs", "devtmpfs", "tmpfs", "sysfs", "proc", "cgroup", "cgroup2",
		"autofs", "mqueue", "hugetlbfs", "debugfs", "tracefs", "securityfs",
		"pstore", "bpf", "fusectl", "configfs", "ramfs", "rpc_pipefs",
		"nfsd", "map", "devpts", "squashfs", "overlay", "nsfs":
		return true
	}
	return false
}
