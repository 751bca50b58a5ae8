package sysstat

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	psnet "github.com/shirou/gopsutil/v4/net"
)

// NetSpeed is the throughput of one interface between two samples.
type NetSpeed struct {
	Iface         string  `json:"iface"`
	RxBytesPerSec float64 `json:"rx_bytes_per_sec"`
	TxBytesPerSec float64 `json:"tx_bytes_per_sec"`
	RxTotal       uint64  `json:"rx_total"`
	TxTotal       uint64  `json:"tx_total"`
}

// CountersFunc returns per-interface byte counters.
type CountersFunc func(ctx context.Context) ([]psnet.IOCountersStat, error)

// NetSpeedConfig controls interface selection.
type NetSpeedConfig struct {
	// Iface pins the interface. Empty picks the busiest physical one.
	Iface string

	// Counters overrides gopsutil, for tests.
	Counters CountersFunc
	Now      func() time.Time
	GOOS     string
}

// NetSpeedSource turns cumulative counters into rates. The first sample
// reports zero rates.
type NetSpeedSource struct {
	cfg NetSpeedConfig

	mu   sync.Mutex
	prev map[string]psnet.IOCountersStat
	at   time.Time
}

// NewNetSpeedSource creates a NetSpeedSource.
func NewNetSpeedSource(cfg NetSpeedConfig) *NetSpeedSource {
	if cfg.Counters == nil {
		cfg.Counters = func(ctx context.Context) ([]psnet.IOCountersStat, error) {
			return psnet.IOCountersWithContext(ctx, true)
		}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.GOOS == "" {
		cfg.GOOS = runtime.GOOS
	}
	return &NetSpeedSource{cfg: cfg}
}

// Fetch samples counters and returns the rate since the previous sample.
func (s *NetSpeedSource) Fetch(ctx context.Context) (NetSpeed, error) {
	stats, err := s.cfg.Counters(ctx)
	if err != nil {
		return NetSpeed{}, fmt.Errorf("netspeed: counters: %w", err)
	}
	now := s.cfg.Now()

	cur := make(map[string]psnet.IOCountersStat, len(stats))
	for _, st := range stats {
		if s.cfg.Iface != "" && st.Name != s.cfg.Iface {
			continue
		}
		if s.cfg.Iface == "" && !physical(ClassifyNIC(st.Name, s.cfg.GOOS)) {
			continue
		}
		cur[st.Name] = st
	}

	iface := s.pick(cur)
	if iface == "" {
		if s.cfg.Iface != "" {
			return NetSpeed{}, fmt.Errorf("netspeed: interface %q not found", s.cfg.Iface)
		}
		return NetSpeed{}, fmt.Errorf("netspeed: no physical interface")
	}
	c := cur[iface]
	out := NetSpeed{Iface: iface, RxTotal: c.BytesRecv, TxTotal: c.BytesSent}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.prev[iface]; ok && now.After(s.at) {
		secs := now.Sub(s.at).Seconds()
		out.RxBytesPerSec = rate(p.BytesRecv, c.BytesRecv, secs)
		out.TxBytesPerSec = rate(p.BytesSent, c.BytesSent, secs)
	}
	s.prev = cur
	s.at = now
	return out, nil
}

// pick returns the interface with the most traffic. Ties go to the
// lexically smaller name so the choice is stable.
func (s *NetSpeedSource) pick(cur map[string]psnet.IOCountersStat) string {
	best := ""
	var bestTotal uint64
	for name, st := range cur {
		total := st.BytesRecv + st.BytesSent
		if best == "" || total > bestTotal || (total == bestTotal && name < best) {
			best, bestTotal = name, total
		}
	}
	return best
}

// rate handles counter resets by reporting zero.
func rate(prev, cur uint64, secs float64) float64 {
	if cur < prev || secs <= 0 {
		return 0
	}
	return float64(cur-prev) / secs
}

// FormatRate renders bytes/s as "1.2 MB/s".
func FormatRate(bps float64) string {
	const unit = 1024.0
	switch {
	case bps < unit:
		return fmt.Sprintf("%.0f B/s", bps)
	case bps < unit*unit:
		return fmt.Sprintf("%.1f KB/s", bps/unit)
	case bps < unit*unit*unit:
		return fmt.Sprintf("%.1f MB/s", bps/(unit*unit))
	default:
		return fmt.Sprintf("%.1f GB/s", bps/(unit*unit*unit))
	}
}
