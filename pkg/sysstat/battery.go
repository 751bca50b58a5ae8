package sysstat

import (
	"bufio"
	"context"
	"strconv"
	"strings"
	"time"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/shell"
)

// Battery is the state of the primary battery.
type Battery struct {
	Present     bool          `json:"present"`
	Percent     float64       `json:"percent"`
	State       string        `json:"state"`
	TimeToEmpty time.Duration `json:"time_to_empty,omitempty"`
	TimeToFull  time.Duration `json:"time_to_full,omitempty"`
}

// BatteryConfig selects the upower device.
type BatteryConfig struct {
	Runner shell.Runner

	// Device is a upower object path. Empty picks the first battery from
	// "upower -e".
	Device string
}

// BatterySource reads battery state through upower.
type BatterySource struct {
	cfg BatteryConfig
}

// NewBatterySource creates a BatterySource.
func NewBatterySource(cfg BatteryConfig) *BatterySource {
	if cfg.Runner == nil {
		cfg.Runner = shell.ExecRunner{}
	}
	return &BatterySource{cfg: cfg}
}

// Fetch returns the battery state. A machine without a battery yields
// Battery{Present: false}.
func (s *BatterySource) Fetch(ctx context.Context) (Battery, error) {
	dev := s.cfg.Device
	if dev == "" {
		out, err := s.cfg.Runner.Run(ctx, "upower", "-e")
		if err != nil {
			return Battery{}, err
		}
		dev = findBatteryDevice(string(out))
		if dev == "" {
			return Battery{}, nil
		}
	}
	out, err := s.cfg.Runner.Run(ctx, "upower", "-i", dev)
	if err != nil {
		return Battery{}, err
	}
	return ParseUpower(string(out))
}

func findBatteryDevice(list string) string {
	for _, line := range strings.Split(list, "\n") {
		line = strings.TrimSpace(line)
		if strings.Contains(line, "/battery_") {
			return line
		}
	}
	return ""
}

// ParseUpower parses "upower -i <device>" output.
func ParseUpower(out string) (Battery, error) {
	fields := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		k, v, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		fields[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}

	pct, ok := fields["percentage"]
	if !ok {
		return Battery{}, shell.Unparseable("upower", "missing percentage")
	}
	p, err := strconv.ParseFloat(strings.TrimSuffix(strings.ReplaceAll(pct, ",", "."), "%"), 64)
	if err != nil {
		return Battery{}, shell.Unparseable("upower", "percentage %q", pct)
	}

	b := Battery{
		Present: fields["present"] != "no",
		Percent: p,
		State:   fields["state"],
	}
	if b.State == "" {
		b.State = "unknown"
	}
	if v, ok := fields["time to empty"]; ok {
		if b.TimeToEmpty, err = parseUpowerDuration(v); err != nil {
			return Battery{}, err
		}
	}
	if v, ok := fields["time to full"]; ok {
		if b.TimeToFull, err = parseUpowerDuration(v); err != nil {
			return Battery{}, err
		}
	}
	return b, nil
}

// parseUpowerDuration parses values like "3.2 hours" or "45.0 minutes".
func parseUpowerDuration(s string) (time.Duration, error) {
	num, unit, ok := strings.Cut(strings.TrimSpace(s), " ")
	if !ok {
		return 0, shell.Unparseable("upower", "duration %q", s)
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(num, ",", "."), 64)
	if err != nil {
		return 0, shell.Unparseable("upower", "duration %q", s)
	}
	var mult time.Duration
	switch strings.TrimSpace(unit) {
	case "seconds", "second":
		mult = time.Second
	case "minutes", "minute":
		mult = time.Minute
	case "hours", "hour":
		mult = time.Hour
	case "days", "day":
		mult = 24 * time.Hour
	default:
		return 0, shell.Unparseable("upower", "duration unit %q", unit)
	}
	return time.Duration(v * float64(mult)).Round(time.Second), nil
}
