package sysstat

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/shell"
)

// BluetoothDevice is one known device.
type BluetoothDevice struct {
	MAC       string `json:"mac"`
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	Paired    bool   `json:"paired"`
	// Battery is a percentage, or -1 when the device does not report one.
	Battery int `json:"battery"`
}

// BluetoothSource lists devices through bluetoothctl.
type BluetoothSource struct {
	runner shell.Runner
	logger *slog.Logger
}

// NewBluetoothSource creates a BluetoothSource. A nil runner uses
// shell.ExecRunner and a nil logger slog.Default().
func NewBluetoothSource(r shell.Runner, logger *slog.Logger) *BluetoothSource {
	if r == nil {
		r = shell.ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BluetoothSource{runner: r, logger: logger}
}

// Fetch returns known devices, connected ones first. A device whose info
// cannot be read, typically one removed since the listing, is dropped.
func (s *BluetoothSource) Fetch(ctx context.Context) ([]BluetoothDevice, error) {
	out, err := s.runner.Run(ctx, "bluetoothctl", "devices")
	if err != nil {
		return nil, err
	}
	devices, err := ParseDevices(string(out))
	if err != nil {
		return nil, err
	}
	known := devices[:0]
	for _, d := range devices {
		info, err := s.runner.Run(ctx, "bluetoothctl", "info", d.MAC)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Debug("bluetooth device skipped", "mac", d.MAC, "error", err)
			continue
		}
		if err := parseInfo(string(info), &d); err != nil {
			return nil, err
		}
		known = append(known, d)
	}
	devices = known
	sort.SliceStable(devices, func(i, j int) bool {
		if devices[i].Connected != devices[j].Connected {
			return devices[i].Connected
		}
		return devices[i].Name < devices[j].Name
	})
	return devices, nil
}

// ParseDevices parses "Device <MAC> <name>" rows. Other lines, such as
// controller chatter, are ignored.
func ParseDevices(out string) ([]BluetoothDevice, error) {
	devices := []BluetoothDevice{}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		rest, ok := strings.CutPrefix(line, "Device ")
		if !ok {
			continue
		}
		mac, name, _ := strings.Cut(rest, " ")
		if !validMAC(mac) {
			return nil, shell.Unparseable("bluetoothctl", "bad address %q", mac)
		}
		devices = append(devices, BluetoothDevice{MAC: mac, Name: strings.TrimSpace(name), Battery: -1})
	}
	return devices, nil
}

func parseInfo(out string, d *BluetoothDevice) error {
	for _, line := range strings.Split(out, "\n") {
		k, v, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		switch k {
		case "Name", "Alias":
			if d.Name == "" || d.Name == d.MAC {
				d.Name = v
			}
		case "Paired":
			d.Paired = v == "yes"
		case "Connected":
			d.Connected = v == "yes"
		case "Battery Percentage":
			// "0x55 (85)"
			lp, rp := strings.IndexByte(v, '('), strings.IndexByte(v, ')')
			if lp < 0 || rp < lp {
				return shell.Unparseable("bluetoothctl", "battery %q", v)
			}
			n, err := strconv.Atoi(v[lp+1 : rp])
			if err != nil {
				return shell.Unparseable("bluetoothctl", "battery %q", v)
			}
			d.Battery = n
		}
	}
	return nil
}

func validMAC(s string) bool {
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return false
	}
	for _, p := range parts {
		if len(p) != 2 {
			return false
		}
		if _, err := strconv.ParseUint(p, 16, 8); err != nil {
			return false
		}
	}
	return true
}

// Connected filters devices to the connected ones.
func Connected(devices []BluetoothDevice) []BluetoothDevice {
	var out []BluetoothDevice
	for _, d := range devices {
		if d.Connected {
			out = append(out, d)
		}
	}
	return out
}
