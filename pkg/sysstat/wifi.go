package sysstat

import (
	"context"
	"strconv"
	"strings"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/shell"
)

// Wifi is the active wireless connection.
type Wifi struct {
	Connected bool   `json:"connected"`
	SSID      string `json:"ssid,omitempty"`
	Signal    int    `json:"signal"`
	Security  string `json:"security,omitempty"`
}

// WifiSource reads the active network through nmcli.
type WifiSource struct {
	runner shell.Runner
}

// NewWifiSource creates a WifiSource. A nil runner uses shell.ExecRunner.
func NewWifiSource(r shell.Runner) *WifiSource {
	if r == nil {
		r = shell.ExecRunner{}
	}
	return &WifiSource{runner: r}
}

// Fetch returns the active network, or Wifi{} when disconnected.
func (s *WifiSource) Fetch(ctx context.Context) (Wifi, error) {
	out, err := s.runner.Run(ctx, "nmcli", "-t", "-f", "ACTIVE,SSID,SIGNAL,SECURITY", "dev", "wifi")
	if err != nil {
		return Wifi{}, err
	}
	return ParseNmcli(string(out))
}

// ParseNmcli parses terse "ACTIVE:SSID:SIGNAL:SECURITY" rows.
func ParseNmcli(out string) (Wifi, error) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		f := splitTerse(line)
		if len(f) != 4 {
			return Wifi{}, shell.Unparseable("nmcli", "row %q has %d fields", line, len(f))
		}
		if f[0] != "yes" {
			continue
		}
		sig, err := strconv.Atoi(f[2])
		if err != nil {
			return Wifi{}, shell.Unparseable("nmcli", "signal %q", f[2])
		}
		return Wifi{Connected: true, SSID: f[1], Signal: sig, Security: f[3]}, nil
	}
	return Wifi{}, nil
}

// splitTerse splits an nmcli terse row on unescaped colons. nmcli escapes
// ':' and '\' inside values with a backslash.
func splitTerse(line string) []string {
	var fields []string
	var cur strings.Builder
	escaped := false
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ':':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(fields, cur.String())
}

// SignalBars maps a 0-100 signal to 0-4 bars.
func SignalBars(signal int) int {
	switch {
	case signal >= 80:
		return 4
	case signal >= 60:
		return 3
	case signal >= 40:
		return 2
	case signal > 0:
		return 1
	}
	return 0
}
