package sysstat

import "strings"

// NIC classes.
const (
	NICLoopback  = "loopback"
	NICEthernet  = "ethernet"
	NICWifi      = "wifi"
	NICTailscale = "tailscale"
	NICVirtual   = "virtual"
)

// ClassifyNIC buckets an interface name for goos ("linux", "darwin").
// Unknown names are treated as virtual so they stay out of speed readouts.
func ClassifyNIC(name, goos string) string {
	lower := strings.ToLower(name)

	switch {
	case strings.HasPrefix(lower, "lo"):
		return NICLoopback
	case strings.HasPrefix(lower, "tailscale"):
		return NICTailscale
	case strings.HasPrefix(lower, "veth"),
		strings.HasPrefix(lower, "br-"),
		strings.HasPrefix(lower, "docker"),
		strings.HasPrefix(lower, "cni"),
		strings.HasPrefix(lower, "flannel"),
		strings.HasPrefix(lower, "vxlan"),
		strings.HasPrefix(lower, "virbr"),
		strings.HasPrefix(lower, "tun"),
		strings.HasPrefix(lower, "wg"):
		return NICVirtual
	}

	switch goos {
	case "darwin":
		switch {
		case strings.HasPrefix(lower, "en"):
			return NICEthernet
		case strings.HasPrefix(lower, "awdl"), strings.HasPrefix(lower, "llw"), strings.HasPrefix(lower, "ap"):
			return NICWifi
		}
		return NICVirtual
	default:
		switch {
		case strings.HasPrefix(lower, "eth"), strings.HasPrefix(lower, "en"):
			return NICEthernet
		case strings.HasPrefix(lower, "wl"), strings.HasPrefix(lower, "ww"):
			return NICWifi
		}
		return NICVirtual
	}
}

// physical reports whether class counts toward network speed.
func physical(class string) bool {
	return class == NICEthernet || class == NICWifi
}
