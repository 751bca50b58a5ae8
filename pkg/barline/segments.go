package barline

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/config"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/nowplaying"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/prayer"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/sysstat"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/tailnet"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/weather"
)

// Nerd Font glyphs.
const (
	iconPlay        = "\U000F040A"
	iconPause       = "\U000F03E4"
	iconPrayer      = "\U000F0D45"
	iconBattery     = "\U000F0079"
	iconCharging    = "\U000F0084"
	iconBatteryLow  = "\U000F0083"
	iconWifi        = "\U000F05A9"
	iconWifiOff     = "\U000F05AA"
	iconBluetooth   = "\U000F00AF"
	iconNet         = "\U000F04E1"
	iconChip        = "\U000F061A"
	iconTailnet     = "\U000F0582"
	iconTailnetDown = "\U000F0583"
)

// formatter reads one service's snapshot and turns a value into a
// segment. Reading and rendering are split so the monitor can render
// values it already holds in memory.
type formatter struct {
	read   func(r *Renderer, key string, now time.Time) (any, bool)
	decode func(raw []byte) (any, error)
	render func(v any, now time.Time) (Segment, bool)
}

func typed[T any](render func(T, time.Time) (Segment, bool)) formatter {
	return formatter{
		read: func(r *Renderer, key string, now time.Time) (any, bool) {
			return readSnapshot[T](r, key, now)
		},
		decode: func(raw []byte) (any, error) {
			var v T
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, err
			}
			return v, nil
		},
		render: func(v any, now time.Time) (Segment, bool) {
			t, ok := v.(T)
			if !ok {
				return Segment{}, false
			}
			return render(t, now)
		},
	}
}

var formatters = map[string]formatter{
	config.ServiceWeather:    typed(weatherSegment),
	config.ServicePrayer:     typed(prayerSegment),
	config.ServiceNowPlaying: typed(nowPlayingSegment),
	config.ServiceBattery:    typed(batterySegment),
	config.ServiceWifi:       typed(wifiSegment),
	config.ServiceBluetooth:  typed(bluetoothSegment),
	config.ServiceNetSpeed:   typed(netSpeedSegment),
	config.ServiceSysMetrics: typed(sysMetricsSegment),
	config.ServiceTailnet:    typed(tailnetSegment),
}

// Decode turns a service's JSON payload, as served by the daemon, back
// into the typed value Describe expects.
func Decode(service string, raw []byte) (any, error) {
	f, ok := formatters[service]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownService, service)
	}
	v, err := f.decode(raw)
	if err != nil {
		return nil, fmt.Errorf("barline: decode %s: %w", service, err)
	}
	return v, nil
}

// Describe renders an in-memory service value as a segment. It reports
// false for unknown services, values of the wrong type, and values that
// have nothing to show (an idle player, a desktop without a battery).
func Describe(service string, v any, now time.Time) (Segment, bool) {
	f, ok := formatters[service]
	if !ok {
		return Segment{}, false
	}
	seg, ok := f.render(v, now)
	if ok {
		seg.Service = service
	}
	return seg, ok
}

// Example: "󰖙 Clear feels 28°C"
func weatherSegment(w weather.Snapshot, _ time.Time) (Segment, bool) {
	if w.Temperature == weather.NotAvailable || w.Temperature == "" {
		return Segment{}, false
	}
	tip := w.Description + ", feels like " + w.FeelsLike
	if w.Location != "" {
		tip = w.Location + ": " + tip
	}
	if w.Humidity != "" {
		tip += ", humidity " + w.Humidity + "%"
	}
	return Segment{Icon: weather.Glyph(w.IconKey), Text: w.Temperature, Tooltip: tip}, true
}

// Example: "󰵅 Maghrib 18:05 (1h20m)"
//
// The next prayer is recomputed against now because the snapshot may have
// been written before the previous prayer passed.
func prayerSegment(t prayer.Times, now time.Time) (Segment, bool) {
	if !t.Loaded() {
		return Segment{}, false
	}
	t = t.WithNext(now)
	until := t.Until(now)

	seg := Segment{
		Icon: iconPrayer,
		Text: fmt.Sprintf("%s %s (%s)", t.NextPrayerName, t.NextPrayerTime, shortDuration(until)),
		Tooltip: fmt.Sprintf("%s\nFajr %s  Dhuhr %s  Asr %s  Maghrib %s  Isha %s",
			t.HijriDate, t.Fajr, t.Dhuhr, t.Asr, t.Maghrib, t.Isha),
	}
	if until < 15*time.Minute {
		seg.Level = LevelWarning
	}
	return seg, true
}

// Example: "󰐊 Artist - Title"
func nowPlayingSegment(tr nowplaying.Track, _ time.Time) (Segment, bool) {
	if tr.Status == nowplaying.Stopped || tr.Label() == "" {
		return Segment{}, false
	}
	seg := Segment{Icon: iconPlay, Text: tr.Label()}
	if tr.Status == nowplaying.Paused {
		seg.Icon = iconPause
	}
	var tip []string
	if tr.Album != "" {
		tip = append(tip, tr.Album)
	}
	tip = append(tip, tr.Progress())
	if tr.Player != "" {
		tip = append(tip, tr.Player)
	}
	seg.Tooltip = tr.Label() + "\n" + strings.Join(tip, " · ")
	return seg, true
}

// Example: "󰁹 64% (2h10m)"
func batterySegment(b sysstat.Battery, _ time.Time) (Segment, bool) {
	if !b.Present {
		return Segment{}, false
	}
	seg := Segment{Icon: iconBattery, Text: fmt.Sprintf("%.0f%%", b.Percent), Tooltip: b.State}

	switch b.State {
	case "charging", "fully-charged", "pending-charge":
		seg.Icon = iconCharging
		seg.Level = LevelGood
		if b.TimeToFull > 0 {
			seg.Tooltip += ", full in " + shortDuration(b.TimeToFull)
		}
	default:
		if b.TimeToEmpty > 0 {
			seg.Text += " (" + shortDuration(b.TimeToEmpty) + ")"
		}
		switch {
		case b.Percent < 10:
			seg.Icon = iconBatteryLow
			seg.Level = LevelCritical
		case b.Percent < 25:
			seg.Icon = iconBatteryLow
			seg.Level = LevelWarning
		}
	}
	return seg, true
}

// Example: "󰖩 home"
func wifiSegment(w sysstat.Wifi, _ time.Time) (Segment, bool) {
	if !w.Connected {
		return Segment{Icon: iconWifiOff, Text: "offline", Level: LevelWarning}, true
	}
	seg := Segment{
		Icon:    iconWifi,
		Text:    w.SSID,
		Tooltip: fmt.Sprintf("%s, signal %d%% (%d/4)", w.SSID, w.Signal, sysstat.SignalBars(w.Signal)),
	}
	if w.Security != "" {
		seg.Tooltip += ", " + w.Security
	}
	if sysstat.SignalBars(w.Signal) <= 1 {
		seg.Level = LevelWarning
	}
	return seg, true
}

// Example: "󰂯 WH-1000XM4 70%"
func bluetoothSegment(devs []sysstat.BluetoothDevice, _ time.Time) (Segment, bool) {
	conn := sysstat.Connected(devs)
	if len(conn) == 0 {
		return Segment{}, false
	}
	names := make([]string, 0, len(conn))
	for _, d := range conn {
		n := d.Name
		if d.Battery >= 0 {
			n += fmt.Sprintf(" %d%%", d.Battery)
		}
		names = append(names, n)
	}
	return Segment{
		Icon:    iconBluetooth,
		Text:    strings.Join(names, ", "),
		Tooltip: fmt.Sprintf("%d connected, %d known", len(conn), len(devs)),
	}, true
}

// Example: "󰓡 ↓1.2 MB/s ↑30.0 KB/s"
func netSpeedSegment(n sysstat.NetSpeed, _ time.Time) (Segment, bool) {
	if n.Iface == "" {
		return Segment{}, false
	}
	return Segment{
		Icon:    iconNet,
		Text:    "↓" + sysstat.FormatRate(n.RxBytesPerSec) + " ↑" + sysstat.FormatRate(n.TxBytesPerSec),
		Tooltip: n.Iface,
	}, true
}

// Example: "󰘚 CPU 45% RAM 62%"
func sysMetricsSegment(m sysstat.SysMetrics, _ time.Time) (Segment, bool) {
	if m.MemTotal == 0 {
		return Segment{}, false
	}
	seg := Segment{
		Icon: iconChip,
		Text: fmt.Sprintf("CPU %d%% RAM %d%%", int(m.CPUPercent), int(m.MemUsedPercent)),
		Tooltip: fmt.Sprintf("load %.2f %.2f %.2f, up %s",
			m.Load1, m.Load5, m.Load15, shortDuration(m.Uptime)),
	}
	for _, d := range m.Disks {
		seg.Tooltip += fmt.Sprintf("\n%s %.0f%%", d.Path, d.UsedPercent)
	}

	highest := max(m.CPUPercent, m.MemUsedPercent)
	switch {
	case highest >= 90:
		seg.Level = LevelCritical
	case highest >= 70:
		seg.Level = LevelWarning
	}
	return seg, true
}

// Example: "󰖂 4/6 peers"
func tailnetSegment(s tailnet.Status, _ time.Time) (Segment, bool) {
	if s.BackendState == "" {
		return Segment{}, false
	}
	seg := Segment{Icon: iconTailnet, Text: s.Summary(), Tooltip: s.Hostname}
	if s.TailnetName != "" {
		seg.Tooltip += " on " + s.TailnetName
	}
	if !s.Running() {
		seg.Icon = iconTailnetDown
		seg.Level = LevelWarning
	}
	return seg, true
}

// shortDuration renders "2h10m", "12m" or "<1m".
func shortDuration(d time.Duration) string {
	if d < time.Minute {
		return "<1m"
	}
	d = d.Truncate(time.Minute)
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	switch {
	case h >= 24:
		return fmt.Sprintf("%dd%dh", h/24, h%24)
	case h > 0:
		return fmt.Sprintf("%dh%dm", h, m)
	default:
		return fmt.Sprintf("%dm", m)
	}
}
