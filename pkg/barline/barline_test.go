package barline

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/cache"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/config"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/nowplaying"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/prayer"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/sysstat"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/tailnet"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/theme"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/weather"
)

var testNow = time.Date(2026, 3, 1, 16, 45, 0, 0, time.UTC)

func newTestStore(t *testing.T) *cache.Store {
	t.Helper()
	s, err := cache.NewStore(cache.StoreConfig{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func put[T any](t *testing.T, s *cache.Store, key string, v T, age time.Duration) {
	t.Helper()
	if err := cache.PutTyped(s, key, v, testNow.Add(-age)); err != nil {
		t.Fatalf("PutTyped %s: %v", key, err)
	}
}

func newTestRenderer(t *testing.T, s *cache.Store, services ...string) *Renderer {
	t.Helper()
	r, err := New(Config{
		Store:    s,
		Services: services,
		Profile:  termenv.Ascii,
		Now:      func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func cairoWeather() weather.Snapshot {
	return weather.Snapshot{
		Temperature: "Clear feels 28°C",
		FeelsLike:   "30°C",
		Description: "Clear",
		IconKey:     "clear",
		Humidity:    "20",
		Location:    "Cairo",
	}
}

func TestWeatherSegment(t *testing.T) {
	s := newTestStore(t)
	put(t, s, config.ServiceWeather, cairoWeather(), time.Minute)

	segs := newTestRenderer(t, s, config.ServiceWeather).Segments()
	if len(segs) != 1 {
		t.Fatalf("segments = %d, want 1", len(segs))
	}
	if segs[0].Text != "Clear feels 28°C" {
		t.Errorf("Text = %q", segs[0].Text)
	}
	if segs[0].Icon != weather.Glyph("clear") {
		t.Errorf("Icon = %q", segs[0].Icon)
	}
	if segs[0].Tooltip != "Cairo: Clear, feels like 30°C, humidity 20%" {
		t.Errorf("Tooltip = %q", segs[0].Tooltip)
	}
}

func TestPlaceholderWeatherIsHidden(t *testing.T) {
	s := newTestStore(t)
	put(t, s, config.ServiceWeather, weather.Placeholder(), time.Minute)
	if got := newTestRenderer(t, s, config.ServiceWeather).Render(); got != "" {
		t.Errorf("Render = %q, want empty", got)
	}
}

func TestMaxAgeDropsOldSnapshots(t *testing.T) {
	s := newTestStore(t)
	put(t, s, config.ServiceWeather, cairoWeather(), 2*time.Hour)

	if got := newTestRenderer(t, s, config.ServiceWeather).Render(); got != "" {
		t.Errorf("Render = %q, want empty for a 2h old snapshot", got)
	}

	r, _ := New(Config{Store: s, Services: []string{config.ServiceWeather}, MaxAge: -1, Now: func() time.Time { return testNow }})
	if got := r.Render(); got == "" {
		t.Error("negative MaxAge should accept any age")
	}
}

func TestSlowServicesOutliveMaxAge(t *testing.T) {
	cfg := config.DefaultConfig()
	s := newTestStore(t)
	put(t, s, config.ServicePrayer, prayer.Times{
		Fajr: 4*60 + 30, Dhuhr: 12*60 + 5, Asr: 15*60 + 30, Maghrib: 18*60 + 5, Isha: 19*60 + 25,
		HijriDate: "11 Ramaḍān 1447 AH", Timezone: "UTC",
	}, 2*time.Hour)
	put(t, s, config.ServiceWeather, cairoWeather(), 2*time.Hour)

	r, err := New(Config{
		Store:     s,
		Services:  []string{config.ServicePrayer, config.ServiceWeather},
		MaxAge:    cfg.Line.MaxAge.Duration,
		Intervals: cfg.Intervals(),
		Profile:   termenv.Ascii,
		Now:       func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatal(err)
	}
	segs := r.Segments()
	if len(segs) != 1 || segs[0].Service != config.ServicePrayer {
		t.Fatalf("segments = %+v, want only prayer", segs)
	}

	put(t, s, config.ServicePrayer, prayer.Times{Fajr: 4 * 60, Timezone: "UTC"}, 13*time.Hour)
	if got := r.Render(); got != "" {
		t.Errorf("Render = %q, want empty past two prayer intervals", got)
	}
}

func TestSegmentsFollowConfiguredOrder(t *testing.T) {
	s := newTestStore(t)
	put(t, s, config.ServiceWeather, cairoWeather(), time.Minute)
	put(t, s, config.ServiceWifi, sysstat.Wifi{Connected: true, SSID: "home", Signal: 70}, time.Minute)

	r := newTestRenderer(t, s, config.ServiceWifi, config.ServiceBattery, config.ServiceWeather)
	segs := r.Segments()
	if len(segs) != 2 || segs[0].Service != config.ServiceWifi || segs[1].Service != config.ServiceWeather {
		t.Fatalf("segments = %+v", segs)
	}
	want := iconWifi + " home" + DefaultSeparator + weather.Glyph("clear") + " Clear feels 28°C"
	if got := r.Render(); got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}

func TestPrayerSegmentRecomputesNext(t *testing.T) {
	s := newTestStore(t)
	times := prayer.Times{
		Fajr:           4*60 + 30,
		Dhuhr:          12*60 + 5,
		Asr:            15*60 + 30,
		Maghrib:        18*60 + 5,
		Isha:           19*60 + 25,
		HijriDate:      "11 Ramaḍān 1447 AH",
		NextPrayerName: prayer.Asr, // stale: written before 15:30
		NextPrayerTime: 15*60 + 30,
		Timezone:       "UTC",
	}
	put(t, s, config.ServicePrayer, times, 3*time.Hour)

	r, _ := New(Config{Store: s, Services: []string{config.ServicePrayer}, MaxAge: 12 * time.Hour, Now: func() time.Time { return testNow }})
	segs := r.Segments()
	if len(segs) != 1 {
		t.Fatalf("segments = %d", len(segs))
	}
	if segs[0].Text != "Maghrib 18:05 (1h20m)" {
		t.Errorf("Text = %q", segs[0].Text)
	}
	if !strings.HasPrefix(segs[0].Tooltip, "11 Ramaḍān 1447 AH\n") {
		t.Errorf("Tooltip = %q", segs[0].Tooltip)
	}
	if segs[0].Level != LevelNormal {
		t.Errorf("Level = %v", segs[0].Level)
	}
}

func TestNowPlayingSegment(t *testing.T) {
	s := newTestStore(t)
	put(t, s, config.ServiceNowPlaying, nowplaying.Track{
		Title: "Blue in Green", Artist: "Miles Davis", Album: "Kind of Blue",
		Status: nowplaying.Paused, LengthSec: 337, PositionSec: 61, Player: "spotify",
	}, time.Second)

	segs := newTestRenderer(t, s, config.ServiceNowPlaying).Segments()
	if len(segs) != 1 {
		t.Fatalf("segments = %d", len(segs))
	}
	if segs[0].Icon != iconPause || segs[0].Text != "Miles Davis - Blue in Green" {
		t.Errorf("segment = %+v", segs[0])
	}
	if segs[0].Tooltip != "Miles Davis - Blue in Green\nKind of Blue · 1:01/5:37 · spotify" {
		t.Errorf("Tooltip = %q", segs[0].Tooltip)
	}

	put(t, s, config.ServiceNowPlaying, nowplaying.Idle(), time.Second)
	if segs := newTestRenderer(t, s, config.ServiceNowPlaying).Segments(); len(segs) != 0 {
		t.Errorf("idle player should be hidden, got %+v", segs)
	}
}

func TestBatteryLevels(t *testing.T) {
	tests := []struct {
		name      string
		battery   sysstat.Battery
		wantText  string
		wantLevel Level
	}{
		{"discharging", sysstat.Battery{Present: true, Percent: 64, State: "discharging", TimeToEmpty: 130 * time.Minute}, "64% (2h10m)", LevelNormal},
		{"low", sysstat.Battery{Present: true, Percent: 20, State: "discharging"}, "20%", LevelWarning},
		{"critical", sysstat.Battery{Present: true, Percent: 5, State: "discharging"}, "5%", LevelCritical},
		{"charging", sysstat.Battery{Present: true, Percent: 5, State: "charging", TimeToFull: time.Hour}, "5%", LevelGood},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			put(t, s, config.ServiceBattery, tt.battery, time.Second)
			segs := newTestRenderer(t, s, config.ServiceBattery).Segments()
			if len(segs) != 1 {
				t.Fatalf("segments = %d", len(segs))
			}
			if segs[0].Text != tt.wantText || segs[0].Level != tt.wantLevel {
				t.Errorf("got %q/%v, want %q/%v", segs[0].Text, segs[0].Level, tt.wantText, tt.wantLevel)
			}
		})
	}

	s := newTestStore(t)
	put(t, s, config.ServiceBattery, sysstat.Battery{}, time.Second)
	if segs := newTestRenderer(t, s, config.ServiceBattery).Segments(); len(segs) != 0 {
		t.Error("desktop without battery should have no segment")
	}
}

func TestSystemSegments(t *testing.T) {
	s := newTestStore(t)
	put(t, s, config.ServiceWifi, sysstat.Wifi{}, time.Second)
	put(t, s, config.ServiceBluetooth, []sysstat.BluetoothDevice{
		{MAC: "AA:BB:CC:DD:EE:FF", Name: "WH-1000XM4", Connected: true, Battery: 70},
		{MAC: "11:22:33:44:55:66", Name: "Keyboard", Paired: true, Battery: -1},
	}, time.Second)
	put(t, s, config.ServiceNetSpeed, sysstat.NetSpeed{Iface: "wlan0", RxBytesPerSec: 1536, TxBytesPerSec: 10}, time.Second)
	put(t, s, config.ServiceSysMetrics, sysstat.SysMetrics{CPUPercent: 95.2, MemUsedPercent: 40, MemTotal: 1 << 30}, time.Second)
	put(t, s, config.ServiceTailnet, tailnet.Status{BackendState: "Stopped"}, time.Second)

	r := newTestRenderer(t, s,
		config.ServiceWifi, config.ServiceBluetooth, config.ServiceNetSpeed,
		config.ServiceSysMetrics, config.ServiceTailnet)
	segs := r.Segments()
	if len(segs) != 5 {
		t.Fatalf("segments = %d: %+v", len(segs), segs)
	}

	want := []struct {
		text  string
		level Level
	}{
		{"offline", LevelWarning},
		{"WH-1000XM4 70%", LevelNormal},
		{"↓1.5 KB/s ↑10 B/s", LevelNormal},
		{"CPU 95% RAM 40%", LevelCritical},
		{"Stopped", LevelWarning},
	}
	for i, w := range want {
		if segs[i].Text != w.text || segs[i].Level != w.level {
			t.Errorf("segment %d (%s) = %q/%v, want %q/%v", i, segs[i].Service, segs[i].Text, segs[i].Level, w.text, w.level)
		}
	}
}

func TestFormatRespectsMaxWidth(t *testing.T) {
	s := newTestStore(t)
	r, _ := New(Config{Store: s, MaxWidth: 12, Separator: " | ", Profile: termenv.Ascii})

	segs := []Segment{{Text: "abcdef"}, {Text: "ghij"}}
	if got := r.format(segs); got != "abcdef" {
		t.Errorf("format = %q, want second segment dropped", got)
	}

	segs = []Segment{{Text: "abc"}, {Text: "def"}}
	if got := r.format(segs); got != "abc | def" {
		t.Errorf("format = %q", got)
	}

	segs = []Segment{{Text: "a very long first segment"}}
	got := r.format(segs)
	if ansi.StringWidth(got) != 12 || !strings.HasSuffix(got, "…") {
		t.Errorf("format = %q, want truncated to 12 with ellipsis", got)
	}
}

func TestColorOnlyWithProfile(t *testing.T) {
	s := newTestStore(t)
	seg := []Segment{{Text: "hot", Level: LevelCritical}}

	plain, _ := New(Config{Store: s, Profile: termenv.Ascii})
	if got := plain.format(seg); got != "hot" {
		t.Errorf("ascii format = %q", got)
	}

	color, _ := New(Config{Store: s, Profile: termenv.ANSI256, DarkMode: true})
	got := color.format(seg)
	if !strings.Contains(got, "\x1b[") {
		t.Errorf("ansi format = %q, want escape codes", got)
	}
	if ansi.Strip(got) != "hot" {
		t.Errorf("stripped = %q", ansi.Strip(got))
	}
}

func TestWaybar(t *testing.T) {
	s := newTestStore(t)
	put(t, s, config.ServiceWeather, cairoWeather(), time.Minute)
	put(t, s, config.ServiceBattery, sysstat.Battery{Present: true, Percent: 20, State: "discharging"}, time.Minute)

	r, err := New(Config{
		Store:    s,
		Services: []string{config.ServiceWeather, config.ServiceBattery},
		Profile:  termenv.TrueColor,
		Now:      func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatal(err)
	}
	w := r.Waybar()
	if strings.Contains(w.Text, "\x1b") {
		t.Errorf("waybar text must be plain: %q", w.Text)
	}
	if w.Class != "warning" {
		t.Errorf("Class = %q, want warning", w.Class)
	}
	if !strings.Contains(w.Tooltip, "Cairo") || !strings.Contains(w.Tooltip, "discharging") {
		t.Errorf("Tooltip = %q", w.Tooltip)
	}

	empty, _ := New(Config{Store: newTestStore(t), Services: []string{config.ServiceWeather}})
	if w := empty.Waybar(); w.Text != "" || w.Class != "normal" {
		t.Errorf("empty waybar = %+v", w)
	}
}

func TestNewRejectsUnknownService(t *testing.T) {
	_, err := New(Config{Store: newTestStore(t), Services: []string{"weather", "k8s"}})
	if !errors.Is(err, ErrUnknownService) {
		t.Fatalf("err = %v, want ErrUnknownService", err)
	}
	if _, err := New(Config{}); err == nil {
		t.Error("nil store should be rejected")
	}
}

func TestShortDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{30 * time.Second, "<1m"},
		{12*time.Minute + 40*time.Second, "12m"},
		{80 * time.Minute, "1h20m"},
		{50 * time.Hour, "2d2h"},
	}
	for _, tt := range tests {
		if got := shortDuration(tt.in); got != tt.want {
			t.Errorf("shortDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDescribe(t *testing.T) {
	seg, ok := Describe(config.ServiceWeather, cairoWeather(), testNow)
	if !ok || seg.Service != config.ServiceWeather || seg.Text != "Clear feels 28°C" {
		t.Errorf("Describe weather = %+v, %v", seg, ok)
	}
	if _, ok := Describe(config.ServiceWeather, sysstat.Wifi{}, testNow); ok {
		t.Error("wrong value type should not describe")
	}
	if _, ok := Describe("k8s", 1, testNow); ok {
		t.Error("unknown service should not describe")
	}
	if _, ok := Describe(config.ServiceBattery, sysstat.Battery{}, testNow); ok {
		t.Error("absent battery has nothing to show")
	}
}

func TestDecodeDaemonPayload(t *testing.T) {
	v, err := Decode(config.ServiceWifi, []byte(`{"connected":true,"ssid":"home","signal":70}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	w, ok := v.(sysstat.Wifi)
	if !ok || w.SSID != "home" || w.Signal != 70 {
		t.Fatalf("Decode = %#v", v)
	}
	if seg, ok := Describe(config.ServiceWifi, v, testNow); !ok || seg.Text != "home" {
		t.Errorf("Describe decoded = %+v, %v", seg, ok)
	}

	if _, err := Decode("k8s", []byte(`{}`)); !errors.Is(err, ErrUnknownService) {
		t.Errorf("unknown service err = %v", err)
	}
	if _, err := Decode(config.ServiceWifi, []byte(`{`)); err == nil {
		t.Error("truncated payload should fail")
	}
}

func TestLevelColorFollowsTheme(t *testing.T) {
	nord, _ := theme.Get("nord")
	c, ok := LevelCritical.Color(nord)
	if !ok || c != lipgloss.Color("#bf616a") {
		t.Errorf("critical = %v, %v", c, ok)
	}
	if _, ok := LevelNormal.Color(nord); ok {
		t.Error("normal level should have no color")
	}

	r, _ := New(Config{Store: newTestStore(t)})
	if r.cfg.Theme.Name != theme.DefaultLight {
		t.Errorf("default theme = %q, want %q", r.cfg.Theme.Name, theme.DefaultLight)
	}
}
