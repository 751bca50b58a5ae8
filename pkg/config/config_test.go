package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
	if cfg.Weather.Interval.Duration != 30*time.Minute {
		t.Errorf("weather interval = %v, want 30m", cfg.Weather.Interval.Duration)
	}
	if !strings.HasSuffix(cfg.General.CacheDir, "bar-pulse") {
		t.Errorf("CacheDir = %q", cfg.General.CacheDir)
	}
}

func TestDefaultConfigUsesXDG(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/tmp/xdg-cache")
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")

	cfg := DefaultConfig()
	if cfg.General.CacheDir != "/tmp/xdg-cache/bar-pulse" {
		t.Errorf("CacheDir = %q", cfg.General.CacheDir)
	}
	if cfg.General.SocketPath != "/run/user/1000/bar-pulse/bar-pulse.sock" {
		t.Errorf("SocketPath = %q", cfg.General.SocketPath)
	}
}

func TestLoadFromReaderTOML(t *testing.T) {
	in := `
[general]
log_level = "debug"
fetch_timeout = "5s"

[appearance]
dark_mode = true

[weather]
city = "Cairo"
interval = "15m"

[prayer]
enabled = true
city = "Cairo"
country = "Egypt"

[line]
services = ["weather", "prayer"]
`
	cfg, err := LoadFromReader(strings.NewReader(in))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.General.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.General.LogLevel)
	}
	if cfg.General.FetchTimeout.Duration != 5*time.Second {
		t.Errorf("FetchTimeout = %v", cfg.General.FetchTimeout.Duration)
	}
	if !cfg.Appearance.DarkMode {
		t.Error("DarkMode not set")
	}
	if cfg.Weather.City != "Cairo" || cfg.Weather.Interval.Duration != 15*time.Minute {
		t.Errorf("Weather = %+v", cfg.Weather)
	}
	// Unset fields keep their defaults.
	if !cfg.Weather.Enabled || cfg.Weather.Units != "metric" {
		t.Errorf("Weather defaults lost: %+v", cfg.Weather)
	}
	if !cfg.Prayer.Enabled || cfg.Prayer.Method != 5 {
		t.Errorf("Prayer = %+v", cfg.Prayer)
	}
	if got := cfg.LineServices(); len(got) != 2 || got[1] != "prayer" {
		t.Errorf("LineServices = %v", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate = %v", err)
	}
}

func TestLoadFromReaderBadDuration(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("[weather]\ninterval = \"soon\"\n"))
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
	_, err = LoadFromReader(strings.NewReader("[weather]\ninterval = \"-5m\"\n"))
	if err == nil {
		t.Fatal("expected error for negative duration")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"90s", 90 * time.Second, false},
		{"1h30m", 90 * time.Minute, false},
		{"600", 10 * time.Minute, false},
		{"-1", 0, true},
		{"-5m", 0, true},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDuration(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	cfg, err := LoadFromReader(strings.NewReader("[weather]\ninterval = 600\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Weather.Interval.Duration != 10*time.Minute {
		t.Errorf("integer interval = %v", cfg.Weather.Interval.Duration)
	}
}

func TestLoadYAML(t *testing.T) {
	in := `
general:
  log_level: warn
weather:
  city: Alexandria
  units: imperial
  interval: 45m
nowplaying:
  enabled: false
mqtt:
  enabled: true
  broker: tcp://localhost:1883
`
	cfg, err := LoadYAML(strings.NewReader(in))
	if err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}
	if cfg.Weather.City != "Alexandria" || cfg.Weather.Units != "imperial" {
		t.Errorf("Weather = %+v", cfg.Weather)
	}
	if cfg.Weather.Interval.Duration != 45*time.Minute {
		t.Errorf("Weather.Interval = %v", cfg.Weather.Interval.Duration)
	}
	if cfg.NowPlaying.Enabled {
		t.Error("nowplaying should be disabled")
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.TopicPrefix != "bar-pulse" {
		t.Errorf("MQTT = %+v", cfg.MQTT)
	}
}

func TestLoadYAMLUnknownField(t *testing.T) {
	if _, err := LoadYAML(strings.NewReader("weathr:\n  city: x\n")); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadFromFileByExtension(t *testing.T) {
	dir := t.TempDir()
	yml := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(yml, []byte("weather:\n  city: Giza\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFromFile(yml)
	if err != nil {
		t.Fatalf("LoadFromFile(yml): %v", err)
	}
	if cfg.Weather.City != "Giza" {
		t.Errorf("City = %q", cfg.Weather.City)
	}

	cfg, err = LoadFromFile(filepath.Join(dir, "missing.toml"))
	if err != nil {
		t.Fatalf("missing file: %v", err)
	}
	if cfg.Weather.City != "" {
		t.Errorf("missing file should give defaults, got city %q", cfg.Weather.City)
	}
}

func TestLoadSearchPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	if err := os.MkdirAll(filepath.Join(dir, "bar-pulse"), 0o755); err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(dir, "bar-pulse", "config.toml")
	if err := os.WriteFile(p, []byte("[weather]\ncity = \"Luxor\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := Path(); got != p {
		t.Errorf("Path() = %q, want %q", got, p)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Weather.City != "Luxor" {
		t.Errorf("City = %q", cfg.Weather.City)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BAR_PULSE_CITY", "Aswan")
	t.Setenv("BAR_PULSE_COUNTRY", "Egypt")
	t.Setenv("BAR_PULSE_DARK_MODE", "true")
	t.Setenv("BAR_PULSE_MQTT_BROKER", "tcp://broker:1883")

	cfg, err := LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Weather.City != "Aswan" || cfg.Prayer.City != "Aswan" || cfg.Prayer.Country != "Egypt" {
		t.Errorf("city overrides not applied: %+v %+v", cfg.Weather, cfg.Prayer)
	}
	if !cfg.Appearance.DarkMode {
		t.Error("dark mode override not applied")
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Broker != "tcp://broker:1883" {
		t.Errorf("MQTT = %+v", cfg.MQTT)
	}
}

func TestEnvOverrideBadBool(t *testing.T) {
	t.Setenv("BAR_PULSE_DARK_MODE", "sometimes")
	if _, err := LoadFromReader(strings.NewReader("")); err == nil {
		t.Fatal("expected error for invalid BAR_PULSE_DARK_MODE")
	}
}

func TestDotenvFile(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, "bar-pulse.env")
	if err := os.WriteFile(env, []byte("BAR_PULSE_MQTT_PASSWORD=hunter2\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	// Registered so t.Setenv's cleanup restores it after godotenv sets it.
	t.Setenv("BAR_PULSE_MQTT_PASSWORD", "")
	os.Unsetenv("BAR_PULSE_MQTT_PASSWORD")

	in := "[general]\nenv_file = \"" + env + "\"\n"
	cfg, err := LoadFromReader(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MQTT.Password != "hunter2" {
		t.Errorf("Password = %q, want value from env file", cfg.MQTT.Password)
	}
}

func TestDotenvMissingIsIgnored(t *testing.T) {
	in := "[general]\nenv_file = \"" + filepath.Join(t.TempDir(), "nope.env") + "\"\n"
	if _, err := LoadFromReader(strings.NewReader(in)); err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"interval too short", func(c *Config) { c.Weather.Interval = Duration{time.Millisecond} }, "weather.interval"},
		{"bad units", func(c *Config) { c.Weather.Units = "kelvin" }, "weather.units"},
		{"prayer needs city", func(c *Config) { c.Prayer.Enabled = true }, "prayer.city"},
		{"bad log level", func(c *Config) { c.General.LogLevel = "loud" }, "log_level"},
		{"mqtt needs broker", func(c *Config) { c.MQTT.Enabled = true }, "mqtt.broker"},
		{"bad qos", func(c *Config) { c.MQTT.Enabled, c.MQTT.Broker, c.MQTT.QoS = true, "tcp://x:1883", 3 }, "mqtt.qos"},
		{"unknown preset", func(c *Config) { c.Line.Preset = "huge" }, "line.preset"},
		{"unknown line service", func(c *Config) { c.Line.Services = []string{"stocks"} }, "stocks"},
		{"no timeout", func(c *Config) { c.General.FetchTimeout = Duration{} }, "fetch_timeout"},
		{"unknown theme", func(c *Config) { c.Appearance.Theme = "solarized" }, "appearance.theme"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}

func TestValidateIgnoresDisabledIntervals(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tailnet.Enabled = false
	cfg.Tailnet.Interval = Duration{}
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled service interval should not be validated: %v", err)
	}
}

func TestDurationText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("90s")); err != nil {
		t.Fatal(err)
	}
	if d.Duration != 90*time.Second {
		t.Errorf("d = %v", d.Duration)
	}
	b, _ := d.MarshalText()
	if string(b) != "1m30s" {
		t.Errorf("MarshalText = %q", b)
	}
	if err := d.UnmarshalText(nil); err != nil || d.Duration != 0 {
		t.Errorf("empty duration = %v, %v", d.Duration, err)
	}
}

func TestWriteRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Weather.City = "Cairo"
	if err := Write(&buf, cfg); err != nil {
		t.Fatal(err)
	}
	got, err := LoadFromReader(&buf)
	if err != nil {
		t.Fatalf("reload written config: %v", err)
	}
	if got.Weather.City != "Cairo" || got.Weather.Interval != cfg.Weather.Interval {
		t.Errorf("round trip lost weather settings: %+v", got.Weather)
	}
}

func TestLinePreset(t *testing.T) {
	if got := LinePreset("minimal"); len(got) != 2 {
		t.Errorf("minimal = %v", got)
	}
	if got, want := LinePreset("nope"), LinePreset("laptop"); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("unknown preset = %v, want laptop %v", got, want)
	}
	names := LinePresetNames()
	if names[0] != "desktop" {
		t.Errorf("names not sorted: %v", names)
	}
	// Callers may modify the result.
	p := LinePreset("minimal")
	p[0] = "x"
	if LinePreset("minimal")[0] == "x" {
		t.Error("LinePreset returned shared slice")
	}
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"debug", "INFO", "", "warning", "error"} {
		if _, err := ParseLevel(s); err != nil {
			t.Errorf("ParseLevel(%q) = %v", s, err)
		}
	}
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(p, []byte("[appearance]\ndark_mode = false\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got := make(chan *Config, 4)
	w, err := Watch(p, nil, func(c *Config) { got <- c })
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer w.Close()

	// An invalid file is skipped.
	if err := os.WriteFile(p, []byte("[weather]\nunits = \"kelvin\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(3 * watchDebounce)
	if err := os.WriteFile(p, []byte("[appearance]\ndark_mode = true\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-got:
		if !c.Appearance.DarkMode {
			t.Errorf("reloaded DarkMode = false")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}

	if err := w.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	w.Release()
}
