package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config is the full bar-pulse configuration.
type Config struct {
	General    GeneralConfig    `toml:"general" yaml:"general"`
	Appearance AppearanceConfig `toml:"appearance" yaml:"appearance"`
	Weather    WeatherConfig    `toml:"weather" yaml:"weather"`
	Prayer     PrayerConfig     `toml:"prayer" yaml:"prayer"`
	NowPlaying NowPlayingConfig `toml:"nowplaying" yaml:"nowplaying"`
	Battery    BatteryConfig    `toml:"battery" yaml:"battery"`
	Wifi       ServiceConfig    `toml:"wifi" yaml:"wifi"`
	Bluetooth  ServiceConfig    `toml:"bluetooth" yaml:"bluetooth"`
	NetSpeed   NetSpeedConfig   `toml:"netspeed" yaml:"netspeed"`
	SysMetrics SysMetricsConfig `toml:"sysmetrics" yaml:"sysmetrics"`
	Tailnet    TailnetConfig    `toml:"tailnet" yaml:"tailnet"`
	Line       LineConfig       `toml:"line" yaml:"line"`
	MQTT       MQTTConfig       `toml:"mqtt" yaml:"mqtt"`
}

// GeneralConfig holds daemon-wide settings.
type GeneralConfig struct {
	CacheDir     string   `toml:"cache_dir" yaml:"cache_dir"`
	LogLevel     string   `toml:"log_level" yaml:"log_level"`
	LogFile      string   `toml:"log_file" yaml:"log_file"`
	SocketPath   string   `toml:"socket_path" yaml:"socket_path"`
	PIDFile      string   `toml:"pid_file" yaml:"pid_file"`
	HealthFile   string   `toml:"health_file" yaml:"health_file"`
	EnvFile      string   `toml:"env_file" yaml:"env_file"`
	FetchTimeout Duration `toml:"fetch_timeout" yaml:"fetch_timeout"`
}

// AppearanceConfig seeds the runtime settings. Changes are picked up
// without a restart when the daemon watches the config file.
type AppearanceConfig struct {
	DarkMode bool `toml:"dark_mode" yaml:"dark_mode"`
	DevMode  bool `toml:"dev_mode" yaml:"dev_mode"`

	// Theme names a built-in palette; empty follows DarkMode. ThemeFile
	// loads a custom palette instead.
	Theme     string `toml:"theme" yaml:"theme"`
	ThemeFile string `toml:"theme_file" yaml:"theme_file"`
}

// ServiceConfig is the part every polled service shares.
type ServiceConfig struct {
	Enabled  bool     `toml:"enabled" yaml:"enabled"`
	Interval Duration `toml:"interval" yaml:"interval"`
}

type WeatherConfig struct {
	ServiceConfig `toml:",inline" yaml:",inline"`
	City          string `toml:"city" yaml:"city"`
	Units         string `toml:"units" yaml:"units"`
	BaseURL       string `toml:"base_url" yaml:"base_url"`
}

type PrayerConfig struct {
	ServiceConfig `toml:",inline" yaml:",inline"`
	City          string `toml:"city" yaml:"city"`
	Country       string `toml:"country" yaml:"country"`
	Method        int    `toml:"method" yaml:"method"`
	BaseURL       string `toml:"base_url" yaml:"base_url"`
}

type NowPlayingConfig struct {
	ServiceConfig `toml:",inline" yaml:",inline"`
	Player        string `toml:"player" yaml:"player"`
	Enrich        bool   `toml:"enrich" yaml:"enrich"`
	Art           bool   `toml:"art" yaml:"art"`
	ArtSize       int    `toml:"art_size" yaml:"art_size"`
}

type BatteryConfig struct {
	ServiceConfig `toml:",inline" yaml:",inline"`
	Device        string `toml:"device" yaml:"device"`
}

type NetSpeedConfig struct {
	ServiceConfig `toml:",inline" yaml:",inline"`
	Iface         string `toml:"iface" yaml:"iface"`
}

type SysMetricsConfig struct {
	ServiceConfig `toml:",inline" yaml:",inline"`
	Mounts        []string `toml:"mounts" yaml:"mounts"`
}

type TailnetConfig struct {
	ServiceConfig `toml:",inline" yaml:",inline"`
	SocketPath    string `toml:"socket_path" yaml:"socket_path"`
}

// LineConfig controls "bar-pulse line".
type LineConfig struct {
	Preset    string   `toml:"preset" yaml:"preset"`
	Services  []string `toml:"services" yaml:"services"`
	Separator string   `toml:"separator" yaml:"separator"`
	MaxWidth  int      `toml:"max_width" yaml:"max_width"`
	MaxAge    Duration `toml:"max_age" yaml:"max_age"`
}

// MQTTConfig enables the optional publisher.
type MQTTConfig struct {
	Enabled     bool   `toml:"enabled" yaml:"enabled"`
	Broker      string `toml:"broker" yaml:"broker"`
	TopicPrefix string `toml:"topic_prefix" yaml:"topic_prefix"`
	Username    string `toml:"username" yaml:"username"`
	Password    string `toml:"password" yaml:"password"`
	QoS         byte   `toml:"qos" yaml:"qos"`
}

// Service names. They double as snapshot file names and IPC arguments.
const (
	ServiceWeather    = "weather"
	ServicePrayer     = "prayer"
	ServiceNowPlaying = "nowplaying"
	ServiceBattery    = "battery"
	ServiceWifi       = "wifi"
	ServiceBluetooth  = "bluetooth"
	ServiceNetSpeed   = "netspeed"
	ServiceSysMetrics = "sysmetrics"
	ServiceTailnet    = "tailnet"
)

// Services returns the per-service settings keyed by service name.
func (c *Config) Services() map[string]ServiceConfig {
	return map[string]ServiceConfig{
		ServiceWeather:    c.Weather.ServiceConfig,
		ServicePrayer:     c.Prayer.ServiceConfig,
		ServiceNowPlaying: c.NowPlaying.ServiceConfig,
		ServiceBattery:    c.Battery.ServiceConfig,
		ServiceWifi:       c.Wifi,
		ServiceBluetooth:  c.Bluetooth,
		ServiceNetSpeed:   c.NetSpeed.ServiceConfig,
		ServiceSysMetrics: c.SysMetrics.ServiceConfig,
		ServiceTailnet:    c.Tailnet.ServiceConfig,
	}
}

// Intervals returns each service's polling interval.
func (c *Config) Intervals() map[string]time.Duration {
	out := make(map[string]time.Duration)
	for name, sc := range c.Services() {
		out[name] = sc.Interval.Duration
	}
	return out
}

// DefaultConfig returns the default configuration with sensible defaults.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	cacheDir := filepath.Join(xdgCacheHome(home), "bar-pulse")
	runDir := runtimeDir(cacheDir)

	return &Config{
		General: GeneralConfig{
			CacheDir:     cacheDir,
			LogLevel:     "info",
			LogFile:      filepath.Join(cacheDir, "bar-pulse.log"),
			SocketPath:   filepath.Join(runDir, "bar-pulse.sock"),
			PIDFile:      filepath.Join(runDir, "bar-pulse.pid"),
			HealthFile:   filepath.Join(cacheDir, "daemon", "health.json"),
			FetchTimeout: Duration{10 * time.Second},
		},
		Weather: WeatherConfig{
			ServiceConfig: ServiceConfig{Enabled: true, Interval: Duration{30 * time.Minute}},
			Units:         "metric",
		},
		Prayer: PrayerConfig{
			ServiceConfig: ServiceConfig{Enabled: false, Interval: Duration{6 * time.Hour}},
			Method:        5,
		},
		NowPlaying: NowPlayingConfig{
			ServiceConfig: ServiceConfig{Enabled: true, Interval: Duration{2 * time.Second}},
			Enrich:        true,
			Art:           true,
			ArtSize:       128,
		},
		Battery:    BatteryConfig{ServiceConfig: ServiceConfig{Enabled: true, Interval: Duration{30 * time.Second}}},
		Wifi:       ServiceConfig{Enabled: true, Interval: Duration{10 * time.Second}},
		Bluetooth:  ServiceConfig{Enabled: true, Interval: Duration{30 * time.Second}},
		NetSpeed:   NetSpeedConfig{ServiceConfig: ServiceConfig{Enabled: true, Interval: Duration{2 * time.Second}}},
		SysMetrics: SysMetricsConfig{ServiceConfig: ServiceConfig{Enabled: true, Interval: Duration{5 * time.Second}}},
		Tailnet:    TailnetConfig{ServiceConfig: ServiceConfig{Enabled: false, Interval: Duration{30 * time.Second}}},
		Line: LineConfig{
			Preset:    "laptop",
			Separator: "  ",
			MaxWidth:  120,
			MaxAge:    Duration{1 * time.Hour},
		},
		MQTT: MQTTConfig{
			TopicPrefix: "bar-pulse",
		},
	}
}
