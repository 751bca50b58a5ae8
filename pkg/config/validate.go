package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/theme"
)

// minInterval guards against a typo like "1ms" hammering a remote API.
const minInterval = time.Second

// Validate reports every problem in cfg joined into one error.
func (c *Config) Validate() error {
	var errs []error

	if c.General.CacheDir == "" {
		errs = append(errs, errors.New("general.cache_dir must be set"))
	}
	if _, err := ParseLevel(c.General.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.General.FetchTimeout.Duration <= 0 {
		errs = append(errs, errors.New("general.fetch_timeout must be positive"))
	}

	for name, svc := range c.Services() {
		if svc.Enabled && svc.Interval.Duration < minInterval {
			errs = append(errs, fmt.Errorf("%s.interval %s is below %s", name, svc.Interval.Duration, minInterval))
		}
	}

	if c.Appearance.Theme != "" {
		if _, ok := theme.Get(c.Appearance.Theme); !ok {
			errs = append(errs, fmt.Errorf("appearance.theme %q is unknown (have %s)", c.Appearance.Theme, strings.Join(theme.Names(), ", ")))
		}
	}

	switch c.Weather.Units {
	case "", "metric", "imperial":
	default:
		errs = append(errs, fmt.Errorf("weather.units %q must be metric or imperial", c.Weather.Units))
	}
	if c.Prayer.Enabled && (c.Prayer.City == "" || c.Prayer.Country == "") {
		errs = append(errs, errors.New("prayer.city and prayer.country are required when prayer is enabled"))
	}
	if c.NowPlaying.ArtSize < 0 {
		errs = append(errs, errors.New("nowplaying.art_size must not be negative"))
	}

	if c.Line.MaxWidth < 0 {
		errs = append(errs, errors.New("line.max_width must not be negative"))
	}
	if c.Line.Preset != "" && len(c.Line.Services) == 0 {
		if _, ok := linePresets[c.Line.Preset]; !ok {
			errs = append(errs, fmt.Errorf("line.preset %q is unknown (have %s)", c.Line.Preset, strings.Join(LinePresetNames(), ", ")))
		}
	}
	known := c.Services()
	for _, s := range c.Line.Services {
		if _, ok := known[s]; !ok {
			errs = append(errs, fmt.Errorf("line.services: unknown service %q", s))
		}
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			errs = append(errs, errors.New("mqtt.broker is required when mqtt is enabled"))
		}
		if c.MQTT.QoS > 2 {
			errs = append(errs, fmt.Errorf("mqtt.qos %d must be 0, 1 or 2", c.MQTT.QoS))
		}
	}

	return errors.Join(errs...)
}

// ParseLevel maps a log_level string to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("general.log_level %q must be debug, info, warn or error", s)
}
