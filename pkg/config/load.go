package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from the standard config path.
// Search order:
//  1. $XDG_CONFIG_HOME/bar-pulse/config.toml (or config.yaml)
//  2. ~/.config/bar-pulse/config.toml (or config.yaml)
//
// If no file exists, returns DefaultConfig() with env overrides applied.
func Load() (*Config, error) {
	if p := Path(); p != "" {
		return LoadFromFile(p)
	}
	cfg := DefaultConfig()
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns the first existing config file, or "" if none exists.
func Path() string {
	for _, p := range configSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// LoadFromFile reads configuration from a specific file path. Files ending
// in .yaml or .yml are parsed as YAML, everything else as TOML. A missing
// file yields the defaults.
func LoadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			if err := applyEnvOverrides(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(f)
	default:
		return LoadFromReader(f)
	}
}

// LoadFromReader reads TOML configuration from an io.Reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadYAML reads YAML configuration from an io.Reader.
func LoadYAML(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Write saves cfg as TOML.
func Write(w io.Writer, cfg *Config) error {
	return toml.NewEncoder(w).Encode(cfg)
}

// applyEnvOverrides loads the optional dotenv file, then checks environment
// variables and overrides config values. Variables already set in the
// process environment win over the dotenv file.
func applyEnvOverrides(cfg *Config) error {
	if cfg.General.EnvFile != "" {
		if err := godotenv.Load(expandHome(cfg.General.EnvFile)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("config: env file %s: %w", cfg.General.EnvFile, err)
		}
	}

	if v := os.Getenv("BAR_PULSE_CACHE_DIR"); v != "" {
		cfg.General.CacheDir = v
	}
	if v := os.Getenv("BAR_PULSE_LOG_LEVEL"); v != "" {
		cfg.General.LogLevel = v
	}
	if v := os.Getenv("BAR_PULSE_SOCKET"); v != "" {
		cfg.General.SocketPath = v
	}
	if v := os.Getenv("BAR_PULSE_CITY"); v != "" {
		cfg.Weather.City = v
		cfg.Prayer.City = v
	}
	if v := os.Getenv("BAR_PULSE_COUNTRY"); v != "" {
		cfg.Prayer.Country = v
	}
	if v := os.Getenv("BAR_PULSE_UNITS"); v != "" {
		cfg.Weather.Units = v
	}
	if v := os.Getenv("BAR_PULSE_DARK_MODE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: BAR_PULSE_DARK_MODE: %w", err)
		}
		cfg.Appearance.DarkMode = b
	}
	if v := os.Getenv("BAR_PULSE_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
		cfg.MQTT.Enabled = true
	}
	if v := os.Getenv("BAR_PULSE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	return nil
}

// configSearchPaths returns the ordered list of config file paths to try.
func configSearchPaths() []string {
	home, _ := os.UserHomeDir()
	var dirs []string

	xdg := xdgConfigHome(home)
	dirs = append(dirs, filepath.Join(xdg, "bar-pulse"))

	// If XDG_CONFIG_HOME was explicitly set, also try the fallback default.
	defaultXDG := filepath.Join(home, ".config")
	if xdg != defaultXDG {
		dirs = append(dirs, filepath.Join(defaultXDG, "bar-pulse"))
	}

	var paths []string
	for _, d := range dirs {
		paths = append(paths,
			filepath.Join(d, "config.toml"),
			filepath.Join(d, "config.yaml"),
			filepath.Join(d, "config.yml"),
		)
	}
	return paths
}

// xdgConfigHome returns XDG_CONFIG_HOME or ~/.config as fallback.
func xdgConfigHome(home string) string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	return filepath.Join(home, ".config")
}

// xdgCacheHome returns XDG_CACHE_HOME or ~/.cache as fallback.
func xdgCacheHome(home string) string {
	if v := os.Getenv("XDG_CACHE_HOME"); v != "" {
		return v
	}
	return filepath.Join(home, ".cache")
}

// runtimeDir returns XDG_RUNTIME_DIR/bar-pulse, or fallback when unset.
func runtimeDir(fallback string) string {
	if v := os.Getenv("XDG_RUNTIME_DIR"); v != "" {
		return filepath.Join(v, "bar-pulse")
	}
	return fallback
}

func expandHome(p string) string {
	if rest, ok := strings.CutPrefix(p, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return p
}
