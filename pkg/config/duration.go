// Package config provides TOML (or YAML) configuration for bar-pulse.
package config

import (
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration read from a config string such as "90s" or
// "30m". A bare integer is taken as seconds, so interval = 600 works too.
type Duration struct {
	time.Duration
}

// ParseDuration parses the config form of a duration.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("duration %q is negative", s)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	switch {
	case err != nil:
		return 0, fmt.Errorf("bad duration %q: %w", s, err)
	case d < 0:
		return 0, fmt.Errorf("duration %q is negative", s)
	}
	return d, nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	return d.UnmarshalText([]byte(node.Value))
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}
