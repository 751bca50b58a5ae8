package theme

import (
	"bytes"
	"fmt"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"
)

// tomlTheme is the file layout of a custom theme:
//
//	name = "mine"
//	[base]
//	dim = "#6c7086"
//	accent = "#cba6f7"
//	border = "#313244"
//	[status]
//	ok = "#a6e3a1"
//	warn = "#f9e2af"
//	error = "#f38ba8"
//	unknown = "#6c7086"
type tomlTheme struct {
	Name   string     `toml:"name"`
	Base   tomlBase   `toml:"base"`
	Status tomlStatus `toml:"status"`
}

type tomlBase struct {
	Dim    string `toml:"dim"`
	Accent string `toml:"accent"`
	Border string `toml:"border"`
}

type tomlStatus struct {
	OK      string `toml:"ok"`
	Warn    string `toml:"warn"`
	Error   string `toml:"error"`
	Unknown string `toml:"unknown"`
}

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// LoadFile reads a TOML theme from path.
func LoadFile(path string) (Theme, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Theme{}, fmt.Errorf("theme: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a TOML theme.
func Parse(data []byte) (Theme, error) {
	var raw tomlTheme
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return Theme{}, fmt.Errorf("theme: decode: %w", err)
	}
	t := Theme{
		Name:    raw.Name,
		Dim:     raw.Base.Dim,
		Accent:  raw.Base.Accent,
		Border:  raw.Base.Border,
		OK:      raw.Status.OK,
		Warn:    raw.Status.Warn,
		Error:   raw.Status.Error,
		Unknown: raw.Status.Unknown,
	}
	if err := validate(t); err != nil {
		return Theme{}, err
	}
	return t, nil
}

// Encode writes t in the layout Parse reads.
func Encode(t Theme) ([]byte, error) {
	raw := tomlTheme{
		Name:   t.Name,
		Base:   tomlBase{Dim: t.Dim, Accent: t.Accent, Border: t.Border},
		Status: tomlStatus{OK: t.OK, Warn: t.Warn, Error: t.Error, Unknown: t.Unknown},
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(raw); err != nil {
		return nil, fmt.Errorf("theme: encode: %w", err)
	}
	return buf.Bytes(), nil
}

func validate(t Theme) error {
	if t.Name == "" {
		return fmt.Errorf("theme: missing name")
	}
	for _, f := range []struct{ field, value string }{
		{"base.dim", t.Dim},
		{"base.accent", t.Accent},
		{"base.border", t.Border},
		{"status.ok", t.OK},
		{"status.warn", t.Warn},
		{"status.error", t.Error},
		{"status.unknown", t.Unknown},
	} {
		if !hexColor.MatchString(f.value) {
			return fmt.Errorf("theme %s: %s %q is not a #rrggbb color", t.Name, f.field, f.value)
		}
	}
	return nil
}
