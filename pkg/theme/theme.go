// Package theme holds the palettes the status line and the monitor paint
// with. Built-in themes are looked up by name; a custom one can be loaded
// from a TOML file.
package theme

import (
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme is a named palette of hex colors.
type Theme struct {
	Name string

	Dim    string // secondary text, separators, ages
	Accent string // titles, focused borders
	Border string // unfocused borders

	OK      string // fresh values, charging, good levels
	Warn    string // stale values, warning levels
	Error   string // errors, critical levels
	Unknown string // values never fetched
}

// Built-in defaults for each background.
const (
	DefaultDark  = "catppuccin"
	DefaultLight = "latte"
)

var builtins = map[string]Theme{
	"catppuccin": {
		Name: "catppuccin", Dim: "#6c7086", Accent: "#cba6f7", Border: "#313244",
		OK: "#a6e3a1", Warn: "#f9e2af", Error: "#f38ba8", Unknown: "#6c7086",
	},
	"latte": {
		Name: "latte", Dim: "#8c8fa1", Accent: "#1e66f5", Border: "#ccd0da",
		OK: "#40a02b", Warn: "#df8e1d", Error: "#d20f39", Unknown: "#8c8fa1",
	},
	"gruvbox": {
		Name: "gruvbox", Dim: "#928374", Accent: "#fe8019", Border: "#504945",
		OK: "#b8bb26", Warn: "#fabd2f", Error: "#fb4934", Unknown: "#928374",
	},
	"nord": {
		Name: "nord", Dim: "#4c566a", Accent: "#88c0d0", Border: "#3b4252",
		OK: "#a3be8c", Warn: "#ebcb8b", Error: "#bf616a", Unknown: "#4c566a",
	},
	"dracula": {
		Name: "dracula", Dim: "#6272a4", Accent: "#bd93f9", Border: "#44475a",
		OK: "#50fa7b", Warn: "#f1fa8c", Error: "#ff5555", Unknown: "#6272a4",
	},
	"tokyo-night": {
		Name: "tokyo-night", Dim: "#565f89", Accent: "#7aa2f7", Border: "#292e42",
		OK: "#9ece6a", Warn: "#e0af68", Error: "#f7768e", Unknown: "#565f89",
	},
}

// Get returns a built-in theme by case-insensitive name.
func Get(name string) (Theme, bool) {
	t, ok := builtins[strings.ToLower(name)]
	return t, ok
}

// Names returns the built-in theme names, sorted.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the named built-in, or the default for the background
// when name is empty or unknown.
func Resolve(name string, dark bool) Theme {
	if t, ok := Get(name); ok {
		return t
	}
	if dark {
		return builtins[DefaultDark]
	}
	return builtins[DefaultLight]
}

// Load returns the theme in file when set, else Resolve(name, dark).
func Load(name, file string, dark bool) (Theme, error) {
	if file != "" {
		return LoadFile(file)
	}
	return Resolve(name, dark), nil
}

// Color converts a palette entry for lipgloss. An empty entry yields
// lipgloss.NoColor.
func Color(hex string) lipgloss.TerminalColor {
	if hex == "" {
		return lipgloss.NoColor{}
	}
	return lipgloss.Color(hex)
}
