package barline

import (
	"os"

	"github.com/charmbracelet/x/term"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectProfile returns the color profile for output written to f. Pipes
// (waybar, polybar, tmux status commands) get plain text.
func DetectProfile(f *os.File) termenv.Profile {
	if !IsTerminal(f) {
		return termenv.Ascii
	}
	return termenv.NewOutput(f).EnvColorProfile()
}

// TerminalWidth returns the width of the terminal behind f, or fallback
// when f is not a terminal.
func TerminalWidth(f *os.File, fallback int) int {
	if !IsTerminal(f) {
		return fallback
	}
	w, _, err := term.GetSize(f.Fd())
	if err != nil || w <= 0 {
		return fallback
	}
	return w
}
