package tui

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// filterServices returns the names containing query, case-insensitively.
// An empty query returns every name.
func filterServices(names []string, query string) []string {
	if query == "" {
		return names
	}
	lower := strings.ToLower(query)
	var out []string
	for _, n := range names {
		if strings.Contains(strings.ToLower(n), lower) {
			out = append(out, n)
		}
	}
	return out
}

// renderSearchBar renders "/query_" padded or truncated to width.
func renderSearchBar(query string, width int) string {
	if width <= 0 {
		return ""
	}
	return padRight(ansi.Truncate("/"+query+"_", width, ""), width)
}

func padRight(s string, width int) string {
	if w := ansi.StringWidth(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}
