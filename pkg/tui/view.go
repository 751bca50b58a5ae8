package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/barline"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/services"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/sysstat"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/theme"
)

const (
	cardWidth    = 34
	defaultWidth = 80
	gaugeWidth   = 24
)

// View renders the header, the cards or the focused detail, and the footer.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	width := m.width
	if width <= 0 {
		width = defaultWidth
	}

	var sections []string
	sections = append(sections, m.renderHeader(width))
	if m.searching || m.query != "" {
		sections = append(sections, renderSearchBar(m.query, width))
	}
	if m.expanded && m.focused != "" {
		sections = append(sections, m.renderDetail(m.focused, width))
	} else {
		sections = append(sections, m.renderGrid(width))
	}
	if m.status != "" {
		sections = append(sections, m.style.NewStyle().Foreground(theme.Color(m.theme.Dim)).Render(ansi.Truncate(m.status, width, "…")))
	}
	sections = append(sections, m.help.View(m.keys))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader(width int) string {
	title := m.style.NewStyle().Bold(true).Foreground(theme.Color(m.theme.Accent)).Render("bar-pulse")

	healthy := 0
	for _, name := range m.names {
		if m.infos[name].State == services.Fresh {
			healthy++
		}
	}
	parts := []string{title, fmt.Sprintf("%d/%d fresh", healthy, len(m.names))}
	if m.settings.DarkMode {
		parts = append(parts, "dark")
	}
	if m.settings.DevMode {
		parts = append(parts, "dev")
	}
	return ansi.Truncate(strings.Join(parts, "  "), width, "…")
}

func (m Model) renderGrid(width int) string {
	visible := m.visible()
	if len(visible) == 0 {
		if m.query != "" {
			return m.style.NewStyle().Foreground(theme.Color(m.theme.Dim)).Render("no services match " + m.query)
		}
		return m.style.NewStyle().Foreground(theme.Color(m.theme.Dim)).Render("no services enabled")
	}

	cols := max(1, width/(cardWidth+1))
	var rows []string
	for i := 0; i < len(visible); i += cols {
		end := min(i+cols, len(visible))
		cards := make([]string, 0, end-i)
		for _, name := range visible[i:end] {
			cards = append(cards, m.renderCard(name))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cards...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// renderCard is a bordered box: name, state and age on top, the
// formatted value below, then the last error if any.
func (m Model) renderCard(name string) string {
	info := m.infos[name]
	inner := cardWidth - 4

	lines := []string{m.titleLine(info, inner), m.valueLine(info, inner)}
	if info.Error != "" {
		lines = append(lines, m.style.NewStyle().Foreground(theme.Color(m.theme.Error)).Render(ansi.Truncate(info.Error, inner, "…")))
	}

	border := theme.Color(m.theme.Border)
	if name == m.focused {
		border = theme.Color(m.theme.Accent)
	}
	return m.style.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1).
		Width(cardWidth - 2).
		Render(strings.Join(lines, "\n"))
}

func (m Model) titleLine(info services.Info, width int) string {
	left := m.stateMark(info.State) + " " + m.style.NewStyle().Bold(true).Render(info.Name)
	right := age(info.FetchedAt, m.now())
	if info.FromDisk {
		right += " disk"
	}
	gap := width - ansi.StringWidth(left) - ansi.StringWidth(right)
	if gap < 1 {
		return ansi.Truncate(left, width, "…")
	}
	return left + strings.Repeat(" ", gap) + m.style.NewStyle().Foreground(theme.Color(m.theme.Dim)).Render(right)
}

func (m Model) valueLine(info services.Info, width int) string {
	seg, ok := barline.Describe(info.Name, info.Data, m.now())
	if !ok {
		return m.style.NewStyle().Foreground(theme.Color(m.theme.Dim)).Render("n/a")
	}
	text := ansi.Truncate(seg.Plain(), width, "…")
	if c, ok := seg.Level.Color(m.theme); ok {
		return m.style.NewStyle().Foreground(c).Render(text)
	}
	return text
}

func (m Model) stateMark(s services.State) string {
	switch s {
	case services.Fetching:
		return m.spinner.View()
	case services.Fresh:
		return m.style.NewStyle().Foreground(theme.Color(m.theme.OK)).Render("●")
	case services.Stale:
		return m.style.NewStyle().Foreground(theme.Color(m.theme.Warn)).Render("●")
	default:
		return m.style.NewStyle().Foreground(theme.Color(m.theme.Unknown)).Render("○")
	}
}

// renderDetail shows everything known about one service, with gauges and
// history for the numeric ones.
func (m Model) renderDetail(name string, width int) string {
	info := m.infos[name]
	now := m.now()
	label := m.style.NewStyle().Foreground(theme.Color(m.theme.Dim)).Width(10)

	row := func(k, v string) string { return label.Render(k) + v }

	lines := []string{
		m.titleLine(info, min(width, 60)),
		"",
		row("state", info.State.String()),
	}
	if !info.FetchedAt.IsZero() {
		lines = append(lines, row("fetched", info.FetchedAt.Local().Format("15:04:05")+" ("+age(info.FetchedAt, now)+" ago)"))
	}
	if info.FromDisk {
		lines = append(lines, row("source", "disk snapshot"))
	}
	if info.Error != "" {
		lines = append(lines, row("error", m.style.NewStyle().Foreground(theme.Color(m.theme.Error)).Render(info.Error)))
	}

	if seg, ok := barline.Describe(name, info.Data, now); ok {
		lines = append(lines, row("value", seg.Plain()))
		for _, t := range strings.Split(seg.Tooltip, "\n") {
			if t != "" && t != seg.Text {
				lines = append(lines, row("", t))
			}
		}
	}

	switch v := info.Data.(type) {
	case sysstat.SysMetrics:
		lines = append(lines, "",
			row("cpu", bar(v.CPUPercent/100, gaugeWidth)+fmt.Sprintf(" %3.0f%%", v.CPUPercent)),
			row("memory", bar(v.MemUsedPercent/100, gaugeWidth)+fmt.Sprintf(" %3.0f%%", v.MemUsedPercent)),
		)
		for _, d := range v.Disks {
			lines = append(lines, row(d.Path, bar(d.UsedPercent/100, gaugeWidth)+fmt.Sprintf(" %3.0f%%", d.UsedPercent)))
		}
		lines = append(lines, row("load", fmt.Sprintf("%.2f %.2f %.2f", v.Load1, v.Load5, v.Load15)))
		if len(m.cpu) > 1 {
			lines = append(lines, row("history", sparkline(m.cpu, width-10)))
		}
	case sysstat.NetSpeed:
		if len(m.rx) > 1 {
			lines = append(lines, "",
				row("↓ "+sysstat.FormatRate(v.RxBytesPerSec), sparkline(m.rx, width-10)),
				row("↑ "+sysstat.FormatRate(v.TxBytesPerSec), sparkline(m.tx, width-10)),
			)
		}
	case sysstat.Battery:
		if v.Present {
			lines = append(lines, "", row("charge", bar(v.Percent/100, gaugeWidth)+fmt.Sprintf(" %3.0f%%", v.Percent)))
		}
	}

	for i, l := range lines {
		lines[i] = ansi.Truncate(l, width, "…")
	}
	return strings.Join(lines, "\n")
}

// age formats how long ago t was, or "never".
func age(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", max(0, int(d.Seconds())))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
