// Package barline renders a single status line for a bar (waybar, polybar,
// tmux, a shell prompt) from the snapshot files the daemon writes. It never
// talks to the daemon, so a bar keeps working while the daemon restarts.
package barline

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/cache"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/theme"
)

// ErrUnknownService is returned by New for a service with no segment.
var ErrUnknownService = errors.New("barline: unknown service")

// Defaults used when Config leaves a field zero.
const (
	DefaultSeparator = "  "
	DefaultMaxWidth  = 120
	DefaultMaxAge    = time.Hour
)

// Level grades a segment. Waybar receives the worst level as its class.
type Level int

const (
	LevelNormal Level = iota
	LevelGood
	LevelWarning
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelGood:
		return "good"
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	default:
		return "normal"
	}
}

// Segment is one service's piece of the line.
type Segment struct {
	Service string
	Icon    string
	Text    string
	Tooltip string
	Level   Level
}

// Plain returns "icon text" without styling.
func (s Segment) Plain() string {
	if s.Icon == "" {
		return s.Text
	}
	return s.Icon + " " + s.Text
}

// Config controls what is rendered and how.
type Config struct {
	// Store reads the snapshots.
	Store *cache.Store

	// Services lists segments in display order.
	Services []string

	Separator string
	MaxWidth  int

	// MaxAge drops snapshots fetched longer ago than this. Zero uses
	// DefaultMaxAge; a negative value accepts any age.
	MaxAge time.Duration

	// Intervals are the services' polling intervals. A service polled
	// less often than MaxAge keeps its snapshot for two intervals, so a
	// healthy daemon never blanks it between fetches.
	Intervals map[string]time.Duration

	// Profile selects the color depth. termenv.Ascii disables styling; the
	// zero value is TrueColor, so callers normally pass DetectProfile.
	Profile termenv.Profile

	// Theme colors the segments. The zero value resolves to the default
	// theme for DarkMode.
	Theme    theme.Theme
	DarkMode bool

	Now func() time.Time
}

// Renderer builds lines from snapshots.
type Renderer struct {
	cfg   Config
	style *lipgloss.Renderer
}

// New validates cfg and returns a Renderer.
func New(cfg Config) (*Renderer, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("barline: nil store")
	}
	for _, name := range cfg.Services {
		if _, ok := formatters[name]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownService, name)
		}
	}
	if cfg.Separator == "" {
		cfg.Separator = DefaultSeparator
	}
	if cfg.MaxWidth <= 0 {
		cfg.MaxWidth = DefaultMaxWidth
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Theme.Name == "" {
		cfg.Theme = theme.Resolve("", cfg.DarkMode)
	}

	style := lipgloss.NewRenderer(io.Discard)
	style.SetColorProfile(cfg.Profile)

	return &Renderer{cfg: cfg, style: style}, nil
}

// maxAge is the cutoff for one service, or <= 0 for none.
func (r *Renderer) maxAge(service string) time.Duration {
	if r.cfg.MaxAge < 0 {
		return r.cfg.MaxAge
	}
	return max(r.cfg.MaxAge, 2*r.cfg.Intervals[service])
}

// Segments reads every configured service and returns the segments that
// have fresh enough data, in configured order.
func (r *Renderer) Segments() []Segment {
	now := r.cfg.Now()
	var out []Segment
	for _, name := range r.cfg.Services {
		f := formatters[name]
		v, ok := f.read(r, name, now)
		if !ok {
			continue
		}
		seg, ok := f.render(v, now)
		if !ok {
			continue
		}
		seg.Service = name
		out = append(out, seg)
	}
	return out
}

// Render returns the styled line, or "" when no segment has data.
func (r *Renderer) Render() string {
	return r.format(r.Segments())
}

// format joins segments with the separator. Whole segments are dropped
// from the right while the line is too wide; a first segment that alone
// exceeds the width is truncated with an ellipsis.
func (r *Renderer) format(segs []Segment) string {
	if len(segs) == 0 {
		return ""
	}
	sep := r.style.NewStyle().Faint(true).Render(r.cfg.Separator)
	sepWidth := ansi.StringWidth(r.cfg.Separator)

	var b strings.Builder
	width := 0
	for i, seg := range segs {
		text := r.paint(seg)
		w := ansi.StringWidth(text)
		if i > 0 {
			if width+sepWidth+w > r.cfg.MaxWidth {
				break
			}
			b.WriteString(sep)
			width += sepWidth
		}
		b.WriteString(text)
		width += w
	}
	return ansi.Truncate(b.String(), r.cfg.MaxWidth, "…")
}

func (r *Renderer) paint(seg Segment) string {
	plain := seg.Plain()
	c, ok := seg.Level.Color(r.cfg.Theme)
	if !ok {
		return plain
	}
	return r.style.NewStyle().Foreground(c).Render(plain)
}

// Color returns the foreground t gives l. Normal segments have none.
func (l Level) Color(t theme.Theme) (lipgloss.TerminalColor, bool) {
	switch l {
	case LevelGood:
		return theme.Color(t.OK), true
	case LevelWarning:
		return theme.Color(t.Warn), true
	case LevelCritical:
		return theme.Color(t.Error), true
	}
	return nil, false
}

// Waybar is the JSON object waybar's custom module reads with
// "return-type": "json".
type Waybar struct {
	Text    string `json:"text"`
	Tooltip string `json:"tooltip"`
	Class   string `json:"class"`
}

// Waybar renders the line without ANSI styling, a tooltip made of every
// segment's tooltip, and the worst level as class.
func (r *Renderer) Waybar() Waybar {
	segs := r.Segments()

	plain := *r
	plain.style = lipgloss.NewRenderer(io.Discard)
	plain.style.SetColorProfile(termenv.Ascii)

	worst := LevelNormal
	tips := make([]string, 0, len(segs))
	for _, s := range segs {
		if s.Level > worst {
			worst = s.Level
		}
		tip := s.Tooltip
		if tip == "" {
			tip = s.Plain()
		}
		tips = append(tips, tip)
	}
	return Waybar{
		Text:    plain.format(segs),
		Tooltip: strings.Join(tips, "\n"),
		Class:   worst.String(),
	}
}
