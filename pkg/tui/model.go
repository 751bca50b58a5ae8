package tui

import (
	"os"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/app"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/services"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/sysstat"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/theme"
)

// historyLen is how many samples the detail sparklines keep.
const historyLen = 60

// DefaultRefreshTimeout bounds a refresh the user asks for.
const DefaultRefreshTimeout = 30 * time.Second

type keyMap struct {
	Next    key.Binding
	Prev    key.Binding
	Expand  key.Binding
	Back    key.Binding
	Refresh key.Binding
	Search  key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.Expand, k.Refresh, k.Search, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Next, k.Prev, k.Expand, k.Back},
		{k.Refresh, k.Search, k.Help, k.Quit},
	}
}

func defaultKeys() keyMap {
	return keyMap{
		Next:    key.NewBinding(key.WithKeys("tab", "right", "l"), key.WithHelp("tab", "next")),
		Prev:    key.NewBinding(key.WithKeys("shift+tab", "left", "h"), key.WithHelp("shift+tab", "prev")),
		Expand:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "details")),
		Back:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Search:  key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "filter")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// Options configures a Model.
type Options struct {
	// Infos seeds the cards, in display order.
	Infos []services.Info

	Settings app.Settings

	// Palette picks the theme for a background. Nil uses the built-in
	// default for each.
	Palette func(dark bool) theme.Theme

	// Refresh is called for the r key. Nil disables it.
	Refresh        RefreshFunc
	RefreshTimeout time.Duration

	Now func() time.Time
}

// Model is the bubbletea model of the monitor.
type Model struct {
	names []string
	infos map[string]services.Info

	cpu []float64
	rx  []float64
	tx  []float64

	focused   string
	expanded  bool
	searching bool
	query     string
	showHelp  bool
	quitting  bool

	settings app.Settings
	status   string

	width  int
	height int

	refresh        RefreshFunc
	refreshTimeout time.Duration
	now            func() time.Time

	palette func(dark bool) theme.Theme
	theme   theme.Theme

	keys    keyMap
	help    help.Model
	spinner spinner.Model
	style   *lipgloss.Renderer
}

// NewModel builds a Model focused on the first service.
func NewModel(opts Options) Model {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Palette == nil {
		opts.Palette = func(dark bool) theme.Theme { return theme.Resolve("", dark) }
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = DefaultRefreshTimeout
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		infos:          make(map[string]services.Info, len(opts.Infos)),
		settings:       opts.Settings,
		refresh:        opts.Refresh,
		refreshTimeout: opts.RefreshTimeout,
		now:            opts.Now,
		palette:        opts.Palette,
		theme:          opts.Palette(opts.Settings.DarkMode),
		keys:           defaultKeys(),
		help:           help.New(),
		spinner:        sp,
		style:          lipgloss.NewRenderer(os.Stdout),
	}

	for _, info := range opts.Infos {
		m.store(info)
	}
	if len(m.names) > 0 {
		m.focused = m.names[0]
	}
	return m
}

// Init starts the age ticker and the spinner.
func (m Model) Init() tea.Cmd {
	return tea.Batch(TickCmd(time.Second), m.spinner.Tick)
}

// Update handles input and service events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if m.searching {
			return m.updateSearch(msg), nil
		}
		return m.updateKey(msg)

	case ServiceUpdateEvent:
		m.store(msg.Info)
		if m.focused == "" {
			m.focused = msg.Info.Name
		}
		return m, nil

	case SettingsEvent:
		m.settings = msg.Settings
		m.theme = m.palette(msg.Settings.DarkMode)
		return m, nil

	case StatusEvent:
		m.status = msg.Text
		return m, nil

	case refreshDoneEvent:
		if msg.Err != nil {
			m.status = msg.Name + ": " + msg.Err.Error()
		} else {
			m.status = msg.Name + " refreshed"
		}
		return m, nil

	case TickEvent:
		return m, TickCmd(time.Second)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.Next):
		m.CycleFocusForward()
	case key.Matches(msg, m.keys.Prev):
		m.CycleFocusBackward()
	case key.Matches(msg, m.keys.Expand):
		m.ToggleExpand()
	case key.Matches(msg, m.keys.Back):
		if m.expanded {
			m.expanded = false
		} else {
			m.query = ""
		}
	case key.Matches(msg, m.keys.Refresh):
		if m.focused == "" || m.refresh == nil {
			return m, nil
		}
		m.status = "refreshing " + m.focused + "…"
		return m, refreshCmd(m.refresh, m.focused, m.refreshTimeout)
	case key.Matches(msg, m.keys.Search):
		m.searching = true
		m.expanded = false
	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp
	}
	return m, nil
}

// updateSearch edits the filter query. Enter keeps the filter, Esc drops it.
func (m Model) updateSearch(msg tea.KeyMsg) Model {
	switch msg.Type {
	case tea.KeyEnter:
		m.searching = false
	case tea.KeyEsc, tea.KeyCtrlC:
		m.searching = false
		m.query = ""
	case tea.KeyBackspace:
		if r := []rune(m.query); len(r) > 0 {
			m.query = string(r[:len(r)-1])
		}
	case tea.KeyRunes, tea.KeySpace:
		m.query += string(msg.Runes)
	}

	if visible := m.visible(); len(visible) > 0 && m.focusedIndex(visible) == 0 && visible[0] != m.focused {
		m.focused = visible[0]
	}
	return m
}

// store records info, appending unseen services and sampling history.
func (m *Model) store(info services.Info) {
	if _, ok := m.infos[info.Name]; !ok {
		m.names = append(m.names, info.Name)
	}
	prev := m.infos[info.Name]
	m.infos[info.Name] = info

	// Only sample values that were actually fetched anew.
	if info.FetchedAt.IsZero() || info.FetchedAt.Equal(prev.FetchedAt) {
		return
	}
	switch v := info.Data.(type) {
	case sysstat.SysMetrics:
		m.cpu = appendCapped(m.cpu, v.CPUPercent)
	case sysstat.NetSpeed:
		m.rx = appendCapped(m.rx, v.RxBytesPerSec)
		m.tx = appendCapped(m.tx, v.TxBytesPerSec)
	}
}

func appendCapped(s []float64, v float64) []float64 {
	s = append(s, v)
	if len(s) > historyLen {
		s = s[len(s)-historyLen:]
	}
	return s
}

// visible returns the services matching the current filter.
func (m *Model) visible() []string {
	return filterServices(m.names, m.query)
}

// Accessors used by the runner and tests.

func (m Model) Focused() string                { return m.focused }
func (m Model) Expanded() bool                 { return m.expanded }
func (m Model) Searching() bool                { return m.searching }
func (m Model) Query() string                  { return m.query }
func (m Model) Quitting() bool                 { return m.quitting }
func (m Model) Settings() app.Settings         { return m.settings }
func (m Model) Status() string                 { return m.status }
func (m Model) Names() []string                { return m.names }
func (m Model) Info(name string) services.Info { return m.infos[name] }
func (m Model) Theme() theme.Theme             { return m.theme }
