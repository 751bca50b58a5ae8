package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/app"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/config"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/services"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/theme"
)

// Run shows the monitor for a's services until the user quits or ctx is
// cancelled. a should already be started; Run only watches it.
func Run(ctx context.Context, a *app.Context, opts ...tea.ProgramOption) error {
	pollers := a.Registry().Pollers()
	infos := make([]services.Info, 0, len(pollers))
	for _, p := range pollers {
		infos = append(infos, p.Info())
	}

	m := NewModel(Options{
		Infos:          infos,
		Settings:       a.Settings(),
		Palette:        paletteFor(a.Config().Appearance),
		Refresh:        a.Refresh,
		RefreshTimeout: a.Config().General.FetchTimeout.Duration,
	})

	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	prog := tea.NewProgram(m, opts...)

	// Subscriptions live in a child scope so they are dropped when the
	// monitor exits even if a keeps running.
	scope := a.Scope().Child()
	defer scope.Close()
	for _, p := range pollers {
		scope.Add(p.Watch(func(info services.Info) {
			prog.Send(ServiceUpdateEvent{Info: info})
		}))
	}
	scope.Add(a.OnSettings(func(s app.Settings) {
		prog.Send(SettingsEvent{Settings: s})
	}))

	return runProgram(ctx, prog)
}

func runProgram(ctx context.Context, prog *tea.Program) error {
	_, err := prog.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// paletteFor loads the configured theme, falling back to the built-in
// one of the same name when a theme file cannot be read.
func paletteFor(appearance config.AppearanceConfig) func(dark bool) theme.Theme {
	return func(dark bool) theme.Theme {
		t, err := theme.Load(appearance.Theme, appearance.ThemeFile, dark)
		if err != nil {
			return theme.Resolve(appearance.Theme, dark)
		}
		return t
	}
}
