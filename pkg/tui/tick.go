package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/services"
)

// TickCmd returns a Cmd that sends a TickEvent after d.
func TickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return TickEvent{Time: t}
	})
}

// RefreshFunc refreshes one service, e.g. app.Context.Refresh.
type RefreshFunc func(ctx context.Context, name string) (services.Info, error)

// refreshCmd runs fn off the update loop. The new value itself arrives
// through the service subscription; this only reports the outcome.
func refreshCmd(fn RefreshFunc, name string, timeout time.Duration) tea.Cmd {
	if fn == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_, err := fn(ctx, name)
		return refreshDoneEvent{Name: name, Err: err}
	}
}
