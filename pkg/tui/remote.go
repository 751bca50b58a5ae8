package tui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/app"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/barline"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/config"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/services"
)

// DefaultRemotePoll is how often an attached monitor asks the daemon for
// every service.
const DefaultRemotePoll = 2 * time.Second

// Daemon is the IPC client an attached monitor talks to, e.g.
// *daemon.Client.
type Daemon interface {
	Do(ctx context.Context, cmd string, v any) error
}

// RemoteOptions configures RunRemote.
type RemoteOptions struct {
	Appearance config.AppearanceConfig

	// Poll is the interval between full reads of the daemon. Zero uses
	// DefaultRemotePoll.
	Poll time.Duration

	// Timeout bounds each request. Zero uses DefaultRefreshTimeout.
	Timeout time.Duration
}

// RunRemote shows the monitor for the services of a running daemon. It
// never fetches anything itself: values, refreshes and settings all go
// through d, so the daemon stays the only writer of the cache.
func RunRemote(ctx context.Context, d Daemon, opts RemoteOptions, progOpts ...tea.ProgramOption) error {
	if opts.Poll <= 0 {
		opts.Poll = DefaultRemotePoll
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRefreshTimeout
	}

	fetchCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	infos, settings, err := fetchRemote(fetchCtx, d)
	cancel()
	if err != nil {
		return fmt.Errorf("attach to daemon: %w", err)
	}

	m := NewModel(Options{
		Infos:          infos,
		Settings:       settings,
		Palette:        paletteFor(opts.Appearance),
		Refresh:        remoteRefresh(d),
		RefreshTimeout: opts.Timeout,
	})

	progOpts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, progOpts...)
	prog := tea.NewProgram(m, progOpts...)

	pollCtx, stop := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pollRemote(pollCtx, d, opts, prog.Send)
	}()

	err = runProgram(ctx, prog)
	stop()
	wg.Wait()
	return err
}

// pollRemote re-reads the daemon every opts.Poll until ctx is done. A
// failed read only changes the status line; the cards keep their last
// values until the daemon answers again.
func pollRemote(ctx context.Context, d Daemon, opts RemoteOptions, send func(tea.Msg)) {
	ticker := time.NewTicker(opts.Poll)
	defer ticker.Stop()

	down := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		reqCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		infos, settings, err := fetchRemote(reqCtx, d)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			send(StatusEvent{Text: "daemon: " + err.Error()})
			down = true
			continue
		}
		if down {
			send(StatusEvent{Text: "daemon reachable again"})
			down = false
		}
		for _, info := range infos {
			send(ServiceUpdateEvent{Info: info})
		}
		send(SettingsEvent{Settings: settings})
	}
}

// remoteInfo is services.Info as it crosses the socket, with the payload
// kept raw until the service name says what type it is.
type remoteInfo struct {
	Name      string          `json:"name"`
	State     services.State  `json:"state"`
	FetchedAt time.Time       `json:"fetched_at"`
	FromDisk  bool            `json:"from_disk"`
	Error     string          `json:"error,omitempty"`
	Data      json.RawMessage `json:"data"`
}

func (ri remoteInfo) info() services.Info {
	info := services.Info{
		Name:      ri.Name,
		State:     ri.State,
		FetchedAt: ri.FetchedAt,
		FromDisk:  ri.FromDisk,
		Error:     ri.Error,
	}
	if len(ri.Data) == 0 || string(ri.Data) == "null" {
		return info
	}
	if v, err := barline.Decode(ri.Name, ri.Data); err == nil {
		info.Data = v
	} else {
		info.Data = string(ri.Data)
	}
	return info
}

// fetchRemote reads every service the daemon runs, in its order, plus the
// current settings.
func fetchRemote(ctx context.Context, d Daemon) ([]services.Info, app.Settings, error) {
	var list []struct {
		Name string `json:"name"`
	}
	if err := d.Do(ctx, "LIST", &list); err != nil {
		return nil, app.Settings{}, err
	}

	infos := make([]services.Info, 0, len(list))
	for _, s := range list {
		var ri remoteInfo
		if err := d.Do(ctx, "GET "+s.Name, &ri); err != nil {
			return nil, app.Settings{}, fmt.Errorf("get %s: %w", s.Name, err)
		}
		infos = append(infos, ri.info())
	}

	var settings app.Settings
	if err := d.Do(ctx, "SETTINGS", &settings); err != nil {
		return nil, app.Settings{}, err
	}
	return infos, settings, nil
}

// remoteRefresh asks the daemon to refresh one service. The new value
// reaches the cards on the next poll.
func remoteRefresh(d Daemon) RefreshFunc {
	return func(ctx context.Context, name string) (services.Info, error) {
		var ri remoteInfo
		if err := d.Do(ctx, "REFRESH "+name, &ri); err != nil {
			return services.Info{}, err
		}
		info := ri.info()
		if info.Error != "" {
			return info, errors.New(info.Error)
		}
		return info, nil
	}
}
