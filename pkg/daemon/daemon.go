// Package daemon runs bar-pulse in the background: it owns the PID file,
// serves the IPC socket, drives the services and writes the health file
// after every refresh cycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/app"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/services"
)

// ErrBadRequest marks malformed IPC requests.
var ErrBadRequest = errors.New("bad request")

// Daemon serves one application context.
type Daemon struct {
	app       *app.Context
	logger    *slog.Logger
	now       func() time.Time
	startedAt time.Time

	quit     chan struct{}
	quitOnce sync.Once
}

// New creates a daemon for a.
func New(a *app.Context) *Daemon {
	return &Daemon{
		app:       a,
		logger:    a.Logger().With("component", "daemon"),
		now:       time.Now,
		startedAt: time.Now(),
		quit:      make(chan struct{}),
	}
}

// ServiceSummary is one LIST entry.
type ServiceSummary struct {
	Name      string         `json:"name"`
	State     services.State `json:"state"`
	FetchedAt time.Time      `json:"fetched_at"`
	Healthy   bool           `json:"healthy"`
	Interval  string         `json:"interval"`
}

// Run acquires the PID file, starts the IPC server and the services, and
// blocks until ctx is cancelled or a client sends QUIT. The application
// context is left for the caller to close.
func (d *Daemon) Run(ctx context.Context) error {
	gen := d.app.Config().General

	if err := AcquirePID(gen.PIDFile); err != nil {
		return err
	}
	defer func() {
		if err := ReleasePID(gen.PIDFile); err != nil {
			d.logger.Warn("release PID file failed", "error", err)
		}
	}()

	srv := NewServer(gen.SocketPath, d, d.logger)
	if err := srv.Start(); err != nil {
		return err
	}
	defer srv.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.startedAt = d.now()
	if err := d.app.Start(ctx); err != nil {
		return err
	}
	d.logger.Info("daemon started", "socket", gen.SocketPath, "pid_file", gen.PIDFile)
	d.writeHealth()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("daemon stopping", "reason", ctx.Err())
			return nil
		case <-d.quit:
			d.logger.Info("daemon stopping", "reason", "QUIT")
			return nil
		case u := <-d.app.Updates():
			if u.Error != nil {
				d.logger.Debug("cycle failed", "service", u.Source, "error", u.Error)
			}
			d.writeHealth()
		}
	}
}

// Quit asks Run to return.
func (d *Daemon) Quit() {
	d.quitOnce.Do(func() { close(d.quit) })
}

// Health returns the current health summary.
func (d *Daemon) Health() *HealthStatus {
	return BuildHealth(d.app.Registry(), d.startedAt, d.now())
}

func (d *Daemon) writeHealth() {
	path := d.app.Config().General.HealthFile
	if path == "" {
		return
	}
	if err := WriteHealthFile(path, d.Health()); err != nil {
		d.logger.Warn("write health file failed", "error", err)
	}
}

// HandleCommand implements Handler.
func (d *Daemon) HandleCommand(ctx context.Context, cmd string, args []string) (any, error) {
	switch cmd {
	case "HEALTH":
		return d.Health(), nil

	case "LIST":
		return d.list(), nil

	case "GET":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: usage: GET <service>", ErrBadRequest)
		}
		return d.app.Info(args[0])

	case "REFRESH":
		switch len(args) {
		case 0:
			err := d.app.Runner().RefreshAll(ctx)
			d.writeHealth()
			if err != nil {
				d.logger.Debug("refresh all had failures", "error", err)
			}
			return d.Health(), nil
		case 1:
			info, err := d.app.Refresh(ctx, args[0])
			d.writeHealth()
			if errors.Is(err, services.ErrUnknownService) {
				return nil, err
			}
			return info, nil
		default:
			return nil, fmt.Errorf("%w: usage: REFRESH [service]", ErrBadRequest)
		}

	case "SET":
		return d.set(args)

	case "SETTINGS":
		return d.app.Settings(), nil

	case "QUIT":
		d.Quit()
		return map[string]bool{"ok": true}, nil

	case "":
		return nil, fmt.Errorf("%w: empty command", ErrBadRequest)

	default:
		return nil, fmt.Errorf("%w: unknown command %q", ErrBadRequest, cmd)
	}
}

func (d *Daemon) list() []ServiceSummary {
	reg := d.app.Registry()
	var out []ServiceSummary
	for _, p := range reg.Pollers() {
		info := p.Info()
		out = append(out, ServiceSummary{
			Name:      p.Name(),
			State:     info.State,
			FetchedAt: info.FetchedAt,
			Healthy:   p.Healthy(),
			Interval:  p.Interval().String(),
		})
	}
	return out
}

func (d *Daemon) set(args []string) (app.Settings, error) {
	if len(args) != 2 {
		return app.Settings{}, fmt.Errorf("%w: usage: SET darkmode|devmode on|off", ErrBadRequest)
	}
	on, err := parseSwitch(args[1])
	if err != nil {
		return app.Settings{}, err
	}
	switch strings.ToLower(args[0]) {
	case "darkmode":
		d.app.SetDarkMode(on)
	case "devmode":
		d.app.SetDevMode(on)
	default:
		return app.Settings{}, fmt.Errorf("%w: unknown setting %q", ErrBadRequest, args[0])
	}
	return d.app.Settings(), nil
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q is not on or off", ErrBadRequest, s)
}
