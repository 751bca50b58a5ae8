package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/app"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/daemon"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/tui"
)

func newMonitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "monitor",
		Short:   "Interactive monitor of every service",
		GroupID: GroupOutput,
		Args:    cobra.NoArgs,
		Long: `Show every service live: state, value, age and the last error of
each, with details and history for the focused one.

When a daemon is running the monitor attaches to it over the socket and
never fetches or writes snapshots itself. Otherwise it runs the services
in-process against a read-only cache.

Logs go to the log file only so they do not tear the screen.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, level, closer, err := newFileLogger(cfg, cfg.General.LogFile)
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx := cmd.Context()
			client := daemon.NewClient(cfg.General.SocketPath)
			if daemonAnswers(ctx, client) {
				logger.Info("attaching monitor to running daemon", "socket", cfg.General.SocketPath)
				return tui.RunRemote(ctx, client, tui.RemoteOptions{
					Appearance: cfg.Appearance,
					Timeout:    cfg.General.FetchTimeout.Duration,
				})
			}

			a, err := app.New(app.Options{Config: cfg, Logger: logger, Level: level, ReadOnly: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Start(ctx); err != nil {
				return err
			}
			return tui.Run(ctx, a)
		},
	}
}

func daemonAnswers(ctx context.Context, c *daemon.Client) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.Do(ctx, "HEALTH", nil) == nil
}
