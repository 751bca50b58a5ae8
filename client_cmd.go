package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/app"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/daemon"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/services"
)

func newClient() (*daemon.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return daemon.NewClient(cfg.General.SocketPath), nil
}

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "status",
		Short:   "Show daemon health",
		GroupID: GroupDaemon,
		Args:    cobra.NoArgs,
		Long: `Show the daemon's health and every service's last run.

When the daemon is not running, the last health file it wrote is shown
instead and the command exits non-zero.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			var h daemon.HealthStatus
			running := true
			err = daemon.NewClient(cfg.General.SocketPath).Do(cmd.Context(), "HEALTH", &h)
			if errors.Is(err, daemon.ErrDaemonNotRunning) {
				running = false
				last, ferr := daemon.ReadHealthFile(cfg.General.HealthFile)
				if ferr != nil {
					return err
				}
				h = *last
			} else if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				if err := writeJSON(out, h); err != nil {
					return err
				}
			} else {
				printStatus(cmd, &h, running)
			}
			if !running {
				return daemon.ErrDaemonNotRunning
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func printStatus(cmd *cobra.Command, h *daemon.HealthStatus, running bool) {
	out := cmd.OutOrStdout()
	now := time.Now()

	state := "healthy"
	if !h.Healthy {
		state = "degraded"
	}
	if !running {
		state = "not running (last seen " + since(h.UpdatedAt, now) + ")"
	}
	printf(out, "daemon  %s\npid     %d\nuptime  %s\n\n", state, h.PID, h.Uptime)

	rows := make([][]string, 0, len(h.Services))
	for _, s := range h.Services {
		rows = append(rows, []string{
			s.Name,
			yesNo(s.Healthy),
			since(s.LastRun, now),
			s.Interval.String(),
			strconv.FormatInt(s.RunCount, 10),
			strconv.FormatInt(s.ErrorCount, 10),
			s.LastError,
		})
	}
	printf(out, "%s", renderTable([]string{"SERVICE", "OK", "LAST RUN", "EVERY", "RUNS", "ERRORS", "LAST ERROR"}, rows))
}

func newGetCmd() *cobra.Command {
	var dataOnly bool

	cmd := &cobra.Command{
		Use:     "get <service>",
		Short:   "Print a service's current value",
		GroupID: GroupClient,
		Args:    cobra.ExactArgs(1),
		Example: `  bar-pulse get weather         # Full record as JSON
  bar-pulse get battery --data  # Only the value`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			var info services.Info
			if err := c.Do(cmd.Context(), requestLine("GET", args[0]), &info); err != nil {
				return err
			}
			if dataOnly {
				return writeJSON(cmd.OutOrStdout(), info.Data)
			}
			return writeJSON(cmd.OutOrStdout(), info)
		},
	}

	cmd.Flags().BoolVar(&dataOnly, "data", false, "print only the value")
	return cmd
}

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "refresh [service]",
		Short:   "Refresh one service, or all of them, now",
		GroupID: GroupClient,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				var h daemon.HealthStatus
				if err := c.Do(cmd.Context(), "REFRESH", &h); err != nil {
					return err
				}
				if bad := h.Unhealthy(); len(bad) > 0 {
					return fmt.Errorf("refresh failed for %v", bad)
				}
				printf(out, "refreshed %d services\n", len(h.Services))
				return nil
			}

			var info services.Info
			if err := c.Do(cmd.Context(), requestLine("REFRESH", args[0]), &info); err != nil {
				return err
			}
			if info.Error != "" {
				return fmt.Errorf("%s: %s (serving %s value)", info.Name, info.Error, info.State)
			}
			printf(out, "%s %s\n", info.Name, info.State)
			return nil
		},
	}
}

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "set <darkmode|devmode> <on|off>",
		Short:     "Change a runtime setting",
		GroupID:   GroupClient,
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"darkmode", "devmode"},
		Long: `Change a runtime setting without restarting the daemon.

devmode raises the daemon's log level to debug. darkmode switches the
palette of colored outputs and is published to MQTT.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			var s app.Settings
			if err := c.Do(cmd.Context(), requestLine("SET", args...), &s); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "darkmode %s\ndevmode  %s\n", onOff(s.DarkMode), onOff(s.DevMode))
			return nil
		},
	}
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "stop",
		Short:   "Stop the daemon",
		GroupID: GroupDaemon,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			if err := c.Do(cmd.Context(), "QUIT", nil); err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, "daemon stopping")
			return nil
		},
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
