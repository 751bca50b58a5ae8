package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/config"
)

var (
	// Global flags
	configPath string
	verbose    bool
)

// Command group IDs for organizing help output
const (
	GroupDaemon = "daemon"
	GroupClient = "client"
	GroupOutput = "output"
)

// newRootCmd builds the command tree. Flags bind to the package globals.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bar-pulse",
		Short: "Status data daemon for desktop bars",
		Long: `bar-pulse polls weather, prayer times, media players, battery, network,
system load and tailnet state, keeps the last good value of each on disk,
and serves it to bars through snapshot files, a unix socket and MQTT.`,
		SilenceUsage:               true,
		SilenceErrors:              true,
		SuggestionsMinimumDistance: 2,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: $XDG_CONFIG_HOME/bar-pulse/config.toml)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.Version = versionString()
	root.SetVersionTemplate("{{.Version}}\n")

	root.AddGroup(
		&cobra.Group{ID: GroupDaemon, Title: "Daemon Commands:"},
		&cobra.Group{ID: GroupClient, Title: "Client Commands:"},
		&cobra.Group{ID: GroupOutput, Title: "Output Commands:"},
	)

	root.AddCommand(
		newDaemonCmd(),
		newStatusCmd(),
		newStopCmd(),
		newConfigCmd(),
		newGetCmd(),
		newRefreshCmd(),
		newSetCmd(),
		newLineCmd(),
		newMonitorCmd(),
		newVersionCmd(),
	)
	return root
}

// Execute runs the command line with a context cancelled on SIGINT and
// SIGTERM.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "bar-pulse:", err)
		os.Exit(1)
	}
}

// loadConfig reads --config, or the standard path, and validates it.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if verbose {
		cfg.General.LogLevel = "debug"
	}
	return cfg, nil
}

// resolvedConfigPath returns the file the config was loaded from, or "".
func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.Path()
}

// newLogger builds a text logger writing to stderr and, when logFile is
// set, appending to that file as well. The returned closer closes the file.
func newLogger(cfg *config.Config, logFile string) (*slog.Logger, *slog.LevelVar, io.Closer, error) {
	return buildLogger(cfg, logFile, os.Stderr)
}

// newFileLogger is newLogger without stderr, for full-screen commands.
func newFileLogger(cfg *config.Config, logFile string) (*slog.Logger, *slog.LevelVar, io.Closer, error) {
	return buildLogger(cfg, logFile, io.Discard)
}

func buildLogger(cfg *config.Config, logFile string, console io.Writer) (*slog.Logger, *slog.LevelVar, io.Closer, error) {
	level := new(slog.LevelVar)
	if lvl, err := config.ParseLevel(cfg.General.LogLevel); err == nil {
		level.Set(lvl)
	}

	w := console
	var closer io.Closer = nopCloser{}
	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			return nil, nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(console, f)
		closer = f
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	return logger, level, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
