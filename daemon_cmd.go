package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/app"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/config"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/daemon"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/publish"
)

func newDaemonCmd() *cobra.Command {
	var noWatch bool

	cmd := &cobra.Command{
		Use:     "daemon",
		Short:   "Run the polling daemon",
		GroupID: GroupDaemon,
		Args:    cobra.NoArgs,
		Long: `Run every enabled service in the background.

Each service writes a snapshot under the cache directory after every
successful fetch; "bar-pulse line" renders from those files. The daemon also
serves a unix socket for get/refresh/status/set, writes a health file, and
publishes to MQTT when [mqtt] is enabled.

Appearance settings and the log level are reloaded when the config file
changes. Service settings need a restart.`,
		Example: `  bar-pulse daemon                 # Run with the default config
  bar-pulse daemon -c ~/bar.toml   # Run with a specific config
  bar-pulse daemon -v              # Debug logging`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, level, closer, err := newLogger(cfg, cfg.General.LogFile)
			if err != nil {
				return err
			}
			defer closer.Close()

			return runDaemon(cmd.Context(), cfg, logger, level, !noWatch)
		},
	}

	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload the config file on change")
	return cmd
}

func runDaemon(ctx context.Context, cfg *config.Config, logger *slog.Logger, level *slog.LevelVar, watch bool) error {
	a, err := app.New(app.Options{Config: cfg, Logger: logger, Level: level})
	if err != nil {
		return err
	}
	defer a.Close()

	if path := resolvedConfigPath(); watch && path != "" {
		w, err := config.Watch(path, logger, a.ApplyConfig)
		if err != nil {
			logger.Warn("config watch disabled", "error", err)
		} else {
			a.Scope().Add(w)
		}
	}

	if cfg.MQTT.Enabled {
		if err := attachMQTT(a, cfg.MQTT, logger); err != nil {
			// Bars still work from the snapshots; MQTT is an extra.
			logger.Error("mqtt disabled", "broker", cfg.MQTT.Broker, "error", err)
		}
	}

	logger.Info("starting bar-pulse daemon",
		"version", version,
		"services", a.Registry().List(),
		"socket", cfg.General.SocketPath,
	)

	d := daemon.New(a)
	if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("daemon stopped")
	return nil
}

// attachMQTT connects to the broker and mirrors every service and the
// runtime settings to it until a is closed.
func attachMQTT(a *app.Context, mc config.MQTTConfig, logger *slog.Logger) error {
	client, err := publish.Connect(publish.Config{
		Broker:      mc.Broker,
		TopicPrefix: mc.TopicPrefix,
		Username:    mc.Username,
		Password:    mc.Password,
		QoS:         mc.QoS,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	scope := a.Scope()
	scope.Add(client)
	scope.Add(client.Attach(a.Registry()))

	client.PublishJSON("settings", a.Settings())
	scope.Add(a.OnSettings(func(s app.Settings) {
		client.PublishJSON("settings", s)
	}))
	return nil
}
