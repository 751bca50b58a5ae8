// Package app wires the configured services into one application context:
// the snapshot store, the registry and runner, the runtime settings and the
// root scope everything else hangs off.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/cache"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/config"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/nowplaying"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/prayer"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/services"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/shell"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/sysstat"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/tailnet"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/weather"
)

// Settings are the runtime toggles that used to be process globals.
type Settings struct {
	DarkMode bool `json:"dark_mode"`
	DevMode  bool `json:"dev_mode"`
}

// Options configures New. Only Config is required.
type Options struct {
	Config *config.Config

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Level, when set, is raised to debug while dev mode is on.
	Level *slog.LevelVar

	// Runner runs CLI tools. Nil uses shell.ExecRunner.
	Runner shell.Runner

	// HTTPClient is shared by the HTTP sources.
	HTTPClient *http.Client

	// Tailnet overrides the tailscaled LocalAPI client.
	Tailnet tailnet.StatusClient

	// Now overrides the clock for services and the prayer clock.
	Now func() time.Time

	// ReadOnly services read snapshots for fallback but never write them.
	// The daemon owns the cache directory; other processes set this.
	ReadOnly bool
}

// Context owns everything a bar-pulse process runs. Build it with New,
// call Start, and Close it on the way out.
type Context struct {
	cfg       *config.Config
	logger    *slog.Logger
	level     *slog.LevelVar
	baseLevel slog.Level
	now       func() time.Time

	store    *cache.Store
	readOnly bool
	registry *services.Registry
	updates  chan services.Update
	runner   *services.Runner
	scope    *services.Scope

	prayer *services.Service[prayer.Times]

	mu       sync.RWMutex
	settings Settings
	subs     services.Broadcaster[Settings]

	closeOnce sync.Once
}

// New builds the context and registers every enabled service. Nothing is
// fetched until Start.
func New(opts Options) (*Context, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("app: nil config")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Runner == nil {
		opts.Runner = shell.ExecRunner{}
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	cfg := opts.Config
	base, err := config.ParseLevel(cfg.General.LogLevel)
	if err != nil {
		base = slog.LevelInfo
	}

	store, err := cache.NewStore(cache.StoreConfig{Dir: cfg.General.CacheDir, ReadOnly: opts.ReadOnly})
	if err != nil {
		return nil, err
	}

	c := &Context{
		cfg:       cfg,
		logger:    opts.Logger,
		level:     opts.Level,
		baseLevel: base,
		now:       opts.Now,
		store:     store,
		readOnly:  opts.ReadOnly,
		registry:  services.NewRegistry(),
		updates:   make(chan services.Update, services.DefaultUpdateBufferSize),
		scope:     services.NewScope(),
		settings: Settings{
			DarkMode: cfg.Appearance.DarkMode,
			DevMode:  cfg.Appearance.DevMode,
		},
	}
	c.runner = services.NewRunner(c.registry, c.updates, services.WithLogger(opts.Logger))
	c.applyLevel(c.settings)

	if err := c.registerAll(opts); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Context) registerAll(opts Options) error {
	cfg := c.cfg

	if cfg.Weather.Enabled {
		src := weather.NewSource(weather.Config{
			City:    cfg.Weather.City,
			Units:   weather.Units(cfg.Weather.Units),
			BaseURL: cfg.Weather.BaseURL,
			Client:  opts.HTTPClient,
		})
		if _, err := register(c, config.ServiceWeather, cfg.Weather.ServiceConfig, src, weather.Placeholder()); err != nil {
			return err
		}
	}

	if cfg.Prayer.Enabled {
		src := prayer.NewSource(prayer.Config{
			City:    cfg.Prayer.City,
			Country: cfg.Prayer.Country,
			Method:  cfg.Prayer.Method,
			BaseURL: cfg.Prayer.BaseURL,
			Client:  opts.HTTPClient,
			Now:     c.now,
		})
		svc, err := register(c, config.ServicePrayer, cfg.Prayer.ServiceConfig, src, prayer.Placeholder())
		if err != nil {
			return err
		}
		c.prayer = svc
	}

	if cfg.NowPlaying.Enabled {
		var art *nowplaying.ArtCache
		if cfg.NowPlaying.Art {
			a, err := nowplaying.NewArtCache(filepath.Join(cfg.General.CacheDir, "art"), cfg.NowPlaying.ArtSize, opts.HTTPClient)
			if err != nil {
				c.logger.Warn("album art disabled", "error", err)
			} else {
				art = a
			}
		}
		src := nowplaying.NewSource(nowplaying.Config{
			Runner: opts.Runner,
			Player: cfg.NowPlaying.Player,
			Enrich: cfg.NowPlaying.Enrich,
			Art:    art,
			Logger: c.logger.With("service", config.ServiceNowPlaying),
		})
		if _, err := register(c, config.ServiceNowPlaying, cfg.NowPlaying.ServiceConfig, src, nowplaying.Idle()); err != nil {
			return err
		}
	}

	if cfg.Battery.Enabled {
		src := sysstat.NewBatterySource(sysstat.BatteryConfig{Runner: opts.Runner, Device: cfg.Battery.Device})
		if _, err := register(c, config.ServiceBattery, cfg.Battery.ServiceConfig, src, sysstat.Battery{}); err != nil {
			return err
		}
	}

	if cfg.Wifi.Enabled {
		if _, err := register(c, config.ServiceWifi, cfg.Wifi, sysstat.NewWifiSource(opts.Runner), sysstat.Wifi{}); err != nil {
			return err
		}
	}

	if cfg.Bluetooth.Enabled {
		src := sysstat.NewBluetoothSource(opts.Runner, c.logger)
		if _, err := register(c, config.ServiceBluetooth, cfg.Bluetooth, src, []sysstat.BluetoothDevice{}); err != nil {
			return err
		}
	}

	if cfg.NetSpeed.Enabled {
		src := sysstat.NewNetSpeedSource(sysstat.NetSpeedConfig{Iface: cfg.NetSpeed.Iface, Now: c.now})
		if _, err := register(c, config.ServiceNetSpeed, cfg.NetSpeed.ServiceConfig, src, sysstat.NetSpeed{}); err != nil {
			return err
		}
	}

	if cfg.SysMetrics.Enabled {
		src := sysstat.NewMetricsSource(sysstat.MetricsConfig{Mounts: cfg.SysMetrics.Mounts})
		if _, err := register(c, config.ServiceSysMetrics, cfg.SysMetrics.ServiceConfig, src, sysstat.SysMetrics{}); err != nil {
			return err
		}
	}

	if cfg.Tailnet.Enabled {
		src := tailnet.NewLocalSource(cfg.Tailnet.SocketPath)
		if opts.Tailnet != nil {
			src = tailnet.NewSource(opts.Tailnet)
		}
		if _, err := register(c, config.ServiceTailnet, cfg.Tailnet.ServiceConfig, src, tailnet.Placeholder()); err != nil {
			return err
		}
	}
	return nil
}

// register builds one service and adds it to the registry.
func register[T any](c *Context, name string, sc config.ServiceConfig, src services.Source[T], def T) (*services.Service[T], error) {
	svc := services.New(services.Config[T]{
		Name:     name,
		Source:   src,
		Default:  def,
		Interval: sc.Interval.Duration,
		Timeout:  c.cfg.General.FetchTimeout.Duration,
		Store:    c.store,
		ReadOnly: c.readOnly,
		Logger:   c.logger,
		Now:      c.now,
	})
	if err := c.registry.Register(svc); err != nil {
		return nil, fmt.Errorf("app: register %s: %w", name, err)
	}
	return svc, nil
}

// Start begins polling every registered service and, when prayer times
// are enabled, the next-prayer clock. Both stop when ctx is cancelled or
// the context is closed.
func (c *Context) Start(ctx context.Context) error {
	if c.scope.Closed() {
		return fmt.Errorf("app: context closed")
	}
	if err := c.runner.Start(ctx); err != nil {
		return err
	}
	c.scope.Add(services.HandleFunc(c.runner.Stop))
	if c.prayer != nil {
		clock := prayer.NewClock(c.prayer, prayer.ClockInterval, c.now)
		c.scope.Add(clock.Start(ctx))
	}
	c.logger.Info("services started", "services", c.registry.List())
	return nil
}

// Refresh refreshes one service now.
func (c *Context) Refresh(ctx context.Context, name string) (services.Info, error) {
	return c.runner.RunOnce(ctx, name)
}

// Info returns the current value of one service.
func (c *Context) Info(name string) (services.Info, error) {
	p, err := c.registry.Lookup(name)
	if err != nil {
		return services.Info{}, err
	}
	return p.Info(), nil
}

func (c *Context) Config() *config.Config       { return c.cfg }
func (c *Context) Logger() *slog.Logger         { return c.logger }
func (c *Context) Store() *cache.Store          { return c.store }
func (c *Context) Registry() *services.Registry { return c.registry }
func (c *Context) Runner() *services.Runner     { return c.runner }
func (c *Context) Scope() *services.Scope       { return c.scope }

// Updates delivers one Update per refresh cycle. Slow readers miss
// updates rather than stall the pollers.
func (c *Context) Updates() <-chan services.Update { return c.updates }

// Settings returns the current runtime settings.
func (c *Context) Settings() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// OnSettings registers cb for settings changes.
func (c *Context) OnSettings(cb func(Settings)) *services.Subscription {
	return c.subs.Subscribe(cb)
}

// SetDarkMode toggles dark mode.
func (c *Context) SetDarkMode(on bool) {
	c.UpdateSettings(func(s Settings) Settings { s.DarkMode = on; return s })
}

// SetDevMode toggles dev mode, which also turns on debug logging.
func (c *Context) SetDevMode(on bool) {
	c.UpdateSettings(func(s Settings) Settings { s.DevMode = on; return s })
}

// UpdateSettings applies fn and notifies subscribers if anything changed.
func (c *Context) UpdateSettings(fn func(Settings) Settings) {
	c.mu.Lock()
	old := c.settings
	next := fn(old)
	c.settings = next
	c.mu.Unlock()

	if next == old {
		return
	}
	c.applyLevel(next)
	c.logger.Info("settings changed", "dark_mode", next.DarkMode, "dev_mode", next.DevMode)
	c.subs.Notify(c.logger, next)
}

// ApplyConfig picks up the parts of a reloaded config that apply without a
// restart: appearance and log level. Service settings need a restart.
func (c *Context) ApplyConfig(cfg *config.Config) {
	if lvl, err := config.ParseLevel(cfg.General.LogLevel); err == nil {
		c.mu.Lock()
		c.baseLevel = lvl
		s := c.settings
		c.mu.Unlock()
		c.applyLevel(s)
	}
	c.UpdateSettings(func(Settings) Settings {
		return Settings{DarkMode: cfg.Appearance.DarkMode, DevMode: cfg.Appearance.DevMode}
	})
}

func (c *Context) applyLevel(s Settings) {
	if c.level == nil {
		return
	}
	c.mu.RLock()
	lvl := c.baseLevel
	c.mu.RUnlock()
	if s.DevMode {
		lvl = slog.LevelDebug
	}
	c.level.Set(lvl)
}

// Close stops the clock and the pollers and drops every subscription held
// by the root scope, in reverse order of construction. It is safe to call
// more than once.
func (c *Context) Close() {
	c.closeOnce.Do(func() {
		c.scope.Close()
		c.runner.Stop()
		c.logger.Debug("application context closed")
	})
}
