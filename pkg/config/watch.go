package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the burst of events an editor save produces.
const watchDebounce = 200 * time.Millisecond

// Watcher reloads a config file when it changes on disk.
type Watcher struct {
	path     string
	onChange func(*Config)
	logger   *slog.Logger
	fw       *fsnotify.Watcher

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// Watch starts watching path. onChange receives every successfully parsed
// and validated reload; invalid files are logged and skipped. The parent
// directory is watched so atomic-rename saves are seen.
func Watch(path string, logger *slog.Logger, onChange func(*Config)) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watch: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, fmt.Errorf("config watch: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("config watch: %w", err)
	}

	w := &Watcher{
		path:     abs,
		onChange: onChange,
		logger:   logger.With("component", "config-watch"),
		fw:       fw,
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			fire = timer.C
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadFromFile(w.path)
	if err != nil {
		w.logger.Warn("config reload failed", "path", w.path, "error", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		w.logger.Warn("reloaded config is invalid", "path", w.path, "error", err)
		return
	}
	w.logger.Info("config reloaded", "path", w.path)
	w.onChange(cfg)
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fw.Close()
		w.wg.Wait()
	})
	return err
}

// Release implements the scope handle interface.
func (w *Watcher) Release() { _ = w.Close() }
