package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/barline"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/cache"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/daemon"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/prayer"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/services"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/sysstat"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/weather"
)

type testEnv struct {
	dir        string
	configPath string
	store      *cache.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("BAR_PULSE_CACHE_DIR", "")

	dir := t.TempDir()
	cacheDir := filepath.Join(dir, "cache")
	cfg := fmt.Sprintf(`[general]
cache_dir = %q
socket_path = %q
health_file = %q
pid_file = %q
log_file = ""
`, cacheDir, filepath.Join(dir, "none.sock"), filepath.Join(dir, "health.json"), filepath.Join(dir, "bar-pulse.pid"))

	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := cache.NewStore(cache.StoreConfig{Dir: cacheDir})
	if err != nil {
		t.Fatal(err)
	}
	return &testEnv{dir: dir, configPath: path, store: store}
}

// run executes the command line and returns stdout.
func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestLineJSON(t *testing.T) {
	e := newTestEnv(t)
	now := time.Now()
	if err := cache.PutTyped(e.store, "weather", weather.Snapshot{Temperature: "Clear feels 28°C", IconKey: "clear"}, now); err != nil {
		t.Fatal(err)
	}
	if err := cache.PutTyped(e.store, "battery", sysstat.Battery{Present: true, Percent: 8, State: "discharging"}, now); err != nil {
		t.Fatal(err)
	}

	out, err := e.run(t, "line", "weather", "battery", "--json")
	if err != nil {
		t.Fatalf("line: %v", err)
	}
	if strings.Count(out, "\n") != 1 {
		t.Errorf("waybar output should be one line: %q", out)
	}

	var w barline.Waybar
	if err := json.Unmarshal([]byte(out), &w); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if !strings.Contains(w.Text, "Clear feels 28°C") || !strings.Contains(w.Text, "8%") {
		t.Errorf("Text = %q", w.Text)
	}
	if w.Class != "critical" {
		t.Errorf("Class = %q, want critical", w.Class)
	}
}

func TestLineSkipsOldSnapshots(t *testing.T) {
	e := newTestEnv(t)
	old := time.Now().Add(-2 * time.Hour)
	if err := cache.PutTyped(e.store, "weather", weather.Snapshot{Temperature: "Clear feels 28°C"}, old); err != nil {
		t.Fatal(err)
	}

	out, err := e.run(t, "line", "weather", "--plain")
	if err != nil {
		t.Fatalf("line: %v", err)
	}
	if out != "\n" {
		t.Errorf("out = %q, want an empty line", out)
	}
}

func TestLineKeepsPrayerBetweenFetches(t *testing.T) {
	e := newTestEnv(t)
	times := prayer.Times{Fajr: 4*60 + 30, Dhuhr: 12*60 + 5, Asr: 15*60 + 30, Maghrib: 18*60 + 5, Isha: 19*60 + 25}
	if err := cache.PutTyped(e.store, "prayer", times, time.Now().Add(-2*time.Hour)); err != nil {
		t.Fatal(err)
	}

	out, err := e.run(t, "line", "--preset", "prayer", "--plain")
	if err != nil {
		t.Fatalf("line: %v", err)
	}
	if strings.TrimSpace(out) == "" {
		t.Error("a prayer snapshot younger than two intervals should be shown")
	}
}

func TestLineUnknownService(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.run(t, "line", "nope")
	if !errors.Is(err, barline.ErrUnknownService) {
		t.Errorf("err = %v, want ErrUnknownService", err)
	}
}

func TestStatusFallsBackToHealthFile(t *testing.T) {
	e := newTestEnv(t)
	h := &daemon.HealthStatus{
		PID:       4242,
		UpdatedAt: time.Now().Add(-time.Minute),
		Uptime:    "1h0m0s",
		Services: []services.PollerStatus{
			{Name: "weather", Healthy: false, LastError: "request: timeout", RunCount: 3, ErrorCount: 1},
		},
	}
	if err := daemon.WriteHealthFile(filepath.Join(e.dir, "health.json"), h); err != nil {
		t.Fatal(err)
	}

	out, err := e.run(t, "status")
	if !errors.Is(err, daemon.ErrDaemonNotRunning) {
		t.Errorf("err = %v, want ErrDaemonNotRunning", err)
	}
	for _, want := range []string{"not running", "4242", "weather", "request: timeout"} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestClientCommandsWithoutDaemon(t *testing.T) {
	e := newTestEnv(t)
	for _, args := range [][]string{
		{"get", "weather"},
		{"refresh"},
		{"set", "darkmode", "on"},
		{"stop"},
	} {
		if _, err := e.run(t, args...); !errors.Is(err, daemon.ErrDaemonNotRunning) {
			t.Errorf("%v: err = %v, want ErrDaemonNotRunning", args, err)
		}
	}
}

func TestConfigDefault(t *testing.T) {
	e := newTestEnv(t)
	out, err := e.run(t, "config", "default")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "[general]") || !strings.Contains(out, "[weather]") {
		t.Errorf("config default output:\n%s", out)
	}

	out, err = e.run(t, "config", "path")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != e.configPath {
		t.Errorf("config path = %q", out)
	}
}

func TestConfigThemes(t *testing.T) {
	e := newTestEnv(t)
	out, err := e.run(t, "config", "themes")
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"catppuccin", "latte", "nord"} {
		if !strings.Contains(out, name) {
			t.Errorf("themes output missing %s:\n%s", name, out)
		}
	}
}

func TestInvalidConfig(t *testing.T) {
	e := newTestEnv(t)
	if err := os.WriteFile(e.configPath, []byte("[general]\nlog_level = \"loud\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := e.run(t, "line"); err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Errorf("err = %v", err)
	}
}

func TestVersion(t *testing.T) {
	e := newTestEnv(t)
	out, err := e.run(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "bar-pulse dev") {
		t.Errorf("version = %q", out)
	}
}

func TestRequestLine(t *testing.T) {
	if got := requestLine("REFRESH"); got != "REFRESH" {
		t.Errorf("got %q", got)
	}
	if got := requestLine("SET", "darkmode", "on"); got != "SET darkmode on" {
		t.Errorf("got %q", got)
	}
}
