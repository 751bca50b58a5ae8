package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/services"
)

// HealthStatus is what HEALTH returns and what the health file holds.
type HealthStatus struct {
	Healthy   bool                    `json:"healthy"`
	PID       int                     `json:"pid"`
	StartedAt time.Time               `json:"started_at"`
	UpdatedAt time.Time               `json:"updated_at"`
	Uptime    string                  `json:"uptime"`
	Services  []services.PollerStatus `json:"services"`
}

// Unhealthy returns the names of services whose last refresh failed.
func (h *HealthStatus) Unhealthy() []string {
	var names []string
	for _, s := range h.Services {
		if !s.Healthy {
			names = append(names, s.Name)
		}
	}
	return names
}

// BuildHealth summarises the registry. The daemon is healthy when every
// service that has run at least once succeeded on its last run.
func BuildHealth(registry *services.Registry, startedAt, now time.Time) *HealthStatus {
	statuses := registry.AllStatus()
	healthy := true
	for _, s := range statuses {
		if s.RunCount > 0 && !s.Healthy {
			healthy = false
		}
	}
	return &HealthStatus{
		Healthy:   healthy,
		PID:       os.Getpid(),
		StartedAt: startedAt,
		UpdatedAt: now,
		Uptime:    now.Sub(startedAt).Truncate(time.Second).String(),
		Services:  statuses,
	}
}

// WriteHealthFile writes status as indented JSON to path through a temp
// file and a rename, so readers never see a partial file.
func WriteHealthFile(path string, status *HealthStatus) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create health directory: %w", err)
	}

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal health status: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".health-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp health file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp health file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp health file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename health file: %w", err)
	}
	return nil
}

// ReadHealthFile reads the health file written by a running or previous
// daemon.
func ReadHealthFile(path string) (*HealthStatus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read health file: %w", err)
	}
	var status HealthStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("unmarshal health file: %w", err)
	}
	return &status, nil
}
