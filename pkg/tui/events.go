// Package tui is the interactive monitor: a bubbletea program showing every
// service's state, value and age, updated live as the services refresh.
package tui

import (
	"time"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/app"
	"gitlab.com/tinyland/lab/bar-pulse/pkg/services"
)

// ServiceUpdateEvent carries a service's new value from its refreshing
// goroutine into the update loop.
type ServiceUpdateEvent struct {
	Info services.Info
}

// SettingsEvent reports a runtime settings change.
type SettingsEvent struct {
	Settings app.Settings
}

// StatusEvent replaces the status line, e.g. when the daemon the monitor
// is attached to stops answering.
type StatusEvent struct {
	Text string
}

// TickEvent is sent once a second so ages keep counting between updates.
type TickEvent struct {
	Time time.Time
}

// refreshDoneEvent reports the outcome of a refresh the user asked for.
type refreshDoneEvent struct {
	Name string
	Err  error
}
