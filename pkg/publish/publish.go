// Package publish mirrors service updates to an MQTT broker, one retained
// JSON message per service under <prefix>/<service>, so home automation
// and other machines can read the same data the bar shows.
package publish

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/services"
)

// Publisher sends one message. The MQTT client implements it; tests use a
// recorder.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Mirror forwards every update of every registered service to a Publisher.
type Mirror struct {
	pub    Publisher
	prefix string
	qos    byte
	logger *slog.Logger

	mu    sync.Mutex
	scope *services.Scope
}

// NewMirror creates a Mirror publishing under prefix.
func NewMirror(pub Publisher, prefix string, qos byte, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{
		pub:    pub,
		prefix: strings.TrimRight(prefix, "/"),
		qos:    qos,
		logger: logger.With("component", "mqtt"),
		scope:  services.NewScope(),
	}
}

// Topic returns the topic for a service or other suffix.
func (m *Mirror) Topic(suffix string) string {
	if m.prefix == "" {
		return suffix
	}
	return m.prefix + "/" + suffix
}

// Attach subscribes to every poller in reg. Services that already hold a
// value are published right away. Releasing the returned handle stops
// forwarding.
func (m *Mirror) Attach(reg *services.Registry) services.Handle {
	m.mu.Lock()
	scope := m.scope.Child()
	m.mu.Unlock()

	for _, p := range reg.Pollers() {
		scope.Add(p.Watch(m.PublishInfo))
		if info := p.Info(); info.State != services.Uninitialized {
			m.PublishInfo(info)
		}
	}
	return scope
}

// PublishInfo publishes one service value, retained.
func (m *Mirror) PublishInfo(info services.Info) {
	m.PublishJSON(info.Name, info)
}

// PublishJSON publishes v as retained JSON under the given suffix. Errors
// are logged; a flaky broker must not disturb the pollers.
func (m *Mirror) PublishJSON(suffix string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		m.logger.Warn("encode payload failed", "topic", suffix, "error", err)
		return
	}
	topic := m.Topic(suffix)
	if err := m.pub.Publish(topic, m.qos, true, payload); err != nil {
		m.logger.Warn("publish failed", "topic", topic, "error", err)
		return
	}
	m.logger.Debug("published", "topic", topic, "bytes", len(payload))
}

// Close drops every subscription made through Attach.
func (m *Mirror) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scope.Close()
}

// Release implements services.Handle.
func (m *Mirror) Release() { m.Close() }

// errTimeout is returned when the broker does not acknowledge in time.
type errTimeout struct{ op string }

func (e errTimeout) Error() string { return fmt.Sprintf("mqtt %s: timed out", e.op) }
