package publish

import (
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	connectTimeout      = 10 * time.Second
	publishTimeout      = 5 * time.Second
	disconnectQuiesceMS = 250
)

// Config holds broker settings.
type Config struct {
	Broker      string
	TopicPrefix string
	Username    string
	Password    string
	QoS         byte
	Logger      *slog.Logger
}

// Client is a connected MQTT publisher with a Mirror on top.
type Client struct {
	*Mirror
	client mqtt.Client
}

// ClientID returns a unique client id. Brokers drop the older connection
// when two clients share an id, so a fixed id would make two machines
// kick each other off.
func ClientID() string {
	return "bar-pulse-" + uuid.NewString()[:8]
}

// Connect dials the broker. The connection announces "online" under
// <prefix>/status and leaves "offline" as its will.
func Connect(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{}
	c.Mirror = NewMirror(c, cfg.TopicPrefix, cfg.QoS, logger)
	statusTopic := c.Topic("status")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(ClientID())
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetWill(statusTopic, "offline", cfg.QoS, true)
	opts.OnConnect = func(mqtt.Client) {
		c.logger.Info("connected to MQTT broker", "broker", cfg.Broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		c.logger.Warn("MQTT connection lost", "error", err)
	}

	c.client = mqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, errTimeout{op: "connect"}
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", cfg.Broker, err)
	}

	if err := c.Publish(statusTopic, cfg.QoS, true, []byte("online")); err != nil {
		c.logger.Warn("publish status failed", "error", err)
	}
	return c, nil
}

// Publish implements Publisher.
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errTimeout{op: "publish"}
	}
	return token.Error()
}

// Close stops forwarding, publishes "offline" and disconnects.
func (c *Client) Close() {
	c.Mirror.Close()
	if c.client == nil || !c.client.IsConnected() {
		return
	}
	if err := c.Publish(c.Topic("status"), c.qos, true, []byte("offline")); err != nil {
		c.logger.Debug("publish offline failed", "error", err)
	}
	c.client.Disconnect(disconnectQuiesceMS)
}

// Release implements services.Handle.
func (c *Client) Release() { c.Close() }
