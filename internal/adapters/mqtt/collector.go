package mqtt

import (
	"context"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/TheRookie24/ThermoCity/internal/ports"
)

// Config captures the broker session used to consume segment telemetry.
type Config struct {
	Broker         string        `yaml:"broker"`
	ClientID       string        `yaml:"client_id"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	QoS            byte          `yaml:"qos"`
	KeepAlive      time.Duration `yaml:"keep_alive"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	Topics         []string      `yaml:"topics"`
}

func (c *Config) ApplyDefaults() {
	if c.ClientID == "" {
		c.ClientID = "thermocity-ingest"
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = 60 * time.Second
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if len(c.Topics) == 0 {
		c.Topics = []string{"city/+/segment/+/telemetry", "city/+/asset/+/telemetry"}
	}
}

func (c *Config) Validate() error {
	if c.Broker == "" {
		return errors.New("broker is required")
	}
	if c.QoS > 2 {
		return fmt.Errorf("qos must be 0, 1 or 2, got %d", c.QoS)
	}
	return nil
}

// Collector holds one broker session at a time. Any session failure is
// followed by a fixed delay and a fresh connect, until ctx is cancelled.
// paho's own reconnect logic stays off so the retry cadence lives here.
type Collector struct {
	cfg       Config
	obs       ports.Observability
	newClient func(*paho.ClientOptions) paho.Client
}

func NewCollector(cfg Config, obs ports.Observability) (*Collector, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Collector{cfg: cfg, obs: obs, newClient: paho.NewClient}, nil
}

var _ ports.Collector = (*Collector)(nil)

// Run blocks until ctx is cancelled. Messages are handed to h one at a
// time on the calling goroutine.
func (c *Collector) Run(ctx context.Context, h ports.MessageHandler) error {
	for {
		err := c.session(ctx, h)
		if ctx.Err() != nil {
			return nil
		}
		c.obs.LogError("mqtt_session_ended", err,
			ports.Field{Key: "broker", Value: c.cfg.Broker},
			ports.Field{Key: "retry_in", Value: c.cfg.ReconnectDelay.String()})

		t := time.NewTimer(c.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func (c *Collector) options(lost chan<- error) *paho.ClientOptions {
	opts := paho.NewClientOptions().
		AddBroker(c.cfg.Broker).
		SetClientID(c.cfg.ClientID).
		SetKeepAlive(c.cfg.KeepAlive).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false)
	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		select {
		case lost <- err:
		default:
		}
	})
	return opts
}

func (c *Collector) session(ctx context.Context, h ports.MessageHandler) error {
	lost := make(chan error, 1)
	client := c.newClient(c.options(lost))
	if err := wait(ctx, client.Connect()); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	defer client.Disconnect(250)

	done := make(chan struct{})
	defer close(done)

	msgs := make(chan ports.Message, 256)
	onMessage := func(_ paho.Client, m paho.Message) {
		select {
		case msgs <- ports.Message{Topic: m.Topic(), Payload: m.Payload()}:
		case <-done:
		}
	}

	filters := make(map[string]byte, len(c.cfg.Topics))
	for _, t := range c.cfg.Topics {
		filters[t] = c.cfg.QoS
	}
	if err := wait(ctx, client.SubscribeMultiple(filters, onMessage)); err != nil {
		return fmt.Errorf("mqtt subscribe: %w", err)
	}

	c.obs.SetGauge(ports.MetricMQTTConnected, 1)
	defer c.obs.SetGauge(ports.MetricMQTTConnected, 0)
	c.obs.LogInfo("mqtt_connected",
		ports.Field{Key: "broker", Value: c.cfg.Broker},
		ports.Field{Key: "topics", Value: c.cfg.Topics})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-lost:
			return fmt.Errorf("mqtt connection lost: %w", err)
		case m := <-msgs:
			h(ctx, m)
		}
	}
}

func wait(ctx context.Context, tok paho.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
