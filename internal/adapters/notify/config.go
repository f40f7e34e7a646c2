package notify

import (
	"errors"
	"time"
)

// Config selects the channels that hear about newly opened alert events.
// Both sections are optional.
type Config struct {
	Kafka   KafkaConfig   `yaml:"kafka"`
	Slack   SlackConfig   `yaml:"slack"`
	Breaker BreakerConfig `yaml:"breaker"`
}

type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type SlackConfig struct {
	WebhookURL string        `yaml:"webhook_url"`
	Channel    string        `yaml:"channel"`
	Timeout    time.Duration `yaml:"timeout"`
}

// BreakerConfig tunes the circuit breaker placed in front of each channel.
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"`
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

func (c *Config) ApplyDefaults() {
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "thermocity.alerts.opened"
	}
	if c.Kafka.WriteTimeout <= 0 {
		c.Kafka.WriteTimeout = 5 * time.Second
	}
	if c.Slack.Timeout <= 0 {
		c.Slack.Timeout = 10 * time.Second
	}
	if c.Breaker.MaxFailures == 0 {
		c.Breaker.MaxFailures = 5
	}
	if c.Breaker.OpenTimeout <= 0 {
		c.Breaker.OpenTimeout = 30 * time.Second
	}
}

func (c *Config) Validate() error {
	for _, b := range c.Kafka.Brokers {
		if b == "" {
			return errors.New("kafka.brokers must not contain empty addresses")
		}
	}
	return nil
}
