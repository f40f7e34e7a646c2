package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/TheRookie24/ThermoCity/internal/adapters/httpapi"
	"github.com/TheRookie24/ThermoCity/internal/adapters/mqtt"
	"github.com/TheRookie24/ThermoCity/internal/adapters/notify"
	"github.com/TheRookie24/ThermoCity/internal/ports"
)

type Config struct {
	Store     StoreConfig        `yaml:"store"`
	MQTT      mqtt.Config        `yaml:"mqtt"`
	Ingest    IngestConfig       `yaml:"ingest"`
	HTTP      HTTPConfig         `yaml:"http"`
	Metrics   MetricsConfig      `yaml:"metrics"`
	Auth      httpapi.AuthConfig `yaml:"auth"`
	KPI       KPIConfig          `yaml:"kpi"`
	Alerts    AlertsConfig       `yaml:"alerts"`
	Retention RetentionConfig    `yaml:"retention"`
	Locking   LockingConfig      `yaml:"locking"`
	PCM       PCMConfig          `yaml:"pcm"`
	Notify    notify.Config      `yaml:"notify"`
	Logging   LoggingConfig      `yaml:"logging"`
}

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type StoreConfig struct {
	Driver      string `yaml:"driver"`
	ConnString  string `yaml:"conn_string"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type IngestConfig struct {
	MaxFutureSkew time.Duration `yaml:"max_future_skew"`
}

type KPIConfig struct {
	Interval     time.Duration `yaml:"interval"`
	Timeout      time.Duration `yaml:"timeout"`
	Window       time.Duration `yaml:"window"`
	MaxEntities  int           `yaml:"max_entities"`
	SpecificHeat float64       `yaml:"specific_heat"`
}

type AlertsConfig struct {
	Interval      time.Duration `yaml:"interval"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxRules      int           `yaml:"max_rules"`
	MaxCandidates int           `yaml:"max_candidates"`
}

type RetentionConfig struct {
	Horizon  time.Duration `yaml:"horizon"`
	Interval time.Duration `yaml:"interval"`
}

type LockingConfig struct {
	Enabled bool `yaml:"enabled"`
}

type MeltRange struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

type PCMConfig struct {
	// MeltRanges overrides the pcm_modules table per segment id.
	MeltRanges map[string]MeltRange `yaml:"melt_ranges"`
}

// Ranges converts the overrides for the KPI deriver.
func (p PCMConfig) Ranges() map[string]ports.MeltRange {
	out := make(map[string]ports.MeltRange, len(p.MeltRanges))
	for id, r := range p.MeltRanges {
		out[id] = ports.MeltRange{Min: r.Min, Max: r.Max}
	}
	return out
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Store.Driver == "" {
		c.Store.Driver = DriverPostgres
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = 5 * time.Second
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Ingest.MaxFutureSkew == 0 {
		c.Ingest.MaxFutureSkew = 24 * time.Hour
	}
	if c.KPI.Interval == 0 {
		c.KPI.Interval = 60 * time.Second
	}
	if c.KPI.Timeout == 0 {
		c.KPI.Timeout = 50 * time.Second
	}
	if c.KPI.Window == 0 {
		c.KPI.Window = 10 * time.Minute
	}
	if c.KPI.MaxEntities == 0 {
		c.KPI.MaxEntities = 1000
	}
	if c.KPI.SpecificHeat == 0 {
		c.KPI.SpecificHeat = 4.186
	}
	if c.Alerts.Interval == 0 {
		c.Alerts.Interval = 60 * time.Second
	}
	if c.Alerts.Timeout == 0 {
		c.Alerts.Timeout = 50 * time.Second
	}
	if c.Alerts.MaxRules == 0 {
		c.Alerts.MaxRules = 500
	}
	if c.Alerts.MaxCandidates == 0 {
		c.Alerts.MaxCandidates = 50
	}
	if c.Retention.Horizon == 0 {
		c.Retention.Horizon = 14 * 24 * time.Hour
	}
	if c.Retention.Interval == 0 {
		c.Retention.Interval = time.Hour
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if c.MQTT.Broker != "" {
		c.MQTT.ApplyDefaults()
	}
	c.Notify.ApplyDefaults()
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case DriverPostgres:
		if c.Store.ConnString == "" {
			return errors.New("store.conn_string is required for the postgres driver")
		}
	case DriverMemory:
		if c.Locking.Enabled {
			return errors.New("locking.enabled requires the postgres driver")
		}
	default:
		return fmt.Errorf("store.driver must be postgres or memory, got %q", c.Store.Driver)
	}
	if c.MQTT.Broker != "" {
		if err := c.MQTT.Validate(); err != nil {
			return fmt.Errorf("mqtt config: %w", err)
		}
	}
	if !c.Auth.Disabled && c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required unless auth.disabled is set")
	}
	for name, d := range map[string]time.Duration{
		"ingest.max_future_skew": c.Ingest.MaxFutureSkew,
		"kpi.interval":           c.KPI.Interval,
		"kpi.window":             c.KPI.Window,
		"alerts.interval":        c.Alerts.Interval,
		"retention.horizon":      c.Retention.Horizon,
		"retention.interval":     c.Retention.Interval,
	} {
		if d < 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.KPI.SpecificHeat <= 0 {
		return errors.New("kpi.specific_heat must be positive")
	}
	for id, r := range c.PCM.MeltRanges {
		if r.Max <= r.Min {
			return fmt.Errorf("pcm.melt_ranges[%s]: max must exceed min", id)
		}
	}
	if err := c.Notify.Validate(); err != nil {
		return fmt.Errorf("notify config: %w", err)
	}
	return nil
}
