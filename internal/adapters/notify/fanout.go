package notify

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/TheRookie24/ThermoCity/internal/domain"
	"github.com/TheRookie24/ThermoCity/internal/ports"
)

// Fanout delivers to every channel. A failing channel does not prevent
// delivery to the others.
type Fanout struct {
	targets []ports.Notifier
	closers []io.Closer
}

// New builds the configured channels, each behind its own breaker. It
// returns nil when no channel is configured.
func New(cfg Config, obs ports.Observability) *Fanout {
	cfg.ApplyDefaults()
	f := &Fanout{}
	if len(cfg.Kafka.Brokers) > 0 {
		k := NewKafkaNotifier(cfg.Kafka)
		f.targets = append(f.targets, NewBreaker(k, cfg.Breaker, obs))
		f.closers = append(f.closers, k)
	}
	if cfg.Slack.WebhookURL != "" {
		f.targets = append(f.targets, NewBreaker(NewSlackNotifier(cfg.Slack), cfg.Breaker, obs))
	}
	if len(f.targets) == 0 {
		return nil
	}
	return f
}

func NewFanout(targets ...ports.Notifier) *Fanout {
	return &Fanout{targets: targets}
}

func (f *Fanout) Name() string { return "fanout" }

func (f *Fanout) NotifyOpened(ctx context.Context, ev *domain.AlertEvent) error {
	var errs []error
	for _, t := range f.targets {
		if err := t.NotifyOpened(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) Close() error {
	var errs []error
	for _, c := range f.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

var _ ports.Notifier = (*Fanout)(nil)
