package notify

import (
	"context"

	"github.com/sony/gobreaker"

	"github.com/TheRookie24/ThermoCity/internal/domain"
	"github.com/TheRookie24/ThermoCity/internal/ports"
)

// Breaker stops calling a failing channel until OpenTimeout has passed, so a
// dead webhook cannot slow every evaluator run.
type Breaker struct {
	next ports.Notifier
	cb   *gobreaker.CircuitBreaker
}

func NewBreaker(next ports.Notifier, cfg BreakerConfig, obs ports.Observability) *Breaker {
	return &Breaker{
		next: next,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "notify-" + next.Name(),
			MaxRequests: 1,
			Timeout:     cfg.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.MaxFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				obs.LogInfo("notifier_breaker_state",
					ports.Field{Key: "breaker", Value: name},
					ports.Field{Key: "from", Value: from.String()},
					ports.Field{Key: "to", Value: to.String()})
			},
		}),
	}
}

func (b *Breaker) Name() string { return b.next.Name() }

func (b *Breaker) NotifyOpened(ctx context.Context, ev *domain.AlertEvent) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.NotifyOpened(ctx, ev)
	})
	return err
}

// State exposes the breaker position for tests and diagnostics.
func (b *Breaker) State() gobreaker.State { return b.cb.State() }

var _ ports.Notifier = (*Breaker)(nil)
