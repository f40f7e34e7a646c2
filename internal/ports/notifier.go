package ports

import (
	"context"

	"github.com/TheRookie24/ThermoCity/internal/domain"
)

// Notifier fans newly opened alert events out to external channels.
type Notifier interface {
	NotifyOpened(ctx context.Context, ev *domain.AlertEvent) error
	Name() string
}
