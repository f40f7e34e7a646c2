package alerting

import (
	"context"
	"errors"
	"time"

	"github.com/TheRookie24/ThermoCity/internal/domain"
	"github.com/TheRookie24/ThermoCity/internal/ports"
)

// maxApplyAttempts bounds retries when a concurrent actor moved the event
// between our read and write.
const maxApplyAttempts = 3

// Lifecycle applies actor actions to alert events.
type Lifecycle struct {
	events ports.AlertEventStore
	obs    ports.Observability
	now    func() time.Time
}

func NewLifecycle(events ports.AlertEventStore, obs ports.Observability) *Lifecycle {
	return &Lifecycle{events: events, obs: obs, now: time.Now}
}

// Apply moves event id to act.Status on behalf of act.Actor.
func (l *Lifecycle) Apply(ctx context.Context, id string, act domain.EventAction) (*domain.AlertEvent, error) {
	if act.Status != domain.StatusAcknowledged && act.Status != domain.StatusClosed {
		ve := &domain.ValidationError{}
		ve.Add("status", "must be acknowledged or closed")
		return nil, ve
	}

	var err error
	for attempt := 0; attempt < maxApplyAttempts; attempt++ {
		var ev *domain.AlertEvent
		ev, err = l.events.GetEvent(ctx, id)
		if err != nil {
			return nil, err
		}
		prev := ev.Status
		if err = ev.Transition(act, l.now()); err != nil {
			return nil, err
		}
		err = l.events.UpdateEvent(ctx, ev, prev)
		if errors.Is(err, domain.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		l.obs.LogInfo("alert_transitioned",
			ports.Field{Key: "event_id", Value: id},
			ports.Field{Key: "from", Value: string(prev)},
			ports.Field{Key: "to", Value: string(ev.Status)},
			ports.Field{Key: "actor", Value: act.Actor})
		return ev, nil
	}
	return nil, err
}

func (l *Lifecycle) List(ctx context.Context, status domain.EventStatus, limit int) ([]*domain.AlertEvent, error) {
	if status != "" && !status.Valid() {
		ve := &domain.ValidationError{}
		ve.Add("status", "must be open, acknowledged or closed")
		return nil, ve
	}
	return l.events.ListEvents(ctx, status, limit)
}
