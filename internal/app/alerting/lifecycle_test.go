package alerting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheRookie24/ThermoCity/internal/adapters/memstore"
	"github.com/TheRookie24/ThermoCity/internal/domain"
	"github.com/TheRookie24/ThermoCity/internal/ports"
	"github.com/TheRookie24/ThermoCity/internal/ports/portstest"
)

func openEvent(t *testing.T, store *memstore.Store) *domain.AlertEvent {
	t.Helper()
	ev := &domain.AlertEvent{RuleID: "r1", SegmentID: "seg-1", Status: domain.StatusOpen, OpenedAt: now, Value: 8.5}
	created, err := store.OpenEvent(context.Background(), ev)
	require.NoError(t, err)
	require.True(t, created)
	return ev
}

func TestLifecycleAcknowledgeThenClose(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	ev := openEvent(t, store)

	lc := NewLifecycle(store, portstest.NewObs())
	lc.now = func() time.Time { return now.Add(time.Minute) }

	acked, err := lc.Apply(ctx, ev.ID, domain.EventAction{Status: domain.StatusAcknowledged, Actor: "asha:ops", Notes: "on site"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAcknowledged, acked.Status)
	require.NotNil(t, acked.AcknowledgedAt)
	assert.Equal(t, now.Add(time.Minute), *acked.AcknowledgedAt)
	assert.Equal(t, "asha:ops", acked.Actor)

	lc.now = func() time.Time { return now.Add(2 * time.Minute) }
	closed, err := lc.Apply(ctx, ev.ID, domain.EventAction{Status: domain.StatusClosed, Actor: "ravi:engineer", Notes: "valve replaced"})
	require.NoError(t, err)
	require.NotNil(t, closed.ClosedAt)
	assert.Equal(t, now.Add(2*time.Minute), *closed.ClosedAt)

	_, err = lc.Apply(ctx, ev.ID, domain.EventAction{Status: domain.StatusAcknowledged, Actor: "x:ops"})
	assert.True(t, errors.Is(err, domain.ErrEventClosed))
	_, err = lc.Apply(ctx, ev.ID, domain.EventAction{Status: domain.StatusClosed, Actor: "x:ops"})
	assert.True(t, errors.Is(err, domain.ErrEventClosed))

	stored, err := store.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, closed, stored, "closed events never change")
}

func TestLifecycleRejectsUnknownStatus(t *testing.T) {
	store := memstore.New()
	ev := openEvent(t, store)
	_, err := NewLifecycle(store, portstest.NewObs()).Apply(context.Background(), ev.ID, domain.EventAction{Status: domain.StatusOpen})
	assert.True(t, domain.IsValidation(err))
}

func TestLifecycleNotFound(t *testing.T) {
	_, err := NewLifecycle(memstore.New(), portstest.NewObs()).Apply(context.Background(), "missing", domain.EventAction{Status: domain.StatusClosed})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

// racingStore closes the event behind the caller's back on the first update.
type racingStore struct {
	*memstore.Store
	raced bool
}

func (r *racingStore) UpdateEvent(ctx context.Context, ev *domain.AlertEvent, prev domain.EventStatus) error {
	if !r.raced {
		r.raced = true
		other, _ := r.Store.GetEvent(ctx, ev.ID)
		ts := now
		other.Status, other.ClosedAt, other.Actor = domain.StatusClosed, &ts, "other:ops"
		if err := r.Store.UpdateEvent(ctx, other, prev); err != nil {
			return err
		}
	}
	return r.Store.UpdateEvent(ctx, ev, prev)
}

func TestLifecycleConcurrentCloseWins(t *testing.T) {
	store := memstore.New()
	ev := openEvent(t, store)
	lc := NewLifecycle(&racingStore{Store: store}, portstest.NewObs())

	_, err := lc.Apply(context.Background(), ev.ID, domain.EventAction{Status: domain.StatusAcknowledged, Actor: "asha:ops"})
	assert.True(t, errors.Is(err, domain.ErrEventClosed), "got %v", err)

	stored, _ := store.GetEvent(context.Background(), ev.ID)
	assert.Equal(t, "other:ops", stored.Actor)
}

func TestLifecycleListValidatesStatus(t *testing.T) {
	lc := NewLifecycle(memstore.New(), portstest.NewObs())
	_, err := lc.List(context.Background(), "pending", 500)
	assert.True(t, domain.IsValidation(err))
}

func TestRulesRejectUnknownMetric(t *testing.T) {
	store := memstore.New()
	err := NewRules(store).Create(context.Background(), &domain.AlertRule{
		Metric: "wind", Operator: domain.OpGT, Severity: domain.SeverityLow, Scope: domain.RuleScopeSegment,
	})
	assert.True(t, domain.IsValidation(err))
	rules, _ := store.ListRules(context.Background(), 500)
	assert.Empty(t, rules)
}

var _ ports.AlertEventStore = (*racingStore)(nil)
