package alerting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheRookie24/ThermoCity/internal/adapters/memstore"
	"github.com/TheRookie24/ThermoCity/internal/domain"
	"github.com/TheRookie24/ThermoCity/internal/ports"
	"github.com/TheRookie24/ThermoCity/internal/ports/portstest"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	events []*domain.AlertEvent
	err    error
}

func (n *recordingNotifier) NotifyOpened(_ context.Context, ev *domain.AlertEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *recordingNotifier) Name() string { return "recording" }

func snapshot(city, seg string, netKW float64) *domain.KPISnapshot {
	return &domain.KPISnapshot{
		Scope:     domain.ScopeSegment,
		CityID:    city,
		SegmentID: seg,
		Timestamp: now.Add(-time.Minute),
		NetKW:     netKW,
		Channels:  domain.Channels{Temps: domain.Temps{Surface: domain.Float(41)}},
	}
}

func newEvaluator(store *memstore.Store, n ports.Notifier, obs ports.Observability) *Evaluator {
	e := NewEvaluator(store, store, store, n, obs, EvaluatorConfig{})
	e.now = func() time.Time { return now }
	return e
}

func createRule(t *testing.T, store *memstore.Store, r domain.AlertRule) *domain.AlertRule {
	t.Helper()
	require.NoError(t, NewRules(store).Create(context.Background(), &r))
	return &r
}

func TestEvaluatorOpensOneEventPerPair(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	obs := portstest.NewObs()
	notifier := &recordingNotifier{}

	require.NoError(t, store.AppendSnapshot(ctx, snapshot("pune", "seg-1", 8.5)))
	rule := createRule(t, store, domain.AlertRule{
		Metric: "net_power", Operator: domain.OpGT, Threshold: 5,
		Severity: domain.SeverityHigh, Scope: domain.RuleScopeSegment,
	})

	e := newEvaluator(store, notifier, obs)
	require.NoError(t, e.Run(ctx))
	require.NoError(t, e.Run(ctx))

	events, err := store.ListEvents(ctx, "", 500)
	require.NoError(t, err)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, domain.StatusOpen, ev.Status)
	assert.Equal(t, 8.5, ev.Value)
	assert.Equal(t, rule.ID, ev.RuleID)
	assert.Equal(t, "seg-1", ev.SegmentID)
	assert.Equal(t, domain.SeverityHigh, ev.Severity)
	assert.Equal(t, domain.RuleScopeSegment, ev.Scope)
	assert.Equal(t, now, ev.OpenedAt)
	assert.Equal(t, 1.0, obs.Counter(ports.MetricEventsOpened))
	assert.Len(t, notifier.events, 1)
}

func TestEvaluatorNoDuplicateWhileAcknowledged(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.AppendSnapshot(ctx, snapshot("pune", "seg-1", 8.5)))
	createRule(t, store, domain.AlertRule{
		Metric: "kw_net", Operator: domain.OpGE, Threshold: 8.5,
		Severity: domain.SeverityLow, Scope: domain.RuleScopeCity, CityID: "pune",
	})

	e := newEvaluator(store, nil, portstest.NewObs())
	lc := NewLifecycle(store, portstest.NewObs())
	require.NoError(t, e.Run(ctx))

	events, _ := store.ListEvents(ctx, "", 500)
	require.Len(t, events, 1)
	_, err := lc.Apply(ctx, events[0].ID, domain.EventAction{Status: domain.StatusAcknowledged, Actor: "asha:ops"})
	require.NoError(t, err)

	require.NoError(t, e.Run(ctx))
	events, _ = store.ListEvents(ctx, "", 500)
	assert.Len(t, events, 1, "acknowledged event still blocks a new one")

	_, err = lc.Apply(ctx, events[0].ID, domain.EventAction{Status: domain.StatusClosed, Actor: "asha:ops"})
	require.NoError(t, err)
	require.NoError(t, e.Run(ctx))
	events, _ = store.ListEvents(ctx, "", 500)
	assert.Len(t, events, 2, "re-breach after close opens a new event")
}

func TestEvaluatorFiltersByCity(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.AppendSnapshot(ctx, snapshot("pune", "seg-1", 9)))
	require.NoError(t, store.AppendSnapshot(ctx, snapshot("oslo", "seg-9", 9)))
	createRule(t, store, domain.AlertRule{
		Metric: "net_power", Operator: domain.OpGT, Threshold: 5,
		Severity: domain.SeverityMedium, Scope: domain.RuleScopeZone, CityID: "oslo", ZoneID: "harbour",
	})

	require.NoError(t, newEvaluator(store, nil, portstest.NewObs()).Run(ctx))
	events, _ := store.ListEvents(ctx, "", 500)
	require.Len(t, events, 1)
	assert.Equal(t, "seg-9", events[0].SegmentID)
	assert.Equal(t, "harbour", events[0].ZoneID)
	assert.Equal(t, "oslo", events[0].CityID)
}

func TestEvaluatorTempChannelsAndUnresolved(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	obs := portstest.NewObs()
	require.NoError(t, store.AppendSnapshot(ctx, snapshot("pune", "seg-1", 0)))
	createRule(t, store, domain.AlertRule{
		Metric: "temp_surface", Operator: domain.OpGT, Threshold: 40,
		Severity: domain.SeverityCritical, Scope: domain.RuleScopeSegment,
	})
	createRule(t, store, domain.AlertRule{
		Metric: "temp_inlet", Operator: domain.OpGT, Threshold: 0,
		Severity: domain.SeverityLow, Scope: domain.RuleScopeSegment,
	})
	createRule(t, store, domain.AlertRule{
		Metric: "net_power", Operator: domain.OpLT, Threshold: 0,
		Severity: domain.SeverityLow, Scope: domain.RuleScopeAssetType, AssetType: "pump",
	})

	require.NoError(t, newEvaluator(store, nil, obs).Run(ctx))
	events, _ := store.ListEvents(ctx, "", 500)
	require.Len(t, events, 1)
	assert.Equal(t, "temp_surface", events[0].Metric)
	assert.Equal(t, 41.0, events[0].Value)
	assert.Equal(t, 1.0, obs.Counter(ports.MetricPairsSkipped))
}

func TestEvaluatorUsesLatestSnapshotPerSegment(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	old := snapshot("pune", "seg-1", 20)
	old.Timestamp = now.Add(-time.Hour)
	require.NoError(t, store.AppendSnapshot(ctx, old))
	require.NoError(t, store.AppendSnapshot(ctx, snapshot("pune", "seg-1", 1)))
	createRule(t, store, domain.AlertRule{
		Metric: "net_power", Operator: domain.OpGT, Threshold: 5,
		Severity: domain.SeverityLow, Scope: domain.RuleScopeSegment,
	})

	require.NoError(t, newEvaluator(store, nil, portstest.NewObs()).Run(ctx))
	events, _ := store.ListEvents(ctx, "", 500)
	assert.Empty(t, events)
}

func TestEvaluatorNotifyFailureKeepsEvent(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	obs := portstest.NewObs()
	require.NoError(t, store.AppendSnapshot(ctx, snapshot("pune", "seg-1", 8.5)))
	createRule(t, store, domain.AlertRule{
		Metric: "net_power", Operator: domain.OpGT, Threshold: 5,
		Severity: domain.SeverityHigh, Scope: domain.RuleScopeSegment,
	})

	n := &recordingNotifier{err: errors.New("broker unreachable")}
	require.NoError(t, newEvaluator(store, n, obs).Run(ctx))

	events, _ := store.ListEvents(ctx, domain.StatusOpen, 500)
	assert.Len(t, events, 1)
	assert.Equal(t, 1.0, obs.Counter(ports.MetricNotifyFailures))
	assert.Contains(t, obs.Errors(), "alert_notify_failed")
}

func TestEvaluatorCandidateBound(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	for i := 0; i < 60; i++ {
		k := snapshot("pune", "seg-"+string(rune('A'+i)), 9)
		k.Timestamp = now.Add(-time.Duration(i) * time.Second)
		require.NoError(t, store.AppendSnapshot(ctx, k))
	}
	createRule(t, store, domain.AlertRule{
		Metric: "net_power", Operator: domain.OpGT, Threshold: 5,
		Severity: domain.SeverityLow, Scope: domain.RuleScopeSegment,
	})

	require.NoError(t, newEvaluator(store, nil, portstest.NewObs()).Run(ctx))
	events, _ := store.ListEvents(ctx, "", 500)
	assert.Len(t, events, 50)
}
