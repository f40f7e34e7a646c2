package ports

import (
	"context"
	"time"

	"github.com/TheRookie24/ThermoCity/internal/domain"
)

// RangeQuery bounds a time-series read. Zero times leave that side open.
type RangeQuery struct {
	Scope    domain.Scope
	CityID   string
	EntityID string
	From     time.Time
	To       time.Time
	Limit    int
}

// TelemetryStore persists raw samples. Samples are append-only.
type TelemetryStore interface {
	AppendSample(ctx context.Context, s *domain.TelemetrySample) error
	// ActiveEntities lists entities with at least one sample at or after since.
	ActiveEntities(ctx context.Context, scope domain.Scope, since time.Time, limit int) ([]domain.EntityRef, error)
	// LatestSample returns the newest sample of the entity at or after since.
	LatestSample(ctx context.Context, ref domain.EntityRef, since time.Time) (*domain.TelemetrySample, error)
	// QuerySamples returns samples newest first.
	QuerySamples(ctx context.Context, q RangeQuery) ([]*domain.TelemetrySample, error)
	// PurgeSamples deletes samples older than before and returns how many went.
	PurgeSamples(ctx context.Context, before time.Time) (int64, error)
}

// KPIStore persists derived snapshots. Snapshots are append-only.
type KPIStore interface {
	AppendSnapshot(ctx context.Context, k *domain.KPISnapshot) error
	// LatestSnapshots returns the newest snapshot of up to limit segments,
	// most recently updated first, optionally restricted to a city.
	LatestSnapshots(ctx context.Context, scope domain.Scope, cityID string, limit int) ([]*domain.KPISnapshot, error)
	// QuerySnapshots returns snapshots newest first.
	QuerySnapshots(ctx context.Context, q RangeQuery) ([]*domain.KPISnapshot, error)
}

// AlertRuleStore is the rule record manager. The evaluator only reads it.
type AlertRuleStore interface {
	ListRules(ctx context.Context, limit int) ([]*domain.AlertRule, error)
	GetRule(ctx context.Context, id string) (*domain.AlertRule, error)
	CreateRule(ctx context.Context, r *domain.AlertRule) error
	UpdateRule(ctx context.Context, r *domain.AlertRule) error
	DeleteRule(ctx context.Context, id string) error
}

// AlertEventStore owns alert event state.
type AlertEventStore interface {
	// OpenEvent inserts ev unless an open or acknowledged event already
	// exists for (ev.RuleID, ev.SegmentID). created reports whether it did.
	OpenEvent(ctx context.Context, ev *domain.AlertEvent) (created bool, err error)
	GetEvent(ctx context.Context, id string) (*domain.AlertEvent, error)
	ListEvents(ctx context.Context, status domain.EventStatus, limit int) ([]*domain.AlertEvent, error)
	// UpdateEvent persists a transition. It fails with domain.ErrConflict when
	// the stored status no longer equals prev.
	UpdateEvent(ctx context.Context, ev *domain.AlertEvent, prev domain.EventStatus) error
}

// MeltRange is the phase-change window of a PCM module, in degrees Celsius.
type MeltRange struct {
	Min float64
	Max float64
}

// MeltRangeSource resolves static PCM configuration per entity.
type MeltRangeSource interface {
	MeltRange(ctx context.Context, ref domain.EntityRef) (MeltRange, bool, error)
}
