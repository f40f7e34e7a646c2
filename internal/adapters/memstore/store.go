package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TheRookie24/ThermoCity/internal/domain"
	"github.com/TheRookie24/ThermoCity/internal/ports"
)

// Store keeps samples, snapshots, rules and events in process memory.
// It backs the "memory" store driver and the application tests.
type Store struct {
	mu        sync.Mutex
	samples   []*domain.TelemetrySample
	snapshots []*domain.KPISnapshot
	rules     []*domain.AlertRule
	events    []*domain.AlertEvent
	melt      map[string]ports.MeltRange
}

func New() *Store {
	return &Store{melt: make(map[string]ports.MeltRange)}
}

func (s *Store) Name() string { return "memory" }

// SetMeltRange registers PCM configuration for a segment.
func (s *Store) SetMeltRange(segmentID string, mr ports.MeltRange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.melt[segmentID] = mr
}

func (s *Store) AppendSample(_ context.Context, smp *domain.TelemetrySample) error {
	if smp.ID == "" {
		smp.ID = uuid.NewString()
	}
	cp := *smp
	cp.Channels = smp.Channels.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, &cp)
	return nil
}

func (s *Store) ActiveEntities(_ context.Context, scope domain.Scope, since time.Time, limit int) ([]domain.EntityRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	last := make(map[domain.EntityRef]time.Time)
	for _, smp := range s.samples {
		if smp.Scope != scope || smp.Timestamp.Before(since) {
			continue
		}
		ref := smp.Ref()
		if smp.Timestamp.After(last[ref]) {
			last[ref] = smp.Timestamp
		}
	}
	out := make([]domain.EntityRef, 0, len(last))
	for ref := range last {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return last[out[i]].After(last[out[j]]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) LatestSample(_ context.Context, ref domain.EntityRef, since time.Time) (*domain.TelemetrySample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *domain.TelemetrySample
	for _, smp := range s.samples {
		if smp.Ref() != ref || smp.Timestamp.Before(since) {
			continue
		}
		// later appends win on equal timestamps
		if best == nil || !smp.Timestamp.Before(best.Timestamp) {
			best = smp
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	cp := *best
	cp.Channels = best.Channels.Clone()
	return &cp, nil
}

func inRange(q ports.RangeQuery, scope domain.Scope, cityID, entityID string, ts time.Time) bool {
	if scope != q.Scope {
		return false
	}
	if q.CityID != "" && cityID != q.CityID {
		return false
	}
	if q.EntityID != "" && entityID != q.EntityID {
		return false
	}
	if !q.From.IsZero() && ts.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && ts.After(q.To) {
		return false
	}
	return true
}

func (s *Store) QuerySamples(_ context.Context, q ports.RangeQuery) ([]*domain.TelemetrySample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.TelemetrySample
	for _, smp := range s.samples {
		if inRange(q, smp.Scope, smp.CityID, smp.EntityID(), smp.Timestamp) {
			cp := *smp
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Store) PurgeSamples(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.samples[:0]
	var n int64
	for _, smp := range s.samples {
		if smp.Timestamp.Before(before) {
			n++
			continue
		}
		kept = append(kept, smp)
	}
	s.samples = kept
	return n, nil
}

func (s *Store) AppendSnapshot(_ context.Context, k *domain.KPISnapshot) error {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	cp := *k
	cp.Channels = k.Channels.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, &cp)
	return nil
}

func (s *Store) LatestSnapshots(_ context.Context, scope domain.Scope, cityID string, limit int) ([]*domain.KPISnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type key struct{ city, id string }
	latest := make(map[key]*domain.KPISnapshot)
	for _, k := range s.snapshots {
		if k.Scope != scope || (cityID != "" && k.CityID != cityID) {
			continue
		}
		id := key{k.CityID, k.EntityID()}
		if cur, ok := latest[id]; !ok || !k.Timestamp.Before(cur.Timestamp) {
			latest[id] = k
		}
	}
	out := make([]*domain.KPISnapshot, 0, len(latest))
	for _, k := range latest {
		cp := *k
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) QuerySnapshots(_ context.Context, q ports.RangeQuery) ([]*domain.KPISnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.KPISnapshot
	for _, k := range s.snapshots {
		if inRange(q, k.Scope, k.CityID, k.EntityID(), k.Timestamp) {
			cp := *k
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Store) ListRules(_ context.Context, limit int) ([]*domain.AlertRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.rules)
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]*domain.AlertRule, 0, n)
	for _, r := range s.rules[:n] {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) ruleIndex(id string) int {
	for i, r := range s.rules {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) GetRule(_ context.Context, id string) (*domain.AlertRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.ruleIndex(id)
	if i < 0 {
		return nil, domain.ErrNotFound
	}
	cp := *s.rules[i]
	return &cp, nil
}

func (s *Store) CreateRule(_ context.Context, r *domain.AlertRule) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	cp := *r
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, &cp)
	return nil
}

func (s *Store) UpdateRule(_ context.Context, r *domain.AlertRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.ruleIndex(r.ID)
	if i < 0 {
		return domain.ErrNotFound
	}
	cp := *r
	s.rules[i] = &cp
	return nil
}

func (s *Store) DeleteRule(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.ruleIndex(id)
	if i < 0 {
		return domain.ErrNotFound
	}
	s.rules = append(s.rules[:i], s.rules[i+1:]...)
	return nil
}

// OpenEvent checks and inserts under one lock, so the active-pair
// uniqueness holds for concurrent callers.
func (s *Store) OpenEvent(_ context.Context, ev *domain.AlertEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.RuleID == ev.RuleID && e.SegmentID == ev.SegmentID && e.Status.Active() {
			return false, nil
		}
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	cp := *ev
	s.events = append(s.events, &cp)
	return true, nil
}

func (s *Store) GetEvent(_ context.Context, id string) (*domain.AlertEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.ID == id {
			cp := *e
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListEvents(_ context.Context, status domain.EventStatus, limit int) ([]*domain.AlertEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.AlertEvent
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if status != "" && e.Status != status {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OpenedAt.After(out[j].OpenedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UpdateEvent(_ context.Context, ev *domain.AlertEvent, prev domain.EventStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.events {
		if e.ID != ev.ID {
			continue
		}
		if e.Status != prev {
			return domain.ErrConflict
		}
		cp := *ev
		s.events[i] = &cp
		return nil
	}
	return domain.ErrNotFound
}

func (s *Store) MeltRange(_ context.Context, ref domain.EntityRef) (ports.MeltRange, bool, error) {
	if ref.Scope != domain.ScopeSegment {
		return ports.MeltRange{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	mr, ok := s.melt[ref.ID]
	return mr, ok, nil
}

var (
	_ ports.TelemetryStore  = (*Store)(nil)
	_ ports.KPIStore        = (*Store)(nil)
	_ ports.AlertRuleStore  = (*Store)(nil)
	_ ports.AlertEventStore = (*Store)(nil)
	_ ports.MeltRangeSource = (*Store)(nil)
)
