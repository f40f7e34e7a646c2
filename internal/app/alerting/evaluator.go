package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TheRookie24/ThermoCity/internal/domain"
	"github.com/TheRookie24/ThermoCity/internal/ports"
)

type EvaluatorConfig struct {
	MaxRules      int
	MaxCandidates int
}

// Evaluator matches rules against the newest snapshot of each candidate
// segment and opens events for breaches. Events are never closed here.
type Evaluator struct {
	rules    ports.AlertRuleStore
	kpis     ports.KPIStore
	events   ports.AlertEventStore
	notifier ports.Notifier
	obs      ports.Observability
	cfg      EvaluatorConfig
	now      func() time.Time
}

// NewEvaluator builds an evaluator. notifier may be nil.
func NewEvaluator(rules ports.AlertRuleStore, kpis ports.KPIStore, events ports.AlertEventStore, notifier ports.Notifier, obs ports.Observability, cfg EvaluatorConfig) *Evaluator {
	if cfg.MaxRules <= 0 {
		cfg.MaxRules = 500
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 50
	}
	return &Evaluator{
		rules:    rules,
		kpis:     kpis,
		events:   events,
		notifier: notifier,
		obs:      obs,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (e *Evaluator) Run(ctx context.Context) error {
	rules, err := e.rules.ListRules(ctx, e.cfg.MaxRules)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	var (
		errs       []error
		opened     int
		assetRules int
		candidates = make(map[string][]*domain.KPISnapshot)
	)
	for _, r := range rules {
		if !r.Scope.SegmentScoped() {
			assetRules++
			continue
		}
		snaps, ok := candidates[r.CityID]
		if !ok {
			snaps, err = e.kpis.LatestSnapshots(ctx, domain.ScopeSegment, r.CityID, e.cfg.MaxCandidates)
			if err != nil {
				errs = append(errs, fmt.Errorf("candidates for rule %s: %w", r.ID, err))
				continue
			}
			candidates[r.CityID] = snaps
		}

		n, err := e.evaluateRule(ctx, r, snaps)
		opened += n
		if err != nil {
			errs = append(errs, err)
		}
	}

	if assetRules > 0 {
		e.obs.LogInfo("asset_type_rules_not_evaluated", ports.Field{Key: "rules", Value: assetRules})
	}
	e.obs.LogInfo("alert_run_completed",
		ports.Field{Key: "rules", Value: len(rules)},
		ports.Field{Key: "opened", Value: opened})
	return errors.Join(errs...)
}

func (e *Evaluator) evaluateRule(ctx context.Context, r *domain.AlertRule, snaps []*domain.KPISnapshot) (int, error) {
	var (
		errs       []error
		opened     int
		unresolved int
	)
	for _, k := range snaps {
		v, ok := domain.ResolveMetric(k, r.Metric)
		if !ok {
			unresolved++
			continue
		}
		if !r.Operator.Compare(v, r.Threshold) {
			continue
		}

		ev := &domain.AlertEvent{
			RuleID:    r.ID,
			Metric:    r.Metric,
			Severity:  r.Severity,
			Scope:     r.Scope,
			CityID:    k.CityID,
			ZoneID:    r.ZoneID,
			SegmentID: k.SegmentID,
			Status:    domain.StatusOpen,
			OpenedAt:  e.now().UTC(),
			Value:     v,
		}
		created, err := e.events.OpenEvent(ctx, ev)
		if err != nil {
			errs = append(errs, fmt.Errorf("open event rule=%s segment=%s: %w", r.ID, k.SegmentID, err))
			continue
		}
		if !created {
			continue
		}
		opened++
		e.obs.IncCounter(ports.MetricEventsOpened, 1)
		e.obs.LogInfo("alert_opened",
			ports.Field{Key: "event_id", Value: ev.ID},
			ports.Field{Key: "rule_id", Value: r.ID},
			ports.Field{Key: "segment_id", Value: ev.SegmentID},
			ports.Field{Key: "value", Value: v})
		e.notify(ctx, ev)
	}

	if unresolved > 0 {
		e.obs.IncCounter(ports.MetricPairsSkipped, float64(unresolved))
		e.obs.LogInfo("alert_metric_unresolved",
			ports.Field{Key: "rule_id", Value: r.ID},
			ports.Field{Key: "metric", Value: r.Metric},
			ports.Field{Key: "segments", Value: unresolved})
	}
	return opened, errors.Join(errs...)
}

func (e *Evaluator) notify(ctx context.Context, ev *domain.AlertEvent) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.NotifyOpened(ctx, ev); err != nil {
		e.obs.IncCounter(ports.MetricNotifyFailures, 1)
		e.obs.LogError("alert_notify_failed", err,
			ports.Field{Key: "notifier", Value: e.notifier.Name()},
			ports.Field{Key: "event_id", Value: ev.ID})
	}
}
