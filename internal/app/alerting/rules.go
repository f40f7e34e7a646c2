package alerting

import (
	"context"

	"github.com/TheRookie24/ThermoCity/internal/domain"
	"github.com/TheRookie24/ThermoCity/internal/ports"
)

// Rules validates rule definitions before they reach the store, so the
// evaluator only ever loads rules with a known metric.
type Rules struct {
	store ports.AlertRuleStore
}

func NewRules(store ports.AlertRuleStore) *Rules {
	return &Rules{store: store}
}

func (r *Rules) List(ctx context.Context, limit int) ([]*domain.AlertRule, error) {
	return r.store.ListRules(ctx, limit)
}

func (r *Rules) Create(ctx context.Context, rule *domain.AlertRule) error {
	rule.ID = ""
	if err := rule.Normalize(); err != nil {
		return err
	}
	return r.store.CreateRule(ctx, rule)
}

func (r *Rules) Update(ctx context.Context, id string, rule *domain.AlertRule) error {
	rule.ID = id
	if err := rule.Normalize(); err != nil {
		return err
	}
	return r.store.UpdateRule(ctx, rule)
}

func (r *Rules) Delete(ctx context.Context, id string) error {
	return r.store.DeleteRule(ctx, id)
}
