package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/TheRookie24/ThermoCity/internal/domain"
)

const ruleColumns = "id, metric, operator, threshold, severity, scope, city_id, zone_id, asset_type"

const eventColumns = "id, rule_id, metric, severity, scope, city_id, zone_id, segment_id, status, opened_at, acknowledged_at, closed_at, actor, notes, value"

type ruleRow struct {
	ID        string  `db:"id"`
	Metric    string  `db:"metric"`
	Operator  string  `db:"operator"`
	Threshold float64 `db:"threshold"`
	Severity  string  `db:"severity"`
	Scope     string  `db:"scope"`
	CityID    string  `db:"city_id"`
	ZoneID    string  `db:"zone_id"`
	AssetType string  `db:"asset_type"`
}

func (r ruleRow) toDomain() *domain.AlertRule {
	return &domain.AlertRule{
		ID:        r.ID,
		Metric:    r.Metric,
		Operator:  domain.Operator(r.Operator),
		Threshold: r.Threshold,
		Severity:  domain.Severity(r.Severity),
		Scope:     domain.RuleScope(r.Scope),
		CityID:    r.CityID,
		ZoneID:    r.ZoneID,
		AssetType: r.AssetType,
	}
}

type eventRow struct {
	ID             string     `db:"id"`
	RuleID         string     `db:"rule_id"`
	Metric         string     `db:"metric"`
	Severity       string     `db:"severity"`
	Scope          string     `db:"scope"`
	CityID         string     `db:"city_id"`
	ZoneID         string     `db:"zone_id"`
	SegmentID      string     `db:"segment_id"`
	Status         string     `db:"status"`
	OpenedAt       time.Time  `db:"opened_at"`
	AcknowledgedAt *time.Time `db:"acknowledged_at"`
	ClosedAt       *time.Time `db:"closed_at"`
	Actor          string     `db:"actor"`
	Notes          string     `db:"notes"`
	Value          float64    `db:"value"`
}

func (r eventRow) toDomain() *domain.AlertEvent {
	utc := func(t *time.Time) *time.Time {
		if t == nil {
			return nil
		}
		u := t.UTC()
		return &u
	}
	return &domain.AlertEvent{
		ID:             r.ID,
		RuleID:         r.RuleID,
		Metric:         r.Metric,
		Severity:       domain.Severity(r.Severity),
		Scope:          domain.RuleScope(r.Scope),
		CityID:         r.CityID,
		ZoneID:         r.ZoneID,
		SegmentID:      r.SegmentID,
		Status:         domain.EventStatus(r.Status),
		OpenedAt:       r.OpenedAt.UTC(),
		AcknowledgedAt: utc(r.AcknowledgedAt),
		ClosedAt:       utc(r.ClosedAt),
		Actor:          r.Actor,
		Notes:          r.Notes,
		Value:          r.Value,
	}
}

func (s *Store) ListRules(ctx context.Context, limit int) ([]*domain.AlertRule, error) {
	var rows []ruleRow
	query := "SELECT " + ruleColumns + " FROM alert_rules ORDER BY created_at LIMIT $1"
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	out := make([]*domain.AlertRule, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) GetRule(ctx context.Context, id string) (*domain.AlertRule, error) {
	if !validID(id) {
		return nil, domain.ErrNotFound
	}
	var row ruleRow
	err := s.db.GetContext(ctx, &row, "SELECT "+ruleColumns+" FROM alert_rules WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) CreateRule(ctx context.Context, r *domain.AlertRule) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	query := "INSERT INTO alert_rules (" + ruleColumns + ") VALUES (" + placeholders(1, 9) + ")"
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.Metric, string(r.Operator), r.Threshold, string(r.Severity), string(r.Scope),
		r.CityID, r.ZoneID, r.AssetType)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

func (s *Store) UpdateRule(ctx context.Context, r *domain.AlertRule) error {
	if !validID(r.ID) {
		return domain.ErrNotFound
	}
	query := `UPDATE alert_rules SET metric = $1, operator = $2, threshold = $3, severity = $4, scope = $5,
city_id = $6, zone_id = $7, asset_type = $8, updated_at = now() WHERE id = $9`
	res, err := s.db.ExecContext(ctx, query,
		r.Metric, string(r.Operator), r.Threshold, string(r.Severity), string(r.Scope),
		r.CityID, r.ZoneID, r.AssetType, r.ID)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	return expectOne(res)
}

func (s *Store) DeleteRule(ctx context.Context, id string) error {
	if !validID(id) {
		return domain.ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM alert_rules WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	return expectOne(res)
}

// openEventQuery relies on the partial unique index alert_events_active_uniq,
// so concurrent evaluator runs cannot both open an event for one pair.
var openEventQuery = "INSERT INTO alert_events (" + eventColumns + ") VALUES (" + placeholders(1, 15) + `)
ON CONFLICT (rule_id, segment_id) WHERE status IN ('open', 'acknowledged') DO NOTHING`

func (s *Store) OpenEvent(ctx context.Context, ev *domain.AlertEvent) (bool, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	res, err := s.db.ExecContext(ctx, openEventQuery,
		ev.ID, ev.RuleID, ev.Metric, string(ev.Severity), string(ev.Scope),
		ev.CityID, ev.ZoneID, ev.SegmentID, string(ev.Status), ev.OpenedAt.UTC(),
		ev.AcknowledgedAt, ev.ClosedAt, ev.Actor, ev.Notes, ev.Value)
	if err != nil {
		return false, fmt.Errorf("insert event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (*domain.AlertEvent, error) {
	if !validID(id) {
		return nil, domain.ErrNotFound
	}
	var row eventRow
	err := s.db.GetContext(ctx, &row, "SELECT "+eventColumns+" FROM alert_events WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListEvents(ctx context.Context, status domain.EventStatus, limit int) ([]*domain.AlertEvent, error) {
	var (
		rows []eventRow
		err  error
	)
	if status == "" {
		err = s.db.SelectContext(ctx, &rows,
			"SELECT "+eventColumns+" FROM alert_events ORDER BY opened_at DESC LIMIT $1", limit)
	} else {
		err = s.db.SelectContext(ctx, &rows,
			"SELECT "+eventColumns+" FROM alert_events WHERE status = $1 ORDER BY opened_at DESC LIMIT $2", string(status), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	out := make([]*domain.AlertEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) UpdateEvent(ctx context.Context, ev *domain.AlertEvent, prev domain.EventStatus) error {
	if !validID(ev.ID) {
		return domain.ErrNotFound
	}
	query := `UPDATE alert_events SET status = $1, acknowledged_at = $2, closed_at = $3, actor = $4, notes = $5
WHERE id = $6 AND status = $7`
	res, err := s.db.ExecContext(ctx, query,
		string(ev.Status), ev.AcknowledgedAt, ev.ClosedAt, ev.Actor, ev.Notes, ev.ID, string(prev))
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrConflict
	}
	return nil
}

// validID reports whether id can match a uuid column. Anything else cannot
// exist, and Postgres would reject the cast.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
