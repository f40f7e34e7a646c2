package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/TheRookie24/ThermoCity/internal/domain"
	"github.com/TheRookie24/ThermoCity/internal/ports"
)

//go:embed schema.sql
var Schema string

// Store is the Postgres (or TimescaleDB) backed time-series and alert store.
type Store struct {
	db *sqlx.DB
}

// Open connects to Postgres and applies pool defaults.
func Open(connString string) (*Store, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return New(db), nil
}

// New wraps an existing handle; tests pass a sqlmock connection here.
func New(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "postgres")}
}

func (s *Store) Name() string { return "postgres" }

// DB exposes the underlying handle for the advisory locker.
func (s *Store) DB() *sql.DB { return s.db.DB }

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// entityColumn maps a scope to its id column. The result is safe to
// interpolate because it never comes from user input.
func entityColumn(scope domain.Scope) string {
	if scope == domain.ScopeAsset {
		return "asset_id"
	}
	return "segment_id"
}

// channelCols mirrors domain.Channels column-for-column.
type channelCols struct {
	Inlet       *float64 `db:"t_inlet"`
	Outlet      *float64 `db:"t_outlet"`
	Surface     *float64 `db:"t_surface"`
	Subsurface  *float64 `db:"t_subsurface"`
	Flow        *float64 `db:"flow"`
	Pressure    *float64 `db:"pressure"`
	GrossPower  *float64 `db:"kw_gross"`
	EnergyTotal *float64 `db:"kwh_total"`
	FanPower    *float64 `db:"fan_power"`
	PumpPower   *float64 `db:"pump_power"`
	PCMTemp     *float64 `db:"pcm_temp"`
}

const channelColumns = "t_inlet, t_outlet, t_surface, t_subsurface, flow, pressure, kw_gross, kwh_total, fan_power, pump_power, pcm_temp"

func fromChannels(c domain.Channels) channelCols {
	return channelCols{
		Inlet:       c.Temps.Inlet,
		Outlet:      c.Temps.Outlet,
		Surface:     c.Temps.Surface,
		Subsurface:  c.Temps.Subsurface,
		Flow:        c.Flow,
		Pressure:    c.Pressure,
		GrossPower:  c.GrossPower,
		EnergyTotal: c.EnergyTotal,
		FanPower:    c.FanPower,
		PumpPower:   c.PumpPower,
		PCMTemp:     c.PCMTemp,
	}
}

func (c channelCols) toDomain() domain.Channels {
	return domain.Channels{
		Temps: domain.Temps{
			Inlet:      c.Inlet,
			Outlet:     c.Outlet,
			Surface:    c.Surface,
			Subsurface: c.Subsurface,
		},
		Flow:        c.Flow,
		Pressure:    c.Pressure,
		GrossPower:  c.GrossPower,
		EnergyTotal: c.EnergyTotal,
		FanPower:    c.FanPower,
		PumpPower:   c.PumpPower,
		PCMTemp:     c.PCMTemp,
	}
}

func (c channelCols) args() []any {
	return []any{
		c.Inlet, c.Outlet, c.Surface, c.Subsurface, c.Flow, c.Pressure,
		c.GrossPower, c.EnergyTotal, c.FanPower, c.PumpPower, c.PCMTemp,
	}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

// placeholders renders "$from,...,$from+n-1".
func placeholders(from, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, "$%d", from+i)
	}
	return b.String()
}

// rangeWhere renders the WHERE clause shared by sample and snapshot queries.
func rangeWhere(q ports.RangeQuery) (string, []any) {
	conds := []string{"scope = $1"}
	args := []any{string(q.Scope)}
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if q.CityID != "" {
		add("city_id = $%d", q.CityID)
	}
	if q.EntityID != "" {
		add(entityColumn(q.Scope)+" = $%d", q.EntityID)
	}
	if !q.From.IsZero() {
		add("ts >= $%d", q.From.UTC())
	}
	if !q.To.IsZero() {
		add("ts <= $%d", q.To.UTC())
	}
	return strings.Join(conds, " AND "), args
}

var (
	_ ports.TelemetryStore  = (*Store)(nil)
	_ ports.KPIStore        = (*Store)(nil)
	_ ports.AlertRuleStore  = (*Store)(nil)
	_ ports.AlertEventStore = (*Store)(nil)
	_ ports.MeltRangeSource = (*Store)(nil)
)
