package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/TheRookie24/ThermoCity/internal/domain"
	"github.com/TheRookie24/ThermoCity/internal/ports"
)

const snapshotColumns = "id, scope, city_id, segment_id, asset_id, ts, heat_captured_kw, kw_net, gross_kw, parasitic_kw, pcm_soc, " + channelColumns

var insertSnapshotQuery = "INSERT INTO kpi_snapshots (" + snapshotColumns + ") VALUES (" + placeholders(1, 22) + ")"

type snapshotRow struct {
	ID             string         `db:"id"`
	Scope          string         `db:"scope"`
	CityID         string         `db:"city_id"`
	SegmentID      sql.NullString `db:"segment_id"`
	AssetID        sql.NullString `db:"asset_id"`
	TS             time.Time      `db:"ts"`
	HeatCapturedKW float64        `db:"heat_captured_kw"`
	NetKW          float64        `db:"kw_net"`
	GrossKW        float64        `db:"gross_kw"`
	ParasiticKW    float64        `db:"parasitic_kw"`
	PCMSOC         float64        `db:"pcm_soc"`
	channelCols
}

func (r snapshotRow) toDomain() *domain.KPISnapshot {
	return &domain.KPISnapshot{
		ID:             r.ID,
		Scope:          domain.Scope(r.Scope),
		CityID:         r.CityID,
		SegmentID:      r.SegmentID.String,
		AssetID:        r.AssetID.String,
		Timestamp:      r.TS.UTC(),
		HeatCapturedKW: r.HeatCapturedKW,
		NetKW:          r.NetKW,
		GrossKW:        r.GrossKW,
		ParasiticKW:    r.ParasiticKW,
		PCMSOC:         r.PCMSOC,
		Channels:       r.channelCols.toDomain(),
	}
}

func (s *Store) AppendSnapshot(ctx context.Context, k *domain.KPISnapshot) error {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	args := append([]any{
		k.ID,
		string(k.Scope),
		k.CityID,
		nullString(k.SegmentID),
		nullString(k.AssetID),
		k.Timestamp.UTC(),
		k.HeatCapturedKW,
		k.NetKW,
		k.GrossKW,
		k.ParasiticKW,
		k.PCMSOC,
	}, fromChannels(k.Channels).args()...)

	if _, err := s.db.ExecContext(ctx, insertSnapshotQuery, args...); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func (s *Store) LatestSnapshots(ctx context.Context, scope domain.Scope, cityID string, limit int) ([]*domain.KPISnapshot, error) {
	col := entityColumn(scope)
	args := []any{string(scope)}
	cityCond := ""
	if cityID != "" {
		args = append(args, cityID)
		cityCond = " AND city_id = $2"
	}
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT * FROM (
SELECT DISTINCT ON (city_id, %[1]s) %[2]s FROM kpi_snapshots
WHERE scope = $1 AND %[1]s IS NOT NULL%[3]s
ORDER BY city_id, %[1]s, ts DESC
) latest ORDER BY ts DESC LIMIT $%[4]d`, col, snapshotColumns, cityCond, len(args))

	var rows []snapshotRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("latest snapshots: %w", err)
	}
	out := make([]*domain.KPISnapshot, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) QuerySnapshots(ctx context.Context, q ports.RangeQuery) ([]*domain.KPISnapshot, error) {
	where, args := rangeWhere(q)
	args = append(args, q.Limit)
	query := fmt.Sprintf("SELECT %s FROM kpi_snapshots WHERE %s ORDER BY ts DESC LIMIT $%d", snapshotColumns, where, len(args))

	var rows []snapshotRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	out := make([]*domain.KPISnapshot, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}
