package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/TheRookie24/ThermoCity/internal/domain"
	"github.com/TheRookie24/ThermoCity/internal/ports"
)

const sampleColumns = "id, scope, city_id, segment_id, asset_id, ts, " + channelColumns

var insertSampleQuery = "INSERT INTO telemetry_samples (" + sampleColumns + ") VALUES (" + placeholders(1, 17) + ")"

type sampleRow struct {
	ID        string         `db:"id"`
	Scope     string         `db:"scope"`
	CityID    string         `db:"city_id"`
	SegmentID sql.NullString `db:"segment_id"`
	AssetID   sql.NullString `db:"asset_id"`
	TS        time.Time      `db:"ts"`
	channelCols
}

func (r sampleRow) toDomain() *domain.TelemetrySample {
	return &domain.TelemetrySample{
		ID:        r.ID,
		Scope:     domain.Scope(r.Scope),
		CityID:    r.CityID,
		SegmentID: r.SegmentID.String,
		AssetID:   r.AssetID.String,
		Timestamp: r.TS.UTC(),
		Channels:  r.channelCols.toDomain(),
	}
}

// AppendSample inserts one sample and assigns its id when unset.
func (s *Store) AppendSample(ctx context.Context, smp *domain.TelemetrySample) error {
	if smp.ID == "" {
		smp.ID = uuid.NewString()
	}
	args := append([]any{
		smp.ID,
		string(smp.Scope),
		smp.CityID,
		nullString(smp.SegmentID),
		nullString(smp.AssetID),
		smp.Timestamp.UTC(),
	}, fromChannels(smp.Channels).args()...)

	if _, err := s.db.ExecContext(ctx, insertSampleQuery, args...); err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

func (s *Store) ActiveEntities(ctx context.Context, scope domain.Scope, since time.Time, limit int) ([]domain.EntityRef, error) {
	col := entityColumn(scope)
	query := fmt.Sprintf(`SELECT city_id, %[1]s AS entity_id FROM telemetry_samples
WHERE scope = $1 AND ts >= $2 AND %[1]s IS NOT NULL
GROUP BY city_id, %[1]s ORDER BY max(ts) DESC LIMIT $3`, col)

	var rows []struct {
		CityID   string `db:"city_id"`
		EntityID string `db:"entity_id"`
	}
	if err := s.db.SelectContext(ctx, &rows, query, string(scope), since.UTC(), limit); err != nil {
		return nil, fmt.Errorf("active entities: %w", err)
	}
	out := make([]domain.EntityRef, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.EntityRef{Scope: scope, CityID: r.CityID, ID: r.EntityID})
	}
	return out, nil
}

func (s *Store) LatestSample(ctx context.Context, ref domain.EntityRef, since time.Time) (*domain.TelemetrySample, error) {
	query := fmt.Sprintf(`SELECT %s FROM telemetry_samples
WHERE scope = $1 AND city_id = $2 AND %s = $3 AND ts >= $4
ORDER BY ts DESC LIMIT 1`, sampleColumns, entityColumn(ref.Scope))

	var row sampleRow
	err := s.db.GetContext(ctx, &row, query, string(ref.Scope), ref.CityID, ref.ID, since.UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest sample: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) QuerySamples(ctx context.Context, q ports.RangeQuery) ([]*domain.TelemetrySample, error) {
	where, args := rangeWhere(q)
	args = append(args, q.Limit)
	query := fmt.Sprintf("SELECT %s FROM telemetry_samples WHERE %s ORDER BY ts DESC LIMIT $%d", sampleColumns, where, len(args))

	var rows []sampleRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	out := make([]*domain.TelemetrySample, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) PurgeSamples(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM telemetry_samples WHERE ts < $1", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge samples: %w", err)
	}
	return res.RowsAffected()
}
