package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/TheRookie24/ThermoCity/internal/domain"
	"github.com/TheRookie24/ThermoCity/internal/ports"
)

// MeltRange looks up the PCM module installed under a segment. Assets carry
// no PCM configuration.
func (s *Store) MeltRange(ctx context.Context, ref domain.EntityRef) (ports.MeltRange, bool, error) {
	if ref.Scope != domain.ScopeSegment {
		return ports.MeltRange{}, false, nil
	}
	var row struct {
		Min float64 `db:"melt_temp_min"`
		Max float64 `db:"melt_temp_max"`
	}
	err := s.db.GetContext(ctx, &row, "SELECT melt_temp_min, melt_temp_max FROM pcm_modules WHERE segment_id = $1", ref.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.MeltRange{}, false, nil
	}
	if err != nil {
		return ports.MeltRange{}, false, fmt.Errorf("melt range: %w", err)
	}
	return ports.MeltRange{Min: row.Min, Max: row.Max}, true, nil
}
