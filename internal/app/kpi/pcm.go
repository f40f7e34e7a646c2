package kpi

import (
	"context"

	"github.com/TheRookie24/ThermoCity/internal/domain"
	"github.com/TheRookie24/ThermoCity/internal/ports"
)

// StaticMeltRanges answers from a fixed segment table before consulting
// the fallback source, which may be nil.
type StaticMeltRanges struct {
	ranges   map[string]ports.MeltRange
	fallback ports.MeltRangeSource
}

func NewStaticMeltRanges(ranges map[string]ports.MeltRange, fallback ports.MeltRangeSource) *StaticMeltRanges {
	return &StaticMeltRanges{ranges: ranges, fallback: fallback}
}

func (s *StaticMeltRanges) MeltRange(ctx context.Context, ref domain.EntityRef) (ports.MeltRange, bool, error) {
	if ref.Scope == domain.ScopeSegment {
		if mr, ok := s.ranges[ref.ID]; ok {
			return mr, true, nil
		}
	}
	if s.fallback == nil {
		return ports.MeltRange{}, false, nil
	}
	return s.fallback.MeltRange(ctx, ref)
}

var _ ports.MeltRangeSource = (*StaticMeltRanges)(nil)
