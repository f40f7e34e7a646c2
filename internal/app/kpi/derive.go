package kpi

import (
	"math"

	"github.com/TheRookie24/ThermoCity/internal/domain"
	"github.com/TheRookie24/ThermoCity/internal/ports"
)

// SpecificHeatWater is the heat capacity of the loop fluid, kJ/(kg*K).
const SpecificHeatWater = 4.186

// PCMConfig is the optional phase-change configuration of an entity.
type PCMConfig struct {
	Range ports.MeltRange
	Valid bool
}

// Derive computes the snapshot for one sample. It is pure: the same sample
// and PCM configuration always yield the same snapshot. ok is false when a
// present channel is NaN or infinite.
func Derive(s *domain.TelemetrySample, pcm PCMConfig, specificHeat float64) (*domain.KPISnapshot, bool) {
	if !s.Channels.Finite() {
		return nil, false
	}
	heat := HeatRate(s.Flow, s.Temps.Inlet, s.Temps.Outlet, specificHeat)
	gross := valueOr0(s.GrossPower)
	parasitic := valueOr0(s.PumpPower) + valueOr0(s.FanPower)

	return &domain.KPISnapshot{
		Scope:          s.Scope,
		CityID:         s.CityID,
		SegmentID:      s.SegmentID,
		AssetID:        s.AssetID,
		Timestamp:      s.Timestamp,
		HeatCapturedKW: heat,
		NetKW:          gross - parasitic,
		GrossKW:        gross,
		ParasiticKW:    parasitic,
		PCMSOC:         StateOfCharge(s.PCMTemp, pcm, heat),
		Channels:       s.Channels.Clone(),
	}, true
}

// HeatRate is flow * cp * (outlet - inlet) in kW thermal, floored at zero.
// Any missing input or a negative flow yields zero.
func HeatRate(flow, inlet, outlet *float64, specificHeat float64) float64 {
	if flow == nil || inlet == nil || outlet == nil || *flow < 0 {
		return 0
	}
	q := *flow * specificHeat * (*outlet - *inlet)
	if q < 0 || math.IsNaN(q) || math.IsInf(q, 0) {
		return 0
	}
	return q
}

// StateOfCharge maps the PCM temperature into the melt range. Without a
// usable range or reading it falls back to a weak estimate from heat.
func StateOfCharge(pcmTemp *float64, pcm PCMConfig, heat float64) float64 {
	if pcm.Valid && pcmTemp != nil && pcm.Range.Max > pcm.Range.Min {
		return clamp((*pcmTemp-pcm.Range.Min)/(pcm.Range.Max-pcm.Range.Min), 0, 1)
	}
	return clamp(0.5+0.05*math.Tanh(heat/10), 0, 1)
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

func valueOr0(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
