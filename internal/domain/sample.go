package domain

import (
	"math"
	"time"
)

// Scope classifies the entity a sample or snapshot belongs to.
type Scope string

const (
	ScopeSegment Scope = "segment"
	ScopeAsset   Scope = "asset"
)

// Valid reports whether s is one of the telemetry scopes.
func (s Scope) Valid() bool {
	return s == ScopeSegment || s == ScopeAsset
}

// Temps holds the named temperature channels of a reading, in degrees Celsius.
type Temps struct {
	Inlet      *float64 `json:"inlet"`
	Outlet     *float64 `json:"outlet"`
	Surface    *float64 `json:"surface"`
	Subsurface *float64 `json:"subsurface"`
}

// Channels is the fixed set of numeric channels a road segment reports.
// A nil field means the channel was absent or not numeric.
type Channels struct {
	Temps       Temps    `json:"temps"`
	Flow        *float64 `json:"flow"`      // kg/s
	Pressure    *float64 `json:"pressure"`  // kPa
	GrossPower  *float64 `json:"kw_gross"`  // kW
	EnergyTotal *float64 `json:"kwh_total"` // kWh, cumulative
	FanPower    *float64 `json:"fan_power"` // kW
	PumpPower   *float64 `json:"pump_power"`
	PCMTemp     *float64 `json:"pcm_temp"`
}

// Finite reports whether every present channel holds a finite number.
func (c Channels) Finite() bool {
	for _, v := range c.values() {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return false
		}
	}
	return true
}

func (c Channels) values() []*float64 {
	return []*float64{
		c.Temps.Inlet, c.Temps.Outlet, c.Temps.Surface, c.Temps.Subsurface,
		c.Flow, c.Pressure, c.GrossPower, c.EnergyTotal, c.FanPower, c.PumpPower, c.PCMTemp,
	}
}

// Clone returns a deep copy so snapshots never alias a sample's pointers.
func (c Channels) Clone() Channels {
	cp := func(v *float64) *float64 {
		if v == nil {
			return nil
		}
		x := *v
		return &x
	}
	return Channels{
		Temps: Temps{
			Inlet:      cp(c.Temps.Inlet),
			Outlet:     cp(c.Temps.Outlet),
			Surface:    cp(c.Temps.Surface),
			Subsurface: cp(c.Temps.Subsurface),
		},
		Flow:        cp(c.Flow),
		Pressure:    cp(c.Pressure),
		GrossPower:  cp(c.GrossPower),
		EnergyTotal: cp(c.EnergyTotal),
		FanPower:    cp(c.FanPower),
		PumpPower:   cp(c.PumpPower),
		PCMTemp:     cp(c.PCMTemp),
	}
}

// EntityRef identifies the segment or asset a record is about.
type EntityRef struct {
	Scope  Scope
	CityID string
	ID     string
}

// TelemetrySample is one raw reading as accepted by the ingestion gateway.
// Exactly one of SegmentID and AssetID is set, matching Scope.
type TelemetrySample struct {
	ID        string    `json:"id"`
	Scope     Scope     `json:"scope"`
	CityID    string    `json:"city_id"`
	SegmentID string    `json:"segment_id,omitempty"`
	AssetID   string    `json:"asset_id,omitempty"`
	Timestamp time.Time `json:"ts"`
	Channels
}

// EntityID returns the segment or asset id, whichever the scope selects.
func (s *TelemetrySample) EntityID() string {
	if s.Scope == ScopeAsset {
		return s.AssetID
	}
	return s.SegmentID
}

// Ref returns the entity reference of the sample.
func (s *TelemetrySample) Ref() EntityRef {
	return EntityRef{Scope: s.Scope, CityID: s.CityID, ID: s.EntityID()}
}

// Float is a small helper for building optional channel values.
func Float(v float64) *float64 { return &v }
