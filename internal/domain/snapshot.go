package domain

import "time"

// KPISnapshot holds the metrics derived from one telemetry sample.
type KPISnapshot struct {
	ID             string    `json:"id"`
	Scope          Scope     `json:"scope"`
	CityID         string    `json:"city_id"`
	SegmentID      string    `json:"segment_id,omitempty"`
	AssetID        string    `json:"asset_id,omitempty"`
	Timestamp      time.Time `json:"ts"`
	HeatCapturedKW float64   `json:"heat_captured_kw"`
	NetKW          float64   `json:"kw_net"`
	GrossKW        float64   `json:"kw_gross"`
	ParasiticKW    float64   `json:"parasitic_kw"`
	PCMSOC         float64   `json:"pcm_soc"`
	Channels       Channels  `json:"channels"`
}

// EntityID returns the segment or asset id, whichever the scope selects.
func (k *KPISnapshot) EntityID() string {
	if k.Scope == ScopeAsset {
		return k.AssetID
	}
	return k.SegmentID
}
