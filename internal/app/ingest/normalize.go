package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/TheRookie24/ThermoCity/internal/domain"
)

// Identity names the entity a reading belongs to. The transport path fills
// it from the topic, the request path from the body.
type Identity struct {
	CityID    string
	SegmentID string
	AssetID   string
}

// ParseTopic splits city/{city_id}/{segment|asset}/{id}/telemetry.
func ParseTopic(topic string) (Identity, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 || parts[0] != "city" || parts[4] != "telemetry" {
		return Identity{}, fmt.Errorf("unexpected topic %q", topic)
	}
	id := Identity{CityID: parts[1]}
	switch parts[2] {
	case string(domain.ScopeSegment):
		id.SegmentID = parts[3]
	case string(domain.ScopeAsset):
		id.AssetID = parts[3]
	default:
		return Identity{}, fmt.Errorf("unknown scope %q in topic %q", parts[2], topic)
	}
	return id, nil
}

// Payload is a reading body decoded one level deep. Values stay raw so a
// bad channel never fails the whole document.
type Payload map[string]json.RawMessage

func DecodePayload(body []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errors.New("payload must be a JSON object")
	}
	return p, nil
}

// String reads a string field; absent and null read as "".
func (p Payload) String(key string) (string, error) {
	raw, ok := p[key]
	if !ok || isNull(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", errors.New("must be a string")
	}
	return strings.TrimSpace(s), nil
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// Normalize validates identity and timestamp and converts the channel
// fields. Channel values that are absent or not numeric become nil.
func Normalize(id Identity, p Payload) (*domain.TelemetrySample, error) {
	ve := &domain.ValidationError{}

	id.CityID = strings.TrimSpace(id.CityID)
	id.SegmentID = strings.TrimSpace(id.SegmentID)
	id.AssetID = strings.TrimSpace(id.AssetID)
	if id.CityID == "" {
		ve.Add("city_id", "required")
	}
	switch {
	case id.SegmentID == "" && id.AssetID == "":
		ve.Add("segment_id", "either segment_id or asset_id is required")
	case id.SegmentID != "" && id.AssetID != "":
		ve.Add("segment_id", "segment_id and asset_id are mutually exclusive")
	}

	ts, err := parseTimestamp(p["timestamp"])
	if err != nil {
		ve.Add("timestamp", err.Error())
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	s := &domain.TelemetrySample{
		CityID:    id.CityID,
		SegmentID: id.SegmentID,
		AssetID:   id.AssetID,
		Timestamp: ts,
		Channels: domain.Channels{
			Temps:       parseTemps(p["temps"]),
			Flow:        number(p["flow"]),
			Pressure:    number(p["pressure"]),
			GrossPower:  number(p["kw_gross"]),
			EnergyTotal: number(p["kwh_total"]),
			FanPower:    number(p["fan_power"]),
			PumpPower:   number(p["pump_power"]),
			PCMTemp:     number(p["pcm_temp"]),
		},
	}
	s.Scope = domain.ScopeSegment
	if s.AssetID != "" {
		s.Scope = domain.ScopeAsset
	}
	return s, nil
}

// parseTemps keeps the four known keys. t_in and t_out are legacy
// spellings of inlet and outlet; the canonical key wins when both exist.
func parseTemps(raw json.RawMessage) domain.Temps {
	var m map[string]json.RawMessage
	if isNull(raw) || json.Unmarshal(raw, &m) != nil {
		return domain.Temps{}
	}
	pick := func(key, alias string) *float64 {
		if v := number(m[key]); v != nil {
			return v
		}
		if alias != "" {
			return number(m[alias])
		}
		return nil
	}
	return domain.Temps{
		Inlet:      pick("inlet", "t_in"),
		Outlet:     pick("outlet", "t_out"),
		Surface:    pick("surface", ""),
		Subsurface: pick("subsurface", ""),
	}
}

// number accepts JSON numbers and numeric strings. Booleans, objects and
// non-finite values yield nil.
func number(raw json.RawMessage) *float64 {
	if isNull(raw) {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return nil
		}
		f, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// zoneless layouts are read as UTC.
var isoLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Accepted timestamps fall in [minYear, maxYear]. Epoch milliseconds sent
// as seconds land tens of thousands of years out and fail here.
const (
	minYear = 1970
	maxYear = 9999
)

func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	t, err := decodeTimestamp(raw)
	if err != nil {
		return time.Time{}, err
	}
	if y := t.Year(); y < minYear || y > maxYear {
		return time.Time{}, fmt.Errorf("year %d outside [%d, %d]; epoch values must be in seconds", y, minYear, maxYear)
	}
	return t, nil
}

func decodeTimestamp(raw json.RawMessage) (time.Time, error) {
	if isNull(raw) {
		return time.Time{}, errors.New("required")
	}
	var epoch float64
	if err := json.Unmarshal(raw, &epoch); err == nil {
		return fromEpoch(epoch)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, errors.New("must be an ISO-8601 string or epoch seconds")
	}
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpoch(f)
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q", s)
}

// maxEpoch is the first second of year maxYear+1.
var maxEpoch = float64(time.Date(maxYear+1, 1, 1, 0, 0, 0, 0, time.UTC).Unix())

func fromEpoch(f float64) (time.Time, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, errors.New("epoch seconds must be finite")
	}
	if f < 0 || f >= maxEpoch {
		return time.Time{}, fmt.Errorf("epoch seconds %.0f outside [%d, %d]; epoch values must be in seconds", f, minYear, maxYear)
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
}
