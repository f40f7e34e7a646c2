package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheRookie24/ThermoCity/internal/adapters/memstore"
	"github.com/TheRookie24/ThermoCity/internal/domain"
	"github.com/TheRookie24/ThermoCity/internal/ports"
	"github.com/TheRookie24/ThermoCity/internal/ports/portstest"
)

func TestHandleMessageStoresSegmentSample(t *testing.T) {
	store := memstore.New()
	obs := portstest.NewObs()
	g := NewGateway(store, obs, Config{})

	g.HandleMessage(context.Background(), ports.Message{
		Topic:   "city/pune/segment/seg-1/telemetry",
		Payload: []byte(`{"timestamp":"2024-05-01T12:00:00Z","temps":{"t_in":30,"outlet":"40","core":99},"flow":1,"pressure":"n/a","kw_gross":10}`),
	})

	out, err := store.QuerySamples(context.Background(), ports.RangeQuery{Scope: domain.ScopeSegment})
	require.NoError(t, err)
	require.Len(t, out, 1)
	s := out[0]
	assert.Equal(t, "pune", s.CityID)
	assert.Equal(t, "seg-1", s.SegmentID)
	assert.Empty(t, s.AssetID)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), s.Timestamp)
	require.NotNil(t, s.Temps.Inlet)
	assert.Equal(t, 30.0, *s.Temps.Inlet)
	require.NotNil(t, s.Temps.Outlet)
	assert.Equal(t, 40.0, *s.Temps.Outlet)
	assert.Nil(t, s.Pressure, "non-numeric channel must be stored as null")
	assert.Equal(t, 1.0, obs.Counter(ports.MetricSamplesIngested))
}

func TestHandleMessageDropsMalformed(t *testing.T) {
	store := memstore.New()
	obs := portstest.NewObs()
	g := NewGateway(store, obs, Config{})
	ctx := context.Background()

	g.HandleMessage(ctx, ports.Message{Topic: "city/pune/segment/seg-1/telemetry", Payload: []byte(`{not json`)})
	g.HandleMessage(ctx, ports.Message{Topic: "city/pune/road/r-1/telemetry", Payload: []byte(`{}`)})
	g.HandleMessage(ctx, ports.Message{Topic: "city/pune/segment/seg-1/telemetry", Payload: []byte(`{"timestamp":"yesterday"}`)})
	// the loop keeps going after drops
	g.HandleMessage(ctx, ports.Message{Topic: "city/pune/asset/pump-1/telemetry", Payload: []byte(`{"timestamp":1714564800}`)})

	assert.Len(t, obs.Drops(), 3)
	out, _ := store.QuerySamples(ctx, ports.RangeQuery{Scope: domain.ScopeAsset})
	require.Len(t, out, 1)
	assert.Equal(t, "pump-1", out[0].AssetID)
	assert.Equal(t, domain.ScopeAsset, out[0].Scope)
}

func TestIngestValidation(t *testing.T) {
	store := memstore.New()
	obs := portstest.NewObs()
	g := NewGateway(store, obs, Config{})
	ctx := context.Background()

	cases := map[string]string{
		"missing entity":  `{"city_id":"pune","timestamp":"2024-05-01T12:00:00Z"}`,
		"both entities":   `{"city_id":"pune","segment_id":"s","asset_id":"a","timestamp":"2024-05-01T12:00:00Z"}`,
		"missing city":    `{"segment_id":"s","timestamp":"2024-05-01T12:00:00Z"}`,
		"bad timestamp":   `{"city_id":"pune","segment_id":"s","timestamp":true}`,
		"not an object":   `[1,2]`,
		"non-string city": `{"city_id":7,"segment_id":"s","timestamp":0}`,
	}
	for name, body := range cases {
		_, err := g.Ingest(ctx, []byte(body))
		var ve *domain.ValidationError
		assert.True(t, errors.As(err, &ve), "%s: expected validation error, got %v", name, err)
	}

	out, _ := store.QuerySamples(ctx, ports.RangeQuery{Scope: domain.ScopeSegment})
	assert.Empty(t, out, "rejected requests must not write")
	assert.Equal(t, float64(len(cases)), obs.Counter(ports.MetricSamplesRejected))
}

func TestIngestReturnsStoredSample(t *testing.T) {
	g := NewGateway(memstore.New(), portstest.NewObs(), Config{})
	s, err := g.Ingest(context.Background(), []byte(`{"city_id":"pune","segment_id":"seg-1","timestamp":"2024-05-01T17:30:00+05:30","flow":"1.5"}`))
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), s.Timestamp)
	require.NotNil(t, s.Flow)
	assert.Equal(t, 1.5, *s.Flow)
}

type failingStore struct{ ports.TelemetryStore }

func (failingStore) AppendSample(context.Context, *domain.TelemetrySample) error {
	return errors.New("connection refused")
}

func TestHandleMessageStoreFailureIsLogged(t *testing.T) {
	obs := portstest.NewObs()
	g := NewGateway(failingStore{}, obs, Config{})
	g.HandleMessage(context.Background(), ports.Message{
		Topic:   "city/pune/segment/seg-1/telemetry",
		Payload: []byte(`{"timestamp":0}`),
	})
	assert.Equal(t, []string{"sample_append_failed"}, obs.Errors())
	assert.Empty(t, obs.Drops())
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for _, raw := range []string{
		`"2024-05-01T12:00:00Z"`,
		`"2024-05-01T12:00:00"`,
		`"2024-05-01 12:00:00"`,
		`1714564800`,
		`"1714564800"`,
	} {
		got, err := parseTimestamp([]byte(raw))
		require.NoError(t, err, raw)
		assert.True(t, want.Equal(got), "%s: got %s", raw, got)
		assert.Equal(t, time.UTC, got.Location())
	}

	frac, err := parseTimestamp([]byte(`1714564800.5`))
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, frac.Sub(want))

	_, err = parseTimestamp(nil)
	assert.Error(t, err)

	for _, raw := range []string{
		`1714564800000`,
		`"1714564800000"`,
		`-1`,
		`1e300`,
		`"1969-12-31T23:59:59Z"`,
		`"0001-01-01T00:00:00Z"`,
	} {
		_, err := parseTimestamp([]byte(raw))
		assert.Error(t, err, raw)
	}
}

func TestHandleMessageDropsEpochMillis(t *testing.T) {
	store := memstore.New()
	obs := portstest.NewObs()
	g := NewGateway(store, obs, Config{})
	ctx := context.Background()
	topic := "city/pune/segment/seg-1/telemetry"

	g.HandleMessage(ctx, ports.Message{Topic: topic, Payload: []byte(`{"timestamp":1714564800000,"flow":9}`)})
	g.HandleMessage(ctx, ports.Message{Topic: topic, Payload: []byte(`{"timestamp":1714564860,"flow":1}`)})

	assert.Len(t, obs.Drops(), 1)
	out, err := store.QuerySamples(ctx, ports.RangeQuery{Scope: domain.ScopeSegment})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 1, 0, 0, time.UTC), out[0].Timestamp)
	require.NotNil(t, out[0].Flow)
	assert.Equal(t, 1.0, *out[0].Flow)
}

func TestIngestRejectsFutureTimestamp(t *testing.T) {
	store := memstore.New()
	obs := portstest.NewObs()
	g := NewGateway(store, obs, Config{MaxFutureSkew: time.Hour})
	g.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	_, err := g.Ingest(ctx, []byte(`{"city_id":"pune","segment_id":"seg-1","timestamp":"2024-05-01T13:00:01Z"}`))
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve), "expected validation error, got %v", err)
	require.Len(t, ve.Fields, 1)
	assert.Equal(t, "timestamp", ve.Fields[0].Field)
	assert.Equal(t, 1.0, obs.Counter(ports.MetricSamplesRejected))

	_, err = g.Ingest(ctx, []byte(`{"city_id":"pune","segment_id":"seg-1","timestamp":"2024-05-01T12:59:00Z"}`))
	require.NoError(t, err)
}

func TestNewGatewayDefaultsSkew(t *testing.T) {
	g := NewGateway(memstore.New(), portstest.NewObs(), Config{})
	assert.Equal(t, DefaultMaxFutureSkew, g.cfg.MaxFutureSkew)
}

func TestParseTopic(t *testing.T) {
	id, err := ParseTopic("city/pune/asset/pump-7/telemetry")
	require.NoError(t, err)
	assert.Equal(t, Identity{CityID: "pune", AssetID: "pump-7"}, id)

	for _, bad := range []string{"city/pune/segment/telemetry", "town/pune/segment/s/telemetry", "city/pune/segment/s/status"} {
		_, err := ParseTopic(bad)
		assert.Error(t, err, bad)
	}
}
