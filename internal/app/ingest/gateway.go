package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/TheRookie24/ThermoCity/internal/domain"
	"github.com/TheRookie24/ThermoCity/internal/ports"
)

// DefaultMaxFutureSkew bounds how far ahead of the local clock a reading
// may be stamped.
const DefaultMaxFutureSkew = 24 * time.Hour

type Config struct {
	MaxFutureSkew time.Duration
}

// Gateway turns transport messages and request bodies into stored samples.
// It keeps no state between readings.
type Gateway struct {
	store ports.TelemetryStore
	obs   ports.Observability
	cfg   Config
	now   func() time.Time
}

func NewGateway(store ports.TelemetryStore, obs ports.Observability, cfg Config) *Gateway {
	if cfg.MaxFutureSkew <= 0 {
		cfg.MaxFutureSkew = DefaultMaxFutureSkew
	}
	return &Gateway{store: store, obs: obs, cfg: cfg, now: time.Now}
}

// HandleMessage is the transport handler. Malformed messages are counted
// and dropped so the consume loop keeps going.
func (g *Gateway) HandleMessage(ctx context.Context, msg ports.Message) {
	id, err := ParseTopic(msg.Topic)
	if err != nil {
		g.obs.RecordDrop(msg.Topic, err)
		return
	}
	p, err := DecodePayload(msg.Payload)
	if err != nil {
		g.obs.RecordDrop(msg.Topic, fmt.Errorf("decode payload: %w", err))
		return
	}
	s, err := g.normalize(id, p)
	if err != nil {
		g.obs.RecordDrop(msg.Topic, err)
		return
	}
	if err := g.append(ctx, s); err != nil {
		g.obs.LogError("sample_append_failed", err, ports.Field{Key: "topic", Value: msg.Topic})
	}
}

// Ingest handles a synchronous request body. Validation failures come back
// as *domain.ValidationError and leave the store untouched.
func (g *Gateway) Ingest(ctx context.Context, body []byte) (*domain.TelemetrySample, error) {
	s, err := g.normalizeRequest(body)
	if err != nil {
		g.obs.IncCounter(ports.MetricSamplesRejected, 1)
		return nil, err
	}
	if err := g.append(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (g *Gateway) normalizeRequest(body []byte) (*domain.TelemetrySample, error) {
	p, err := DecodePayload(body)
	if err != nil {
		ve := &domain.ValidationError{}
		ve.Add("body", err.Error())
		return nil, ve
	}
	ve := &domain.ValidationError{}
	var id Identity
	for _, f := range []struct {
		key string
		dst *string
	}{
		{"city_id", &id.CityID},
		{"segment_id", &id.SegmentID},
		{"asset_id", &id.AssetID},
	} {
		v, err := p.String(f.key)
		if err != nil {
			ve.Add(f.key, err.Error())
			continue
		}
		*f.dst = v
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}
	return g.normalize(id, p)
}

// normalize adds the clock-dependent checks Normalize cannot make.
func (g *Gateway) normalize(id Identity, p Payload) (*domain.TelemetrySample, error) {
	s, err := Normalize(id, p)
	if err != nil {
		return nil, err
	}
	if limit := g.now().UTC().Add(g.cfg.MaxFutureSkew); s.Timestamp.After(limit) {
		ve := &domain.ValidationError{}
		ve.Add("timestamp", fmt.Sprintf("more than %s in the future", g.cfg.MaxFutureSkew))
		return nil, ve
	}
	return s, nil
}

func (g *Gateway) append(ctx context.Context, s *domain.TelemetrySample) error {
	start := time.Now()
	if err := g.store.AppendSample(ctx, s); err != nil {
		return fmt.Errorf("append sample: %w", err)
	}
	g.obs.ObserveLatency(ports.MetricStoreAppendLatency, time.Since(start).Seconds())
	g.obs.IncCounter(ports.MetricSamplesIngested, 1)
	return nil
}
