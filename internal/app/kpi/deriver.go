package kpi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TheRookie24/ThermoCity/internal/domain"
	"github.com/TheRookie24/ThermoCity/internal/ports"
)

type Config struct {
	Window       time.Duration
	MaxEntities  int
	SpecificHeat float64
}

// Deriver appends one snapshot per recently active entity on each run.
// It keeps no state between runs.
type Deriver struct {
	samples ports.TelemetryStore
	kpis    ports.KPIStore
	pcm     ports.MeltRangeSource
	obs     ports.Observability
	cfg     Config
	now     func() time.Time
}

func NewDeriver(samples ports.TelemetryStore, kpis ports.KPIStore, pcm ports.MeltRangeSource, obs ports.Observability, cfg Config) *Deriver {
	if cfg.Window <= 0 {
		cfg.Window = 10 * time.Minute
	}
	if cfg.MaxEntities <= 0 {
		cfg.MaxEntities = 1000
	}
	if cfg.SpecificHeat <= 0 {
		cfg.SpecificHeat = SpecificHeatWater
	}
	return &Deriver{samples: samples, kpis: kpis, pcm: pcm, obs: obs, cfg: cfg, now: time.Now}
}

// Run processes segments and assets with a sample inside the window.
// A failing entity does not stop the others; their errors are joined.
func (d *Deriver) Run(ctx context.Context) error {
	since := d.now().UTC().Add(-d.cfg.Window)
	var errs []error
	processed := 0

	for _, scope := range []domain.Scope{domain.ScopeSegment, domain.ScopeAsset} {
		refs, err := d.samples.ActiveEntities(ctx, scope, since, d.cfg.MaxEntities)
		if err != nil {
			errs = append(errs, fmt.Errorf("list %s entities: %w", scope, err))
			continue
		}
		for _, ref := range refs {
			if err := ctx.Err(); err != nil {
				return err
			}
			ok, err := d.deriveOne(ctx, ref, since)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if ok {
				processed++
			}
		}
	}

	d.obs.LogInfo("kpi_run_completed", ports.Field{Key: "entities", Value: processed})
	return errors.Join(errs...)
}

func (d *Deriver) deriveOne(ctx context.Context, ref domain.EntityRef, since time.Time) (bool, error) {
	s, err := d.samples.LatestSample(ctx, ref, since)
	if errors.Is(err, domain.ErrNotFound) {
		// expired between listing and reading
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("latest sample %s/%s: %w", ref.CityID, ref.ID, err)
	}

	var pcm PCMConfig
	if d.pcm != nil {
		mr, found, err := d.pcm.MeltRange(ctx, ref)
		if err != nil {
			d.obs.LogError("pcm_lookup_failed", err, ports.Field{Key: "entity", Value: ref.ID})
		}
		pcm = PCMConfig{Range: mr, Valid: found && err == nil}
	}

	snap, ok := Derive(s, pcm, d.cfg.SpecificHeat)
	if !ok {
		d.obs.IncCounter(ports.MetricEntitiesSkipped, 1)
		d.obs.LogInfo("kpi_entity_skipped",
			ports.Field{Key: "entity", Value: ref.ID},
			ports.Field{Key: "reason", Value: "non_finite_channel"})
		return false, nil
	}
	if err := d.kpis.AppendSnapshot(ctx, snap); err != nil {
		return false, fmt.Errorf("append snapshot %s/%s: %w", ref.CityID, ref.ID, err)
	}
	d.obs.IncCounter(ports.MetricSnapshots, 1)
	return true, nil
}
