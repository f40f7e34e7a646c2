package runtime

import (
	"context"
	"time"

	"github.com/TheRookie24/ThermoCity/internal/ports"
)

// purger expires raw samples older than the retention horizon. Snapshots
// and alert events are kept.
type purger struct {
	store   ports.TelemetryStore
	obs     ports.Observability
	horizon time.Duration
	now     func() time.Time
}

func newPurger(store ports.TelemetryStore, obs ports.Observability, horizon time.Duration) *purger {
	return &purger{store: store, obs: obs, horizon: horizon, now: time.Now}
}

func (p *purger) Run(ctx context.Context) error {
	cutoff := p.now().UTC().Add(-p.horizon)
	n, err := p.store.PurgeSamples(ctx, cutoff)
	if err != nil {
		return err
	}
	if n > 0 {
		p.obs.IncCounter(ports.MetricSamplesPurged, float64(n))
		p.obs.LogInfo("samples_purged",
			ports.Field{Key: "count", Value: n},
			ports.Field{Key: "before", Value: cutoff.Format(time.RFC3339)})
	}
	return nil
}
