package observability

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/TheRookie24/ThermoCity/internal/ports"
)

type PromObs struct {
	log *zap.Logger

	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer

	dropped     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	jobFailures *prometheus.CounterVec
	jobSkipped  *prometheus.CounterVec
}

func counter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
}

// NewPromObs registers the collectors on the default registerer. A nil
// logger disables logging.
func NewPromObs(log *zap.Logger) *PromObs {
	if log == nil {
		log = zap.NewNop()
	}
	counters := map[string]prometheus.Counter{
		ports.MetricSamplesIngested: counter(ports.MetricSamplesIngested, "Samples appended to the store."),
		ports.MetricSamplesRejected: counter(ports.MetricSamplesRejected, "Request-path samples rejected by validation."),
		ports.MetricSnapshots:       counter(ports.MetricSnapshots, "KPI snapshots appended."),
		ports.MetricEntitiesSkipped: counter(ports.MetricEntitiesSkipped, "Entities skipped by the deriver for unusable fields."),
		ports.MetricEventsOpened:    counter(ports.MetricEventsOpened, "Alert events opened by the evaluator."),
		ports.MetricPairsSkipped:    counter(ports.MetricPairsSkipped, "Rule/segment pairs skipped for unresolvable metrics."),
		ports.MetricNotifyFailures:  counter(ports.MetricNotifyFailures, "Failed alert notifications."),
		ports.MetricSamplesPurged:   counter(ports.MetricSamplesPurged, "Raw samples removed by retention."),
	}
	mqttUp := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: ports.MetricMQTTConnected,
		Help: "1 while the telemetry broker connection is up.",
	})
	appendLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ports.MetricStoreAppendLatency,
		Help:    "Latency of a single sample append.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "thermocity_samples_dropped_total",
		Help: "Transport messages dropped as malformed, by topic kind.",
	}, []string{"scope"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "thermocity_job_duration_seconds",
		Help:    "Duration of scheduled job runs.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
	}, []string{"job"})
	jobFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "thermocity_job_failures_total",
		Help: "Scheduled job runs that returned an error or panicked.",
	}, []string{"job"})
	jobSkipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "thermocity_job_overlaps_skipped_total",
		Help: "Ticks skipped because a run was in flight or the lock was held elsewhere.",
	}, []string{"job", "reason"})

	collectors := []prometheus.Collector{mqttUp, appendLatency, dropped, jobDuration, jobFailures, jobSkipped}
	for _, c := range counters {
		collectors = append(collectors, c)
	}
	prometheus.MustRegister(collectors...)

	return &PromObs{
		log:      log,
		counters: counters,
		gauges: map[string]prometheus.Gauge{
			ports.MetricMQTTConnected: mqttUp,
		},
		histos: map[string]prometheus.Observer{
			ports.MetricStoreAppendLatency: appendLatency,
		},
		dropped:     dropped,
		jobDuration: jobDuration,
		jobFailures: jobFailures,
		jobSkipped:  jobSkipped,
	}
}

func zapFields(fields []ports.Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields)+1)
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.log.Info(msg, zapFields(fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.log.Error(msg, append(zapFields(fields), zap.Error(err))...)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	p.log.Error(msg, append(zapFields(fields), zap.Error(err), zap.Bool("critical", true))...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) RecordDrop(topic string, err error) {
	p.dropped.WithLabelValues(topicScope(topic)).Inc()
	p.log.Warn("telemetry_dropped", zap.String("topic", topic), zap.Error(err))
}

func (p *PromObs) RecordJob(job string, seconds float64, err error) {
	p.jobDuration.WithLabelValues(job).Observe(seconds)
	if err != nil {
		p.jobFailures.WithLabelValues(job).Inc()
	}
}

func (p *PromObs) RecordJobSkipped(job, reason string) {
	p.jobSkipped.WithLabelValues(job, reason).Inc()
	p.log.Debug("job_tick_skipped", zap.String("job", job), zap.String("reason", reason))
}

// Sync flushes buffered log entries.
func (p *PromObs) Sync() error { return p.log.Sync() }

// topicScope keeps label cardinality bounded: topics embed entity ids.
func topicScope(topic string) string {
	// city/{city}/{scope}/{id}/telemetry
	parts := strings.Split(topic, "/")
	if len(parts) == 5 && (parts[2] == "segment" || parts[2] == "asset") {
		return parts[2]
	}
	return "unknown"
}

var _ ports.Observability = (*PromObs)(nil)
