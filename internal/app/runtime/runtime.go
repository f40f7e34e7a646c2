// Package runtime wires the ingestion, KPI and alerting services to their
// adapters and runs them until shutdown.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/TheRookie24/ThermoCity/internal/adapters/httpapi"
	"github.com/TheRookie24/ThermoCity/internal/adapters/memstore"
	"github.com/TheRookie24/ThermoCity/internal/adapters/mqtt"
	"github.com/TheRookie24/ThermoCity/internal/adapters/notify"
	"github.com/TheRookie24/ThermoCity/internal/adapters/observability"
	"github.com/TheRookie24/ThermoCity/internal/adapters/postgres"
	"github.com/TheRookie24/ThermoCity/internal/app/alerting"
	"github.com/TheRookie24/ThermoCity/internal/app/config"
	"github.com/TheRookie24/ThermoCity/internal/app/ingest"
	"github.com/TheRookie24/ThermoCity/internal/app/kpi"
	"github.com/TheRookie24/ThermoCity/internal/app/scheduler"
	"github.com/TheRookie24/ThermoCity/internal/ports"
)

// Store is the full persistence surface one backend provides.
type Store interface {
	ports.TelemetryStore
	ports.KPIStore
	ports.AlertRuleStore
	ports.AlertEventStore
	ports.MeltRangeSource
	Name() string
}

// Option customizes the dependencies used by Runtime.
type Option func(*overrides)

type overrides struct {
	obs       ports.Observability
	store     Store
	collector ports.Collector
	notifier  ports.Notifier
	locker    ports.Locker
}

// WithObservability replaces the zap + Prometheus backend.
func WithObservability(obs ports.Observability) Option {
	return func(o *overrides) { o.obs = obs }
}

// WithStore bypasses store.driver.
func WithStore(s Store) Option {
	return func(o *overrides) { o.store = s }
}

// WithCollector injects a transport in place of the MQTT collector.
func WithCollector(c ports.Collector) Option {
	return func(o *overrides) { o.collector = c }
}

func WithNotifier(n ports.Notifier) Option {
	return func(o *overrides) { o.notifier = n }
}

func WithLocker(l ports.Locker) Option {
	return func(o *overrides) { o.locker = l }
}

// Runtime owns every long-running component of one ThermoCity instance.
type Runtime struct {
	cfg *config.Config
	obs ports.Observability

	store     Store
	pg        *postgres.Store
	collector ports.Collector
	notifier  ports.Notifier
	locker    ports.Locker

	gateway   *ingest.Gateway
	deriver   *kpi.Deriver
	evaluator *alerting.Evaluator
	scheduler *scheduler.Scheduler
	api       *httpapi.Server

	apiSrv     *http.Server
	metricsSrv *http.Server
	closers    []io.Closer
}

// New builds the default adapters from cfg. Options override any of them.
func New(cfg *config.Config, opts ...Option) (_ *Runtime, err error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	var o overrides
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	rt := &Runtime{cfg: cfg}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	rt.obs = o.obs
	if rt.obs == nil {
		log, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Development)
		if err != nil {
			return nil, fmt.Errorf("build logger: %w", err)
		}
		prom := observability.NewPromObs(log)
		rt.obs = prom
		rt.closers = append(rt.closers, closerFunc(func() error {
			// Sync on a terminal stderr reports EINVAL.
			_ = prom.Sync()
			return nil
		}))
	}

	if err := rt.buildStore(o.store); err != nil {
		return nil, err
	}

	rt.locker = o.locker
	if rt.locker == nil && cfg.Locking.Enabled && rt.pg != nil {
		rt.locker = postgres.NewAdvisoryLocker(rt.pg.DB())
	}

	rt.notifier = o.notifier
	if rt.notifier == nil {
		if f := notify.New(cfg.Notify, rt.obs); f != nil {
			rt.notifier = f
			rt.closers = append(rt.closers, f)
		}
	}

	rt.collector = o.collector
	if rt.collector == nil && cfg.MQTT.Broker != "" {
		col, err := mqtt.NewCollector(cfg.MQTT, rt.obs)
		if err != nil {
			return nil, fmt.Errorf("mqtt collector: %w", err)
		}
		rt.collector = col
	}

	rt.gateway = ingest.NewGateway(rt.store, rt.obs, ingest.Config{MaxFutureSkew: cfg.Ingest.MaxFutureSkew})
	rt.deriver = kpi.NewDeriver(rt.store, rt.store,
		kpi.NewStaticMeltRanges(cfg.PCM.Ranges(), rt.store), rt.obs,
		kpi.Config{Window: cfg.KPI.Window, MaxEntities: cfg.KPI.MaxEntities, SpecificHeat: cfg.KPI.SpecificHeat})
	rt.evaluator = alerting.NewEvaluator(rt.store, rt.store, rt.store, rt.notifier, rt.obs,
		alerting.EvaluatorConfig{MaxRules: cfg.Alerts.MaxRules, MaxCandidates: cfg.Alerts.MaxCandidates})

	sched, err := scheduler.New(rt.obs, rt.locker,
		scheduler.Job{Name: "kpi_derive", Interval: cfg.KPI.Interval, Timeout: cfg.KPI.Timeout, Run: rt.deriver.Run},
		scheduler.Job{Name: "alert_evaluate", Interval: cfg.Alerts.Interval, Timeout: cfg.Alerts.Timeout, Run: rt.evaluator.Run},
		scheduler.Job{Name: "retention_purge", Interval: cfg.Retention.Interval, Run: newPurger(rt.store, rt.obs, cfg.Retention.Horizon).Run},
	)
	if err != nil {
		return nil, err
	}
	rt.scheduler = sched

	rt.api = httpapi.NewServer(httpapi.Deps{
		Ingest:  rt.gateway,
		Samples: rt.store,
		KPIs:    rt.store,
		Rules:   alerting.NewRules(rt.store),
		Events:  alerting.NewLifecycle(rt.store, rt.obs),
		Auth:    httpapi.NewAuthenticator(cfg.Auth),
		Obs:     rt.obs,
	})
	rt.apiSrv = &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           rt.api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	rt.metricsSrv = &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           metricsMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return rt, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func (rt *Runtime) buildStore(override Store) error {
	if override != nil {
		rt.store = override
		return nil
	}
	switch rt.cfg.Store.Driver {
	case config.DriverMemory:
		rt.store = memstore.New()
	default:
		pg, err := postgres.Open(rt.cfg.Store.ConnString)
		if err != nil {
			return err
		}
		rt.pg = pg
		rt.store = pg
		rt.closers = append(rt.closers, pg)
	}
	return nil
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Run starts every component and blocks until ctx is cancelled or one of
// them fails. Either way it shuts the rest down before returning.
func (rt *Runtime) Run(ctx context.Context) error {
	if rt.pg != nil && rt.cfg.Store.AutoMigrate {
		if err := rt.pg.Migrate(ctx); err != nil {
			return err
		}
	}

	rt.obs.LogInfo("runtime_started",
		ports.Field{Key: "store", Value: rt.store.Name()},
		ports.Field{Key: "http_addr", Value: rt.cfg.HTTP.Addr},
		ports.Field{Key: "metrics_addr", Value: rt.cfg.Metrics.Addr},
		ports.Field{Key: "mqtt", Value: rt.collector != nil},
		ports.Field{Key: "locking", Value: rt.locker != nil})

	g, gctx := errgroup.WithContext(ctx)
	if rt.collector != nil {
		g.Go(func() error { return rt.collector.Run(gctx, rt.gateway.HandleMessage) })
	}
	g.Go(func() error { return rt.scheduler.Run(gctx) })
	g.Go(func() error { return serve(rt.apiSrv) })
	g.Go(func() error { return serve(rt.metricsSrv) })
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), rt.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return rt.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if cerr := rt.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}

func serve(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve %s: %w", srv.Addr, err)
	}
	return nil
}

// Shutdown stops both HTTP servers.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	var errs []error
	for _, srv := range []*http.Server{rt.apiSrv, rt.metricsSrv} {
		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases the notifier and store connections, then flushes logs.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
