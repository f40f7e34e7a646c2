// Package httpapi exposes ingestion, KPI reads and alert management over HTTP.
package httpapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/TheRookie24/ThermoCity/internal/domain"
	"github.com/TheRookie24/ThermoCity/internal/ports"
)

const (
	maxBodyBytes = 1 << 20
	// queryLimit caps time-series responses.
	queryLimit = 2000
	listLimit  = 500
)

type Ingester interface {
	Ingest(ctx context.Context, body []byte) (*domain.TelemetrySample, error)
}

type RuleService interface {
	List(ctx context.Context, limit int) ([]*domain.AlertRule, error)
	Create(ctx context.Context, rule *domain.AlertRule) error
	Update(ctx context.Context, id string, rule *domain.AlertRule) error
	Delete(ctx context.Context, id string) error
}

type EventService interface {
	Apply(ctx context.Context, id string, act domain.EventAction) (*domain.AlertEvent, error)
	List(ctx context.Context, status domain.EventStatus, limit int) ([]*domain.AlertEvent, error)
}

// Deps are the services the API fronts.
type Deps struct {
	Ingest  Ingester
	Samples ports.TelemetryStore
	KPIs    ports.KPIStore
	Rules   RuleService
	Events  EventService
	Auth    *Authenticator
	Obs     ports.Observability
}

type Server struct {
	Deps
	router *mux.Router
}

func NewServer(d Deps) *Server {
	s := &Server{Deps: d, router: mux.NewRouter()}
	s.routes()
	return s
}

func (s *Server) routes() {
	a := s.Auth
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/telemetry/ingest", a.Require(RoleOps, s.handleIngest)).Methods(http.MethodPost)
	api.HandleFunc("/telemetry/query", a.Require(RoleOps, s.handleTelemetryQuery)).Methods(http.MethodGet)

	api.HandleFunc("/kpi/latest", a.Require(RoleOps, s.handleKPILatest)).Methods(http.MethodGet)
	api.HandleFunc("/kpi/query", a.Require(RoleOps, s.handleKPIQuery)).Methods(http.MethodGet)

	api.HandleFunc("/alerts/rules", a.Require(RoleEngineer, s.handleListRules)).Methods(http.MethodGet)
	api.HandleFunc("/alerts/rules", a.Require(RoleEngineer, s.handleCreateRule)).Methods(http.MethodPost)
	api.HandleFunc("/alerts/rules/{id}", a.Require(RoleEngineer, s.handleUpdateRule)).Methods(http.MethodPut)
	api.HandleFunc("/alerts/rules/{id}", a.Require(RoleEngineer, s.handleDeleteRule)).Methods(http.MethodDelete)

	api.HandleFunc("/alerts/events", a.Require(RoleOps, s.handleListEvents)).Methods(http.MethodGet)
	api.HandleFunc("/alerts/events/{id}/action", a.Require(RoleOps, s.handleEventAction)).Methods(http.MethodPost)
}

// Handler returns the router wrapped with panic recovery and access logging.
func (s *Server) Handler() http.Handler {
	logged := handlers.CustomLoggingHandler(io.Discard, s.router, s.logRequest)
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{s.Obs}),
	)(logged)
}

func (s *Server) logRequest(_ io.Writer, p handlers.LogFormatterParams) {
	s.Obs.LogInfo("http_request",
		ports.Field{Key: "method", Value: p.Request.Method},
		ports.Field{Key: "path", Value: p.URL.Path},
		ports.Field{Key: "status", Value: p.StatusCode},
		ports.Field{Key: "bytes", Value: p.Size},
		ports.Field{Key: "duration_ms", Value: time.Since(p.TimeStamp).Milliseconds()})
}

type recoveryLogger struct {
	obs ports.Observability
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.obs.LogCritical("http_panic", fmt.Errorf("%s", fmt.Sprint(v...)))
}
