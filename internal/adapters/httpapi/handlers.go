package httpapi

import (
	"io"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/gorilla/mux"

	"github.com/TheRookie24/ThermoCity/internal/domain"
	"github.com/TheRookie24/ThermoCity/internal/ports"
)

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, s.Obs, badRequest("body", "unreadable or too large"))
		return
	}
	sample, err := s.Ingest.Ingest(r.Context(), body)
	if err != nil {
		writeError(w, s.Obs, err)
		return
	}
	writeJSON(w, http.StatusCreated, sample)
}

// parseRange reads scope, city_id, segment_id/asset_id, from and to.
func parseRange(v url.Values) (ports.RangeQuery, error) {
	ve := &domain.ValidationError{}
	q := ports.RangeQuery{
		Scope:  domain.Scope(v.Get("scope")),
		CityID: v.Get("city_id"),
		Limit:  queryLimit,
	}
	if q.Scope == "" {
		q.Scope = domain.ScopeSegment
	}
	if !q.Scope.Valid() {
		ve.Add("scope", "must be segment or asset")
	}
	if q.Scope == domain.ScopeAsset {
		q.EntityID = v.Get("asset_id")
	} else {
		q.EntityID = v.Get("segment_id")
	}
	for _, b := range []struct {
		key string
		dst *time.Time
	}{{"from", &q.From}, {"to", &q.To}} {
		raw := v.Get(b.key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			ve.Add(b.key, "must be an RFC 3339 timestamp")
			continue
		}
		*b.dst = t.UTC()
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		ve.Add("to", "must not precede from")
	}
	return q, ve.OrNil()
}

func (s *Server) handleTelemetryQuery(w http.ResponseWriter, r *http.Request) {
	q, err := parseRange(r.URL.Query())
	if err != nil {
		writeError(w, s.Obs, err)
		return
	}
	samples, err := s.Samples.QuerySamples(r.Context(), q)
	if err != nil {
		writeError(w, s.Obs, err)
		return
	}
	slices.Reverse(samples)
	writeJSON(w, http.StatusOK, samples)
}

func (s *Server) handleKPIQuery(w http.ResponseWriter, r *http.Request) {
	q, err := parseRange(r.URL.Query())
	if err != nil {
		writeError(w, s.Obs, err)
		return
	}
	snaps, err := s.KPIs.QuerySnapshots(r.Context(), q)
	if err != nil {
		writeError(w, s.Obs, err)
		return
	}
	slices.Reverse(snaps)
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) handleKPILatest(w http.ResponseWriter, r *http.Request) {
	q, err := parseRange(r.URL.Query())
	if err != nil {
		writeError(w, s.Obs, err)
		return
	}
	q.Limit = 1
	snaps, err := s.KPIs.QuerySnapshots(r.Context(), q)
	if err != nil {
		writeError(w, s.Obs, err)
		return
	}
	if len(snaps) == 0 {
		writeError(w, s.Obs, domain.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, snaps[0])
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.Rules.List(r.Context(), listLimit)
	if err != nil {
		writeError(w, s.Obs, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var rule domain.AlertRule
	if err := decodeBody(w, r, &rule); err != nil {
		writeError(w, s.Obs, err)
		return
	}
	if err := s.Rules.Create(r.Context(), &rule); err != nil {
		writeError(w, s.Obs, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var rule domain.AlertRule
	if err := decodeBody(w, r, &rule); err != nil {
		writeError(w, s.Obs, err)
		return
	}
	if err := s.Rules.Update(r.Context(), mux.Vars(r)["id"], &rule); err != nil {
		writeError(w, s.Obs, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.Rules.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, s.Obs, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	status := domain.EventStatus(r.URL.Query().Get("status"))
	events, err := s.Events.List(r.Context(), status, listLimit)
	if err != nil {
		writeError(w, s.Obs, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

type actionRequest struct {
	Status domain.EventStatus `json:"status"`
	Notes  string             `json:"notes"`
}

func (s *Server) handleEventAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, s.Obs, err)
		return
	}
	p, _ := PrincipalFrom(r.Context())
	ev, err := s.Events.Apply(r.Context(), mux.Vars(r)["id"], domain.EventAction{
		Status: req.Status,
		Actor:  p.Actor(),
		Notes:  req.Notes,
	})
	if err != nil {
		writeError(w, s.Obs, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}
