package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/TheRookie24/ThermoCity/internal/domain"
	"github.com/TheRookie24/ThermoCity/internal/ports"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestAppendSampleAssignsID(t *testing.T) {
	store, mock := newMock(t)
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	smp := &domain.TelemetrySample{
		Scope:     domain.ScopeSegment,
		CityID:    "pune",
		SegmentID: "seg-1",
		Timestamp: ts,
		Channels:  domain.Channels{Flow: domain.Float(1)},
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO telemetry_samples (id, scope, city_id, segment_id, asset_id, ts, t_inlet")).
		WithArgs(sqlmock.AnyArg(), "segment", "pune", "seg-1", nil, ts,
			nil, nil, nil, nil, 1.0, nil, nil, nil, nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.AppendSample(context.Background(), smp); err != nil {
		t.Fatalf("append: %v", err)
	}
	if smp.ID == "" {
		t.Fatalf("expected generated id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLatestSampleNotFound(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("SELECT .* FROM telemetry_samples").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	ref := domain.EntityRef{Scope: domain.ScopeSegment, CityID: "pune", ID: "seg-1"}
	_, err := store.LatestSample(context.Background(), ref, time.Now())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestQuerySamplesBuildsRangeFilter(t *testing.T) {
	store, mock := newMock(t)
	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	ts := from.Add(time.Hour)

	rows := sqlmock.NewRows([]string{"id", "scope", "city_id", "segment_id", "asset_id", "ts", "flow", "t_inlet"}).
		AddRow("a", "segment", "pune", "seg-1", nil, ts, 1.5, nil)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE scope = $1 AND city_id = $2 AND segment_id = $3 AND ts >= $4 ORDER BY ts DESC LIMIT $5")).
		WithArgs("segment", "pune", "seg-1", from, 2000).
		WillReturnRows(rows)

	out, err := store.QuerySamples(context.Background(), ports.RangeQuery{
		Scope: domain.ScopeSegment, CityID: "pune", EntityID: "seg-1", From: from, Limit: 2000,
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 1 || out[0].SegmentID != "seg-1" || out[0].AssetID != "" {
		t.Fatalf("unexpected samples: %+v", out)
	}
	if out[0].Flow == nil || *out[0].Flow != 1.5 || out[0].Temps.Inlet != nil {
		t.Fatalf("channels not mapped: %+v", out[0].Channels)
	}
}

func TestPurgeSamplesReportsRows(t *testing.T) {
	store, mock := newMock(t)
	before := time.Date(2024, 4, 17, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM telemetry_samples WHERE ts < $1")).
		WithArgs(before).
		WillReturnResult(sqlmock.NewResult(0, 42))

	n, err := store.PurgeSamples(context.Background(), before)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 42 {
		t.Fatalf("expected 42 purged rows, got %d", n)
	}
}

func TestLatestSnapshotsPerEntity(t *testing.T) {
	store, mock := newMock(t)
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "scope", "city_id", "segment_id", "asset_id", "ts",
		"heat_captured_kw", "kw_net", "gross_kw", "parasitic_kw", "pcm_soc"}).
		AddRow("k1", "segment", "pune", "seg-1", nil, ts, 41.86, 8.5, 10.0, 1.5, 0.4667)

	mock.ExpectQuery("SELECT DISTINCT ON \\(city_id, segment_id\\)").
		WithArgs("segment", "pune", 50).
		WillReturnRows(rows)

	out, err := store.LatestSnapshots(context.Background(), domain.ScopeSegment, "pune", 50)
	if err != nil {
		t.Fatalf("latest snapshots: %v", err)
	}
	if len(out) != 1 || out[0].NetKW != 8.5 || out[0].SegmentID != "seg-1" {
		t.Fatalf("unexpected snapshots: %+v", out)
	}
}

func TestOpenEventSkipsActiveDuplicate(t *testing.T) {
	store, mock := newMock(t)
	ev := &domain.AlertEvent{RuleID: "r1", SegmentID: "seg-1", Status: domain.StatusOpen, OpenedAt: time.Now()}

	mock.ExpectExec("INSERT INTO alert_events .* ON CONFLICT \\(rule_id, segment_id\\) WHERE status IN").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO alert_events").
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := store.OpenEvent(context.Background(), ev)
	if err != nil || !created {
		t.Fatalf("first open: created=%v err=%v", created, err)
	}
	dup := *ev
	dup.ID = ""
	created, err = store.OpenEvent(context.Background(), &dup)
	if err != nil || created {
		t.Fatalf("duplicate open: created=%v err=%v", created, err)
	}
}

func TestUpdateEventConflict(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()
	id := "6f1c2a9e-3b4d-4e5f-8a7b-9c0d1e2f3a4b"
	ev := &domain.AlertEvent{ID: id, Status: domain.StatusClosed, ClosedAt: &now, Actor: "a:ops"}

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $6 AND status = $7")).
		WithArgs("closed", nil, now, "a:ops", "", id, "open").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.UpdateEvent(context.Background(), ev, domain.StatusOpen); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestDeleteRuleMissing(t *testing.T) {
	store, mock := newMock(t)
	id := "0b7e4c1d-2f3a-4b5c-9d6e-7f8091a2b3c4"
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM alert_rules WHERE id = $1")).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.DeleteRule(context.Background(), id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMalformedIDIsNotFound(t *testing.T) {
	store := New(nil)
	ctx := context.Background()

	if _, err := store.GetRule(ctx, "abc"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("get rule: expected ErrNotFound, got %v", err)
	}
	if err := store.UpdateRule(ctx, &domain.AlertRule{ID: "abc"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("update rule: expected ErrNotFound, got %v", err)
	}
	if err := store.DeleteRule(ctx, "abc"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("delete rule: expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetEvent(ctx, "1; DROP TABLE alert_events"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("get event: expected ErrNotFound, got %v", err)
	}
	if err := store.UpdateEvent(ctx, &domain.AlertEvent{ID: ""}, domain.StatusOpen); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("update event: expected ErrNotFound, got %v", err)
	}
}

func TestMeltRangeAssetScope(t *testing.T) {
	store, mock := newMock(t)
	_, ok, err := store.MeltRange(context.Background(), domain.EntityRef{Scope: domain.ScopeAsset, ID: "pump-1"})
	if err != nil || ok {
		t.Fatalf("assets have no melt range: ok=%v err=%v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no query expected: %v", err)
	}
}

func TestMeltRangeSegment(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("FROM pcm_modules WHERE segment_id").
		WithArgs("seg-1").
		WillReturnRows(sqlmock.NewRows([]string{"melt_temp_min", "melt_temp_max"}).AddRow(45.0, 60.0))

	mr, ok, err := store.MeltRange(context.Background(), domain.EntityRef{Scope: domain.ScopeSegment, ID: "seg-1"})
	if err != nil || !ok {
		t.Fatalf("melt range: ok=%v err=%v", ok, err)
	}
	if mr.Min != 45 || mr.Max != 60 {
		t.Fatalf("unexpected range %+v", mr)
	}
}

func TestAdvisoryLocker(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	key := lockKey("kpi")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT pg_try_advisory_lock($1)")).
		WithArgs(key).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_unlock($1)")).
		WithArgs(key).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT pg_try_advisory_lock($1)")).
		WithArgs(key).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	locker := NewAdvisoryLocker(db)
	unlock, ok, err := locker.TryLock(context.Background(), "kpi")
	if err != nil || !ok {
		t.Fatalf("expected lock, ok=%v err=%v", ok, err)
	}
	unlock()

	_, ok, err = locker.TryLock(context.Background(), "kpi")
	if err != nil || ok {
		t.Fatalf("expected lock held elsewhere, ok=%v err=%v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStoreName(t *testing.T) {
	store, _ := newMock(t)
	if store.Name() != "postgres" {
		t.Fatalf("expected store name postgres, got %s", store.Name())
	}
}
