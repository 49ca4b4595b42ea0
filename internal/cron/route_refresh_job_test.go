package cron

import (
	"context"
	"testing"
	"time"

	"github.com/seahsky/joho-erp-sub004/internal/routing"
	pkgerrors "github.com/seahsky/joho-erp-sub004/pkg/errors"
)

type fakeStaleRoutes struct {
	dates []time.Time
	from  time.Time
}

func (f *fakeStaleRoutes) StaleDates(_ context.Context, from time.Time) ([]time.Time, error) {
	f.from = from
	return f.dates, nil
}

type fakeRecomputer struct {
	errs   map[string]error
	called []string
	forced bool
}

func (f *fakeRecomputer) RecomputeRoutes(_ context.Context, date time.Time, force bool) (*routing.RecomputeResult, error) {
	label := date.Format("2006-01-02")
	f.called = append(f.called, label)
	f.forced = f.forced || force
	if err := f.errs[label]; err != nil {
		return nil, err
	}
	return &routing.RecomputeResult{Date: label}, nil
}

func TestRouteRefreshRecomputesEveryStaleDay(t *testing.T) {
	now := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)
	day := func(d int) time.Time { return time.Date(2026, 10, d, 0, 0, 0, 0, time.UTC) }
	routes := &fakeStaleRoutes{dates: []time.Time{day(16), day(18), day(19), day(20)}}
	engine := &fakeRecomputer{errs: map[string]error{
		"2026-10-18": pkgerrors.New(pkgerrors.CodeConflict, "in progress"),
		"2026-10-19": pkgerrors.New(pkgerrors.CodeRouteProviderUnavailable, "upstream 503"),
	}}
	job, err := NewRouteRefreshJob(RouteRefreshJobParams{Logger: testLogger(), Routes: routes, Engine: engine})
	if err != nil {
		t.Fatalf("NewRouteRefreshJob: %v", err)
	}
	refresh := job.(*routeRefreshJob)
	refresh.now = func() time.Time { return now }

	err = refresh.Run(context.Background())
	if err == nil || !pkgerrors.IsCode(err, pkgerrors.CodeRouteProviderUnavailable) {
		t.Fatalf("expected provider failure to surface, got %v", err)
	}
	if !routes.from.Equal(day(16)) {
		t.Fatalf("expected lookback to start at midnight of 2026-10-16, got %s", routes.from)
	}
	if len(engine.called) != 4 {
		t.Fatalf("expected every day attempted, got %v", engine.called)
	}
	if engine.forced {
		t.Fatal("refresh must not force recompute")
	}
}

func TestRouteRefreshTreatsInFlightAsSuccess(t *testing.T) {
	routes := &fakeStaleRoutes{dates: []time.Time{time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)}}
	engine := &fakeRecomputer{errs: map[string]error{"2026-10-18": pkgerrors.New(pkgerrors.CodeConflict, "in progress")}}
	job, err := NewRouteRefreshJob(RouteRefreshJobParams{Logger: testLogger(), Routes: routes, Engine: engine})
	if err != nil {
		t.Fatalf("NewRouteRefreshJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := NewRouteRefreshJob(RouteRefreshJobParams{Logger: testLogger(), Routes: routes}); err == nil {
		t.Fatal("expected missing engine to fail")
	}
}
