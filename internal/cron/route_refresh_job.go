package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/seahsky/joho-erp-sub004/internal/routing"
	pkgerrors "github.com/seahsky/joho-erp-sub004/pkg/errors"
	"github.com/seahsky/joho-erp-sub004/pkg/logger"
)

const defaultRefreshLookback = 24 * time.Hour

// RouteRefreshJobParams configure the stale route sweep.
type RouteRefreshJobParams struct {
	Logger   *logger.Logger
	Routes   staleRouteReader
	Engine   routeRecomputer
	Lookback time.Duration
}

type staleRouteReader interface {
	StaleDates(ctx context.Context, from time.Time) ([]time.Time, error)
}

type routeRecomputer interface {
	RecomputeRoutes(ctx context.Context, date time.Time, force bool) (*routing.RecomputeResult, error)
}

// NewRouteRefreshJob builds the job that re-optimizes every flagged route day.
func NewRouteRefreshJob(params RouteRefreshJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Routes == nil {
		return nil, fmt.Errorf("route repository required")
	}
	if params.Engine == nil {
		return nil, fmt.Errorf("route engine required")
	}
	lookback := params.Lookback
	if lookback <= 0 {
		lookback = defaultRefreshLookback
	}
	return &routeRefreshJob{
		logg:     params.Logger,
		routes:   params.Routes,
		engine:   params.Engine,
		lookback: lookback,
		now:      time.Now,
	}, nil
}

type routeRefreshJob struct {
	logg     *logger.Logger
	routes   staleRouteReader
	engine   routeRecomputer
	lookback time.Duration
	now      func() time.Time
}

func (j *routeRefreshJob) Name() string { return "route-refresh" }

func (j *routeRefreshJob) Run(ctx context.Context) error {
	from := j.now().UTC().Add(-j.lookback)
	from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	dates, err := j.routes.StaleDates(ctx, from)
	if err != nil {
		return fmt.Errorf("query stale route dates: %w", err)
	}

	var errs []error
	refreshed, busy := 0, 0
	for _, date := range dates {
		_, err := j.engine.RecomputeRoutes(ctx, date, false)
		switch {
		case err == nil:
			refreshed++
		case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
			// another recompute holds the day; it will clear the flag.
			busy++
		default:
			errs = append(errs, fmt.Errorf("recompute %s: %w", date.Format("2006-01-02"), err))
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"from":      from,
		"stale":     len(dates),
		"refreshed": refreshed,
		"busy":      busy,
		"failed":    len(errs),
	})
	j.logg.Info(logCtx, "route refresh loop complete")
	return multierr.Combine(errs...)
}
