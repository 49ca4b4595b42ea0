package routing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/seahsky/joho-erp-sub004/internal/sinks"
	"github.com/seahsky/joho-erp-sub004/pkg/db/models"
	"github.com/seahsky/joho-erp-sub004/pkg/enums"
	pkgerrors "github.com/seahsky/joho-erp-sub004/pkg/errors"
	"github.com/seahsky/joho-erp-sub004/pkg/logger"
	"github.com/seahsky/joho-erp-sub004/pkg/maps"
	"github.com/seahsky/joho-erp-sub004/pkg/outbox"
	"github.com/seahsky/joho-erp-sub004/pkg/outbox/payloads"
)

const (
	defaultProviderTimeout = 5 * time.Second
	defaultInFlightTTL     = 2 * time.Minute
	defaultDispatchHour    = 6
	dateLayout             = "2006-01-02"
)

// Provider orders stops on a depot round trip. *maps.Client satisfies it.
type Provider interface {
	OptimizeRoute(ctx context.Context, req maps.OptimizeRequest) (*maps.OptimizedRoute, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type inFlightMarker interface {
	RouteRecomputeKey(date string) string
	MarkInFlight(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	InFlight(ctx context.Context, key string) (bool, error)
	ReleaseInFlight(ctx context.Context, key, owner string) error
}

type notifier interface {
	Notify(ctx context.Context, n sinks.Notification) error
}

type providerMetrics interface {
	ObserveProviderCall(area string, took time.Duration, err error)
}

// Config tunes the engine.
type Config struct {
	Depot           maps.LatLng
	ProviderTimeout time.Duration
	InFlightTTL     time.Duration
	// DispatchHour is the local hour vans leave the depot; ETAs count from it.
	DispatchHour    int
	Location        *time.Location
	RecomputeOnRead bool
}

// Engine sequences delivery and packing for a route day.
type Engine struct {
	repo     Repository
	tx       txRunner
	provider Provider
	outbox   outboxPublisher
	marker   inFlightMarker
	notify   notifier
	metrics  providerMetrics
	logg     *logger.Logger
	cfg      Config
	now      func() time.Time
}

type Option func(*Engine)

func WithMarker(m inFlightMarker) Option { return func(e *Engine) { e.marker = m } }

func WithNotifier(n notifier) Option { return func(e *Engine) { e.notify = n } }

func WithMetrics(m providerMetrics) Option { return func(e *Engine) { e.metrics = m } }

func WithLogger(l *logger.Logger) Option { return func(e *Engine) { e.logg = l } }

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func NewEngine(repo Repository, tx txRunner, provider Provider, publisher outboxPublisher, cfg Config, opts ...Option) (*Engine, error) {
	if repo == nil {
		return nil, fmt.Errorf("routing repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if provider == nil {
		return nil, fmt.Errorf("route provider required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = defaultProviderTimeout
	}
	if cfg.InFlightTTL <= 0 {
		cfg.InFlightTTL = defaultInFlightTTL
	}
	if cfg.DispatchHour <= 0 || cfg.DispatchHour > 23 {
		cfg.DispatchHour = defaultDispatchHour
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	e := &Engine{
		repo:     repo,
		tx:       tx,
		provider: provider,
		outbox:   publisher,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// AreaStatus is the outcome of one area in a recompute.
type AreaStatus string

const (
	AreaOptimized AreaStatus = "optimized"
	AreaEmpty     AreaStatus = "empty"
	AreaFailed    AreaStatus = "failed"
)

// AreaResult reports one area of a recompute.
type AreaResult struct {
	Area                 enums.DeliveryArea `json:"area"`
	Status               AreaStatus         `json:"status"`
	Stops                int                `json:"stops"`
	RouteID              *uuid.UUID         `json:"route_id,omitempty"`
	TotalDistanceMeters  int                `json:"total_distance_meters"`
	TotalDurationSeconds int                `json:"total_duration_seconds"`
	Error                string             `json:"error,omitempty"`
}

// RecomputeResult is the outcome of RecomputeRoutes. Skipped is set when nothing
// was stale and the run was not forced.
type RecomputeResult struct {
	Date       string       `json:"date"`
	Forced     bool         `json:"forced"`
	Skipped    bool         `json:"skipped"`
	Areas      []AreaResult `json:"areas"`
	Unroutable []uuid.UUID  `json:"unroutable_order_ids,omitempty"`
}

// Failed lists the areas whose provider call failed.
func (r *RecomputeResult) Failed() []enums.DeliveryArea {
	var out []enums.DeliveryArea
	for _, a := range r.Areas {
		if a.Status == AreaFailed {
			out = append(out, a.Area)
		}
	}
	return out
}

func (r *RecomputeResult) succeeded() []enums.DeliveryArea {
	var out []enums.DeliveryArea
	for _, a := range r.Areas {
		if a.Status != AreaFailed {
			out = append(out, a.Area)
		}
	}
	return out
}

type areaRun struct {
	area   enums.DeliveryArea
	orders []models.Order
	route  *maps.OptimizedRoute
	err    error
}

// RecomputeRoutes optimizes every area of the route day and renumbers all
// routable orders. Without force the run is skipped unless a route is stale or
// missing. When some areas fail the result is returned together with a
// ROUTE_PROVIDER_UNAVAILABLE error; those areas' orders carry no sequence.
func (e *Engine) RecomputeRoutes(ctx context.Context, date time.Time, force bool) (*RecomputeResult, error) {
	day := routeDay(date)
	label := day.Format(dateLayout)

	if e.marker != nil {
		key := e.marker.RouteRecomputeKey(label)
		owner := uuid.NewString()
		claimed, err := e.marker.MarkInFlight(ctx, key, owner, e.cfg.InFlightTTL)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim route recompute")
		}
		if !claimed {
			return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "route recompute for %s already in progress", label)
		}
		defer func() {
			if err := e.marker.ReleaseInFlight(context.WithoutCancel(ctx), key, owner); err != nil && e.logg != nil {
				e.logg.Warn(e.logg.WithField(ctx, "delivery_date", label), "release route recompute marker: "+err.Error())
			}
		}()
	}

	startedAt := time.Now().UTC()
	routes, err := e.repo.FindRoutes(ctx, day)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load routes")
	}
	orders, err := e.repo.RoutableOrders(ctx, day)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load routable orders")
	}

	result := &RecomputeResult{Date: label, Forced: force}
	if !force && !needsRun(routes, orders) {
		result.Skipped = true
		return result, nil
	}

	runs, unroutable := partition(orders, routes)
	result.Unroutable = unroutable
	e.optimize(ctx, day, runs)

	var plans []AreaPlan
	for _, run := range runs {
		if run.err != nil || run.route == nil {
			continue
		}
		ids := make([]uuid.UUID, 0, len(run.orders))
		for _, idx := range run.route.Order {
			ids = append(ids, run.orders[idx].ID)
		}
		plans = append(plans, AreaPlan{Area: run.area, Orders: ids})
	}
	delivery := DeliverySequences(plans)
	packing := PackingSequences(delivery)

	now := e.now()
	saved := make(map[enums.DeliveryArea]*models.RouteOptimization, len(runs))
	err = e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.repo.WithTx(tx)
		// A route flagged after this run started stays flagged.
		current, err := repo.FindRoutes(ctx, day)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload routes")
		}
		// Route ids come from this reload: a route row inserted by MarkStale while
		// the provider was running must be updated in place, not shadowed.
		existing := make(map[enums.DeliveryArea]models.RouteOptimization, len(current))
		flaggedSince := make(map[enums.DeliveryArea]bool, len(current))
		for _, r := range current {
			existing[r.Area] = r
			flaggedSince[r.Area] = r.NeedsReoptimization && r.UpdatedAt.After(startedAt)
		}

		assignments := make(map[uuid.UUID]Assignment, len(orders))
		for _, run := range runs {
			if run.err != nil {
				if err := repo.MarkStale(ctx, day, run.area); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flag failed route")
				}
				continue
			}
			route := e.buildRoute(day, run, existing, delivery, now)
			route.NeedsReoptimization = flaggedSince[run.area]
			if err := repo.SaveRoute(ctx, route); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save route")
			}
			saved[run.area] = route
			for _, wp := range route.Waypoints {
				d, p := delivery[wp.OrderID], packing[wp.OrderID]
				assignments[wp.OrderID] = Assignment{
					RouteID:            &route.ID,
					DeliverySequence:   &d,
					PackingSequence:    &p,
					EstimatedArrivalAt: wp.EstimatedArrival,
				}
			}
			if len(route.Waypoints) == 0 {
				continue
			}
			if err := e.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventRouteOptimized,
				AggregateType: enums.AggregateRouteOptimization,
				AggregateID:   route.ID,
				OccurredAt:    now,
				Data: payloads.RouteOptimizedEvent{
					RouteID:              route.ID,
					DeliveryDate:         label,
					Area:                 route.Area,
					Stops:                len(route.Waypoints),
					TotalDistanceMeters:  route.TotalDistanceMeters,
					TotalDurationSeconds: route.TotalDurationSeconds,
				},
			}); err != nil {
				return err
			}
		}
		for _, order := range orders {
			if err := repo.AssignOrder(ctx, order.ID, assignments[order.ID]); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign order sequence")
			}
		}
		return nil
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist routes")
	}

	for _, run := range runs {
		ar := AreaResult{Area: run.area, Stops: len(run.orders)}
		switch {
		case run.err != nil:
			ar.Status = AreaFailed
			ar.Error = run.err.Error()
		case len(run.orders) == 0:
			ar.Status = AreaEmpty
		default:
			ar.Status = AreaOptimized
		}
		if route := saved[run.area]; route != nil {
			id := route.ID
			ar.RouteID = &id
			ar.TotalDistanceMeters = route.TotalDistanceMeters
			ar.TotalDurationSeconds = route.TotalDurationSeconds
			if ar.Status == AreaOptimized {
				e.notifyOptimized(ctx, route)
			}
		}
		result.Areas = append(result.Areas, ar)
	}
	e.logRun(ctx, result)

	if failed := result.Failed(); len(failed) > 0 {
		return result, pkgerrors.New(pkgerrors.CodeRouteProviderUnavailable, "route provider failed for some areas").
			WithDetails(map[string]any{
				"delivery_date": label,
				"succeeded":     result.succeeded(),
				"failed":        failed,
			})
	}
	return result, nil
}

// optimize calls the provider for every non-empty area concurrently. Each call has
// its own timeout; the group has no shared context, so a failure never cancels
// its siblings and each area keeps its own error.
func (e *Engine) optimize(ctx context.Context, day time.Time, runs []*areaRun) {
	var g errgroup.Group
	for _, run := range runs {
		if len(run.orders) == 0 {
			continue
		}
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, e.cfg.ProviderTimeout)
			defer cancel()

			stops := make([]maps.LatLng, 0, len(run.orders))
			for _, o := range run.orders {
				stops = append(stops, maps.LatLng{Latitude: *o.DeliveryAddress.Lat, Longitude: *o.DeliveryAddress.Lng})
			}
			started := time.Now()
			route, err := e.provider.OptimizeRoute(callCtx, maps.OptimizeRequest{
				Depot:         e.cfg.Depot,
				Stops:         stops,
				DepartureTime: e.departure(day),
			})
			if err == nil {
				if route == nil {
					err = pkgerrors.New(pkgerrors.CodeRouteProviderUnavailable, "route provider returned no route")
				} else if perr := maps.ValidatePermutation(route.Order, len(stops)); perr != nil {
					err = pkgerrors.Wrap(pkgerrors.CodeRouteProviderUnavailable, perr, "route provider returned an invalid ordering")
				}
			}
			if e.metrics != nil {
				e.metrics.ObserveProviderCall(string(run.area), time.Since(started), err)
			}
			run.route, run.err = route, err
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) buildRoute(day time.Time, run *areaRun, existing map[enums.DeliveryArea]models.RouteOptimization, delivery map[uuid.UUID]int, now time.Time) *models.RouteOptimization {
	route := &models.RouteOptimization{
		ID:           uuid.New(),
		DeliveryDate: day,
		Area:         run.area,
		Waypoints:    []models.RouteWaypoint{},
		OptimizedAt:  &now,
	}
	if prev, ok := existing[run.area]; ok {
		route.ID = prev.ID
	}
	if run.route == nil {
		return route
	}
	route.TotalDistanceMeters = run.route.DistanceMeters
	route.TotalDurationSeconds = run.route.DurationSeconds
	route.Polyline = run.route.Polyline

	eta := e.departure(day)
	for i, idx := range run.route.Order {
		order := run.orders[idx]
		var arrival *time.Time
		if i < len(run.route.LegDurations) {
			eta = eta.Add(run.route.LegDurations[i])
			at := eta.UTC()
			arrival = &at
		}
		route.Waypoints = append(route.Waypoints, models.RouteWaypoint{
			OrderID:          order.ID,
			Lat:              *order.DeliveryAddress.Lat,
			Lng:              *order.DeliveryAddress.Lng,
			Sequence:         delivery[order.ID],
			EstimatedArrival: arrival,
		})
	}
	return route
}

func (e *Engine) departure(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, e.cfg.DispatchHour, 0, 0, 0, e.cfg.Location)
}

func (e *Engine) notifyOptimized(ctx context.Context, route *models.RouteOptimization) {
	if e.notify == nil {
		return
	}
	err := e.notify.Notify(ctx, sinks.Notification{
		Type:          enums.NotificationRouteOptimized,
		AggregateType: enums.AggregateRouteOptimization,
		AggregateID:   route.ID,
		Subject:       route.ID.String() + ":" + route.OptimizedAt.Format(time.RFC3339),
		Data: map[string]any{
			"delivery_date": route.DeliveryDate.Format(dateLayout),
			"area":          string(route.Area),
			"stops":         len(route.Waypoints),
		},
	})
	if err != nil && e.logg != nil {
		e.logg.Warn(e.logg.WithField(ctx, "area", string(route.Area)), "route notification failed: "+err.Error())
	}
}

func (e *Engine) logRun(ctx context.Context, result *RecomputeResult) {
	if e.logg == nil {
		return
	}
	e.logg.Info(e.logg.WithFields(ctx, map[string]any{
		"delivery_date": result.Date,
		"forced":        result.Forced,
		"areas":         len(result.Areas),
		"failed":        len(result.Failed()),
		"unroutable":    len(result.Unroutable),
	}), "routes recomputed")
}

// needsRun reports whether any area with orders lacks a fresh route.
func needsRun(routes []models.RouteOptimization, orders []models.Order) bool {
	fresh := make(map[enums.DeliveryArea]bool, len(routes))
	for _, r := range routes {
		if r.NeedsReoptimization {
			return true
		}
		fresh[r.Area] = true
	}
	for _, o := range orders {
		if o.DeliveryAddress.HasCoordinates() && !fresh[o.DeliveryAddress.Area] {
			return true
		}
	}
	return false
}

// partition groups routable orders by area in processing order. Areas that only
// have a stored route get an empty run so the route is cleared.
func partition(orders []models.Order, routes []models.RouteOptimization) ([]*areaRun, []uuid.UUID) {
	byArea := make(map[enums.DeliveryArea]*areaRun)
	var unroutable []uuid.UUID
	for _, o := range orders {
		if !o.DeliveryAddress.HasCoordinates() || !o.DeliveryAddress.Area.IsValid() {
			unroutable = append(unroutable, o.ID)
			continue
		}
		run, ok := byArea[o.DeliveryAddress.Area]
		if !ok {
			run = &areaRun{area: o.DeliveryAddress.Area}
			byArea[o.DeliveryAddress.Area] = run
		}
		run.orders = append(run.orders, o)
	}
	for _, r := range routes {
		if _, ok := byArea[r.Area]; !ok {
			byArea[r.Area] = &areaRun{area: r.Area}
		}
	}
	runs := make([]*areaRun, 0, len(byArea))
	for _, area := range enums.DeliveryAreaProcessingOrder {
		if run, ok := byArea[area]; ok {
			runs = append(runs, run)
		}
	}
	return runs, unroutable
}

// routeDay normalizes a date to the UTC midnight the delivery_date column holds.
func routeDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
