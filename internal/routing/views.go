package routing

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/seahsky/joho-erp-sub004/pkg/db/models"
	"github.com/seahsky/joho-erp-sub004/pkg/enums"
	pkgerrors "github.com/seahsky/joho-erp-sub004/pkg/errors"
)

// ViewStatus tells the caller whether the view can be rendered yet.
type ViewStatus string

const (
	ViewReady   ViewStatus = "ready"
	ViewLoading ViewStatus = "loading"
)

// Stop is one order on a packing or delivery list.
type Stop struct {
	OrderID            uuid.UUID              `json:"order_id"`
	OrderNumber        string                 `json:"order_number"`
	CustomerID         uuid.UUID              `json:"customer_id"`
	Status             enums.OrderStatus      `json:"status"`
	Version            int                    `json:"version"`
	Area               enums.DeliveryArea     `json:"area"`
	Address            models.DeliveryAddress `json:"address"`
	LineItems          []models.OrderLineItem `json:"line_items"`
	PackedSKUs         []string               `json:"packed_skus"`
	DeliverySequence   *int                   `json:"delivery_sequence"`
	PackingSequence    *int                   `json:"packing_sequence"`
	EstimatedArrivalAt *time.Time             `json:"estimated_arrival_at,omitempty"`
	DriverID           *string                `json:"driver_id,omitempty"`
}

// View is a route day's ordered stop list. Stops without a sequence sort last.
type View struct {
	Date        string               `json:"date"`
	Status      ViewStatus           `json:"status"`
	Stops       []Stop               `json:"stops"`
	FailedAreas []enums.DeliveryArea `json:"failed_areas,omitempty"`
}

// PackingView lists the day's orders in packing sequence (last delivered first).
func (e *Engine) PackingView(ctx context.Context, date time.Time) (*View, error) {
	return e.view(ctx, date, func(s Stop) *int { return s.PackingSequence })
}

// DeliveryView lists the day's orders in delivery sequence.
func (e *Engine) DeliveryView(ctx context.Context, date time.Time) (*View, error) {
	return e.view(ctx, date, func(s Stop) *int { return s.DeliverySequence })
}

func (e *Engine) view(ctx context.Context, date time.Time, seq func(Stop) *int) (*View, error) {
	day := routeDay(date)
	view := &View{Date: day.Format(dateLayout), Status: ViewReady, Stops: []Stop{}}

	if e.marker != nil {
		busy, err := e.marker.InFlight(ctx, e.marker.RouteRecomputeKey(view.Date))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check route recompute marker")
		}
		if busy {
			view.Status = ViewLoading
			return view, nil
		}
	}

	if e.cfg.RecomputeOnRead {
		result, err := e.RecomputeRoutes(ctx, day, false)
		switch {
		case err == nil:
		case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
			// Another reader claimed the recompute between our check and our claim.
			view.Status = ViewLoading
			return view, nil
		case pkgerrors.IsCode(err, pkgerrors.CodeRouteProviderUnavailable) && result != nil:
			view.FailedAreas = result.Failed()
		default:
			return nil, err
		}
	}

	orders, err := e.repo.RoutableOrders(ctx, day)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load routable orders")
	}
	for _, o := range orders {
		view.Stops = append(view.Stops, Stop{
			OrderID:            o.ID,
			OrderNumber:        o.OrderNumber,
			CustomerID:         o.CustomerID,
			Status:             o.Status,
			Version:            o.Version,
			Area:               o.DeliveryAddress.Area,
			Address:            o.DeliveryAddress,
			LineItems:          o.LineItems,
			PackedSKUs:         o.PackedSKUs,
			DeliverySequence:   o.DeliverySequence,
			PackingSequence:    o.PackingSequence,
			EstimatedArrivalAt: o.EstimatedArrivalAt,
			DriverID:           o.DriverID,
		})
	}
	sort.SliceStable(view.Stops, func(i, j int) bool {
		a, b := seq(view.Stops[i]), seq(view.Stops[j])
		switch {
		case a == nil && b == nil:
			return false
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return *a < *b
	})
	return view, nil
}
