package routing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/seahsky/joho-erp-sub004/pkg/db/models"
	"github.com/seahsky/joho-erp-sub004/pkg/enums"
)

// Assignment is the route placement written onto one order. Nil fields clear the
// column.
type Assignment struct {
	RouteID            *uuid.UUID
	DeliverySequence   *int
	PackingSequence    *int
	EstimatedArrivalAt *time.Time
}

// Repository persists route optimizations and order placements.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// MarkStale flags the (date, area) route for re-optimization, creating the row if needed.
	MarkStale(ctx context.Context, date time.Time, area enums.DeliveryArea) error
	FindRoutes(ctx context.Context, date time.Time) ([]models.RouteOptimization, error)
	SaveRoute(ctx context.Context, route *models.RouteOptimization) error
	RoutableOrders(ctx context.Context, date time.Time) ([]models.Order, error)
	AssignOrder(ctx context.Context, orderID uuid.UUID, a Assignment) error
	StaleDates(ctx context.Context, from time.Time) ([]time.Time, error)
}
