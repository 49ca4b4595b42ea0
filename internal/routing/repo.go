package routing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/seahsky/joho-erp-sub004/internal/repo"
	"github.com/seahsky/joho-erp-sub004/pkg/db/models"
	"github.com/seahsky/joho-erp-sub004/pkg/enums"
)

var routeKey = []clause.Column{{Name: "delivery_date"}, {Name: "area"}}

type repository struct {
	repo.Base
}

// NewRepository builds a routing repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Base.WithTx(tx)}
}

func (r *repository) MarkStale(ctx context.Context, date time.Time, area enums.DeliveryArea) error {
	now := time.Now().UTC()
	row := models.RouteOptimization{
		ID:                  uuid.New(),
		DeliveryDate:        date,
		Area:                area,
		Waypoints:           []models.RouteWaypoint{},
		NeedsReoptimization: true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	return r.DB(ctx).Clauses(clause.OnConflict{
		Columns: routeKey,
		DoUpdates: clause.Assignments(map[string]any{
			"needs_reoptimization": true,
			"updated_at":           now,
		}),
	}).Create(&row).Error
}

func (r *repository) FindRoutes(ctx context.Context, date time.Time) ([]models.RouteOptimization, error) {
	var rows []models.RouteOptimization
	err := r.DB(ctx).
		Where("delivery_date = ?", date).
		Order("area ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) SaveRoute(ctx context.Context, route *models.RouteOptimization) error {
	if route.ID == uuid.Nil {
		route.ID = uuid.New()
	}
	route.UpdatedAt = time.Now().UTC()
	err := r.DB(ctx).Clauses(clause.OnConflict{
		Columns: routeKey,
		DoUpdates: clause.AssignmentColumns([]string{
			"waypoints",
			"total_distance_meters",
			"total_duration_seconds",
			"polyline",
			"needs_reoptimization",
			"optimized_at",
			"updated_at",
		}),
	}).Create(route).Error
	if err != nil {
		return err
	}
	// On conflict the stored row keeps its own id; callers link orders to that one.
	var stored models.RouteOptimization
	if err := r.DB(ctx).
		Select("id").
		Where("delivery_date = ? AND area = ?", route.DeliveryDate, route.Area).
		Take(&stored).Error; err != nil {
		return err
	}
	route.ID = stored.ID
	return nil
}

func (r *repository) RoutableOrders(ctx context.Context, date time.Time) ([]models.Order, error) {
	var rows []models.Order
	err := r.DB(ctx).
		Where("delivery_date = ? AND status IN ?", date, enums.RoutableOrderStatuses).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) AssignOrder(ctx context.Context, orderID uuid.UUID, a Assignment) error {
	return r.DB(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]any{
			"route_id":             a.RouteID,
			"delivery_sequence":    a.DeliverySequence,
			"packing_sequence":     a.PackingSequence,
			"estimated_arrival_at": a.EstimatedArrivalAt,
		}).Error
}

func (r *repository) StaleDates(ctx context.Context, from time.Time) ([]time.Time, error) {
	var rows []models.RouteOptimization
	err := r.DB(ctx).
		Distinct("delivery_date").
		Where("needs_reoptimization = ? AND delivery_date >= ?", true, from).
		Order("delivery_date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	dates := make([]time.Time, 0, len(rows))
	for _, row := range rows {
		dates = append(dates, row.DeliveryDate)
	}
	return dates, nil
}

// Invalidator adapts the repository to the order state machine, which flags
// routes inside its own transaction.
type Invalidator struct {
	repo Repository
}

func NewInvalidator(repo Repository) *Invalidator {
	return &Invalidator{repo: repo}
}

func (i *Invalidator) MarkStale(ctx context.Context, tx *gorm.DB, date time.Time, area enums.DeliveryArea) error {
	return i.repo.WithTx(tx).MarkStale(ctx, date, area)
}
