package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/seahsky/joho-erp-sub004/pkg/enums"
)

// RouteOptimization is the optimized stop list for one (delivery date, area).
type RouteOptimization struct {
	ID                   uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	DeliveryDate         time.Time          `gorm:"column:delivery_date;type:date;not null;uniqueIndex:ux_route_optimizations_date_area"`
	Area                 enums.DeliveryArea `gorm:"column:area;type:delivery_area;not null;uniqueIndex:ux_route_optimizations_date_area"`
	Waypoints            []RouteWaypoint    `gorm:"column:waypoints;type:jsonb;serializer:json;not null"`
	TotalDistanceMeters  int                `gorm:"column:total_distance_meters;not null;default:0"`
	TotalDurationSeconds int                `gorm:"column:total_duration_seconds;not null;default:0"`
	Polyline             string             `gorm:"column:polyline;not null;default:''"`
	NeedsReoptimization  bool               `gorm:"column:needs_reoptimization;not null;default:false"`
	OptimizedAt          *time.Time         `gorm:"column:optimized_at"`
	CreatedAt            time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// RouteWaypoint is one stop on an optimized route.
type RouteWaypoint struct {
	OrderID          uuid.UUID  `json:"order_id"`
	Lat              float64    `json:"lat"`
	Lng              float64    `json:"lng"`
	Sequence         int        `json:"sequence"`
	EstimatedArrival *time.Time `json:"estimated_arrival,omitempty"`
}
