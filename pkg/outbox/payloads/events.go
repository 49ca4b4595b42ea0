package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/seahsky/joho-erp-sub004/pkg/enums"
)

// OrderCreatedEvent is emitted once an order row is committed.
type OrderCreatedEvent struct {
	OrderID         uuid.UUID             `json:"order_id"`
	OrderNumber     string                `json:"order_number"`
	CustomerID      uuid.UUID             `json:"customer_id"`
	DeliveryDate    string                `json:"delivery_date"`
	Area            enums.DeliveryArea    `json:"area"`
	BackorderStatus enums.BackorderStatus `json:"backorder_status"`
	TotalCents      int64                 `json:"total_cents"`
}

// OrderStatusChangedEvent captures one successful state machine transition.
type OrderStatusChangedEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	From        enums.OrderStatus `json:"from"`
	To          enums.OrderStatus `json:"to"`
	Version     int               `json:"version"`
	ActorID     string            `json:"actor_id"`
	ActorRole   enums.ActorRole   `json:"actor_role"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// BackorderResolvedEvent is emitted when an admin resolves a pending backorder.
type BackorderResolvedEvent struct {
	OrderID            uuid.UUID               `json:"order_id"`
	Decision           enums.BackorderDecision `json:"decision"`
	BackorderStatus    enums.BackorderStatus   `json:"backorder_status"`
	ApprovedQuantities map[string]int          `json:"approved_quantities,omitempty"`
	TotalCents         int64                   `json:"total_cents"`
}

// InventoryTransactionRecordedEvent mirrors an appended ledger row.
type InventoryTransactionRecordedEvent struct {
	TransactionID    uuid.UUID                      `json:"transaction_id"`
	ProductID        uuid.UUID                      `json:"product_id"`
	Type             enums.InventoryTransactionType `json:"type"`
	Quantity         int                            `json:"quantity"`
	PreviousStock    int                            `json:"previous_stock"`
	NewStock         int                            `json:"new_stock"`
	ReferenceOrderID *uuid.UUID                     `json:"reference_order_id,omitempty"`
}

// RouteOptimizedEvent summarizes a persisted (date, area) route.
type RouteOptimizedEvent struct {
	RouteID              uuid.UUID          `json:"route_id"`
	DeliveryDate         string             `json:"delivery_date"`
	Area                 enums.DeliveryArea `json:"area"`
	Stops                int                `json:"stops"`
	TotalDistanceMeters  int                `json:"total_distance_meters"`
	TotalDurationSeconds int                `json:"total_duration_seconds"`
}

// NotificationRequestedEvent is the notify sink payload.
type NotificationRequestedEvent struct {
	Type    enums.NotificationType `json:"type"`
	OrderID *uuid.UUID             `json:"order_id,omitempty"`
	Data    map[string]any         `json:"data,omitempty"`
}

// AccountingSyncRequestedEvent asks the accounting collaborator to sync one order.
type AccountingSyncRequestedEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	Status      enums.OrderStatus `json:"status"`
	TotalCents  int64             `json:"total_cents"`
}
