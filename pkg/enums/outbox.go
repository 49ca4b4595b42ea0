package enums

import "slices"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder             OutboxAggregateType = "order"
	AggregateProduct           OutboxAggregateType = "product"
	AggregateRouteOptimization OutboxAggregateType = "route_optimization"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateProduct,
	AggregateRouteOptimization,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains(validAggregateTypes, a)
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse(value, validAggregateTypes, "aggregate type")
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventOrderCreated                 OutboxEventType = "order_created"
	EventOrderStatusChanged           OutboxEventType = "order_status_changed"
	EventBackorderResolved            OutboxEventType = "backorder_resolved"
	EventInventoryTransactionRecorded OutboxEventType = "inventory_transaction_recorded"
	EventRouteOptimized               OutboxEventType = "route_optimized"
	EventNotificationRequested        OutboxEventType = "notification_requested"
	EventAccountingSyncRequested      OutboxEventType = "accounting_sync_requested"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderStatusChanged,
	EventBackorderResolved,
	EventInventoryTransactionRecorded,
	EventRouteOptimized,
	EventNotificationRequested,
	EventAccountingSyncRequested,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	return slices.Contains(validOutboxEventTypes, e)
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse(value, validOutboxEventTypes, "event type")
}
