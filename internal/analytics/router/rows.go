package router

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/seahsky/joho-erp-sub004/internal/analytics/types"
	"github.com/seahsky/joho-erp-sub004/pkg/outbox/payloads"
)

func orderCreatedRow(row *types.FulfillmentEventRow, payload any) error {
	event, ok := payload.(*payloads.OrderCreatedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for order_created")
	}
	row.OrderID = uuidPtr(event.OrderID)
	row.OrderNumber = stringPtr(event.OrderNumber)
	row.CustomerID = uuidPtr(event.CustomerID)
	row.DeliveryDate = stringPtr(event.DeliveryDate)
	row.Area = stringPtr(string(event.Area))
	row.Backorder = stringPtr(string(event.BackorderStatus))
	row.TotalCents = int64Ptr(event.TotalCents)
	return nil
}

func statusChangedRow(row *types.FulfillmentEventRow, payload any) error {
	event, ok := payload.(*payloads.OrderStatusChangedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for order_status_changed")
	}
	row.OrderID = uuidPtr(event.OrderID)
	row.OrderNumber = stringPtr(event.OrderNumber)
	row.FromStatus = stringPtr(string(event.From))
	row.ToStatus = stringPtr(string(event.To))
	if row.ActorID == nil {
		row.ActorID = stringPtr(event.ActorID)
	}
	if !event.OccurredAt.IsZero() {
		row.OccurredAt = event.OccurredAt.UTC()
	}
	return nil
}

func backorderResolvedRow(row *types.FulfillmentEventRow, payload any) error {
	event, ok := payload.(*payloads.BackorderResolvedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for backorder_resolved")
	}
	row.OrderID = uuidPtr(event.OrderID)
	row.Backorder = stringPtr(string(event.BackorderStatus))
	row.TotalCents = int64Ptr(event.TotalCents)
	return nil
}

func inventoryRow(row *types.FulfillmentEventRow, payload any) error {
	event, ok := payload.(*payloads.InventoryTransactionRecordedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for inventory_transaction_recorded")
	}
	row.ProductID = uuidPtr(event.ProductID)
	row.TransactionType = stringPtr(string(event.Type))
	row.Quantity = int64Ptr(int64(event.Quantity))
	row.NewStock = int64Ptr(int64(event.NewStock))
	if event.ReferenceOrderID != nil {
		row.OrderID = uuidPtr(*event.ReferenceOrderID)
	}
	return nil
}

func routeOptimizedRow(row *types.FulfillmentEventRow, payload any) error {
	event, ok := payload.(*payloads.RouteOptimizedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for route_optimized")
	}
	row.RouteID = uuidPtr(event.RouteID)
	row.DeliveryDate = stringPtr(event.DeliveryDate)
	row.Area = stringPtr(string(event.Area))
	row.Stops = int64Ptr(int64(event.Stops))
	row.TotalDistanceMeters = int64Ptr(int64(event.TotalDistanceMeters))
	row.TotalDurationSeconds = int64Ptr(int64(event.TotalDurationSeconds))
	return nil
}

func stringPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func uuidPtr(id uuid.UUID) *string {
	if id == uuid.Nil {
		return nil
	}
	return stringPtr(id.String())
}

func int64Ptr(v int64) *int64 {
	return &v
}
