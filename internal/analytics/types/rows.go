package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// FulfillmentEventRow mirrors the fulfillment_events BigQuery schema. Only the
// columns relevant to the event type are set.
type FulfillmentEventRow struct {
	EventID       string    `bigquery:"event_id"`
	EventType     string    `bigquery:"event_type"`
	OccurredAt    time.Time `bigquery:"occurred_at"`
	AggregateType string    `bigquery:"aggregate_type"`
	AggregateID   string    `bigquery:"aggregate_id"`
	ActorID       *string   `bigquery:"actor_id"`

	OrderID      *string `bigquery:"order_id"`
	OrderNumber  *string `bigquery:"order_number"`
	CustomerID   *string `bigquery:"customer_id"`
	FromStatus   *string `bigquery:"from_status"`
	ToStatus     *string `bigquery:"to_status"`
	Backorder    *string `bigquery:"backorder_status"`
	DeliveryDate *string `bigquery:"delivery_date"`
	Area         *string `bigquery:"area"`
	TotalCents   *int64  `bigquery:"total_cents"`

	ProductID       *string `bigquery:"product_id"`
	TransactionType *string `bigquery:"transaction_type"`
	Quantity        *int64  `bigquery:"quantity"`
	NewStock        *int64  `bigquery:"new_stock"`

	RouteID              *string `bigquery:"route_id"`
	Stops                *int64  `bigquery:"stops"`
	TotalDistanceMeters  *int64  `bigquery:"total_distance_meters"`
	TotalDurationSeconds *int64  `bigquery:"total_duration_seconds"`

	Payload cbigquery.NullJSON `bigquery:"payload"`
}
