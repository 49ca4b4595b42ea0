package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/seahsky/joho-erp-sub004/internal/analytics/types"
	analyticswriter "github.com/seahsky/joho-erp-sub004/internal/analytics/writer"
	"github.com/seahsky/joho-erp-sub004/pkg/enums"
	"github.com/seahsky/joho-erp-sub004/pkg/logger"
	"github.com/seahsky/joho-erp-sub004/pkg/outbox/registry"
)

var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

// Writer delivers rows produced by the router.
type Writer interface {
	InsertFulfillment(ctx context.Context, row types.FulfillmentEventRow) error
}

type decoder interface {
	Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (interface{}, error)
}

// rowBuilder fills the event specific columns of row from a decoded payload.
type rowBuilder func(row *types.FulfillmentEventRow, payload any) error

// Router turns domain events into fulfillment event rows.
type Router struct {
	writer   Writer
	decoders decoder
	builders map[enums.OutboxEventType]rowBuilder
	logg     *logger.Logger
}

// NewRouter wires the row builders for every domain event.
func NewRouter(writer Writer, logg *logger.Logger) (*Router, error) {
	if writer == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Router{
		writer:   writer,
		decoders: registry.NewDomainDecoderRegistry(),
		builders: map[enums.OutboxEventType]rowBuilder{
			enums.EventOrderCreated:                 orderCreatedRow,
			enums.EventOrderStatusChanged:           statusChangedRow,
			enums.EventBackorderResolved:            backorderResolvedRow,
			enums.EventInventoryTransactionRecorded: inventoryRow,
			enums.EventRouteOptimized:               routeOptimizedRow,
		},
		logg: logg,
	}, nil
}

// Handle decodes the envelope payload and writes one row.
func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	build, ok := r.builders[envelope.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	if !envelope.HasPayload() {
		return fmt.Errorf("empty payload for %s", envelope.EventType)
	}
	version := envelope.Version
	if version <= 0 {
		version = 1
	}
	payload, err := r.decoders.Decode(envelope.EventType, version, envelope.Payload)
	if err != nil {
		return fmt.Errorf("decode %s payload: %w", envelope.EventType, err)
	}

	payloadJSON, err := analyticswriter.EncodeJSON(envelope.Payload)
	if err != nil {
		return fmt.Errorf("encode payload json: %w", err)
	}
	row := types.FulfillmentEventRow{
		EventID:       envelope.EventID,
		EventType:     string(envelope.EventType),
		OccurredAt:    envelope.OccurredAt,
		AggregateType: string(envelope.AggregateType),
		AggregateID:   envelope.AggregateID,
		ActorID:       stringPtr(envelope.ActorID),
		Payload:       payloadJSON,
	}
	if err := build(&row, payload); err != nil {
		return err
	}

	logCtx := r.logg.WithFields(ctx, map[string]any{
		"event_type":   envelope.EventType,
		"aggregate_id": envelope.AggregateID,
	})
	if err := r.writer.InsertFulfillment(logCtx, row); err != nil {
		r.logg.Error(logCtx, "failed to insert fulfillment row", err)
		return err
	}
	return nil
}
