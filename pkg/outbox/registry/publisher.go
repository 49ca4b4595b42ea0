package registry

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/seahsky/joho-erp-sub004/pkg/config"
	"github.com/seahsky/joho-erp-sub004/pkg/db/models"
	"github.com/seahsky/joho-erp-sub004/pkg/enums"
	"github.com/seahsky/joho-erp-sub004/pkg/outbox"
	"github.com/seahsky/joho-erp-sub004/pkg/outbox/payloads"
)

// EventDescriptor says where an event type is published and how its payload
// decodes. A blank AggregateType accepts rows for any aggregate.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	decode        decoderFunc
}

// ResolvedEvent is an outbox row that passed validation, with its typed payload.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

func route[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string) EventDescriptor {
	return EventDescriptor{EventType: eventType, AggregateType: aggregate, Topic: topic, decode: typed[T]}
}

// domainEvents are the facts published on the domain topic. Consumers decode
// the same set.
func domainEvents(topic string) []EventDescriptor {
	return []EventDescriptor{
		route[payloads.OrderCreatedEvent](enums.EventOrderCreated, enums.AggregateOrder, topic),
		route[payloads.OrderStatusChangedEvent](enums.EventOrderStatusChanged, enums.AggregateOrder, topic),
		route[payloads.BackorderResolvedEvent](enums.EventBackorderResolved, enums.AggregateOrder, topic),
		route[payloads.InventoryTransactionRecordedEvent](enums.EventInventoryTransactionRecorded, enums.AggregateProduct, topic),
		route[payloads.RouteOptimizedEvent](enums.EventRouteOptimized, enums.AggregateRouteOptimization, topic),
	}
}

// NewEventRegistry routes domain facts to the domain topic and side-effect
// requests to the notification and accounting topics.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	for name, topic := range map[string]string{
		"domain":       cfg.DomainTopic,
		"notification": cfg.NotificationTopic,
		"accounting":   cfg.AccountingTopic,
	} {
		if topic == "" {
			return nil, fmt.Errorf("%s topic is required", name)
		}
	}

	descriptors := append(domainEvents(cfg.DomainTopic),
		// notifications can concern any aggregate
		route[payloads.NotificationRequestedEvent](enums.EventNotificationRequested, "", cfg.NotificationTopic),
		route[payloads.AccountingSyncRequestedEvent](enums.EventAccountingSyncRequested, enums.AggregateOrder, cfg.AccountingTopic),
	)
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(descriptors))}
	for _, desc := range descriptors {
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

func (r *EventRegistry) Descriptor(eventType enums.OutboxEventType) (EventDescriptor, bool) {
	desc, ok := r.entries[eventType]
	return desc, ok
}

// Resolve checks the row against its descriptor and decodes the payload.
// Every error it returns is permanent.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, NewNoRouteError(fmt.Errorf("no route for event type %s", event.EventType))
	case desc.AggregateType != "" && desc.AggregateType != event.AggregateType:
		return nil, NewNonRetryableError(fmt.Errorf("%s: aggregate %s, want %s", event.EventType, event.AggregateType, desc.AggregateType))
	case event.AggregateID == uuid.Nil:
		return nil, NewNonRetryableError(fmt.Errorf("%s: missing aggregate_id", event.EventType))
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%s: %w", event.EventType, err))
	}
	payload, err := desc.decode(envelope.Data)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}

func typed[T any](payload json.RawMessage) (any, error) {
	out := new(T)
	if err := json.Unmarshal(payload, out); err != nil {
		return nil, err
	}
	return out, nil
}
