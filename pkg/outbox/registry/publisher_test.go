package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seahsky/joho-erp-sub004/pkg/config"
	"github.com/seahsky/joho-erp-sub004/pkg/db/models"
	"github.com/seahsky/joho-erp-sub004/pkg/enums"
	"github.com/seahsky/joho-erp-sub004/pkg/outbox"
	"github.com/seahsky/joho-erp-sub004/pkg/outbox/payloads"
)

func TestResolveDecodesStatusChange(t *testing.T) {
	reg := newTestEventRegistry(t)
	orderID := uuid.New()
	data, err := json.Marshal(payloads.OrderStatusChangedEvent{
		OrderID: orderID,
		From:    enums.OrderStatusConfirmed,
		To:      enums.OrderStatusPacking,
		Version: 3,
	})
	require.NoError(t, err)

	resolved, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Payload:       envelopeFor(t, data),
	})
	require.NoError(t, err)
	assert.Equal(t, "domain-topic", resolved.Descriptor.Topic)
	assert.NotEmpty(t, resolved.Envelope.EventID)
	assert.False(t, resolved.Envelope.OccurredAt.IsZero())

	payload, ok := resolved.Payload.(*payloads.OrderStatusChangedEvent)
	require.True(t, ok, "payload type %T", resolved.Payload)
	assert.Equal(t, orderID, payload.OrderID)
	assert.Equal(t, enums.OrderStatusPacking, payload.To)
	assert.Equal(t, 3, payload.Version)
}

func TestResolveRoutesByEventType(t *testing.T) {
	reg := newTestEventRegistry(t)
	cases := []struct {
		eventType enums.OutboxEventType
		aggregate enums.OutboxAggregateType
		topic     string
	}{
		{enums.EventNotificationRequested, enums.AggregateProduct, "notification-topic"},
		{enums.EventNotificationRequested, enums.AggregateOrder, "notification-topic"},
		{enums.EventAccountingSyncRequested, enums.AggregateOrder, "accounting-topic"},
		{enums.EventRouteOptimized, enums.AggregateRouteOptimization, "domain-topic"},
	}
	for _, tc := range cases {
		t.Run(string(tc.eventType)+"/"+string(tc.aggregate), func(t *testing.T) {
			resolved, err := reg.Resolve(models.OutboxEvent{
				EventType:     tc.eventType,
				AggregateType: tc.aggregate,
				AggregateID:   uuid.New(),
				Payload:       envelopeFor(t, []byte(`{"order_id":"`+uuid.NewString()+`"}`)),
			})
			require.NoError(t, err)
			assert.Equal(t, tc.topic, resolved.Descriptor.Topic)
		})
	}
}

func TestResolveRejectsPermanently(t *testing.T) {
	reg := newTestEventRegistry(t)
	cases := []struct {
		name   string
		event  models.OutboxEvent
		reason enums.OutboxDLQErrorReason
	}{
		{
			name: "unknown event type",
			event: models.OutboxEvent{
				EventType: "driver_clocked_in", AggregateType: enums.AggregateOrder, AggregateID: uuid.New(),
				Payload: envelopeFor(t, []byte(`{"reason":"none"}`)),
			},
			reason: enums.OutboxDLQReasonNoRoute,
		},
		{
			name: "aggregate mismatch",
			event: models.OutboxEvent{
				EventType: enums.EventOrderCreated, AggregateType: enums.AggregateProduct, AggregateID: uuid.New(),
				Payload: envelopeFor(t, []byte(`{}`)),
			},
			reason: enums.OutboxDLQReasonNonRetryable,
		},
		{
			name: "missing aggregate id",
			event: models.OutboxEvent{
				EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder,
				Payload: envelopeFor(t, []byte(`{}`)),
			},
			reason: enums.OutboxDLQReasonNonRetryable,
		},
		{
			name: "null payload",
			event: models.OutboxEvent{
				EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(),
				Payload: envelopeFor(t, []byte("null")),
			},
			reason: enums.OutboxDLQReasonNonRetryable,
		},
		{
			name: "payload of the wrong shape",
			event: models.OutboxEvent{
				EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(),
				Payload: envelopeFor(t, []byte(`{"order_id":42}`)),
			},
			reason: enums.OutboxDLQReasonNonRetryable,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := reg.Resolve(tc.event)
			perm, ok := Permanent(err)
			require.True(t, ok, "expected permanent error, got %v", err)
			assert.Equal(t, tc.reason, perm.Reason)
		})
	}
}

func TestPermanentSurvivesWrapping(t *testing.T) {
	err := errors.Join(errors.New("batch"), NewNoRouteError(errors.New("no publisher")))
	perm, ok := Permanent(err)
	require.True(t, ok)
	assert.Equal(t, enums.OutboxDLQReasonNoRoute, perm.Reason)
	assert.Equal(t, "no publisher", perm.Error())

	_, ok = Permanent(errors.New("deadline exceeded"))
	assert.False(t, ok)
}

func TestNewEventRegistryRequiresTopics(t *testing.T) {
	_, err := NewEventRegistry(config.PubSubConfig{DomainTopic: "d", NotificationTopic: "n"})
	assert.EqualError(t, err, "accounting topic is required")
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{
		DomainTopic:       "domain-topic",
		NotificationTopic: "notification-topic",
		AccountingTopic:   "accounting-topic",
	})
	require.NoError(t, err)
	return reg
}

func envelopeFor(t *testing.T, data []byte) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	require.NoError(t, err)
	return raw
}
