package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seahsky/joho-erp-sub004/internal/analytics/router"
	"github.com/seahsky/joho-erp-sub004/internal/analytics/types"
	"github.com/seahsky/joho-erp-sub004/pkg/enums"
	"github.com/seahsky/joho-erp-sub004/pkg/logger"
	"github.com/seahsky/joho-erp-sub004/pkg/outbox"
	"github.com/seahsky/joho-erp-sub004/pkg/outbox/idempotency"
)

func TestDecodeMessage(t *testing.T) {
	eventID := uuid.NewString()
	payload := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC),
		Actor:      &outbox.ActorRef{ID: "staff-1", Role: "staff"},
		Data:       json.RawMessage(`{"order_id":"ord-1"}`),
	}
	env, err := decodeMessage(message(payload, map[string]string{
		"event_type":     "order_created",
		"aggregate_type": "order",
		"aggregate_id":   "ord-1",
	}))
	require.NoError(t, err)

	assert.Equal(t, enums.EventOrderCreated, env.EventType)
	assert.Equal(t, enums.AggregateOrder, env.AggregateType)
	assert.Equal(t, "ord-1", env.AggregateID)
	assert.Equal(t, eventID, env.EventID)
	assert.Equal(t, "staff-1", env.ActorID)
	assert.True(t, env.OccurredAt.Equal(payload.OccurredAt))
}

func TestDecodeMessageFallsBackToAttributes(t *testing.T) {
	created := time.Date(2026, 10, 17, 7, 30, 0, 0, time.UTC)
	env, err := decodeMessage(message(outbox.PayloadEnvelope{Data: json.RawMessage(`{}`)}, map[string]string{
		"event_id":       "evt-attr",
		"event_type":     "route_optimized",
		"aggregate_type": "route_optimization",
		"aggregate_id":   "r-1",
		"created_at":     created.Format(time.RFC3339Nano),
	}))
	require.NoError(t, err)
	assert.Equal(t, "evt-attr", env.EventID)
	assert.True(t, env.OccurredAt.Equal(created))
}

func TestDecodeMessageRejects(t *testing.T) {
	cases := map[string]*gcppubsub.Message{
		"bad json":      {Data: []byte("nope")},
		"unknown type":  message(outbox.PayloadEnvelope{EventID: "e"}, map[string]string{"event_type": "x", "aggregate_type": "order", "aggregate_id": "a"}),
		"no aggregate":  message(outbox.PayloadEnvelope{EventID: "e"}, map[string]string{"event_type": "order_created", "aggregate_type": "order"}),
		"no event id":   message(outbox.PayloadEnvelope{}, map[string]string{"event_type": "order_created", "aggregate_type": "order", "aggregate_id": "a"}),
		"bad aggregate": message(outbox.PayloadEnvelope{EventID: "e"}, map[string]string{"event_type": "order_created", "aggregate_type": "cart", "aggregate_id": "a"}),
	}
	for name, msg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := decodeMessage(msg)
			assert.Error(t, err)
		})
	}
}

func TestProcessHandlesEachEventOnce(t *testing.T) {
	handler := &stubHandler{}
	svc, _ := newTestService(t, handler)

	msg := orderCreatedMessage()
	assert.Equal(t, outcomeHandled, svc.process(context.Background(), msg))
	assert.Equal(t, outcomeDuplicate, svc.process(context.Background(), msg))
	assert.Equal(t, 1, handler.calls)
	assert.Equal(t, enums.EventOrderCreated, handler.envelope.EventType)
}

func TestProcessRetriesHandlerFailure(t *testing.T) {
	handler := &stubHandler{err: errors.New("bigquery unavailable")}
	svc, _ := newTestService(t, handler)

	msg := orderCreatedMessage()
	assert.Equal(t, outcomeRetry, svc.process(context.Background(), msg))
	handler.err = nil
	assert.Equal(t, outcomeHandled, svc.process(context.Background(), msg))
	assert.Equal(t, 2, handler.calls)
}

func TestProcessRetriesWhileLeased(t *testing.T) {
	handler := &stubHandler{}
	svc, manager := newTestService(t, handler)

	msg := orderCreatedMessage()
	var env outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(msg.Data, &env))
	eventID := uuid.MustParse(env.EventID)

	var nested string
	err := manager.Guard(context.Background(), ConsumerName, eventID, func(ctx context.Context) error {
		nested = svc.process(ctx, msg)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, outcomeRetry, nested)
	assert.Zero(t, handler.calls)
}

func TestProcessAcksWhatRedeliveryCannotFix(t *testing.T) {
	handler := &stubHandler{err: fmt.Errorf("%w: notification_requested", router.ErrUnsupportedEventType)}
	svc, _ := newTestService(t, handler)

	assert.Equal(t, outcomeSkipped, svc.process(context.Background(), orderCreatedMessage()))
	assert.Equal(t, outcomeMalformed, svc.process(context.Background(), &gcppubsub.Message{Data: []byte("invalid json")}))

	notUUID := message(outbox.PayloadEnvelope{EventID: "evt-1"}, map[string]string{
		"event_type": "order_created", "aggregate_type": "order", "aggregate_id": "a",
	})
	assert.Equal(t, outcomeMalformed, svc.process(context.Background(), notUUID))
	assert.Equal(t, 1, handler.calls)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(Params{})
	assert.Error(t, err)
}

func newTestService(t *testing.T, handler Handler) (*Service, *idempotency.Manager) {
	t.Helper()
	manager, err := idempotency.NewManager(newMemoryStore(), time.Hour)
	require.NoError(t, err)
	return &Service{
		handler: handler,
		guard:   manager,
		logg:    logger.New(logger.Options{ServiceName: "analytics-test"}),
	}, manager
}

func orderCreatedMessage() *gcppubsub.Message {
	return message(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{"order_id":"00000000-0000-0000-0000-000000000001"}`),
	}, map[string]string{
		"event_type":     "order_created",
		"aggregate_type": "order",
		"aggregate_id":   "00000000-0000-0000-0000-000000000001",
	})
}

func message(payload outbox.PayloadEnvelope, attrs map[string]string) *gcppubsub.Message {
	data, _ := json.Marshal(payload)
	return &gcppubsub.Message{ID: "msg-1", Data: data, Attributes: attrs}
}

type stubHandler struct {
	calls    int
	envelope types.Envelope
	err      error
}

func (h *stubHandler) Handle(_ context.Context, envelope types.Envelope) error {
	h.calls++
	h.envelope = envelope
	return h.err
}

type memoryStore struct {
	data map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}}
}

func (s *memoryStore) Get(_ context.Context, key string) (string, error) {
	v, ok := s.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (s *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = fmt.Sprint(value)
	return true, nil
}

func (s *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	s.data[key] = fmt.Sprint(value)
	return nil
}

func (s *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

func (s *memoryStore) IdempotencyKey(scope, id string) string {
	return scope + ":" + id
}
