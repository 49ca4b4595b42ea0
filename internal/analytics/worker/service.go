package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/seahsky/joho-erp-sub004/internal/analytics/router"
	"github.com/seahsky/joho-erp-sub004/internal/analytics/types"
	"github.com/seahsky/joho-erp-sub004/pkg/enums"
	"github.com/seahsky/joho-erp-sub004/pkg/logger"
	"github.com/seahsky/joho-erp-sub004/pkg/outbox"
	"github.com/seahsky/joho-erp-sub004/pkg/outbox/idempotency"
)

// ConsumerName scopes idempotency marks and metrics for this worker.
const ConsumerName = "analytics"

// Handler processes one analytics envelope.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

// HandlerFunc adapts functions to the Handler interface.
type HandlerFunc func(ctx context.Context, envelope types.Envelope) error

func (fn HandlerFunc) Handle(ctx context.Context, envelope types.Envelope) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, envelope)
}

type onceGuard interface {
	Guard(ctx context.Context, consumer string, eventID uuid.UUID, fn func(context.Context) error) error
}

type eventMetrics interface {
	Observe(component, outcome string)
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

// Outcomes reported per message.
const (
	outcomeHandled   = "handled"
	outcomeDuplicate = "duplicate"
	outcomeSkipped   = "skipped"
	outcomeMalformed = "malformed"
	outcomeRetry     = "retry"
)

// Params wire the worker.
type Params struct {
	Subscription *gcppubsub.Subscriber
	Handler      Handler
	Guard        onceGuard
	Metrics      eventMetrics
	Logger       *logger.Logger
}

// Service consumes domain events from Pub/Sub and hands each event id to the
// handler at most once.
type Service struct {
	subscription receiver
	handler      Handler
	guard        onceGuard
	metrics      eventMetrics
	logg         *logger.Logger
}

func NewService(params Params) (*Service, error) {
	switch {
	case params.Subscription == nil:
		return nil, errors.New("analytics subscription is required")
	case params.Handler == nil:
		return nil, errors.New("analytics handler is required")
	case params.Guard == nil:
		return nil, errors.New("idempotency manager is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	}
	return &Service{
		subscription: params.Subscription,
		handler:      params.Handler,
		guard:        params.Guard,
		metrics:      params.Metrics,
		logg:         params.Logger,
	}, nil
}

// Run consumes messages until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	return s.subscription.Receive(ctx, func(msgCtx context.Context, msg *gcppubsub.Message) {
		outcome := s.process(msgCtx, msg)
		if s.metrics != nil {
			s.metrics.Observe(ConsumerName, outcome)
		}
		if outcome == outcomeRetry {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// process returns the outcome for msg. Only outcomeRetry leads to a nack;
// malformed or untracked events cannot be fixed by redelivery.
func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) string {
	logCtx := s.logg.WithField(ctx, "message_id", msg.ID)

	envelope, err := decodeMessage(msg)
	if err != nil {
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "dropping malformed analytics message")
		return outcomeMalformed
	}
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"event_id":       envelope.EventID,
		"event_type":     envelope.EventType,
		"aggregate_type": envelope.AggregateType,
		"aggregate_id":   envelope.AggregateID,
	})

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		s.logg.Warn(logCtx, "dropping analytics message with non-uuid event id")
		return outcomeMalformed
	}

	err = s.guard.Guard(logCtx, ConsumerName, eventID, func(gctx context.Context) error {
		return s.handler.Handle(gctx, envelope)
	})
	switch {
	case err == nil:
		s.logg.Debug(logCtx, "analytics row written")
		return outcomeHandled
	case errors.Is(err, idempotency.ErrAlreadyProcessed):
		s.logg.Info(logCtx, "duplicate delivery ignored")
		return outcomeDuplicate
	case errors.Is(err, router.ErrUnsupportedEventType):
		return outcomeSkipped
	case errors.Is(err, idempotency.ErrInProgress):
		s.logg.Warn(logCtx, "event held by another delivery; retrying later")
		return outcomeRetry
	default:
		s.logg.Error(logCtx, "analytics handler failed", err)
		return outcomeRetry
	}
}

// decodeMessage reads the stored outbox envelope and fills gaps from the
// message attributes set by the publisher.
func decodeMessage(msg *gcppubsub.Message) (types.Envelope, error) {
	var stored outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &stored); err != nil {
		return types.Envelope{}, fmt.Errorf("decode payload envelope: %w", err)
	}

	eventType, err := enums.ParseOutboxEventType(attribute(msg, "event_type"))
	if err != nil {
		return types.Envelope{}, fmt.Errorf("event_type: %w", err)
	}
	aggregateType, err := enums.ParseOutboxAggregateType(attribute(msg, "aggregate_type"))
	if err != nil {
		return types.Envelope{}, fmt.Errorf("aggregate_type: %w", err)
	}

	env := types.Envelope{
		EventID:       firstNonBlank(stored.EventID, attribute(msg, "event_id")),
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   attribute(msg, "aggregate_id"),
		Version:       stored.Version,
		OccurredAt:    stored.OccurredAt,
		Payload:       stored.Data,
	}
	if env.EventID == "" {
		return types.Envelope{}, errors.New("event_id missing")
	}
	if env.AggregateID == "" {
		return types.Envelope{}, errors.New("aggregate_id missing")
	}
	if env.OccurredAt.IsZero() {
		if parsed, err := time.Parse(time.RFC3339Nano, attribute(msg, "created_at")); err == nil {
			env.OccurredAt = parsed
		}
	}
	env.OccurredAt = env.OccurredAt.UTC()
	if stored.Actor != nil {
		env.ActorID = stored.Actor.ID
	}
	return env, nil
}

func attribute(msg *gcppubsub.Message, key string) string {
	return strings.TrimSpace(msg.Attributes[key])
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
