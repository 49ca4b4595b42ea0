// Package sinks hands notification and accounting requests to the outbox after the
// triggering write has committed. Every request carries a deterministic event id so a
// retried call never queues a second row.
package sinks

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/seahsky/joho-erp-sub004/pkg/db/models"
	"github.com/seahsky/joho-erp-sub004/pkg/enums"
	"github.com/seahsky/joho-erp-sub004/pkg/logger"
	"github.com/seahsky/joho-erp-sub004/pkg/outbox"
	"github.com/seahsky/joho-erp-sub004/pkg/outbox/payloads"
)

// eventNamespace seeds uuid.NewSHA1 for sink event ids.
var eventNamespace = uuid.MustParse("6f1d3c52-6b0e-4d8a-9a41-2f4de8a7c0b1")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) (bool, error)
}

// Notification is one request to the notification collaborator. Subject scopes the
// dedup key (an order version, a ledger transaction id, a reaper run). The aggregate
// defaults to the order when OrderID is set.
type Notification struct {
	Type          enums.NotificationType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	OrderID       *uuid.UUID
	Subject       string
	Data          map[string]any
	Actor         *outbox.ActorRef
}

type Service struct {
	tx     txRunner
	outbox outboxEmitter
	logg   *logger.Logger
}

func NewService(tx txRunner, emitter outboxEmitter, logg *logger.Logger) (*Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &Service{tx: tx, outbox: emitter, logg: logg}, nil
}

// Notify queues a notification_requested event.
func (s *Service) Notify(ctx context.Context, n Notification) error {
	if !n.Type.IsValid() {
		return fmt.Errorf("invalid notification type %q", n.Type)
	}
	subject := strings.TrimSpace(n.Subject)
	if subject == "" && n.OrderID != nil {
		subject = n.OrderID.String()
	}
	if subject == "" {
		return fmt.Errorf("notification subject required")
	}
	aggregateType, aggregateID := n.AggregateType, n.AggregateID
	if aggregateID == uuid.Nil && n.OrderID != nil {
		aggregateType, aggregateID = enums.AggregateOrder, *n.OrderID
	}
	if aggregateID == uuid.Nil || !aggregateType.IsValid() {
		return fmt.Errorf("notification aggregate required")
	}
	key := NotificationKey(n.Type, subject)
	return s.emit(ctx, outbox.DomainEvent{
		EventID:        EventID(key),
		EventType:      enums.EventNotificationRequested,
		AggregateType:  aggregateType,
		AggregateID:    aggregateID,
		IdempotencyKey: key,
		Actor:          n.Actor,
		Data: payloads.NotificationRequestedEvent{
			Type:    n.Type,
			OrderID: n.OrderID,
			Data:    n.Data,
		},
	})
}

// SyncAccounting queues one accounting sync per (order, status).
func (s *Service) SyncAccounting(ctx context.Context, order *models.Order) error {
	if order == nil || order.ID == uuid.Nil {
		return fmt.Errorf("order required")
	}
	key := AccountingKey(order.ID, order.Status)
	return s.emit(ctx, outbox.DomainEvent{
		EventID:        EventID(key),
		EventType:      enums.EventAccountingSyncRequested,
		AggregateType:  enums.AggregateOrder,
		AggregateID:    order.ID,
		IdempotencyKey: key,
		Data: payloads.AccountingSyncRequestedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			Status:      order.Status,
			TotalCents:  order.TotalCents,
		},
	})
}

func (s *Service) emit(ctx context.Context, event outbox.DomainEvent) error {
	var queued bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		queued, err = s.outbox.EmitIfNotExists(ctx, tx, event)
		return err
	})
	if err != nil {
		return err
	}
	if !queued && s.logg != nil {
		s.logg.Debug(s.logg.WithField(ctx, "idempotency_key", event.IdempotencyKey), "sink request already queued")
	}
	return nil
}

// NotificationKey is the dedup key for a notification.
func NotificationKey(t enums.NotificationType, subject string) string {
	return "notify:" + string(t) + ":" + subject
}

// AccountingKey is the dedup key for an accounting sync.
func AccountingKey(orderID uuid.UUID, status enums.OrderStatus) string {
	return "accounting:" + orderID.String() + ":" + string(status)
}

// EventID derives the outbox event id from a dedup key.
func EventID(key string) uuid.UUID {
	return uuid.NewSHA1(eventNamespace, []byte(key))
}
