package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/seahsky/joho-erp-sub004/pkg/enums"
)

// OrderStatusEvent is an append-only status history entry.
type OrderStatusEvent struct {
	ID         uuid.UUID          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID    uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index" json:"order_id"`
	FromStatus *enums.OrderStatus `gorm:"column:from_status;type:order_status" json:"from_status,omitempty"`
	ToStatus   enums.OrderStatus  `gorm:"column:to_status;type:order_status;not null" json:"status"`
	ActorID    string             `gorm:"column:actor_id;not null" json:"actor_id"`
	ActorRole  enums.ActorRole    `gorm:"column:actor_role;not null" json:"actor_role"`
	Note       *string            `gorm:"column:note" json:"note,omitempty"`
	OccurredAt time.Time          `gorm:"column:occurred_at;not null" json:"occurred_at"`
}

func (OrderStatusEvent) TableName() string {
	return "order_status_history"
}
