package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/seahsky/joho-erp-sub004/pkg/enums"
)

// InventoryTransaction is an immutable ledger entry. Quantity is the signed stock delta.
type InventoryTransaction struct {
	ID               uuid.UUID                      `gorm:"column:id;type:uuid;primaryKey"`
	ProductID        uuid.UUID                      `gorm:"column:product_id;type:uuid;not null;index"`
	Type             enums.InventoryTransactionType `gorm:"column:type;type:inventory_transaction_type;not null"`
	AdjustmentReason *enums.AdjustmentReason        `gorm:"column:adjustment_reason;type:adjustment_reason"`
	Quantity         int                            `gorm:"column:quantity;not null"`
	PreviousStock    int                            `gorm:"column:previous_stock;not null"`
	NewStock         int                            `gorm:"column:new_stock;not null"`
	ReferenceOrderID *uuid.UUID                     `gorm:"column:reference_order_id;type:uuid;index"`
	ActorID          string                         `gorm:"column:actor_id;not null"`
	Note             *string                        `gorm:"column:note"`
	CreatedAt        time.Time                      `gorm:"column:created_at;autoCreateTime"`
}
