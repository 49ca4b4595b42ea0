package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is a stocked item. CurrentStock is derived from the inventory ledger and
// must only be written by it.
type Product struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	SKU               string    `gorm:"column:sku;not null;uniqueIndex"`
	Name              string    `gorm:"column:name;not null"`
	Unit              string    `gorm:"column:unit;not null;default:'unit'"`
	CurrentStock      int       `gorm:"column:current_stock;not null;default:0"`
	LowStockThreshold int       `gorm:"column:low_stock_threshold;not null;default:0"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
