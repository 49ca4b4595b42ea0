package models

import (
	"time"

	"github.com/google/uuid"
)

// Customer is the account an order is billed to. CreditLimitCents of zero means no limit.
type Customer struct {
	ID               uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name             string    `gorm:"column:name;not null"`
	CreditLimitCents int64     `gorm:"column:credit_limit_cents;not null;default:0"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
