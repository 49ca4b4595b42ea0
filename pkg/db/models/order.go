package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/seahsky/joho-erp-sub004/pkg/enums"
)

// Order is the mutable fulfillment record behind an immutable order number.
type Order struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber string    `gorm:"column:order_number;not null;uniqueIndex"`
	CustomerID  uuid.UUID `gorm:"column:customer_id;type:uuid;not null;index"`

	LineItems     []OrderLineItem `gorm:"column:line_items;type:jsonb;serializer:json;not null"`
	SubtotalCents int64           `gorm:"column:subtotal_cents;not null"`
	TaxCents      int64           `gorm:"column:tax_cents;not null"`
	TotalCents    int64           `gorm:"column:total_cents;not null"`

	DeliveryAddress DeliveryAddress `gorm:"embedded;embeddedPrefix:delivery_"`
	DeliveryDate    time.Time       `gorm:"column:delivery_date;type:date;not null;index"`

	Status            enums.OrderStatus         `gorm:"column:status;type:order_status;not null;index"`
	BackorderStatus   enums.BackorderStatus     `gorm:"column:backorder_status;type:backorder_status;not null;default:'none'"`
	StockShortfall    map[string]StockShortfall `gorm:"column:stock_shortfall;type:jsonb;serializer:json"`
	InventoryDeducted bool                      `gorm:"column:inventory_deducted;not null;default:false"`

	PackedAt        *time.Time `gorm:"column:packed_at"`
	PackedBy        *string    `gorm:"column:packed_by"`
	PackingSequence *int       `gorm:"column:packing_sequence"`
	PackedSKUs      []string   `gorm:"column:packed_skus;type:jsonb;serializer:json"`

	DriverID           *string    `gorm:"column:driver_id"`
	DriverAssignedAt   *time.Time `gorm:"column:driver_assigned_at"`
	DeliveredAt        *time.Time `gorm:"column:delivered_at"`
	DeliverySequence   *int       `gorm:"column:delivery_sequence"`
	RouteID            *uuid.UUID `gorm:"column:route_id;type:uuid"`
	EstimatedArrivalAt *time.Time `gorm:"column:estimated_arrival_at"`
	ActualArrivalAt    *time.Time `gorm:"column:actual_arrival_at"`
	ProofOfDeliveryRef *string    `gorm:"column:proof_of_delivery_ref"`
	ReturnReason       *string    `gorm:"column:return_reason"`
	ManagerApprovalBy  *string    `gorm:"column:manager_approval_by"`

	LastActivityAt time.Time `gorm:"column:last_activity_at;not null"`
	Version        int       `gorm:"column:version;not null;default:1"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`

	StatusHistory []OrderStatusEvent `gorm:"foreignKey:OrderID;references:ID"`
}

// OrderLineItem is embedded in the order row; prices are in minor currency units.
type OrderLineItem struct {
	ProductID      uuid.UUID `json:"product_id"`
	SKU            string    `json:"sku"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	SubtotalCents  int64     `json:"subtotal_cents"`
}

// DeliveryAddress carries pre-resolved coordinates and the area tag used for routing.
type DeliveryAddress struct {
	Line1    string             `gorm:"column:line1" json:"line1"`
	Suburb   string             `gorm:"column:suburb" json:"suburb"`
	State    string             `gorm:"column:state" json:"state"`
	Postcode string             `gorm:"column:postcode" json:"postcode"`
	Lat      *float64           `gorm:"column:lat" json:"lat,omitempty"`
	Lng      *float64           `gorm:"column:lng" json:"lng,omitempty"`
	Area     enums.DeliveryArea `gorm:"column:area;type:delivery_area" json:"area"`
}

// HasCoordinates reports whether the address can be placed on a route.
func (a DeliveryAddress) HasCoordinates() bool {
	if a.Lat == nil || a.Lng == nil {
		return false
	}
	lat, lng := *a.Lat, *a.Lng
	if lat == 0 && lng == 0 {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// StockShortfall records a short line at order creation time.
type StockShortfall struct {
	Requested int `json:"requested"`
	Available int `json:"available"`
	Shortfall int `json:"shortfall"`
}

// IsPacked reports whether sku is in the packed set.
func (o *Order) IsPacked(sku string) bool {
	for _, packed := range o.PackedSKUs {
		if packed == sku {
			return true
		}
	}
	return false
}

// AllItemsPacked reports whether every line item sku is in the packed set.
func (o *Order) AllItemsPacked() bool {
	if len(o.LineItems) == 0 {
		return false
	}
	for _, line := range o.LineItems {
		if !o.IsPacked(line.SKU) {
			return false
		}
	}
	return true
}
