package orders

import (
	"time"

	"github.com/google/uuid"

	internalorders "github.com/seahsky/joho-erp-sub004/internal/orders"
	"github.com/seahsky/joho-erp-sub004/pkg/db/models"
	"github.com/seahsky/joho-erp-sub004/pkg/enums"
)

const dateLayout = "2006-01-02"

type createOrderRequest struct {
	CustomerID   *uuid.UUID                  `json:"customer_id"`
	Lines        []internalorders.LineInput  `json:"lines" validate:"required,min=1,dive"`
	Address      internalorders.AddressInput `json:"delivery_address" validate:"required"`
	DeliveryDate string                      `json:"delivery_date" validate:"required,isodate"`
}

type transitionRequest struct {
	Status  enums.OrderStatus               `json:"status" validate:"required"`
	Version int                             `json:"version" validate:"required,gt=0"`
	Extras  internalorders.TransitionExtras `json:"extras"`
}

type resolveBackorderRequest struct {
	Decision           enums.BackorderDecision `json:"decision" validate:"required,oneof=approve reject partial_approve"`
	ApprovedQuantities map[string]int          `json:"approved_quantities"`
	Note               *string                 `json:"note"`
}

type packItemRequest struct {
	SKU     string `json:"sku" validate:"required"`
	Version int    `json:"version" validate:"required,gt=0"`
}

type updateDeliveryRequest struct {
	Version      int                          `json:"version" validate:"required,gt=0"`
	DeliveryDate *string                      `json:"delivery_date"`
	Address      *internalorders.AddressInput `json:"delivery_address"`
}

// OrderResponse is the wire form of an order.
type OrderResponse struct {
	ID                 uuid.UUID                        `json:"id"`
	OrderNumber        string                           `json:"order_number"`
	CustomerID         uuid.UUID                        `json:"customer_id"`
	Status             enums.OrderStatus                `json:"status"`
	BackorderStatus    enums.BackorderStatus            `json:"backorder_status"`
	StockShortfall     map[string]models.StockShortfall `json:"stock_shortfall,omitempty"`
	LineItems          []models.OrderLineItem           `json:"line_items"`
	SubtotalCents      int64                            `json:"subtotal_cents"`
	TaxCents           int64                            `json:"tax_cents"`
	TotalCents         int64                            `json:"total_cents"`
	DeliveryAddress    models.DeliveryAddress           `json:"delivery_address"`
	DeliveryDate       string                           `json:"delivery_date"`
	PackedSKUs         []string                         `json:"packed_skus"`
	PackedAt           *time.Time                       `json:"packed_at,omitempty"`
	PackedBy           *string                          `json:"packed_by,omitempty"`
	PackingSequence    *int                             `json:"packing_sequence"`
	DeliverySequence   *int                             `json:"delivery_sequence"`
	DriverID           *string                          `json:"driver_id,omitempty"`
	DeliveredAt        *time.Time                       `json:"delivered_at,omitempty"`
	EstimatedArrivalAt *time.Time                       `json:"estimated_arrival_at,omitempty"`
	ProofOfDeliveryRef *string                          `json:"proof_of_delivery_ref,omitempty"`
	ReturnReason       *string                          `json:"return_reason,omitempty"`
	AllowedTransitions []enums.OrderStatus              `json:"allowed_transitions"`
	Version            int                              `json:"version"`
	CreatedAt          time.Time                        `json:"created_at"`
	UpdatedAt          time.Time                        `json:"updated_at"`
	StatusHistory      []models.OrderStatusEvent        `json:"status_history,omitempty"`
}

func toOrderResponse(order *models.Order) OrderResponse {
	packed := order.PackedSKUs
	if packed == nil {
		packed = []string{}
	}
	return OrderResponse{
		ID:                 order.ID,
		OrderNumber:        order.OrderNumber,
		CustomerID:         order.CustomerID,
		Status:             order.Status,
		BackorderStatus:    order.BackorderStatus,
		StockShortfall:     order.StockShortfall,
		LineItems:          order.LineItems,
		SubtotalCents:      order.SubtotalCents,
		TaxCents:           order.TaxCents,
		TotalCents:         order.TotalCents,
		DeliveryAddress:    order.DeliveryAddress,
		DeliveryDate:       order.DeliveryDate.UTC().Format(dateLayout),
		PackedSKUs:         packed,
		PackedAt:           order.PackedAt,
		PackedBy:           order.PackedBy,
		PackingSequence:    order.PackingSequence,
		DeliverySequence:   order.DeliverySequence,
		DriverID:           order.DriverID,
		DeliveredAt:        order.DeliveredAt,
		EstimatedArrivalAt: order.EstimatedArrivalAt,
		ProofOfDeliveryRef: order.ProofOfDeliveryRef,
		ReturnReason:       order.ReturnReason,
		AllowedTransitions: internalorders.AllowedTargets(order.Status),
		Version:            order.Version,
		CreatedAt:          order.CreatedAt,
		UpdatedAt:          order.UpdatedAt,
		StatusHistory:      order.StatusHistory,
	}
}
