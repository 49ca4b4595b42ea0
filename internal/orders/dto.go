package orders

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/seahsky/joho-erp-sub004/pkg/db/models"
	"github.com/seahsky/joho-erp-sub004/pkg/enums"
)

// Actor is the opaque identity attached to every engine call.
type Actor struct {
	ID         string
	Role       enums.ActorRole
	CustomerID *uuid.UUID
}

// SystemActor is used by background jobs.
var SystemActor = Actor{ID: "system", Role: enums.ActorRoleSystem}

func (a Actor) owns(order *models.Order) bool {
	return a.CustomerID != nil && *a.CustomerID == order.CustomerID
}

// LineInput is one requested product quantity at its agreed unit price.
type LineInput struct {
	ProductID      uuid.UUID `json:"product_id" validate:"required"`
	Quantity       int       `json:"quantity" validate:"required,gt=0"`
	UnitPriceCents int64     `json:"unit_price_cents" validate:"gte=0"`
}

// AddressInput is a delivery address with pre-resolved coordinates.
type AddressInput struct {
	Line1    string             `json:"line1" validate:"required"`
	Suburb   string             `json:"suburb" validate:"required"`
	State    string             `json:"state" validate:"required"`
	Postcode string             `json:"postcode" validate:"required"`
	Lat      *float64           `json:"lat" validate:"omitempty,latitude"`
	Lng      *float64           `json:"lng" validate:"omitempty,longitude"`
	Area     enums.DeliveryArea `json:"area" validate:"required,delivery_area"`
}

func (a AddressInput) toModel() models.DeliveryAddress {
	return models.DeliveryAddress{
		Line1:    strings.TrimSpace(a.Line1),
		Suburb:   strings.TrimSpace(a.Suburb),
		State:    strings.TrimSpace(a.State),
		Postcode: strings.TrimSpace(a.Postcode),
		Lat:      a.Lat,
		Lng:      a.Lng,
		Area:     a.Area,
	}
}

// CreateOrderInput places a new order.
type CreateOrderInput struct {
	CustomerID   uuid.UUID    `json:"customer_id" validate:"required"`
	Lines        []LineInput  `json:"lines" validate:"required,min=1,dive"`
	Address      AddressInput `json:"delivery_address" validate:"required"`
	DeliveryDate time.Time    `json:"delivery_date" validate:"required"`
}

// TransitionExtras carries the data some edges require.
type TransitionExtras struct {
	DriverID           *string    `json:"driver_id,omitempty"`
	ProofOfDeliveryRef *string    `json:"proof_of_delivery_ref,omitempty"`
	ReturnReason       *string    `json:"return_reason,omitempty"`
	ManagerApprovalBy  *string    `json:"manager_approval_by,omitempty"`
	ActualArrivalAt    *time.Time `json:"actual_arrival_at,omitempty"`
	Note               *string    `json:"note,omitempty"`
}

// TransitionInput requests a status change at the caller's last-seen version.
type TransitionInput struct {
	OrderID uuid.UUID
	Target  enums.OrderStatus
	Actor   Actor
	Version int
	Extras  TransitionExtras
}

// ResolveBackorderInput is the admin decision on a pending backorder. Approved
// quantities are keyed by product id and only read for partial approval.
type ResolveBackorderInput struct {
	OrderID            uuid.UUID
	Decision           enums.BackorderDecision
	ApprovedQuantities map[string]int
	Actor              Actor
	Note               *string
}

// PackItemInput marks one sku of a packing order as packed.
type PackItemInput struct {
	OrderID uuid.UUID
	SKU     string
	Version int
	Actor   Actor
}

// UpdateDeliveryInput reschedules or re-addresses an order before packing.
type UpdateDeliveryInput struct {
	OrderID      uuid.UUID
	Version      int
	Actor        Actor
	DeliveryDate *time.Time
	Address      *AddressInput
}

// ListFilter narrows order listings.
type ListFilter struct {
	DeliveryDate *time.Time
	Status       *enums.OrderStatus
	CustomerID   *uuid.UUID
}

// dateOnly truncates t to its calendar day in loc, returned as UTC midnight.
func dateOnly(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
