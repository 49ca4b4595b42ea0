// Package backorders decides when an order goes to admin approval and validates the
// admin's decision. It never touches stock; the orders service applies the outcome.
package backorders

import (
	"github.com/google/uuid"

	"github.com/seahsky/joho-erp-sub004/pkg/db/models"
	"github.com/seahsky/joho-erp-sub004/pkg/enums"
	pkgerrors "github.com/seahsky/joho-erp-sub004/pkg/errors"
)

// Assessment is the result of comparing an order's lines with current stock.
type Assessment struct {
	Shortfall map[string]models.StockShortfall
}

// Short reports whether any line exceeds available stock.
func (a Assessment) Short() bool {
	return len(a.Shortfall) > 0
}

// Assess compares each line with stock. Products absent from stock count as zero.
func Assess(lines []models.OrderLineItem, stock map[uuid.UUID]int) Assessment {
	requested := make(map[uuid.UUID]int, len(lines))
	for _, line := range lines {
		requested[line.ProductID] += line.Quantity
	}
	out := Assessment{}
	for productID, qty := range requested {
		available := stock[productID]
		if available < 0 {
			available = 0
		}
		if qty <= available {
			continue
		}
		if out.Shortfall == nil {
			out.Shortfall = make(map[string]models.StockShortfall)
		}
		out.Shortfall[productID.String()] = models.StockShortfall{
			Requested: qty,
			Available: available,
			Shortfall: qty - available,
		}
	}
	return out
}

// EnsureResolvable fails with ALREADY_RESOLVED unless the order awaits approval.
func EnsureResolvable(order *models.Order) error {
	if order.BackorderStatus != enums.BackorderStatusPendingApproval {
		return pkgerrors.Newf(pkgerrors.CodeAlreadyResolved, "backorder is %s", order.BackorderStatus).
			WithDetails(map[string]any{"backorder_status": order.BackorderStatus})
	}
	return nil
}

// Outcome maps a decision to the backorder status it records and the order status
// it moves to.
func Outcome(decision enums.BackorderDecision) (enums.BackorderStatus, enums.OrderStatus, error) {
	switch decision {
	case enums.BackorderDecisionApprove:
		return enums.BackorderStatusApproved, enums.OrderStatusConfirmed, nil
	case enums.BackorderDecisionReject:
		return enums.BackorderStatusRejected, enums.OrderStatusCancelled, nil
	case enums.BackorderDecisionPartialApprove:
		return enums.BackorderStatusPartialApproved, enums.OrderStatusConfirmed, nil
	default:
		return "", "", pkgerrors.Newf(pkgerrors.CodeValidation, "invalid backorder decision %q", decision)
	}
}

// ApplyPartial validates approved quantities for every short product and returns
// the adjusted lines. Each approved quantity must not exceed the requested or the
// currently available quantity. Lines approved at zero are dropped.
func ApplyPartial(order *models.Order, approved map[string]int, stock map[uuid.UUID]int) ([]models.OrderLineItem, error) {
	fieldErrs := map[string]string{}
	for key := range approved {
		if _, ok := order.StockShortfall[key]; !ok {
			fieldErrs[key] = "product is not short on this order"
		}
	}
	parsed := make(map[uuid.UUID]int, len(order.StockShortfall))
	for key, short := range order.StockShortfall {
		qty, ok := approved[key]
		if !ok {
			fieldErrs[key] = "approved quantity required"
			continue
		}
		productID, err := uuid.Parse(key)
		if err != nil {
			fieldErrs[key] = "invalid product id"
			continue
		}
		switch {
		case qty < 0:
			fieldErrs[key] = "approved quantity must not be negative"
		case qty > short.Requested:
			fieldErrs[key] = "approved quantity exceeds requested quantity"
		case qty > stock[productID]:
			fieldErrs[key] = "approved quantity exceeds available stock"
		default:
			parsed[productID] = qty
		}
	}
	if len(fieldErrs) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid approved quantities").WithDetails(fieldErrs)
	}

	lines := make([]models.OrderLineItem, 0, len(order.LineItems))
	for _, line := range order.LineItems {
		if qty, ok := parsed[line.ProductID]; ok {
			line.Quantity = qty
		}
		if line.Quantity == 0 {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "partial approval leaves no line items; reject instead")
	}
	return lines, nil
}
