package orders

import (
	"net/http"

	"github.com/seahsky/joho-erp-sub004/api/responses"
	"github.com/seahsky/joho-erp-sub004/api/validators"
	internalorders "github.com/seahsky/joho-erp-sub004/internal/orders"
	"github.com/seahsky/joho-erp-sub004/pkg/logger"
)

// ResolveBackorder records the approve, reject or partial approval decision on
// an order awaiting backorder approval.
func ResolveBackorder(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req resolveBackorderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.ResolveBackorder(r.Context(), internalorders.ResolveBackorderInput{
			OrderID:            orderID,
			Decision:           req.Decision,
			ApprovedQuantities: req.ApprovedQuantities,
			Actor:              actor,
			Note:               sanitizeOptional(req.Note),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderResponse(order))
	}
}
