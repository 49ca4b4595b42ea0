package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/seahsky/joho-erp-sub004/api/middleware"
	"github.com/seahsky/joho-erp-sub004/api/responses"
	"github.com/seahsky/joho-erp-sub004/api/validators"
	internalorders "github.com/seahsky/joho-erp-sub004/internal/orders"
	"github.com/seahsky/joho-erp-sub004/pkg/db/models"
	"github.com/seahsky/joho-erp-sub004/pkg/enums"
	pkgerrors "github.com/seahsky/joho-erp-sub004/pkg/errors"
	"github.com/seahsky/joho-erp-sub004/pkg/logger"
	"github.com/seahsky/joho-erp-sub004/pkg/pagination"
)

const maxNoteLength = 500

// Service is the order engine surface the HTTP layer drives.
type Service interface {
	Create(ctx context.Context, actor internalorders.Actor, in internalorders.CreateOrderInput) (*models.Order, error)
	Get(ctx context.Context, actor internalorders.Actor, id uuid.UUID) (*models.Order, error)
	List(ctx context.Context, actor internalorders.Actor, filter internalorders.ListFilter, params pagination.Params) ([]models.Order, string, error)
	Transition(ctx context.Context, in internalorders.TransitionInput) (*models.Order, error)
	ResolveBackorder(ctx context.Context, in internalorders.ResolveBackorderInput) (*models.Order, error)
	MarkItemPacked(ctx context.Context, in internalorders.PackItemInput) (*models.Order, error)
	UpdateDelivery(ctx context.Context, in internalorders.UpdateDeliveryInput) (*models.Order, error)
}

// Create places an order. Customer callers order for their own account.
func Create(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		deliveryDate, err := validators.ParseDate(req.DeliveryDate, "delivery_date")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var customerID uuid.UUID
		switch {
		case req.CustomerID != nil:
			customerID = *req.CustomerID
		case actor.CustomerID != nil:
			customerID = *actor.CustomerID
		default:
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "customer_id is required"))
			return
		}

		order, err := svc.Create(r.Context(), actor, internalorders.CreateOrderInput{
			CustomerID:   customerID,
			Lines:        req.Lines,
			Address:      req.Address,
			DeliveryDate: deliveryDate,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusCreated
		if order.BackorderStatus == enums.BackorderStatusPendingApproval {
			status = http.StatusAccepted
		}
		responses.WriteSuccessStatus(w, status, toOrderResponse(order))
	}
}

// Detail returns one order with its status history.
func Detail(svc Service, logg *logger.Logger) http.HandlerFunc {
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
		order, err := svc.Get(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderResponse(order))
	}
}

// List pages orders, optionally filtered by delivery_date and status.
func List(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, logg)
		if !ok {
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter, err := buildListFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		rows, next, err := svc.List(r.Context(), actor, filter, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]OrderResponse, 0, len(rows))
		for i := range rows {
			out = append(out, toOrderResponse(&rows[i]))
		}
		responses.WriteList(w, out, len(out), next)
	}
}

// Transition moves an order along the fulfillment state machine at the
// caller's last-seen version.
func Transition(svc Service, logg *logger.Logger) http.HandlerFunc {
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
		var req transitionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		target, err := enums.ParseOrderStatus(string(req.Status))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}
		req.Extras.Note = sanitizeOptional(req.Extras.Note)
		req.Extras.ReturnReason = sanitizeOptional(req.Extras.ReturnReason)

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, orderID.String())
		}
		order, err := svc.Transition(ctx, internalorders.TransitionInput{
			OrderID: orderID,
			Target:  target,
			Actor:   actor,
			Version: req.Version,
			Extras:  req.Extras,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderResponse(order))
	}
}

// PackItem marks one sku of a packing order as packed.
func PackItem(svc Service, logg *logger.Logger) http.HandlerFunc {
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
		var req packItemRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.MarkItemPacked(r.Context(), internalorders.PackItemInput{
			OrderID: orderID,
			SKU:     req.SKU,
			Version: req.Version,
			Actor:   actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderResponse(order))
	}
}

// UpdateDelivery reschedules or re-addresses an order that has not started packing.
func UpdateDelivery(svc Service, logg *logger.Logger) http.HandlerFunc {
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
		var req updateDeliveryRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		in := internalorders.UpdateDeliveryInput{
			OrderID: orderID,
			Version: req.Version,
			Actor:   actor,
		}
		if req.DeliveryDate != nil {
			date, err := validators.ParseDate(*req.DeliveryDate, "delivery_date")
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			in.DeliveryDate = &date
		}
		in.Address = req.Address

		order, err := svc.UpdateDelivery(r.Context(), in)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderResponse(order))
	}
}

func buildListFilter(r *http.Request) (internalorders.ListFilter, error) {
	var filter internalorders.ListFilter
	query := r.URL.Query()
	if raw := strings.TrimSpace(query.Get("delivery_date")); raw != "" {
		date, err := validators.ParseDate(raw, "delivery_date")
		if err != nil {
			return filter, err
		}
		filter.DeliveryDate = &date
	}
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filter.Status = &status
	}
	if raw := strings.TrimSpace(query.Get("customer_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid customer_id filter")
		}
		filter.CustomerID = &id
	}
	return filter, nil
}

func requireActor(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (internalorders.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor missing"))
		return internalorders.Actor{}, false
	}
	return actor, true
}

func sanitizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	cleaned := validators.SanitizeString(*value, maxNoteLength)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}
