package inventory

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/seahsky/joho-erp-sub004/api/middleware"
	"github.com/seahsky/joho-erp-sub004/api/responses"
	"github.com/seahsky/joho-erp-sub004/api/validators"
	internalinventory "github.com/seahsky/joho-erp-sub004/internal/inventory"
	"github.com/seahsky/joho-erp-sub004/pkg/db/models"
	"github.com/seahsky/joho-erp-sub004/pkg/enums"
	pkgerrors "github.com/seahsky/joho-erp-sub004/pkg/errors"
	"github.com/seahsky/joho-erp-sub004/pkg/logger"
	"github.com/seahsky/joho-erp-sub004/pkg/pagination"
)

// Ledger is the stock ledger surface the HTTP layer drives.
type Ledger interface {
	Product(ctx context.Context, id uuid.UUID) (*models.Product, error)
	Adjust(ctx context.Context, a internalinventory.Adjustment) (*models.InventoryTransaction, error)
	Reconcile(ctx context.Context, productID uuid.UUID) (*internalinventory.Reconciliation, error)
	History(ctx context.Context, productID uuid.UUID, params pagination.Params) ([]models.InventoryTransaction, string, error)
}

type adjustRequest struct {
	Delta  int                    `json:"delta" validate:"ne=0"`
	Reason enums.AdjustmentReason `json:"reason" validate:"required"`
	Note   string                 `json:"note" validate:"max=500"`
}

type productResponse struct {
	ID                uuid.UUID `json:"id"`
	SKU               string    `json:"sku"`
	Name              string    `json:"name"`
	Unit              string    `json:"unit"`
	CurrentStock      int       `json:"current_stock"`
	LowStockThreshold int       `json:"low_stock_threshold"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type transactionResponse struct {
	ID               uuid.UUID                      `json:"id"`
	ProductID        uuid.UUID                      `json:"product_id"`
	Type             enums.InventoryTransactionType `json:"type"`
	AdjustmentReason *enums.AdjustmentReason        `json:"adjustment_reason,omitempty"`
	Quantity         int                            `json:"quantity"`
	PreviousStock    int                            `json:"previous_stock"`
	NewStock         int                            `json:"new_stock"`
	ReferenceOrderID *uuid.UUID                     `json:"reference_order_id,omitempty"`
	ActorID          string                         `json:"actor_id"`
	Note             *string                        `json:"note,omitempty"`
	CreatedAt        time.Time                      `json:"created_at"`
}

// Product returns the current stock of one product.
func Product(ledger Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		product, err := ledger.Product(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, productResponse{
			ID:                product.ID,
			SKU:               product.SKU,
			Name:              product.Name,
			Unit:              product.Unit,
			CurrentStock:      product.CurrentStock,
			LowStockThreshold: product.LowStockThreshold,
			UpdatedAt:         product.UpdatedAt,
		})
	}
}

// Adjust applies a signed stock correction with a reason.
func Adjust(ledger Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req adjustRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reason, err := enums.ParseAdjustmentReason(string(req.Reason))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid adjustment reason"))
			return
		}
		entry, err := ledger.Adjust(r.Context(), internalinventory.Adjustment{
			ProductID: productID,
			Delta:     req.Delta,
			Reason:    reason,
			ActorID:   middleware.ActorIDFromContext(r.Context()),
			Note:      validators.SanitizeString(req.Note, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toTransactionResponse(*entry))
	}
}

// Reconcile compares the stock counter with the ledger sum.
func Reconcile(ledger Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := ledger.Reconcile(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

// History pages a product's ledger entries newest first.
func History(ledger Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, next, err := ledger.History(r.Context(), productID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]transactionResponse, 0, len(rows))
		for _, row := range rows {
			out = append(out, toTransactionResponse(row))
		}
		responses.WriteList(w, out, len(out), next)
	}
}

func toTransactionResponse(t models.InventoryTransaction) transactionResponse {
	return transactionResponse{
		ID:               t.ID,
		ProductID:        t.ProductID,
		Type:             t.Type,
		AdjustmentReason: t.AdjustmentReason,
		Quantity:         t.Quantity,
		PreviousStock:    t.PreviousStock,
		NewStock:         t.NewStock,
		ReferenceOrderID: t.ReferenceOrderID,
		ActorID:          t.ActorID,
		Note:             t.Note,
		CreatedAt:        t.CreatedAt,
	}
}
