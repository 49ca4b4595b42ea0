package inventory

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/seahsky/joho-erp-sub004/pkg/db/models"
	"github.com/seahsky/joho-erp-sub004/pkg/pagination"
)

// Repository persists products and their append-only transaction log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindProducts(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
	// CompareAndSwapStock writes next only while current_stock still equals expected.
	CompareAndSwapStock(ctx context.Context, id uuid.UUID, expected, next int) (bool, error)
	AppendTransaction(ctx context.Context, entry *models.InventoryTransaction) error
	SumDeltas(ctx context.Context, productID uuid.UUID) (int, error)
	// NetDeductedByOrder returns, per product, the stock an order still holds.
	NetDeductedByOrder(ctx context.Context, orderID uuid.UUID) (map[uuid.UUID]int, error)
	ListTransactions(ctx context.Context, productID uuid.UUID, params pagination.Params) ([]models.InventoryTransaction, string, error)
}
