package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/seahsky/joho-erp-sub004/internal/repo"
	"github.com/seahsky/joho-erp-sub004/pkg/db/models"
	"github.com/seahsky/joho-erp-sub004/pkg/pagination"
)

type repository struct {
	repo.Base
}

// NewRepository builds an inventory repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Base.WithTx(tx)}
}

func (r *repository) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.DB(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) FindProducts(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var products []models.Product
	if err := r.DB(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

func (r *repository) CompareAndSwapStock(ctx context.Context, id uuid.UUID, expected, next int) (bool, error) {
	res := r.DB(ctx).
		Model(&models.Product{}).
		Where("id = ? AND current_stock = ?", id, expected).
		Updates(map[string]any{
			"current_stock": next,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) AppendTransaction(ctx context.Context, entry *models.InventoryTransaction) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.DB(ctx).Create(entry).Error
}

func (r *repository) SumDeltas(ctx context.Context, productID uuid.UUID) (int, error) {
	var total int
	err := r.DB(ctx).
		Model(&models.InventoryTransaction{}).
		Where("product_id = ?", productID).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	return total, err
}

func (r *repository) NetDeductedByOrder(ctx context.Context, orderID uuid.UUID) (map[uuid.UUID]int, error) {
	var rows []struct {
		ProductID uuid.UUID
		Net       int
	}
	err := r.DB(ctx).
		Model(&models.InventoryTransaction{}).
		Select("product_id, -SUM(quantity) AS net").
		Where("reference_order_id = ?", orderID).
		Group("product_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]int, len(rows))
	for _, row := range rows {
		if row.Net > 0 {
			out[row.ProductID] = row.Net
		}
	}
	return out, nil
}

func (r *repository) ListTransactions(ctx context.Context, productID uuid.UUID, params pagination.Params) ([]models.InventoryTransaction, string, error) {
	query, err := repo.Paginate(
		r.DB(ctx).Model(&models.InventoryTransaction{}).Where("product_id = ?", productID),
		params, "created_at", "id",
	)
	if err != nil {
		return nil, "", err
	}
	var rows []models.InventoryTransaction
	if err := query.Find(&rows).Error; err != nil {
		return nil, "", err
	}
	rows, next := pagination.Page(rows, params, func(row models.InventoryTransaction) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return rows, next, nil
}
