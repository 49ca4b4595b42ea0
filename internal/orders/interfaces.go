package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/seahsky/joho-erp-sub004/pkg/db/models"
	"github.com/seahsky/joho-erp-sub004/pkg/pagination"
)

// Repository defines persistence operations for orders and their status history.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindWithHistory(ctx context.Context, id uuid.UUID) (*models.Order, error)
	// UpdateVersioned writes columns from order only while the stored version still
	// equals expected, and bumps the version. It reports false when nothing matched.
	UpdateVersioned(ctx context.Context, order *models.Order, expected int, columns ...string) (bool, error)
	AppendHistory(ctx context.Context, event *models.OrderStatusEvent) error
	FindCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	OutstandingCents(ctx context.Context, customerID, excludeOrderID uuid.UUID) (int64, error)
	List(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.Order, string, error)
	FindIdlePacking(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	ClearInventoryDeducted(ctx context.Context, id uuid.UUID) error
	// FindUnrestoredCancelled lists cancelled orders whose stock has not been returned yet.
	FindUnrestoredCancelled(ctx context.Context, limit int) ([]models.Order, error)
}
