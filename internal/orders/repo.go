package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/seahsky/joho-erp-sub004/internal/repo"
	"github.com/seahsky/joho-erp-sub004/pkg/db/models"
	"github.com/seahsky/joho-erp-sub004/pkg/enums"
	"github.com/seahsky/joho-erp-sub004/pkg/pagination"
)

type repository struct {
	repo.Base
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Base.WithTx(tx)}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.DB(ctx).Omit(clause.Associations).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.DB(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindWithHistory(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.DB(ctx).
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("occurred_at ASC").Order("id ASC")
		}).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) UpdateVersioned(ctx context.Context, order *models.Order, expected int, columns ...string) (bool, error) {
	order.Version = expected + 1
	order.UpdatedAt = time.Now().UTC()
	selected := append([]string{"version", "updated_at"}, columns...)
	res := r.DB(ctx).
		Model(&models.Order{}).
		Where("id = ? AND version = ?", order.ID, expected).
		Select(selected).
		Omit(clause.Associations).
		Updates(order)
	if res.Error != nil {
		order.Version = expected
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		order.Version = expected
		return false, nil
	}
	return true, nil
}

func (r *repository) AppendHistory(ctx context.Context, event *models.OrderStatusEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	return r.DB(ctx).Create(event).Error
}

func (r *repository) FindCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	if err := r.DB(ctx).Where("id = ?", id).First(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

// OutstandingCents sums the totals of the customer's open orders. Orders waiting on
// backorder approval are excluded.
func (r *repository) OutstandingCents(ctx context.Context, customerID, excludeOrderID uuid.UUID) (int64, error) {
	var total int64
	err := r.DB(ctx).
		Model(&models.Order{}).
		Where("customer_id = ?", customerID).
		Where("id <> ?", excludeOrderID).
		Where("status NOT IN ?", []enums.OrderStatus{enums.OrderStatusDelivered, enums.OrderStatusCancelled}).
		Where("backorder_status <> ?", enums.BackorderStatusPendingApproval).
		Select("COALESCE(SUM(total_cents), 0)").
		Scan(&total).Error
	return total, err
}

func (r *repository) List(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.Order, string, error) {
	query := r.DB(ctx).Model(&models.Order{})
	if filter.DeliveryDate != nil {
		query = query.Where("delivery_date = ?", *filter.DeliveryDate)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	query, err := repo.Paginate(query, params, "created_at", "id")
	if err != nil {
		return nil, "", err
	}
	var rows []models.Order
	if err := query.Find(&rows).Error; err != nil {
		return nil, "", err
	}
	rows, next := pagination.Page(rows, params, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return rows, next, nil
}

func (r *repository) FindIdlePacking(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.Order
	err := r.DB(ctx).
		Where("status = ? AND last_activity_at <= ?", enums.OrderStatusPacking, cutoff).
		Order("last_activity_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ClearInventoryDeducted drops the flag on a cancelled order without bumping its
// version; the order is terminal so no caller holds a version to protect.
func (r *repository) ClearInventoryDeducted(ctx context.Context, id uuid.UUID) error {
	return r.DB(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, enums.OrderStatusCancelled).
		Update("inventory_deducted", false).Error
}

func (r *repository) FindUnrestoredCancelled(ctx context.Context, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.Order
	err := r.DB(ctx).
		Where("status = ? AND inventory_deducted = ?", enums.OrderStatusCancelled, true).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
