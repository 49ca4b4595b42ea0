package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/seahsky/joho-erp-sub004/internal/sinks"
	dbpkg "github.com/seahsky/joho-erp-sub004/pkg/db"
	"github.com/seahsky/joho-erp-sub004/pkg/db/models"
	"github.com/seahsky/joho-erp-sub004/pkg/enums"
	pkgerrors "github.com/seahsky/joho-erp-sub004/pkg/errors"
	"github.com/seahsky/joho-erp-sub004/pkg/logger"
	"github.com/seahsky/joho-erp-sub004/pkg/outbox"
	"github.com/seahsky/joho-erp-sub004/pkg/outbox/payloads"
	"github.com/seahsky/joho-erp-sub004/pkg/pagination"
)

const defaultMaxAttempts = 8

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type notifier interface {
	Notify(ctx context.Context, n sinks.Notification) error
}

type ledgerMetrics interface {
	IncLedgerRetry(txType string)
	IncInsufficientStock()
}

// Entry is one deduct or restore request.
type Entry struct {
	ProductID        uuid.UUID
	Quantity         int
	Type             enums.InventoryTransactionType
	ReferenceOrderID *uuid.UUID
	ActorID          string
	Note             string
}

// Adjustment is a signed stock correction with a reason.
type Adjustment struct {
	ProductID uuid.UUID
	Delta     int
	Reason    enums.AdjustmentReason
	ActorID   string
	Note      string
}

// Line is one product quantity of a multi-line order.
type Line struct {
	ProductID uuid.UUID
	Quantity  int
}

// Reconciliation compares the stock counter with the sum of ledger deltas.
type Reconciliation struct {
	ProductID    uuid.UUID `json:"product_id"`
	CurrentStock int       `json:"current_stock"`
	LedgerSum    int       `json:"ledger_sum"`
	Drift        int       `json:"drift"`
	Consistent   bool      `json:"consistent"`
}

// Ledger is the only writer of products.current_stock. Each call writes the new
// stock and appends its transaction row inside one database transaction.
type Ledger struct {
	repo        Repository
	tx          txRunner
	outbox      outboxPublisher
	notify      notifier
	metrics     ledgerMetrics
	logg        *logger.Logger
	maxAttempts int
}

// LedgerOption customises optional collaborators.
type LedgerOption func(*Ledger)

// WithNotifier enables low-stock notifications.
func WithNotifier(n notifier) LedgerOption {
	return func(l *Ledger) { l.notify = n }
}

// WithMetrics records CAS retries and stock rejections.
func WithMetrics(m ledgerMetrics) LedgerOption {
	return func(l *Ledger) { l.metrics = m }
}

// WithLogger attaches a logger.
func WithLogger(logg *logger.Logger) LedgerOption {
	return func(l *Ledger) { l.logg = logg }
}

// WithMaxAttempts bounds the compare-and-swap retry loop.
func WithMaxAttempts(n int) LedgerOption {
	return func(l *Ledger) {
		if n > 0 {
			l.maxAttempts = n
		}
	}
}

func NewLedger(repo Repository, tx txRunner, publisher outboxPublisher, opts ...LedgerOption) (*Ledger, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	l := &Ledger{
		repo:        repo,
		tx:          tx,
		outbox:      publisher,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Deduct removes stock. It fails with INSUFFICIENT_STOCK when quantity exceeds the
// current stock.
func (l *Ledger) Deduct(ctx context.Context, e Entry) (*models.InventoryTransaction, error) {
	if e.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if e.Type == "" {
		e.Type = enums.InventoryTransactionSale
	}
	return l.apply(ctx, e.ProductID, -e.Quantity, e.Type, nil, e.ReferenceOrderID, e.ActorID, e.Note)
}

// Restore puts stock back, typically for a cancelled order.
func (l *Ledger) Restore(ctx context.Context, e Entry) (*models.InventoryTransaction, error) {
	if e.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if e.Type == "" {
		e.Type = enums.InventoryTransactionReturn
	}
	return l.apply(ctx, e.ProductID, e.Quantity, e.Type, nil, e.ReferenceOrderID, e.ActorID, e.Note)
}

// Adjust applies a signed correction (damage, expiry, count, receiving).
func (l *Ledger) Adjust(ctx context.Context, a Adjustment) (*models.InventoryTransaction, error) {
	if a.Delta == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delta must not be zero")
	}
	if !a.Reason.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid adjustment reason %q", a.Reason)
	}
	reason := a.Reason
	return l.apply(ctx, a.ProductID, a.Delta, enums.InventoryTransactionAdjustment, &reason, nil, a.ActorID, a.Note)
}

// DeductLines deducts every line as its own ledger call. When a line fails, the
// lines already deducted are restored before the error is returned.
func (l *Ledger) DeductLines(ctx context.Context, lines []Line, orderID uuid.UUID, actorID string) error {
	ref := orderID
	done := make([]Line, 0, len(lines))
	for _, line := range lines {
		_, err := l.Deduct(ctx, Entry{
			ProductID:        line.ProductID,
			Quantity:         line.Quantity,
			Type:             enums.InventoryTransactionSale,
			ReferenceOrderID: &ref,
			ActorID:          actorID,
		})
		if err == nil {
			done = append(done, line)
			continue
		}
		if cerr := l.RestoreLines(ctx, done, orderID, actorID, "compensation"); cerr != nil {
			if l.logg != nil {
				l.logg.Error(l.logg.WithOrderID(ctx, orderID.String()), "compensating restore failed", cerr)
			}
			return multierr.Combine(err, cerr)
		}
		return err
	}
	return nil
}

// RestoreLines restores every line, continuing past individual failures.
func (l *Ledger) RestoreLines(ctx context.Context, lines []Line, orderID uuid.UUID, actorID, note string) error {
	ref := orderID
	var errs error
	for _, line := range lines {
		_, err := l.Restore(ctx, Entry{
			ProductID:        line.ProductID,
			Quantity:         line.Quantity,
			Type:             enums.InventoryTransactionReturn,
			ReferenceOrderID: &ref,
			ActorID:          actorID,
			Note:             note,
		})
		errs = multierr.Append(errs, err)
	}
	return errs
}

// RestoreOrder returns whatever stock the order still holds according to the
// ledger. Running it twice restores nothing the second time.
func (l *Ledger) RestoreOrder(ctx context.Context, orderID uuid.UUID, actorID, note string) error {
	held, err := l.repo.NetDeductedByOrder(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order deductions")
	}
	lines := make([]Line, 0, len(held))
	for productID, qty := range held {
		lines = append(lines, Line{ProductID: productID, Quantity: qty})
	}
	sort.Slice(lines, func(i, j int) bool {
		return lines[i].ProductID.String() < lines[j].ProductID.String()
	})
	return l.RestoreLines(ctx, lines, orderID, actorID, note)
}

// Products loads the products for ids keyed by id.
func (l *Ledger) Products(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	products, err := l.repo.FindProducts(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	out := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

// Product loads one product.
func (l *Ledger) Product(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product, err := l.repo.FindProduct(ctx, id)
	if err != nil {
		return nil, productLoadError(err, id)
	}
	return product, nil
}

// Reconcile reports drift between current_stock and the ledger sum.
func (l *Ledger) Reconcile(ctx context.Context, productID uuid.UUID) (*Reconciliation, error) {
	var out *Reconciliation
	err := l.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := l.repo.WithTx(tx)
		product, err := repo.FindProduct(ctx, productID)
		if err != nil {
			return productLoadError(err, productID)
		}
		sum, err := repo.SumDeltas(ctx, productID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum ledger deltas")
		}
		out = &Reconciliation{
			ProductID:    productID,
			CurrentStock: product.CurrentStock,
			LedgerSum:    sum,
			Drift:        product.CurrentStock - sum,
			Consistent:   product.CurrentStock == sum,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !out.Consistent && l.logg != nil {
		l.logg.Warn(l.logg.WithFields(ctx, map[string]any{
			"product_id": productID.String(),
			"drift":      out.Drift,
		}), "inventory ledger drift detected")
	}
	return out, nil
}

// History pages through a product's transactions, newest first.
func (l *Ledger) History(ctx context.Context, productID uuid.UUID, params pagination.Params) ([]models.InventoryTransaction, string, error) {
	rows, next, err := l.repo.ListTransactions(ctx, productID, params)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, "", typed
		}
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list inventory transactions")
	}
	return rows, next, nil
}

var errStockMoved = errors.New("stock moved concurrently")

func (l *Ledger) apply(
	ctx context.Context,
	productID uuid.UUID,
	delta int,
	txType enums.InventoryTransactionType,
	reason *enums.AdjustmentReason,
	orderID *uuid.UUID,
	actorID string,
	note string,
) (*models.InventoryTransaction, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if actorID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor id required")
	}

	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		var (
			entry   *models.InventoryTransaction
			product *models.Product
		)
		err := l.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := l.repo.WithTx(tx)
			var err error
			product, err = repo.FindProduct(ctx, productID)
			if err != nil {
				return productLoadError(err, productID)
			}

			next := product.CurrentStock + delta
			if next < 0 {
				return pkgerrors.Newf(pkgerrors.CodeInsufficientStock, "insufficient stock for %s", product.SKU).
					WithDetails(map[string]any{
						"product_id": productID.String(),
						"requested":  -delta,
						"available":  product.CurrentStock,
					})
			}

			swapped, err := repo.CompareAndSwapStock(ctx, productID, product.CurrentStock, next)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update stock")
			}
			if !swapped {
				return errStockMoved
			}

			entry = &models.InventoryTransaction{
				ID:               uuid.New(),
				ProductID:        productID,
				Type:             txType,
				AdjustmentReason: reason,
				Quantity:         delta,
				PreviousStock:    product.CurrentStock,
				NewStock:         next,
				ReferenceOrderID: orderID,
				ActorID:          actorID,
			}
			if note != "" {
				n := note
				entry.Note = &n
			}
			if err := repo.AppendTransaction(ctx, entry); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append inventory transaction")
			}

			return l.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventInventoryTransactionRecorded,
				AggregateType: enums.AggregateProduct,
				AggregateID:   productID,
				Actor:         &outbox.ActorRef{ID: actorID},
				Data: payloads.InventoryTransactionRecordedEvent{
					TransactionID:    entry.ID,
					ProductID:        productID,
					Type:             txType,
					Quantity:         delta,
					PreviousStock:    entry.PreviousStock,
					NewStock:         next,
					ReferenceOrderID: orderID,
				},
			})
		})
		if errors.Is(err, errStockMoved) {
			if l.metrics != nil {
				l.metrics.IncLedgerRetry(string(txType))
			}
			continue
		}
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) && l.metrics != nil {
				l.metrics.IncInsufficientStock()
			}
			return nil, err
		}

		l.afterCommit(ctx, product, entry)
		return entry, nil
	}

	return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "stock for product %s changed too often; retry", productID).
		WithDetails(map[string]any{"attempts": l.maxAttempts})
}

func (l *Ledger) afterCommit(ctx context.Context, product *models.Product, entry *models.InventoryTransaction) {
	if l.logg != nil {
		l.logg.Info(l.logg.WithFields(ctx, map[string]any{
			"product_id": entry.ProductID.String(),
			"type":       string(entry.Type),
			"delta":      entry.Quantity,
			"new_stock":  entry.NewStock,
		}), "inventory transaction recorded")
	}
	if l.notify == nil || entry.Quantity >= 0 {
		return
	}
	threshold := product.LowStockThreshold
	if threshold <= 0 || entry.PreviousStock <= threshold || entry.NewStock > threshold {
		return
	}
	n := sinks.Notification{
		Type:          enums.NotificationLowStock,
		AggregateType: enums.AggregateProduct,
		AggregateID:   entry.ProductID,
		OrderID:       entry.ReferenceOrderID,
		Subject:       entry.ID.String(),
		Data: map[string]any{
			"product_id":    entry.ProductID.String(),
			"sku":           product.SKU,
			"current_stock": entry.NewStock,
			"threshold":     threshold,
		},
	}
	if err := l.notify.Notify(ctx, n); err != nil && l.logg != nil {
		l.logg.Error(l.logg.WithField(ctx, "product_id", entry.ProductID.String()), "low stock notification failed", err)
	}
}

func productLoadError(err error, id uuid.UUID) error {
	if dbpkg.IsNotFound(err) {
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "product %s not found", id)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
}
