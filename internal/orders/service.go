package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/seahsky/joho-erp-sub004/internal/backorders"
	"github.com/seahsky/joho-erp-sub004/internal/inventory"
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

const (
	orderNumberAttempts = 3
	createAttempts      = 2
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// StockLedger is the inventory surface the state machine drives.
type StockLedger interface {
	Products(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
	DeductLines(ctx context.Context, lines []inventory.Line, orderID uuid.UUID, actorID string) error
	RestoreLines(ctx context.Context, lines []inventory.Line, orderID uuid.UUID, actorID, note string) error
	RestoreOrder(ctx context.Context, orderID uuid.UUID, actorID, note string) error
}

// RouteInvalidator flags a (date, area) route for re-optimization inside the
// caller's transaction.
type RouteInvalidator interface {
	MarkStale(ctx context.Context, tx *gorm.DB, date time.Time, area enums.DeliveryArea) error
}

type sinkClient interface {
	Notify(ctx context.Context, n sinks.Notification) error
	SyncAccounting(ctx context.Context, order *models.Order) error
}

type transitionMetrics interface {
	IncTransition(from, to string)
	IncVersionConflict()
}

// Config carries the business constants the state machine needs.
type Config struct {
	TaxRate            decimal.Decimal
	Location           *time.Location
	EnforceCreditLimit bool
	PackingInactivity  time.Duration
}

// Service is the order state machine.
type Service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	ledger  StockLedger
	routes  RouteInvalidator
	sinks   sinkClient
	numbers NumberGenerator
	metrics transitionMetrics
	logg    *logger.Logger
	cfg     Config
	now     func() time.Time
}

// Option customises optional collaborators.
type Option func(*Service)

func WithSinks(s sinkClient) Option { return func(svc *Service) { svc.sinks = s } }

func WithNumberGenerator(g NumberGenerator) Option {
	return func(svc *Service) {
		if g != nil {
			svc.numbers = g
		}
	}
}

func WithMetrics(m transitionMetrics) Option { return func(svc *Service) { svc.metrics = m } }

func WithLogger(l *logger.Logger) Option { return func(svc *Service) { svc.logg = l } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(svc *Service) {
		if now != nil {
			svc.now = now
		}
	}
}

// NewService builds the order state machine with the required dependencies.
func NewService(repo Repository, tx txRunner, publisher outboxPublisher, ledger StockLedger, routes RouteInvalidator, cfg Config, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if routes == nil {
		return nil, fmt.Errorf("route invalidator required")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.PackingInactivity <= 0 {
		cfg.PackingInactivity = 30 * time.Minute
	}
	svc := &Service{
		repo:    repo,
		tx:      tx,
		outbox:  publisher,
		ledger:  ledger,
		routes:  routes,
		numbers: RandomNumbers{},
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Create places an order. When any line exceeds current stock the order is held
// for backorder approval and nothing is deducted; otherwise stock is deducted
// before the order row is written.
func (s *Service) Create(ctx context.Context, actor Actor, in CreateOrderInput) (*models.Order, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}
	switch {
	case actor.Role == enums.ActorRoleCustomer:
		if actor.CustomerID == nil || *actor.CustomerID != in.CustomerID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "customers may only order for their own account")
		}
	case !actor.Role.IsStaff():
		return nil, pkgerrors.Newf(pkgerrors.CodeForbidden, "role %s cannot place orders", actor.Role)
	}
	if in.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if len(in.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one line item required")
	}
	if !in.Address.Area.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid delivery area %q", in.Address.Area)
	}
	deliveryDate, err := s.validateDeliveryDate(in.DeliveryDate)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.FindCustomer(ctx, in.CustomerID); err != nil {
		return nil, loadError(err, "customer")
	}

	ids := make([]uuid.UUID, 0, len(in.Lines))
	seen := make(map[uuid.UUID]struct{}, len(in.Lines))
	for i, line := range in.Lines {
		if line.Quantity <= 0 {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "line %d: quantity must be positive", i)
		}
		if line.UnitPriceCents < 0 {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "line %d: unit price must not be negative", i)
		}
		if _, dup := seen[line.ProductID]; dup {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "line %d: product %s listed twice", i, line.ProductID)
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}
	products, err := s.ledger.Products(ctx, ids)
	if err != nil {
		return nil, err
	}
	items := make([]models.OrderLineItem, 0, len(in.Lines))
	for _, line := range in.Lines {
		product, ok := products[line.ProductID]
		if !ok {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "product %s not found", line.ProductID)
		}
		items = append(items, models.OrderLineItem{
			ProductID:      line.ProductID,
			SKU:            product.SKU,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
		})
	}

	now := s.now()
	order := &models.Order{
		ID:              uuid.New(),
		CustomerID:      in.CustomerID,
		DeliveryAddress: in.Address.toModel(),
		DeliveryDate:    deliveryDate,
		Status:          enums.OrderStatusPending,
		BackorderStatus: enums.BackorderStatusNone,
		LastActivityAt:  now,
		Version:         1,
	}
	applyTotals(order, items, s.cfg.TaxRate)

	if err := s.reserveOrHold(ctx, order, products, actor); err != nil {
		return nil, err
	}

	if err := s.insert(ctx, order, actor, now); err != nil {
		if order.InventoryDeducted {
			s.compensate(ctx, order.ID, linesOf(order.LineItems), actor.ID)
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncTransition("", string(enums.OrderStatusPending))
	}
	s.notify(ctx, sinks.Notification{
		Type:    enums.NotificationOrderCreated,
		OrderID: &order.ID,
		Subject: order.ID.String(),
		Data:    map[string]any{"order_number": order.OrderNumber, "total_cents": order.TotalCents},
	})
	if order.BackorderStatus == enums.BackorderStatusPendingApproval {
		s.notify(ctx, sinks.Notification{
			Type:    enums.NotificationBackorderPending,
			OrderID: &order.ID,
			Subject: order.ID.String(),
			Data:    map[string]any{"order_number": order.OrderNumber, "shortfall": order.StockShortfall},
		})
	}
	return order, nil
}

// reserveOrHold deducts stock for a fully covered order or records the shortfall.
// A deduction lost to a concurrent order re-assesses against fresh stock.
func (s *Service) reserveOrHold(ctx context.Context, order *models.Order, products map[uuid.UUID]models.Product, actor Actor) error {
	var lastErr error
	for attempt := 0; attempt < createAttempts; attempt++ {
		if attempt > 0 {
			fresh, err := s.ledger.Products(ctx, productIDs(order.LineItems))
			if err != nil {
				return err
			}
			products = fresh
		}
		stock := make(map[uuid.UUID]int, len(products))
		for id, p := range products {
			stock[id] = p.CurrentStock
		}
		assessment := backorders.Assess(order.LineItems, stock)
		if assessment.Short() {
			order.BackorderStatus = enums.BackorderStatusPendingApproval
			order.StockShortfall = assessment.Shortfall
			order.InventoryDeducted = false
			return nil
		}
		err := s.ledger.DeductLines(ctx, linesOf(order.LineItems), order.ID, actor.ID)
		if err == nil {
			order.InventoryDeducted = true
			return nil
		}
		if !pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func (s *Service) insert(ctx context.Context, order *models.Order, actor Actor, now time.Time) error {
	day := now.In(s.cfg.Location)
	var err error
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		order.OrderNumber, err = s.numbers.Next(ctx, day)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "issue order number")
		}
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			if err := repo.Create(ctx, order); err != nil {
				return err
			}
			if err := repo.AppendHistory(ctx, historyEntry(order.ID, nil, enums.OrderStatusPending, actor, nil, now)); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append status history")
			}
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderCreated,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         actorRef(actor),
				OccurredAt:    now,
				Data: payloads.OrderCreatedEvent{
					OrderID:         order.ID,
					OrderNumber:     order.OrderNumber,
					CustomerID:      order.CustomerID,
					DeliveryDate:    order.DeliveryDate.Format("2006-01-02"),
					Area:            order.DeliveryAddress.Area,
					BackorderStatus: order.BackorderStatus,
					TotalCents:      order.TotalCents,
				},
			})
		})
		if err == nil {
			return nil
		}
		if !isOrderNumberCollision(err) {
			break
		}
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
}

// Get returns an order with its status history.
func (s *Service) Get(ctx context.Context, actor Actor, id uuid.UUID) (*models.Order, error) {
	if err := validateActor(actor); err != nil {
		return nil, err
	}
	order, err := s.repo.FindWithHistory(ctx, id)
	if err != nil {
		return nil, loadError(err, "order")
	}
	if actor.Role == enums.ActorRoleCustomer && !actor.owns(order) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to customer")
	}
	return order, nil
}

// List pages orders newest first. Customers only see their own orders.
func (s *Service) List(ctx context.Context, actor Actor, filter ListFilter, params pagination.Params) ([]models.Order, string, error) {
	if err := validateActor(actor); err != nil {
		return nil, "", err
	}
	if actor.Role == enums.ActorRoleCustomer {
		if actor.CustomerID == nil {
			return nil, "", pkgerrors.New(pkgerrors.CodeForbidden, "customer context missing")
		}
		filter.CustomerID = actor.CustomerID
	}
	if filter.DeliveryDate != nil {
		d := dateOnly(*filter.DeliveryDate, nil)
		filter.DeliveryDate = &d
	}
	rows, next, err := s.repo.List(ctx, filter, params)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, "", typed
		}
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return rows, next, nil
}

// IdlePacking lists packing orders whose last activity is at or before cutoff.
func (s *Service) IdlePacking(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	rows, err := s.repo.FindIdlePacking(ctx, cutoff, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list idle packing orders")
	}
	return rows, nil
}

// PackingInactivity is the idle window after which a packing session expires.
func (s *Service) PackingInactivity() time.Duration {
	return s.cfg.PackingInactivity
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, loadError(err, "order")
	}
	return order, nil
}

func (s *Service) validateDeliveryDate(date time.Time) (time.Time, error) {
	if date.IsZero() {
		return time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "delivery date required")
	}
	day := dateOnly(date, nil)
	today := dateOnly(s.now(), s.cfg.Location)
	if day.Before(today) {
		return time.Time{}, pkgerrors.Newf(pkgerrors.CodeValidation, "delivery date %s is in the past", day.Format("2006-01-02")).
			WithDetails(map[string]string{"delivery_date": "must be today or later"})
	}
	return day, nil
}

func (s *Service) checkCredit(ctx context.Context, order *models.Order) error {
	if !s.cfg.EnforceCreditLimit {
		return nil
	}
	customer, err := s.repo.FindCustomer(ctx, order.CustomerID)
	if err != nil {
		return loadError(err, "customer")
	}
	if customer.CreditLimitCents <= 0 {
		return nil
	}
	outstanding, err := s.repo.OutstandingCents(ctx, order.CustomerID, order.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum outstanding orders")
	}
	if outstanding+order.TotalCents > customer.CreditLimitCents {
		return pkgerrors.New(pkgerrors.CodeCreditLimitExceeded, "order would exceed the customer's credit limit").
			WithDetails(map[string]any{
				"credit_limit_cents": customer.CreditLimitCents,
				"outstanding_cents":  outstanding,
				"order_total_cents":  order.TotalCents,
			})
	}
	return nil
}

func (s *Service) compensate(ctx context.Context, orderID uuid.UUID, lines []inventory.Line, actorID string) {
	if err := s.ledger.RestoreLines(ctx, lines, orderID, actorID, "compensation"); err != nil && s.logg != nil {
		s.logg.Error(s.logg.WithOrderID(ctx, orderID.String()), "compensating stock restore failed", err)
	}
}

func (s *Service) notify(ctx context.Context, n sinks.Notification) {
	if s.sinks == nil {
		return
	}
	if err := s.sinks.Notify(ctx, n); err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"notification": string(n.Type),
			"error":        err.Error(),
		}), "notification sink failed")
	}
}

func (s *Service) syncAccounting(ctx context.Context, order *models.Order) {
	if s.sinks == nil {
		return
	}
	if err := s.sinks.SyncAccounting(ctx, order); err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"order_id": order.ID.String(),
			"error":    err.Error(),
		}), "accounting sink failed")
	}
}

func validateActor(actor Actor) error {
	if strings.TrimSpace(actor.ID) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	if !actor.Role.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeForbidden, "unknown actor role %q", actor.Role)
	}
	return nil
}

func actorRef(actor Actor) *outbox.ActorRef {
	return &outbox.ActorRef{ID: actor.ID, Role: string(actor.Role)}
}

func historyEntry(orderID uuid.UUID, from *enums.OrderStatus, to enums.OrderStatus, actor Actor, note *string, at time.Time) *models.OrderStatusEvent {
	return &models.OrderStatusEvent{
		ID:         uuid.New(),
		OrderID:    orderID,
		FromStatus: from,
		ToStatus:   to,
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Note:       note,
		OccurredAt: at,
	}
}

func linesOf(items []models.OrderLineItem) []inventory.Line {
	lines := make([]inventory.Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, inventory.Line{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return lines
}

func productIDs(items []models.OrderLineItem) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	return ids
}

func loadError(err error, what string) error {
	if dbpkg.IsNotFound(err) {
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "%s not found", what)
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load "+what)
}

func isOrderNumberCollision(err error) bool {
	return dbpkg.IsUniqueViolation(err, "orders_order_number_key") ||
		dbpkg.IsUniqueViolation(err, "orders.order_number")
}
