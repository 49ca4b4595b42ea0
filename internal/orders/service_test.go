package orders

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/seahsky/joho-erp-sub004/internal/inventory"
	"github.com/seahsky/joho-erp-sub004/internal/sinks"
	"github.com/seahsky/joho-erp-sub004/pkg/db"
	"github.com/seahsky/joho-erp-sub004/pkg/db/dbtest"
	"github.com/seahsky/joho-erp-sub004/pkg/db/models"
	"github.com/seahsky/joho-erp-sub004/pkg/enums"
	pkgerrors "github.com/seahsky/joho-erp-sub004/pkg/errors"
	"github.com/seahsky/joho-erp-sub004/pkg/outbox"
	"github.com/seahsky/joho-erp-sub004/pkg/pagination"
)

var (
	staff   = Actor{ID: "staff-1", Role: enums.ActorRoleStaff}
	manager = Actor{ID: "manager-1", Role: enums.ActorRoleManager}
	driver  = Actor{ID: "driver-1", Role: enums.ActorRoleDriver}
)

type staleRoute struct {
	date time.Time
	area enums.DeliveryArea
}

type recordingRoutes struct {
	mu    sync.Mutex
	stale []staleRoute
}

func (r *recordingRoutes) MarkStale(ctx context.Context, tx *gorm.DB, date time.Time, area enums.DeliveryArea) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stale = append(r.stale, staleRoute{date: date, area: area})
	return nil
}

func (r *recordingRoutes) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stale)
}

type recordingSinks struct {
	mu     sync.Mutex
	notes  []sinks.Notification
	synced []enums.OrderStatus
}

func (r *recordingSinks) Notify(ctx context.Context, n sinks.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	return nil
}

func (r *recordingSinks) SyncAccounting(ctx context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.synced = append(r.synced, order.Status)
	return nil
}

func (r *recordingSinks) sent(kind enums.NotificationType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, note := range r.notes {
		if note.Type == kind {
			n++
		}
	}
	return n
}

// flakyLedger fails the next restoreFailures RestoreOrder calls before
// delegating to the real ledger.
type flakyLedger struct {
	*inventory.Ledger
	mu              sync.Mutex
	restoreFailures int
}

func (l *flakyLedger) failRestores(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.restoreFailures = n
}

func (l *flakyLedger) RestoreOrder(ctx context.Context, orderID uuid.UUID, actorID, note string) error {
	l.mu.Lock()
	if l.restoreFailures > 0 {
		l.restoreFailures--
		l.mu.Unlock()
		return pkgerrors.New(pkgerrors.CodeDependency, "ledger unavailable")
	}
	l.mu.Unlock()
	return l.Ledger.RestoreOrder(ctx, orderID, actorID, note)
}

type fixture struct {
	svc    *Service
	conn   *gorm.DB
	ledger *flakyLedger
	routes *recordingRoutes
	sinks  *recordingSinks
	now    time.Time
	day    time.Time
}

func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()
	conn := dbtest.New(t)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	client := db.NewFromConn(conn)
	publisher := outbox.NewService(outbox.NewRepository(conn), nil)
	ledger, err := inventory.NewLedger(inventory.NewRepository(conn), client, publisher)
	require.NoError(t, err)

	f := &fixture{
		conn:   conn,
		ledger: &flakyLedger{Ledger: ledger},
		routes: &recordingRoutes{},
		sinks:  &recordingSinks{},
		now:    time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC),
		day:    time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC),
	}
	cfg := Config{TaxRate: decimal.RequireFromString("0.1"), PackingInactivity: 30 * time.Minute}
	for _, m := range mutate {
		m(&cfg)
	}
	f.svc, err = NewService(NewRepository(conn), client, publisher, f.ledger, f.routes, cfg,
		WithSinks(f.sinks),
		WithClock(func() time.Time { return f.now }),
	)
	require.NoError(t, err)
	return f
}

func (f *fixture) seedCustomer(t *testing.T, limitCents int64) uuid.UUID {
	t.Helper()
	c := models.Customer{ID: uuid.New(), Name: "Harbour Bistro", CreditLimitCents: limitCents}
	require.NoError(t, f.conn.Create(&c).Error)
	return c.ID
}

func (f *fixture) seedProduct(t *testing.T, sku string, stock int) uuid.UUID {
	t.Helper()
	p := models.Product{ID: uuid.New(), SKU: sku, Name: sku, Unit: "kg", CurrentStock: stock}
	require.NoError(t, f.conn.Create(&p).Error)
	return p.ID
}

func (f *fixture) stock(t *testing.T, productID uuid.UUID) int {
	t.Helper()
	var p models.Product
	require.NoError(t, f.conn.Where("id = ?", productID).First(&p).Error)
	return p.CurrentStock
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *models.Order {
	t.Helper()
	order, err := NewRepository(f.conn).FindWithHistory(context.Background(), id)
	require.NoError(t, err)
	return order
}

func (f *fixture) place(t *testing.T, actor Actor, customerID uuid.UUID, lines ...LineInput) *models.Order {
	t.Helper()
	order, err := f.svc.Create(context.Background(), actor, CreateOrderInput{
		CustomerID:   customerID,
		Lines:        lines,
		Address:      testAddress(enums.DeliveryAreaNorth),
		DeliveryDate: f.day,
	})
	require.NoError(t, err)
	return order
}

func (f *fixture) move(t *testing.T, order *models.Order, target enums.OrderStatus, actor Actor, extras TransitionExtras) *models.Order {
	t.Helper()
	updated, err := f.svc.Transition(context.Background(), TransitionInput{
		OrderID: order.ID,
		Target:  target,
		Actor:   actor,
		Version: order.Version,
		Extras:  extras,
	})
	require.NoError(t, err)
	return updated
}

// packAll drives a confirmed order to ready_for_delivery.
func (f *fixture) packAll(t *testing.T, order *models.Order) *models.Order {
	t.Helper()
	order = f.move(t, order, enums.OrderStatusPacking, staff, TransitionExtras{})
	for _, line := range order.LineItems {
		var err error
		order, err = f.svc.MarkItemPacked(context.Background(), PackItemInput{
			OrderID: order.ID, SKU: line.SKU, Version: order.Version, Actor: staff,
		})
		require.NoError(t, err)
	}
	return f.move(t, order, enums.OrderStatusReadyForDelivery, staff, TransitionExtras{})
}

func testAddress(area enums.DeliveryArea) AddressInput {
	lat, lng := -33.86, 151.21
	return AddressInput{Line1: "1 Quay St", Suburb: "Sydney", State: "NSW", Postcode: "2000", Lat: &lat, Lng: &lng, Area: area}
}

func newOrderFor(t *testing.T) *models.Order {
	t.Helper()
	return &models.Order{ID: uuid.New(), CustomerID: uuid.New(), Status: enums.OrderStatusPending, Version: 1}
}

func ptr[T any](v T) *T { return &v }

func outboxCount(t *testing.T, conn *gorm.DB, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&n).Error)
	return n
}

func TestCreateDeductsStockWhenCovered(t *testing.T) {
	f := newFixture(t)
	customer := f.seedCustomer(t, 0)
	lamb := f.seedProduct(t, "LAMB-RACK", 10)

	order := f.place(t, staff, customer, LineInput{ProductID: lamb, Quantity: 4, UnitPriceCents: 2500})

	require.Equal(t, enums.OrderStatusPending, order.Status)
	require.Equal(t, enums.BackorderStatusNone, order.BackorderStatus)
	require.True(t, order.InventoryDeducted)
	require.Equal(t, 1, order.Version)
	require.Regexp(t, `^ORD-20261017-[A-Z0-9]{6}$`, order.OrderNumber)
	require.Equal(t, int64(10000), order.SubtotalCents)
	require.Equal(t, int64(1000), order.TaxCents)
	require.Equal(t, int64(11000), order.TotalCents)
	require.Equal(t, 6, f.stock(t, lamb))

	stored := f.reload(t, order.ID)
	require.Len(t, stored.StatusHistory, 1)
	assert.Nil(t, stored.StatusHistory[0].FromStatus)
	assert.Equal(t, enums.OrderStatusPending, stored.StatusHistory[0].ToStatus)
	assert.Equal(t, int64(1), outboxCount(t, f.conn, enums.EventOrderCreated))
	assert.Equal(t, int64(1), outboxCount(t, f.conn, enums.EventInventoryTransactionRecorded))
	assert.Equal(t, 1, f.sinks.sent(enums.NotificationOrderCreated))
}

func TestCreateValidatesInput(t *testing.T) {
	f := newFixture(t)
	customer := f.seedCustomer(t, 0)
	beef := f.seedProduct(t, "BEEF", 10)
	ctx := context.Background()
	base := CreateOrderInput{
		CustomerID:   customer,
		Lines:        []LineInput{{ProductID: beef, Quantity: 1, UnitPriceCents: 100}},
		Address:      testAddress(enums.DeliveryAreaEast),
		DeliveryDate: f.day,
	}

	past := base
	past.DeliveryDate = f.day.AddDate(0, 0, -2)
	_, err := f.svc.Create(ctx, staff, past)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "past date: %v", err)

	empty := base
	empty.Lines = nil
	_, err = f.svc.Create(ctx, staff, empty)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	badArea := base
	badArea.Address.Area = "central"
	_, err = f.svc.Create(ctx, staff, badArea)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	unknown := base
	unknown.Lines = []LineInput{{ProductID: uuid.New(), Quantity: 1}}
	_, err = f.svc.Create(ctx, staff, unknown)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	other := uuid.New()
	_, err = f.svc.Create(ctx, Actor{ID: "c-1", Role: enums.ActorRoleCustomer, CustomerID: &other}, base)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.Create(ctx, Actor{Role: enums.ActorRoleStaff}, base)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	require.Equal(t, 10, f.stock(t, beef))
}

func TestCreateHoldsBackorderWithoutDeducting(t *testing.T) {
	f := newFixture(t)
	customer := f.seedCustomer(t, 0)
	salmon := f.seedProduct(t, "SALMON", 12)

	order := f.place(t, staff, customer, LineInput{ProductID: salmon, Quantity: 20, UnitPriceCents: 1000})

	require.Equal(t, enums.OrderStatusPending, order.Status)
	require.Equal(t, enums.BackorderStatusPendingApproval, order.BackorderStatus)
	require.False(t, order.InventoryDeducted)
	require.Equal(t, models.StockShortfall{Requested: 20, Available: 12, Shortfall: 8}, order.StockShortfall[salmon.String()])
	require.Equal(t, 12, f.stock(t, salmon))
	require.Equal(t, 1, f.sinks.sent(enums.NotificationBackorderPending))

	_, err := f.svc.Transition(context.Background(), TransitionInput{
		OrderID: order.ID, Target: enums.OrderStatusConfirmed, Actor: staff, Version: order.Version,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition), "confirm while awaiting approval: %v", err)
}

func TestPartialApprovalRecomputesTotalsAndDeducts(t *testing.T) {
	f := newFixture(t)
	customer := f.seedCustomer(t, 0)
	salmon := f.seedProduct(t, "SALMON", 12)
	lemons := f.seedProduct(t, "LEMON", 50)
	order := f.place(t, staff, customer,
		LineInput{ProductID: salmon, Quantity: 20, UnitPriceCents: 1000},
		LineInput{ProductID: lemons, Quantity: 5, UnitPriceCents: 50},
	)
	ctx := context.Background()

	_, err := f.svc.ResolveBackorder(ctx, ResolveBackorderInput{
		OrderID: order.ID, Decision: enums.BackorderDecisionApprove, Actor: staff,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.ResolveBackorder(ctx, ResolveBackorderInput{
		OrderID:            order.ID,
		Decision:           enums.BackorderDecisionPartialApprove,
		ApprovedQuantities: map[string]int{salmon.String(): 13},
		Actor:              manager,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "more than available: %v", err)

	updated, err := f.svc.ResolveBackorder(ctx, ResolveBackorderInput{
		OrderID:            order.ID,
		Decision:           enums.BackorderDecisionPartialApprove,
		ApprovedQuantities: map[string]int{salmon.String(): 12},
		Actor:              manager,
	})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusConfirmed, updated.Status)
	require.Equal(t, enums.BackorderStatusPartialApproved, updated.BackorderStatus)
	require.True(t, updated.InventoryDeducted)
	require.Equal(t, 2, updated.Version)
	require.Equal(t, int64(12250), updated.SubtotalCents)
	require.Equal(t, int64(1225), updated.TaxCents)
	require.Equal(t, int64(13475), updated.TotalCents)
	require.Equal(t, 0, f.stock(t, salmon))
	require.Equal(t, 45, f.stock(t, lemons))

	stored := f.reload(t, order.ID)
	require.Equal(t, 12, stored.LineItems[0].Quantity)
	require.Equal(t, updated.TotalCents, stored.TotalCents)
	require.Equal(t, int64(1), outboxCount(t, f.conn, enums.EventBackorderResolved))
	require.Equal(t, 1, f.sinks.sent(enums.NotificationBackorderResolved))

	_, err = f.svc.ResolveBackorder(ctx, ResolveBackorderInput{
		OrderID: order.ID, Decision: enums.BackorderDecisionReject, Actor: manager,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAlreadyResolved))
}

func TestRejectBackorderCancelsWithoutStockMovement(t *testing.T) {
	f := newFixture(t)
	customer := f.seedCustomer(t, 0)
	salmon := f.seedProduct(t, "SALMON", 3)
	order := f.place(t, staff, customer, LineInput{ProductID: salmon, Quantity: 5, UnitPriceCents: 1000})

	updated, err := f.svc.ResolveBackorder(context.Background(), ResolveBackorderInput{
		OrderID: order.ID, Decision: enums.BackorderDecisionReject, Actor: manager,
	})
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCancelled, updated.Status)
	require.Equal(t, enums.BackorderStatusRejected, updated.BackorderStatus)
	require.Equal(t, 3, f.stock(t, salmon))
	require.Empty(t, f.sinks.synced, "pending -> cancelled is never synced")
}

func TestUnlistedTransitionLeavesOrderUntouched(t *testing.T) {
	f := newFixture(t)
	customer := f.seedCustomer(t, 0)
	beef := f.seedProduct(t, "BEEF", 10)
	order := f.place(t, staff, customer, LineInput{ProductID: beef, Quantity: 1, UnitPriceCents: 100})

	_, err := f.svc.Transition(context.Background(), TransitionInput{
		OrderID: order.ID, Target: enums.OrderStatusDelivered, Actor: staff, Version: order.Version,
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeInvalidTransition, typed.Code())

	stored := f.reload(t, order.ID)
	require.Equal(t, enums.OrderStatusPending, stored.Status)
	require.Equal(t, 1, stored.Version)
	require.Len(t, stored.StatusHistory, 1)
	require.Zero(t, f.routes.count())
}

func TestStaleVersionIsRejected(t *testing.T) {
	f := newFixture(t)
	customer := f.seedCustomer(t, 0)
	beef := f.seedProduct(t, "BEEF", 10)
	order := f.place(t, staff, customer, LineInput{ProductID: beef, Quantity: 1, UnitPriceCents: 100})
	confirmed := f.move(t, order, enums.OrderStatusConfirmed, staff, TransitionExtras{})
	require.Equal(t, 2, confirmed.Version)

	_, err := f.svc.Transition(context.Background(), TransitionInput{
		OrderID: order.ID, Target: enums.OrderStatusPacking, Actor: staff, Version: 1,
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeVersionConflict, typed.Code())
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	require.Equal(t, 2, details["current_version"])
}

func TestIllegalEdgeWinsOverStaleVersion(t *testing.T) {
	f := newFixture(t)
	customer := f.seedCustomer(t, 0)
	beef := f.seedProduct(t, "BEEF", 10)
	order := f.place(t, staff, customer, LineInput{ProductID: beef, Quantity: 1, UnitPriceCents: 100})

	_, err := f.svc.Transition(context.Background(), TransitionInput{
		OrderID: order.ID, Target: enums.OrderStatusDelivered, Actor: manager, Version: order.Version + 5,
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeInvalidTransition, typed.Code())

	cancelled := f.move(t, order, enums.OrderStatusCancelled, staff, TransitionExtras{})
	_, err = f.svc.Transition(context.Background(), TransitionInput{
		OrderID: order.ID, Target: enums.OrderStatusConfirmed, Actor: manager, Version: cancelled.Version - 1,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition), "terminal orders report the edge, not the version")
	require.Equal(t, cancelled.Version, f.reload(t, order.ID).Version)
}

func TestConcurrentTransitionsAtSameVersion(t *testing.T) {
	f := newFixture(t)
	customer := f.seedCustomer(t, 0)
	beef := f.seedProduct(t, "BEEF", 10)
	order := f.place(t, staff, customer, LineInput{ProductID: beef, Quantity: 1, UnitPriceCents: 100})
	order = f.move(t, order, enums.OrderStatusConfirmed, staff, TransitionExtras{})

	targets := []enums.OrderStatus{enums.OrderStatusPacking, enums.OrderStatusCancelled}
	results := make(chan error, len(targets))
	start := make(chan struct{})
	var wg sync.WaitGroup
	for _, target := range targets {
		wg.Add(1)
		go func(target enums.OrderStatus) {
			defer wg.Done()
			<-start
			_, err := f.svc.Transition(context.Background(), TransitionInput{
				OrderID: order.ID, Target: target, Actor: manager, Version: order.Version,
			})
			results <- err
		}(target)
	}
	close(start)
	wg.Wait()
	close(results)

	var ok, conflicts int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case pkgerrors.IsCode(err, pkgerrors.CodeVersionConflict),
			pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition):
			conflicts++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, conflicts)

	stored := f.reload(t, order.ID)
	require.Equal(t, 3, stored.Version)
	require.Len(t, stored.StatusHistory, 3)
	if stored.Status == enums.OrderStatusCancelled {
		require.Equal(t, 10, f.stock(t, beef))
	} else {
		require.Equal(t, 9, f.stock(t, beef))
	}
}

func TestCancelRestoresDeductedStock(t *testing.T) {
	f := newFixture(t)
	customer := f.seedCustomer(t, 0)
	a := f.seedProduct(t, "A", 20)
	b := f.seedProduct(t, "B", 20)
	order := f.place(t, staff, customer,
		LineInput{ProductID: a, Quantity: 3, UnitPriceCents: 100},
		LineInput{ProductID: b, Quantity: 5, UnitPriceCents: 100},
	)
	require.Equal(t, 17, f.stock(t, a))
	require.Equal(t, 15, f.stock(t, b))

	order = f.move(t, order, enums.OrderStatusConfirmed, staff, TransitionExtras{})
	require.Equal(t, 17, f.stock(t, a), "confirm does not deduct twice")

	cancelled := f.move(t, order, enums.OrderStatusCancelled, staff, TransitionExtras{Note: ptr("customer called")})
	require.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	require.False(t, cancelled.InventoryDeducted)
	require.Equal(t, 20, f.stock(t, a))
	require.Equal(t, 20, f.stock(t, b))

	var returns int64
	require.NoError(t, f.conn.Model(&models.InventoryTransaction{}).
		Where("reference_order_id = ? AND type = ?", order.ID, enums.InventoryTransactionReturn).
		Count(&returns).Error)
	require.Equal(t, int64(2), returns)
	require.Equal(t, []enums.OrderStatus{enums.OrderStatusConfirmed, enums.OrderStatusCancelled}, f.sinks.synced)
	require.Equal(t, 2, f.routes.count(), "confirm and cancel both change route membership")
}

func TestCancelSurvivesFailedRestoreAndSweepReturnsStock(t *testing.T) {
	f := newFixture(t)
	customer := f.seedCustomer(t, 0)
	a := f.seedProduct(t, "A", 20)
	order := f.place(t, staff, customer, LineInput{ProductID: a, Quantity: 3, UnitPriceCents: 100})
	order = f.move(t, order, enums.OrderStatusConfirmed, staff, TransitionExtras{})
	require.Equal(t, 17, f.stock(t, a))

	f.ledger.failRestores(1)
	cancelled, err := f.svc.Transition(context.Background(), TransitionInput{
		OrderID: order.ID, Target: enums.OrderStatusCancelled, Actor: staff, Version: order.Version,
	})
	require.NoError(t, err, "the cancel itself committed")
	require.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	require.True(t, cancelled.InventoryDeducted)

	stored := f.reload(t, order.ID)
	require.Equal(t, enums.OrderStatusCancelled, stored.Status)
	require.True(t, stored.InventoryDeducted, "flag survives so the sweep can find it")
	require.Equal(t, 17, f.stock(t, a))

	repaired, err := f.svc.RepairCancelledStock(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, repaired)
	require.Equal(t, 20, f.stock(t, a))
	require.False(t, f.reload(t, order.ID).InventoryDeducted)

	repaired, err = f.svc.RepairCancelledStock(context.Background(), 10)
	require.NoError(t, err)
	require.Zero(t, repaired)
	require.Equal(t, 20, f.stock(t, a), "a second sweep does not restore twice")
}

func TestRepairCancelledStockKeepsFlagWhileLedgerFails(t *testing.T) {
	f := newFixture(t)
	customer := f.seedCustomer(t, 0)
	a := f.seedProduct(t, "A", 20)
	order := f.place(t, staff, customer, LineInput{ProductID: a, Quantity: 3, UnitPriceCents: 100})

	f.ledger.failRestores(2)
	f.move(t, order, enums.OrderStatusCancelled, staff, TransitionExtras{})

	repaired, err := f.svc.RepairCancelledStock(context.Background(), 10)
	require.Error(t, err)
	require.Zero(t, repaired)
	require.True(t, f.reload(t, order.ID).InventoryDeducted)
	require.Equal(t, 17, f.stock(t, a))

	repaired, err = f.svc.RepairCancelledStock(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, repaired)
	require.Equal(t, 20, f.stock(t, a))
}

func TestCustomerCancelsOwnPendingOrder(t *testing.T) {
	f := newFixture(t)
	customer := f.seedCustomer(t, 0)
	beef := f.seedProduct(t, "BEEF", 10)
	owner := Actor{ID: "user-9", Role: enums.ActorRoleCustomer, CustomerID: &customer}
	order := f.place(t, owner, customer, LineInput{ProductID: beef, Quantity: 2, UnitPriceCents: 100})

	stranger := uuid.New()
	_, err := f.svc.Transition(context.Background(), TransitionInput{
		OrderID: order.ID, Target: enums.OrderStatusCancelled,
		Actor:   Actor{ID: "user-7", Role: enums.ActorRoleCustomer, CustomerID: &stranger},
		Version: order.Version,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	cancelled := f.move(t, order, enums.OrderStatusCancelled, owner, TransitionExtras{})
	require.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	require.Equal(t, 10, f.stock(t, beef))

	_, err = f.svc.Get(context.Background(), Actor{ID: "user-7", Role: enums.ActorRoleCustomer, CustomerID: &stranger}, order.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestConfirmEnforcesCreditLimit(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.EnforceCreditLimit = true })
	customer := f.seedCustomer(t, 10000)
	unlimited := f.seedCustomer(t, 0)
	beef := f.seedProduct(t, "BEEF", 100)

	first := f.place(t, staff, customer, LineInput{ProductID: beef, Quantity: 1, UnitPriceCents: 5000})
	f.move(t, first, enums.OrderStatusConfirmed, staff, TransitionExtras{})

	second := f.place(t, staff, customer, LineInput{ProductID: beef, Quantity: 1, UnitPriceCents: 5000})
	_, err := f.svc.Transition(context.Background(), TransitionInput{
		OrderID: second.ID, Target: enums.OrderStatusConfirmed, Actor: staff, Version: second.Version,
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeCreditLimitExceeded, typed.Code())
	require.Equal(t, enums.OrderStatusPending, f.reload(t, second.ID).Status)

	big := f.place(t, staff, unlimited, LineInput{ProductID: beef, Quantity: 10, UnitPriceCents: 100000})
	f.move(t, big, enums.OrderStatusConfirmed, staff, TransitionExtras{})
}

func TestCancelDuringPackingNeedsManagerApproval(t *testing.T) {
	f := newFixture(t)
	customer := f.seedCustomer(t, 0)
	beef := f.seedProduct(t, "BEEF", 10)
	order := f.place(t, staff, customer, LineInput{ProductID: beef, Quantity: 4, UnitPriceCents: 100})
	order = f.move(t, order, enums.OrderStatusConfirmed, staff, TransitionExtras{})
	order = f.move(t, order, enums.OrderStatusPacking, staff, TransitionExtras{})

	_, err := f.svc.Transition(context.Background(), TransitionInput{
		OrderID: order.ID, Target: enums.OrderStatusCancelled, Actor: staff, Version: order.Version,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "missing approval: %v", err)

	cancelled := f.move(t, order, enums.OrderStatusCancelled, staff, TransitionExtras{ManagerApprovalBy: ptr("manager-2")})
	require.Equal(t, "manager-2", *cancelled.ManagerApprovalBy)
	require.Equal(t, 10, f.stock(t, beef))
}

func TestDispatchAndDeliveryPrerequisites(t *testing.T) {
	f := newFixture(t)
	customer := f.seedCustomer(t, 0)
	beef := f.seedProduct(t, "BEEF", 10)
	order := f.place(t, staff, customer, LineInput{ProductID: beef, Quantity: 1, UnitPriceCents: 100})
	order = f.move(t, order, enums.OrderStatusConfirmed, staff, TransitionExtras{})
	order = f.packAll(t, order)
	require.NotNil(t, order.PackedAt)
	ctx := context.Background()

	_, err := f.svc.Transition(ctx, TransitionInput{
		OrderID: order.ID, Target: enums.OrderStatusOutForDelivery, Actor: driver, Version: order.Version,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeMissingDriver))

	order = f.move(t, order, enums.OrderStatusOutForDelivery, driver, TransitionExtras{DriverID: ptr("driver-1")})
	require.Equal(t, "driver-1", *order.DriverID)

	_, err = f.svc.Transition(ctx, TransitionInput{
		OrderID: order.ID, Target: enums.OrderStatusDelivered, Actor: driver, Version: order.Version,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeMissingProof))

	delivered := f.move(t, order, enums.OrderStatusDelivered, driver, TransitionExtras{ProofOfDeliveryRef: ptr("pod-123")})
	require.Equal(t, enums.OrderStatusDelivered, delivered.Status)
	require.NotNil(t, delivered.DeliveredAt)
	require.Equal(t, "pod-123", *delivered.ProofOfDeliveryRef)
	require.Contains(t, f.sinks.synced, enums.OrderStatusDelivered)

	_, err = f.svc.Transition(ctx, TransitionInput{
		OrderID: order.ID, Target: enums.OrderStatusCancelled, Actor: manager, Version: delivered.Version,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition), "delivered is terminal")
}

func TestReturnClearsDriver(t *testing.T) {
	f := newFixture(t)
	customer := f.seedCustomer(t, 0)
	beef := f.seedProduct(t, "BEEF", 10)
	order := f.place(t, staff, customer, LineInput{ProductID: beef, Quantity: 1, UnitPriceCents: 100})
	order = f.move(t, order, enums.OrderStatusConfirmed, staff, TransitionExtras{})
	order = f.packAll(t, order)
	order = f.move(t, order, enums.OrderStatusOutForDelivery, staff, TransitionExtras{DriverID: ptr("driver-1")})

	_, err := f.svc.Transition(context.Background(), TransitionInput{
		OrderID: order.ID, Target: enums.OrderStatusReadyForDelivery, Actor: driver, Version: order.Version,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	returned := f.move(t, order, enums.OrderStatusReadyForDelivery, driver, TransitionExtras{ReturnReason: ptr("closed")})
	require.Nil(t, returned.DriverID)
	require.Equal(t, "closed", *returned.ReturnReason)
	require.Nil(t, f.reload(t, order.ID).DriverID)
}

func TestPackingInactivityReturnsOrderToConfirmed(t *testing.T) {
	f := newFixture(t)
	customer := f.seedCustomer(t, 0)
	beef := f.seedProduct(t, "BEEF", 10)
	order := f.place(t, staff, customer, LineInput{ProductID: beef, Quantity: 1, UnitPriceCents: 100})
	order = f.move(t, order, enums.OrderStatusConfirmed, staff, TransitionExtras{})
	order = f.move(t, order, enums.OrderStatusPacking, staff, TransitionExtras{})
	order, err := f.svc.MarkItemPacked(context.Background(), PackItemInput{OrderID: order.ID, SKU: "BEEF", Version: order.Version, Actor: staff})
	require.NoError(t, err)

	_, err = f.svc.Transition(context.Background(), TransitionInput{
		OrderID: order.ID, Target: enums.OrderStatusConfirmed, Actor: staff, Version: order.Version,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	f.now = f.now.Add(10 * time.Minute)
	_, err = f.svc.Transition(context.Background(), TransitionInput{
		OrderID: order.ID, Target: enums.OrderStatusConfirmed, Actor: SystemActor, Version: order.Version,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition), "still active: %v", err)

	f.now = f.now.Add(25 * time.Minute)
	idle, err := f.svc.IdlePacking(context.Background(), f.now.Add(-f.svc.PackingInactivity()), 10)
	require.NoError(t, err)
	require.Len(t, idle, 1)

	reset := f.move(t, order, enums.OrderStatusConfirmed, SystemActor, TransitionExtras{})
	require.Equal(t, enums.OrderStatusConfirmed, reset.Status)
	require.Empty(t, f.reload(t, order.ID).PackedSKUs)
	require.Equal(t, 1, f.sinks.sent(enums.NotificationPackingSessionExpired))
	require.Equal(t, 9, f.stock(t, beef), "stock stays deducted")
}

func TestListScopesCustomers(t *testing.T) {
	f := newFixture(t)
	mine := f.seedCustomer(t, 0)
	theirs := f.seedCustomer(t, 0)
	beef := f.seedProduct(t, "BEEF", 100)
	for i := 0; i < 3; i++ {
		f.place(t, staff, mine, LineInput{ProductID: beef, Quantity: 1, UnitPriceCents: 100})
	}
	f.place(t, staff, theirs, LineInput{ProductID: beef, Quantity: 1, UnitPriceCents: 100})

	rows, _, err := f.svc.List(context.Background(), Actor{ID: "u", Role: enums.ActorRoleCustomer, CustomerID: &mine}, ListFilter{}, pagination.Params{Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, row := range rows {
		require.Equal(t, mine, row.CustomerID)
	}

	rows, _, err = f.svc.List(context.Background(), staff, ListFilter{DeliveryDate: &f.day}, pagination.Params{Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 4)
}
