package orders

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seahsky/joho-erp-sub004/pkg/enums"
	pkgerrors "github.com/seahsky/joho-erp-sub004/pkg/errors"
)

func TestMarkItemPacked(t *testing.T) {
	f := newFixture(t)
	customer := f.seedCustomer(t, 0)
	beef := f.seedProduct(t, "BEEF", 10)
	eggs := f.seedProduct(t, "EGGS", 10)
	order := f.place(t, staff, customer,
		LineInput{ProductID: beef, Quantity: 1, UnitPriceCents: 100},
		LineInput{ProductID: eggs, Quantity: 2, UnitPriceCents: 100},
	)
	ctx := context.Background()

	_, err := f.svc.MarkItemPacked(ctx, PackItemInput{OrderID: order.ID, SKU: "BEEF", Version: order.Version, Actor: staff})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition), "not packing yet: %v", err)

	order = f.move(t, order, enums.OrderStatusConfirmed, staff, TransitionExtras{})
	order = f.move(t, order, enums.OrderStatusPacking, staff, TransitionExtras{})

	_, err = f.svc.MarkItemPacked(ctx, PackItemInput{OrderID: order.ID, SKU: "LAMB", Version: order.Version, Actor: staff})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.MarkItemPacked(ctx, PackItemInput{OrderID: order.ID, SKU: "BEEF", Version: order.Version, Actor: driver})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	order, err = f.svc.MarkItemPacked(ctx, PackItemInput{OrderID: order.ID, SKU: "BEEF", Version: order.Version, Actor: staff})
	require.NoError(t, err)
	order, err = f.svc.MarkItemPacked(ctx, PackItemInput{OrderID: order.ID, SKU: "BEEF", Version: order.Version, Actor: staff})
	require.NoError(t, err)
	require.Equal(t, []string{"BEEF"}, order.PackedSKUs)

	_, err = f.svc.Transition(ctx, TransitionInput{
		OrderID: order.ID, Target: enums.OrderStatusReadyForDelivery, Actor: staff, Version: order.Version,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "eggs still unpacked: %v", err)

	order, err = f.svc.MarkItemPacked(ctx, PackItemInput{OrderID: order.ID, SKU: "EGGS", Version: order.Version, Actor: staff})
	require.NoError(t, err)
	ready := f.move(t, order, enums.OrderStatusReadyForDelivery, staff, TransitionExtras{})
	require.Equal(t, "staff-1", *ready.PackedBy)

	stored := f.reload(t, order.ID)
	require.ElementsMatch(t, []string{"BEEF", "EGGS"}, stored.PackedSKUs)
	require.NotNil(t, stored.PackedAt)

	reopened := f.move(t, ready, enums.OrderStatusPacking, staff, TransitionExtras{})
	require.Nil(t, reopened.PackedAt)
}

func TestUpdateDeliveryFlagsOldAndNewRoutes(t *testing.T) {
	f := newFixture(t)
	customer := f.seedCustomer(t, 0)
	beef := f.seedProduct(t, "BEEF", 10)
	order := f.place(t, staff, customer, LineInput{ProductID: beef, Quantity: 1, UnitPriceCents: 100})
	ctx := context.Background()

	// Pending orders are not on a route yet.
	next := f.day.AddDate(0, 0, 1)
	order, err := f.svc.UpdateDelivery(ctx, UpdateDeliveryInput{
		OrderID: order.ID, Version: order.Version, Actor: staff, DeliveryDate: &next,
	})
	require.NoError(t, err)
	require.True(t, next.Equal(order.DeliveryDate))
	require.Zero(t, f.routes.count())

	order = f.move(t, order, enums.OrderStatusConfirmed, staff, TransitionExtras{})
	require.Equal(t, 1, f.routes.count())

	south := testAddress(enums.DeliveryAreaSouth)
	order, err = f.svc.UpdateDelivery(ctx, UpdateDeliveryInput{
		OrderID: order.ID, Version: order.Version, Actor: staff, Address: &south,
	})
	require.NoError(t, err)
	require.Equal(t, enums.DeliveryAreaSouth, order.DeliveryAddress.Area)
	require.Nil(t, order.DeliverySequence)

	require.Len(t, f.routes.stale, 3)
	for i, want := range []enums.DeliveryArea{enums.DeliveryAreaNorth, enums.DeliveryAreaSouth} {
		got := f.routes.stale[i+1]
		require.True(t, next.Equal(got.date), "stale route %d date %s", i, got.date)
		require.Equal(t, want, got.area)
	}

	stored := f.reload(t, order.ID)
	require.Equal(t, enums.DeliveryAreaSouth, stored.DeliveryAddress.Area)
	require.Equal(t, order.Version, stored.Version)
}

func TestUpdateDeliveryRules(t *testing.T) {
	f := newFixture(t)
	customer := f.seedCustomer(t, 0)
	beef := f.seedProduct(t, "BEEF", 10)
	owner := Actor{ID: "user-1", Role: enums.ActorRoleCustomer, CustomerID: &customer}
	order := f.place(t, owner, customer, LineInput{ProductID: beef, Quantity: 1, UnitPriceCents: 100})
	ctx := context.Background()

	past := f.day.AddDate(0, 0, -3)
	_, err := f.svc.UpdateDelivery(ctx, UpdateDeliveryInput{OrderID: order.ID, Version: order.Version, Actor: owner, DeliveryDate: &past})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.UpdateDelivery(ctx, UpdateDeliveryInput{OrderID: order.ID, Version: order.Version, Actor: owner})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.UpdateDelivery(ctx, UpdateDeliveryInput{OrderID: order.ID, Version: order.Version + 1, Actor: owner, DeliveryDate: &f.day})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeVersionConflict))

	order = f.move(t, order, enums.OrderStatusConfirmed, staff, TransitionExtras{})
	_, err = f.svc.UpdateDelivery(ctx, UpdateDeliveryInput{OrderID: order.ID, Version: order.Version, Actor: owner, DeliveryDate: &f.day})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden), "customers lose control after confirmation")

	order = f.move(t, order, enums.OrderStatusPacking, staff, TransitionExtras{})
	_, err = f.svc.UpdateDelivery(ctx, UpdateDeliveryInput{OrderID: order.ID, Version: order.Version, Actor: staff, DeliveryDate: &f.day})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))
}
