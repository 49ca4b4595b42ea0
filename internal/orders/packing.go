package orders

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/seahsky/joho-erp-sub004/pkg/db/models"
	"github.com/seahsky/joho-erp-sub004/pkg/enums"
	pkgerrors "github.com/seahsky/joho-erp-sub004/pkg/errors"
)

// MarkItemPacked records one packed sku and refreshes the packing activity clock.
// Packing an already packed sku only refreshes the clock.
func (s *Service) MarkItemPacked(ctx context.Context, in PackItemInput) (*models.Order, error) {
	if err := validateActor(in.Actor); err != nil {
		return nil, err
	}
	if !in.Actor.Role.IsStaff() {
		return nil, pkgerrors.Newf(pkgerrors.CodeForbidden, "role %s cannot pack orders", in.Actor.Role)
	}
	sku := strings.TrimSpace(in.SKU)
	if sku == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sku required")
	}
	order, err := s.load(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusPacking {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "items can only be packed while the order is packing (status %s)", order.Status)
	}
	if in.Version != order.Version {
		return nil, s.versionConflict(order.ID, in.Version, order.Version)
	}
	found := false
	for _, line := range order.LineItems {
		if line.SKU == sku {
			found = true
			break
		}
	}
	if !found {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "sku %s is not on this order", sku)
	}

	if !order.IsPacked(sku) {
		order.PackedSKUs = append(order.PackedSKUs, sku)
	}
	packer := in.Actor.ID
	order.PackedBy = &packer
	order.LastActivityAt = s.now()

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).UpdateVersioned(ctx, order, in.Version, "packed_skus", "packed_by", "last_activity_at")
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update packed items")
		}
		if !ok {
			return s.versionConflict(order.ID, in.Version, -1)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// UpdateDelivery reschedules or re-addresses a pending or confirmed order. Routes
// for both the old and the new (date, area) are flagged for re-optimization.
func (s *Service) UpdateDelivery(ctx context.Context, in UpdateDeliveryInput) (*models.Order, error) {
	if err := validateActor(in.Actor); err != nil {
		return nil, err
	}
	if in.DeliveryDate == nil && in.Address == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery date or address required")
	}
	order, err := s.load(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	switch {
	case in.Actor.Role == enums.ActorRoleCustomer:
		if !in.Actor.owns(order) || order.Status != enums.OrderStatusPending {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "customers may only reschedule their own pending orders")
		}
	case !in.Actor.Role.IsStaff():
		return nil, pkgerrors.Newf(pkgerrors.CodeForbidden, "role %s cannot change deliveries", in.Actor.Role)
	}
	if order.Status != enums.OrderStatusPending && order.Status != enums.OrderStatusConfirmed {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "delivery cannot change once the order is %s", order.Status)
	}
	if in.Version != order.Version {
		return nil, s.versionConflict(order.ID, in.Version, order.Version)
	}

	oldDate, oldArea := order.DeliveryDate, order.DeliveryAddress.Area
	var columns []string
	if in.DeliveryDate != nil {
		day, err := s.validateDeliveryDate(*in.DeliveryDate)
		if err != nil {
			return nil, err
		}
		order.DeliveryDate = day
		columns = append(columns, "delivery_date")
	}
	if in.Address != nil {
		if !in.Address.Area.IsValid() {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid delivery area %q", in.Address.Area)
		}
		order.DeliveryAddress = in.Address.toModel()
		columns = append(columns,
			"delivery_line1", "delivery_suburb", "delivery_state", "delivery_postcode",
			"delivery_lat", "delivery_lng", "delivery_area")
	}
	order.DeliverySequence = nil
	order.PackingSequence = nil
	order.RouteID = nil
	order.EstimatedArrivalAt = nil
	columns = append(columns, "delivery_sequence", "packing_sequence", "route_id", "estimated_arrival_at")

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).UpdateVersioned(ctx, order, in.Version, columns...)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update delivery")
		}
		if !ok {
			return s.versionConflict(order.ID, in.Version, -1)
		}
		if !routable(order.Status) {
			return nil
		}
		if err := s.routes.MarkStale(ctx, tx, oldDate, oldArea); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flag previous route")
		}
		if !oldDate.Equal(order.DeliveryDate) || oldArea != order.DeliveryAddress.Area {
			if err := s.routes.MarkStale(ctx, tx, order.DeliveryDate, order.DeliveryAddress.Area); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flag new route")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "delivery details updated")
	}
	return order, nil
}
