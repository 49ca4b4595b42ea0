package orders

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/seahsky/joho-erp-sub004/internal/backorders"
	"github.com/seahsky/joho-erp-sub004/internal/inventory"
	"github.com/seahsky/joho-erp-sub004/internal/sinks"
	"github.com/seahsky/joho-erp-sub004/pkg/db/models"
	"github.com/seahsky/joho-erp-sub004/pkg/enums"
	pkgerrors "github.com/seahsky/joho-erp-sub004/pkg/errors"
	"github.com/seahsky/joho-erp-sub004/pkg/outbox"
	"github.com/seahsky/joho-erp-sub004/pkg/outbox/payloads"
)

// step is one validated move through the state machine.
type step struct {
	target  enums.OrderStatus
	actor   Actor
	version int
	extras  TransitionExtras
	// columns already changed on the order by the caller (backorder resolution).
	columns []string
	events  []outbox.DomainEvent
	// resolving skips the pending-backorder guard for the approval flow itself.
	resolving bool
}

// Transition moves an order to in.Target at the caller's last-seen version.
func (s *Service) Transition(ctx context.Context, in TransitionInput) (*models.Order, error) {
	if err := validateActor(in.Actor); err != nil {
		return nil, err
	}
	if !in.Target.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid target status %q", in.Target)
	}
	order, err := s.load(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	return s.commit(ctx, order, step{
		target:  in.Target,
		actor:   in.Actor,
		version: in.Version,
		extras:  in.Extras,
	})
}

// ResolveBackorder applies an admin decision to an order awaiting approval.
func (s *Service) ResolveBackorder(ctx context.Context, in ResolveBackorderInput) (*models.Order, error) {
	if err := validateActor(in.Actor); err != nil {
		return nil, err
	}
	if !(edge{roles: backorderResolver}).allows(in.Actor.Role) {
		return nil, pkgerrors.Newf(pkgerrors.CodeForbidden, "role %s cannot resolve backorders", in.Actor.Role)
	}
	backorderStatus, target, err := backorders.Outcome(in.Decision)
	if err != nil {
		return nil, err
	}
	order, err := s.load(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if err := backorders.EnsureResolvable(order); err != nil {
		return nil, err
	}

	st := step{
		target:    target,
		actor:     in.Actor,
		version:   order.Version,
		extras:    TransitionExtras{Note: in.Note},
		columns:   []string{"backorder_status"},
		resolving: true,
	}
	var approved map[string]int
	if in.Decision == enums.BackorderDecisionPartialApprove {
		products, err := s.ledger.Products(ctx, productIDs(order.LineItems))
		if err != nil {
			return nil, err
		}
		stock := make(map[uuid.UUID]int, len(products))
		for id, p := range products {
			stock[id] = p.CurrentStock
		}
		lines, err := backorders.ApplyPartial(order, in.ApprovedQuantities, stock)
		if err != nil {
			return nil, err
		}
		applyTotals(order, lines, s.cfg.TaxRate)
		st.columns = append(st.columns, "line_items", "subtotal_cents", "tax_cents", "total_cents")
		approved = in.ApprovedQuantities
	}
	order.BackorderStatus = backorderStatus
	st.events = append(st.events, outbox.DomainEvent{
		EventType:     enums.EventBackorderResolved,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actorRef(in.Actor),
		Data: payloads.BackorderResolvedEvent{
			OrderID:            order.ID,
			Decision:           in.Decision,
			BackorderStatus:    backorderStatus,
			ApprovedQuantities: approved,
			TotalCents:         order.TotalCents,
		},
	})

	updated, err := s.commit(ctx, order, st)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, sinks.Notification{
		Type:    enums.NotificationBackorderResolved,
		OrderID: &updated.ID,
		Subject: updated.ID.String(),
		Actor:   actorRef(in.Actor),
		Data: map[string]any{
			"order_number":     updated.OrderNumber,
			"decision":         string(in.Decision),
			"backorder_status": string(updated.BackorderStatus),
		},
	})
	return updated, nil
}

// commit validates the edge and prerequisites, applies ledger effects, and writes
// the order under the version check together with its history row and event.
func (s *Service) commit(ctx context.Context, order *models.Order, st step) (*models.Order, error) {
	from := order.Status
	// An edge that does not exist from the stored status (terminal included) is
	// reported as such; re-reading would not make it legal.
	e, err := lookupEdge(from, st.target)
	if err != nil {
		return nil, err
	}
	if st.version != order.Version {
		return nil, s.versionConflict(order.ID, st.version, order.Version)
	}
	if err := authorize(e, st.actor, order); err != nil {
		return nil, err
	}

	now := s.now()
	columns, err := s.prepare(ctx, order, e, &st, now)
	if err != nil {
		return nil, err
	}
	columns = append(columns, st.columns...)

	var deducted []inventory.Line
	if st.target == enums.OrderStatusConfirmed && from == enums.OrderStatusPending && !order.InventoryDeducted {
		lines := linesOf(order.LineItems)
		if err := s.ledger.DeductLines(ctx, lines, order.ID, st.actor.ID); err != nil {
			return nil, err
		}
		deducted = lines
		order.InventoryDeducted = true
		columns = append(columns, "inventory_deducted")
	}
	// inventory_deducted stays true through the cancel so a failed restore is
	// still visible to the repair sweep.
	restore := st.target == enums.OrderStatusCancelled && order.InventoryDeducted

	order.Status = st.target
	order.LastActivityAt = now
	columns = append(columns, "status", "last_activity_at")

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.UpdateVersioned(ctx, order, st.version, columns...)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
		}
		if !ok {
			return s.versionConflict(order.ID, st.version, -1)
		}
		fromStatus := from
		if err := repo.AppendHistory(ctx, historyEntry(order.ID, &fromStatus, st.target, st.actor, st.extras.Note, now)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append status history")
		}
		if affectsRoute(from, st.target) {
			if err := s.routes.MarkStale(ctx, tx, order.DeliveryDate, order.DeliveryAddress.Area); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flag route for re-optimization")
			}
		}
		events := append([]outbox.DomainEvent{{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef(st.actor),
			OccurredAt:    now,
			Data: payloads.OrderStatusChangedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				From:        from,
				To:          st.target,
				Version:     order.Version,
				ActorID:     st.actor.ID,
				ActorRole:   st.actor.Role,
				OccurredAt:  now,
			},
		}}, st.events...)
		for _, event := range events {
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if deducted != nil {
			s.compensate(ctx, order.ID, deducted, st.actor.ID)
		}
		return nil, err
	}

	if restore {
		if err := s.restoreCancelled(ctx, order, st.actor.ID); err != nil && s.logg != nil {
			s.logg.Error(s.logg.WithOrderID(ctx, order.ID.String()), "stock restore after cancel failed; left for repair sweep", err)
		}
	}

	if s.metrics != nil {
		s.metrics.IncTransition(string(from), string(st.target))
	}
	s.afterTransition(ctx, order, from, e)
	return order, nil
}

// restoreCancelled returns a cancelled order's net deductions to stock and then
// clears its inventory_deducted flag. RestoreOrder is idempotent, so a crash
// between the two steps is safe to replay.
func (s *Service) restoreCancelled(ctx context.Context, order *models.Order, actorID string) error {
	if err := s.ledger.RestoreOrder(ctx, order.ID, actorID, "order cancelled"); err != nil {
		return err
	}
	if err := s.repo.ClearInventoryDeducted(ctx, order.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear inventory flag")
	}
	order.InventoryDeducted = false
	return nil
}

// RepairCancelledStock retries the stock restore for cancelled orders that
// still carry inventory_deducted. It reports how many were repaired.
func (s *Service) RepairCancelledStock(ctx context.Context, limit int) (int, error) {
	rows, err := s.repo.FindUnrestoredCancelled(ctx, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list unrestored cancelled orders")
	}
	var errs []error
	repaired := 0
	for i := range rows {
		if err := s.restoreCancelled(ctx, &rows[i], SystemActor.ID); err != nil {
			errs = append(errs, fmt.Errorf("restore order %s: %w", rows[i].ID, err))
			continue
		}
		repaired++
	}
	return repaired, multierr.Combine(errs...)
}

// prepare checks the edge prerequisites and stages the field changes they imply.
// It returns the columns it touched.
func (s *Service) prepare(ctx context.Context, order *models.Order, e edge, st *step, now time.Time) ([]string, error) {
	var columns []string
	switch e.requires {
	case requireConfirmable:
		if !st.resolving && order.BackorderStatus == enums.BackorderStatusPendingApproval {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "order is awaiting backorder approval").
				WithDetails(map[string]any{"backorder_status": order.BackorderStatus})
		}
		if _, err := s.validateDeliveryDate(order.DeliveryDate); err != nil {
			return nil, err
		}
		if err := s.checkCredit(ctx, order); err != nil {
			return nil, err
		}

	case requireAllPacked:
		if !order.AllItemsPacked() {
			missing := make([]string, 0, len(order.LineItems))
			for _, line := range order.LineItems {
				if !order.IsPacked(line.SKU) {
					missing = append(missing, line.SKU)
				}
			}
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "all line items must be packed").
				WithDetails(map[string]any{"unpacked_skus": missing})
		}
		packedBy := st.actor.ID
		order.PackedAt = &now
		order.PackedBy = &packedBy
		columns = append(columns, "packed_at", "packed_by")

	case requireInactivity:
		if now.Sub(order.LastActivityAt) < s.cfg.PackingInactivity {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "packing session is still active").
				WithDetails(map[string]any{"last_activity_at": order.LastActivityAt})
		}
		order.PackedSKUs = nil
		order.PackedBy = nil
		columns = append(columns, "packed_skus", "packed_by")

	case requireManagerApproval:
		approver := ""
		if st.extras.ManagerApprovalBy != nil {
			approver = strings.TrimSpace(*st.extras.ManagerApprovalBy)
		}
		if approver == "" && (st.actor.Role == enums.ActorRoleManager || st.actor.Role == enums.ActorRoleAdmin) {
			approver = st.actor.ID
		}
		if approver == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "manager approval required to cancel at this stage").
				WithDetails(map[string]string{"manager_approval_by": "required"})
		}
		order.ManagerApprovalBy = &approver
		columns = append(columns, "manager_approval_by")

	case requireDriver:
		if st.extras.DriverID != nil && strings.TrimSpace(*st.extras.DriverID) != "" {
			driver := strings.TrimSpace(*st.extras.DriverID)
			if order.DriverID == nil || *order.DriverID != driver {
				order.DriverID = &driver
				order.DriverAssignedAt = &now
				columns = append(columns, "driver_id", "driver_assigned_at")
			}
		}
		if order.DriverID == nil || *order.DriverID == "" {
			return nil, pkgerrors.New(pkgerrors.CodeMissingDriver, "assign a driver before dispatch")
		}

	case requireProof:
		if st.extras.ProofOfDeliveryRef == nil || strings.TrimSpace(*st.extras.ProofOfDeliveryRef) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeMissingProof, "proof of delivery reference required")
		}
		proof := strings.TrimSpace(*st.extras.ProofOfDeliveryRef)
		arrived := now
		if st.extras.ActualArrivalAt != nil {
			arrived = st.extras.ActualArrivalAt.UTC()
		}
		order.ProofOfDeliveryRef = &proof
		order.DeliveredAt = &now
		order.ActualArrivalAt = &arrived
		columns = append(columns, "proof_of_delivery_ref", "delivered_at", "actual_arrival_at")

	case requireReturnReason:
		if st.extras.ReturnReason == nil || strings.TrimSpace(*st.extras.ReturnReason) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "return reason required").
				WithDetails(map[string]string{"return_reason": "required"})
		}
		reason := strings.TrimSpace(*st.extras.ReturnReason)
		order.ReturnReason = &reason
		order.DriverID = nil
		order.DriverAssignedAt = nil
		columns = append(columns, "return_reason", "driver_id", "driver_assigned_at")
	}

	// Re-opening a ready order invalidates the packed timestamp.
	if order.Status == enums.OrderStatusReadyForDelivery && st.target == enums.OrderStatusPacking {
		order.PackedAt = nil
		columns = append(columns, "packed_at")
	}
	// A customer-cancelled order that was still awaiting approval is closed out.
	if st.target == enums.OrderStatusCancelled && !st.resolving && order.BackorderStatus == enums.BackorderStatusPendingApproval {
		order.BackorderStatus = enums.BackorderStatusRejected
		columns = append(columns, "backorder_status")
	}
	return columns, nil
}

func (s *Service) afterTransition(ctx context.Context, order *models.Order, from enums.OrderStatus, e edge) {
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
			"from":    string(from),
			"to":      string(order.Status),
			"version": order.Version,
		}), "order status changed")
	}
	s.notify(ctx, sinks.Notification{
		Type:    enums.NotificationOrderStatusChanged,
		OrderID: &order.ID,
		Subject: order.ID.String() + ":v" + strconv.Itoa(order.Version),
		Data: map[string]any{
			"order_number": order.OrderNumber,
			"from":         string(from),
			"to":           string(order.Status),
		},
	})
	if e.requires == requireInactivity {
		s.notify(ctx, sinks.Notification{
			Type:    enums.NotificationPackingSessionExpired,
			OrderID: &order.ID,
			Subject: order.ID.String() + ":v" + strconv.Itoa(order.Version),
			Data:    map[string]any{"order_number": order.OrderNumber},
		})
	}
	switch order.Status {
	case enums.OrderStatusConfirmed:
		if from == enums.OrderStatusPending {
			s.syncAccounting(ctx, order)
		}
	case enums.OrderStatusDelivered:
		s.syncAccounting(ctx, order)
	case enums.OrderStatusCancelled:
		if from != enums.OrderStatusPending {
			s.syncAccounting(ctx, order)
		}
	}
}

func authorize(e edge, actor Actor, order *models.Order) error {
	if actor.Role == enums.ActorRoleCustomer {
		if e.customerOwn && actor.owns(order) {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeForbidden, "customers may only cancel their own pending orders")
	}
	if !e.allows(actor.Role) {
		return pkgerrors.Newf(pkgerrors.CodeForbidden, "role %s may not perform this transition", actor.Role)
	}
	return nil
}

// versionConflict builds the VERSION_CONFLICT error. current is -1 when unknown.
func (s *Service) versionConflict(orderID uuid.UUID, expected, current int) error {
	if s.metrics != nil {
		s.metrics.IncVersionConflict()
	}
	details := map[string]any{"order_id": orderID.String(), "expected_version": expected}
	if current >= 0 {
		details["current_version"] = current
	}
	return pkgerrors.New(pkgerrors.CodeVersionConflict, "order was modified concurrently").WithDetails(details)
}
