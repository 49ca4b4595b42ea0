package orders

import (
	"github.com/seahsky/joho-erp-sub004/pkg/enums"
	pkgerrors "github.com/seahsky/joho-erp-sub004/pkg/errors"
)

// requirement names the prerequisite an edge enforces before it may commit.
type requirement int

const (
	requireNothing requirement = iota
	requireConfirmable
	requireAllPacked
	requireInactivity
	requireManagerApproval
	requireDriver
	requireProof
	requireReturnReason
)

type edge struct {
	roles    []enums.ActorRole
	requires requirement
	// customerOwn lets a customer take the edge on their own order.
	customerOwn bool
}

var (
	staffRoles        = []enums.ActorRole{enums.ActorRoleStaff, enums.ActorRoleManager, enums.ActorRoleAdmin}
	staffDriverRoles  = []enums.ActorRole{enums.ActorRoleStaff, enums.ActorRoleManager, enums.ActorRoleAdmin, enums.ActorRoleDriver}
	managerRoles      = []enums.ActorRole{enums.ActorRoleManager, enums.ActorRoleAdmin}
	systemRoles       = []enums.ActorRole{enums.ActorRoleSystem}
	backorderResolver = managerRoles
)

var transitions = map[enums.OrderStatus]map[enums.OrderStatus]edge{
	enums.OrderStatusPending: {
		enums.OrderStatusConfirmed: {roles: staffRoles, requires: requireConfirmable},
		enums.OrderStatusCancelled: {roles: staffRoles, customerOwn: true},
	},
	enums.OrderStatusConfirmed: {
		enums.OrderStatusPacking:   {roles: staffRoles},
		enums.OrderStatusCancelled: {roles: staffRoles},
	},
	enums.OrderStatusPacking: {
		enums.OrderStatusReadyForDelivery: {roles: staffRoles, requires: requireAllPacked},
		enums.OrderStatusConfirmed:        {roles: systemRoles, requires: requireInactivity},
		enums.OrderStatusCancelled:        {roles: staffRoles, requires: requireManagerApproval},
	},
	enums.OrderStatusReadyForDelivery: {
		enums.OrderStatusOutForDelivery: {roles: staffDriverRoles, requires: requireDriver},
		enums.OrderStatusPacking:        {roles: staffRoles},
		enums.OrderStatusCancelled:      {roles: staffRoles, requires: requireManagerApproval},
	},
	enums.OrderStatusOutForDelivery: {
		enums.OrderStatusDelivered:        {roles: staffDriverRoles, requires: requireProof},
		enums.OrderStatusReadyForDelivery: {roles: staffDriverRoles, requires: requireReturnReason},
		enums.OrderStatusCancelled:        {roles: managerRoles, requires: requireManagerApproval},
	},
}

// lookupEdge returns the edge from -> to or INVALID_TRANSITION.
func lookupEdge(from, to enums.OrderStatus) (edge, error) {
	if targets, ok := transitions[from]; ok {
		if e, ok := targets[to]; ok {
			return e, nil
		}
	}
	return edge{}, pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "cannot move order from %s to %s", from, to).
		WithDetails(map[string]any{
			"from":    from,
			"to":      to,
			"allowed": AllowedTargets(from),
		})
}

func (e edge) allows(role enums.ActorRole) bool {
	for _, r := range e.roles {
		if r == role {
			return true
		}
	}
	return false
}

// AllowedTargets lists the statuses reachable from from in a stable order.
func AllowedTargets(from enums.OrderStatus) []enums.OrderStatus {
	targets := transitions[from]
	out := make([]enums.OrderStatus, 0, len(targets))
	for _, candidate := range []enums.OrderStatus{
		enums.OrderStatusConfirmed,
		enums.OrderStatusPacking,
		enums.OrderStatusReadyForDelivery,
		enums.OrderStatusOutForDelivery,
		enums.OrderStatusDelivered,
		enums.OrderStatusCancelled,
	} {
		if _, ok := targets[candidate]; ok {
			out = append(out, candidate)
		}
	}
	return out
}

// routable reports whether status takes part in route sequencing.
func routable(status enums.OrderStatus) bool {
	for _, s := range enums.RoutableOrderStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// affectsRoute reports whether moving from -> to changes the route membership
// for the order's (date, area). Dispatch to out_for_delivery executes the route
// and does not invalidate it.
func affectsRoute(from, to enums.OrderStatus) bool {
	if to == enums.OrderStatusOutForDelivery || to == enums.OrderStatusDelivered {
		return false
	}
	return routable(from) != routable(to)
}
