package enums

import (
	"fmt"
	"slices"
)

// BackorderStatus tracks the approval lifecycle of an order created with a stock shortfall.
type BackorderStatus string

const (
	BackorderStatusNone            BackorderStatus = "none"
	BackorderStatusPendingApproval BackorderStatus = "pending_approval"
	BackorderStatusApproved        BackorderStatus = "approved"
	BackorderStatusRejected        BackorderStatus = "rejected"
	BackorderStatusPartialApproved BackorderStatus = "partial_approved"
)

var validBackorderStatuses = []BackorderStatus{
	BackorderStatusNone,
	BackorderStatusPendingApproval,
	BackorderStatusApproved,
	BackorderStatusRejected,
	BackorderStatusPartialApproved,
}

func (b BackorderStatus) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BackorderStatus.
func (b BackorderStatus) IsValid() bool {
	return slices.Contains(validBackorderStatuses, b)
}

// ParseBackorderStatus converts raw input into a BackorderStatus.
func ParseBackorderStatus(value string) (BackorderStatus, error) {
	return parse(value, validBackorderStatuses, "backorder status")
}

// BackorderDecision represents the admin decision on a pending backorder.
type BackorderDecision string

const (
	// BackorderDecisionApprove commits the full requested quantities.
	BackorderDecisionApprove BackorderDecision = "approve"
	// BackorderDecisionReject cancels the order.
	BackorderDecisionReject BackorderDecision = "reject"
	// BackorderDecisionPartialApprove commits caller supplied quantities per short product.
	BackorderDecisionPartialApprove BackorderDecision = "partial_approve"
)

// IsValid reports whether the value is a known BackorderDecision.
func (d BackorderDecision) IsValid() bool {
	switch d {
	case BackorderDecisionApprove, BackorderDecisionReject, BackorderDecisionPartialApprove:
		return true
	}
	return false
}

// ParseBackorderDecision converts raw input into a BackorderDecision.
func ParseBackorderDecision(value string) (BackorderDecision, error) {
	d := BackorderDecision(value)
	if !d.IsValid() {
		return "", fmt.Errorf("invalid backorder decision %q", value)
	}
	return d, nil
}
