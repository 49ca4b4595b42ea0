package enums

import "slices"

// InventoryTransactionType classifies a ledger entry.
type InventoryTransactionType string

const (
	InventoryTransactionSale       InventoryTransactionType = "sale"
	InventoryTransactionReturn     InventoryTransactionType = "return"
	InventoryTransactionAdjustment InventoryTransactionType = "adjustment"
)

var validInventoryTransactionTypes = []InventoryTransactionType{
	InventoryTransactionSale,
	InventoryTransactionReturn,
	InventoryTransactionAdjustment,
}

func (t InventoryTransactionType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known InventoryTransactionType.
func (t InventoryTransactionType) IsValid() bool {
	return slices.Contains(validInventoryTransactionTypes, t)
}

// ParseInventoryTransactionType converts raw input into an InventoryTransactionType.
func ParseInventoryTransactionType(value string) (InventoryTransactionType, error) {
	return parse(value, validInventoryTransactionTypes, "inventory transaction type")
}

// AdjustmentReason is the sub-reason recorded on adjustment entries.
type AdjustmentReason string

const (
	AdjustmentReasonDamage          AdjustmentReason = "damage"
	AdjustmentReasonExpiry          AdjustmentReason = "expiry"
	AdjustmentReasonCountCorrection AdjustmentReason = "count_correction"
	AdjustmentReasonReceived        AdjustmentReason = "received"
	AdjustmentReasonOther           AdjustmentReason = "other"
)

var validAdjustmentReasons = []AdjustmentReason{
	AdjustmentReasonDamage,
	AdjustmentReasonExpiry,
	AdjustmentReasonCountCorrection,
	AdjustmentReasonReceived,
	AdjustmentReasonOther,
}

// IsValid reports whether the value is a known AdjustmentReason.
func (r AdjustmentReason) IsValid() bool {
	return slices.Contains(validAdjustmentReasons, r)
}

// ParseAdjustmentReason converts raw input into an AdjustmentReason.
func ParseAdjustmentReason(value string) (AdjustmentReason, error) {
	return parse(value, validAdjustmentReasons, "adjustment reason")
}
