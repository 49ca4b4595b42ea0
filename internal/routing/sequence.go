package routing

import (
	"github.com/google/uuid"

	"github.com/seahsky/joho-erp-sub004/pkg/enums"
)

// AreaPlan is one area's stops in provider visiting order.
type AreaPlan struct {
	Area   enums.DeliveryArea
	Orders []uuid.UUID
}

// DeliverySequences numbers every planned stop 1..N, walking areas North, East,
// South, West and each area in visiting order.
func DeliverySequences(plans []AreaPlan) map[uuid.UUID]int {
	byArea := make(map[enums.DeliveryArea][]uuid.UUID, len(plans))
	for _, plan := range plans {
		byArea[plan.Area] = append(byArea[plan.Area], plan.Orders...)
	}
	out := make(map[uuid.UUID]int)
	next := 1
	for _, area := range enums.DeliveryAreaProcessingOrder {
		for _, id := range byArea[area] {
			if _, dup := out[id]; dup {
				continue
			}
			out[id] = next
			next++
		}
	}
	return out
}

// PackingSequences reverses delivery order so the last stop is packed first and
// loaded deepest: packing = N + 1 - delivery.
func PackingSequences(delivery map[uuid.UUID]int) map[uuid.UUID]int {
	n := len(delivery)
	out := make(map[uuid.UUID]int, n)
	for id, seq := range delivery {
		out[id] = n + 1 - seq
	}
	return out
}
