package routing

import (
	"testing"

	"github.com/google/uuid"

	"github.com/seahsky/joho-erp-sub004/pkg/enums"
)

func ids(n int) []uuid.UUID {
	out := make([]uuid.UUID, n)
	for i := range out {
		out[i] = uuid.New()
	}
	return out
}

func TestDeliverySequencesNumberAreasInProcessingOrder(t *testing.T) {
	north, east := ids(5), ids(3)
	// Plans arrive in completion order, not processing order.
	delivery := DeliverySequences([]AreaPlan{
		{Area: enums.DeliveryAreaEast, Orders: east},
		{Area: enums.DeliveryAreaNorth, Orders: north},
	})
	for i, id := range north {
		if delivery[id] != i+1 {
			t.Fatalf("north stop %d: expected %d, got %d", i, i+1, delivery[id])
		}
	}
	for i, id := range east {
		if delivery[id] != 6+i {
			t.Fatalf("east stop %d: expected %d, got %d", i, 6+i, delivery[id])
		}
	}

	packing := PackingSequences(delivery)
	if packing[east[2]] != 1 || packing[north[0]] != 8 {
		t.Fatalf("packing should reverse delivery: last=%d first=%d", packing[east[2]], packing[north[0]])
	}
	for id, d := range delivery {
		if packing[id]+d != 9 {
			t.Fatalf("packing + delivery must be N+1, got %d + %d", packing[id], d)
		}
	}
}

func TestDeliverySequencesSkipsMissingAreas(t *testing.T) {
	west := ids(2)
	delivery := DeliverySequences([]AreaPlan{{Area: enums.DeliveryAreaWest, Orders: west}})
	if delivery[west[0]] != 1 || delivery[west[1]] != 2 {
		t.Fatalf("unexpected numbering %v", delivery)
	}
	if len(PackingSequences(nil)) != 0 {
		t.Fatal("empty input should yield empty packing")
	}
}
