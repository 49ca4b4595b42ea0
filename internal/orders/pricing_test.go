package orders

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/seahsky/joho-erp-sub004/pkg/db/models"
)

func TestPriceLinesTotalsInvariant(t *testing.T) {
	lines := []models.OrderLineItem{
		{ProductID: uuid.New(), SKU: "A", Quantity: 3, UnitPriceCents: 1999},
		{ProductID: uuid.New(), SKU: "B", Quantity: 1, UnitPriceCents: 5},
		{ProductID: uuid.New(), SKU: "C", Quantity: 7, UnitPriceCents: 333},
	}
	priced, totals := priceLines(lines, decimal.RequireFromString("0.1"))

	var sum int64
	for i, line := range priced {
		if line.SubtotalCents != int64(line.Quantity)*line.UnitPriceCents {
			t.Fatalf("line %d: subtotal %d", i, line.SubtotalCents)
		}
		sum += line.SubtotalCents
	}
	if totals.SubtotalCents != sum {
		t.Fatalf("subtotal %d != sum of lines %d", totals.SubtotalCents, sum)
	}
	if totals.TotalCents != totals.SubtotalCents+totals.TaxCents {
		t.Fatalf("total %d != subtotal %d + tax %d", totals.TotalCents, totals.SubtotalCents, totals.TaxCents)
	}
	// 5997 + 5 + 2331 = 8333; 10% = 833.3
	if totals.SubtotalCents != 8333 || totals.TaxCents != 833 || totals.TotalCents != 9166 {
		t.Fatalf("unexpected totals %+v", totals)
	}
}

func TestPriceLinesRoundsHalfAwayFromZero(t *testing.T) {
	lines := []models.OrderLineItem{{ProductID: uuid.New(), SKU: "A", Quantity: 1, UnitPriceCents: 5}}
	_, totals := priceLines(lines, decimal.RequireFromString("0.1"))
	if totals.TaxCents != 1 {
		t.Fatalf("0.5 should round to 1, got %d", totals.TaxCents)
	}
}

func TestApplyTotalsOnEmptyLines(t *testing.T) {
	order := &models.Order{}
	applyTotals(order, nil, decimal.RequireFromString("0.1"))
	if order.TotalCents != 0 || len(order.LineItems) != 0 {
		t.Fatalf("unexpected totals on empty order: %+v", order)
	}
}
