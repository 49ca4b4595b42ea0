package orders

import (
	"github.com/shopspring/decimal"

	"github.com/seahsky/joho-erp-sub004/pkg/db/models"
)

// Totals are the derived money fields of an order, in minor units.
type Totals struct {
	SubtotalCents int64
	TaxCents      int64
	TotalCents    int64
}

// priceLines recomputes each line subtotal and the order totals. Amounts are
// rounded half away from zero to whole minor units.
func priceLines(lines []models.OrderLineItem, taxRate decimal.Decimal) ([]models.OrderLineItem, Totals) {
	out := make([]models.OrderLineItem, len(lines))
	subtotal := decimal.Zero
	for i, line := range lines {
		lineSubtotal := decimal.NewFromInt(line.UnitPriceCents).
			Mul(decimal.NewFromInt(int64(line.Quantity))).
			Round(0)
		line.SubtotalCents = lineSubtotal.IntPart()
		out[i] = line
		subtotal = subtotal.Add(lineSubtotal)
	}
	tax := subtotal.Mul(taxRate).Round(0)
	return out, Totals{
		SubtotalCents: subtotal.IntPart(),
		TaxCents:      tax.IntPart(),
		TotalCents:    subtotal.Add(tax).IntPart(),
	}
}

func applyTotals(order *models.Order, lines []models.OrderLineItem, taxRate decimal.Decimal) {
	priced, totals := priceLines(lines, taxRate)
	order.LineItems = priced
	order.SubtotalCents = totals.SubtotalCents
	order.TaxCents = totals.TaxCents
	order.TotalCents = totals.TotalCents
}
