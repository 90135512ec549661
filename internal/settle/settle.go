// Package settle derives transaction totals from a ledger, a transaction
// kind and a commission rate. Computation is pure and total: the same rows
// always yield the same totals, and no input produces an error.
package settle

import (
	"github.com/shopspring/decimal"

	"catatusaha/backend/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Compute returns full-precision totals. Every row contributes its line
// total to the subtotal, including blank-named and zero-quantity rows. The
// commission rule depends on the kind: sales deduct rate percent of the
// subtotal, expenses always settle at an effective rate of zero.
func Compute(rows []domain.LineItem, kind domain.Kind, rate int) domain.Totals {
	subtotal := decimal.Zero
	for _, row := range rows {
		subtotal = subtotal.Add(row.LineTotal)
	}

	if kind != domain.KindSale {
		return domain.Totals{
			Subtotal:        subtotal,
			CommissionRate:  0,
			CommissionTotal: decimal.Zero,
			GrandTotal:      subtotal,
		}
	}

	commission := subtotal.Mul(decimal.NewFromInt(int64(rate))).Div(hundred)
	return domain.Totals{
		Subtotal:        subtotal,
		CommissionRate:  rate,
		CommissionTotal: commission,
		GrandTotal:      subtotal.Sub(commission),
	}
}

// Rounded applies the display/submission rounding policy: subtotal and
// commission are rounded to 2 places independently, and the grand total is
// re-derived from the rounded pair so the three figures stay consistent.
// Intermediate computation is never rounded.
func Rounded(t domain.Totals) domain.Totals {
	subtotal := t.Subtotal.Round(2)
	commission := t.CommissionTotal.Round(2)
	return domain.Totals{
		Subtotal:        subtotal,
		CommissionRate:  t.CommissionRate,
		CommissionTotal: commission,
		GrandTotal:      subtotal.Sub(commission),
	}
}
