package documents

import (
	"github.com/shopspring/decimal"

	"docengine/internal/core/types"
)

// ComputeLine derives the exact line amounts: line_total = qty × unit_price
// and vat = line_total × vat_rate / 100. Nothing is rounded here.
func ComputeLine(in LineInput, description string) Line {
	total := in.Qty.Mul(in.UnitPrice)
	return Line{
		ArticleCode: in.ArticleCode,
		Description: description,
		Qty:         in.Qty,
		UnitPrice:   in.UnitPrice,
		VATRate:     in.VATRate,
		LineTotal:   total,
		VATAmount:   types.Percent(total, in.VATRate),
	}
}

// ComputeTotals sums the exact line amounts and rounds each header amount to
// cents once. TotalInclTax is the sum of the rounded header amounts.
func ComputeTotals(lines []Line, stampTax, otherTax types.Money) Totals {
	excl, vat := decimal.Zero, decimal.Zero
	for _, l := range lines {
		excl = excl.Add(l.LineTotal)
		vat = vat.Add(l.VATAmount)
	}
	t := Totals{
		AmountExclTax: types.RoundMoney(excl),
		VATAmount:     types.RoundMoney(vat),
		StampTax:      types.RoundMoney(stampTax),
		OtherTax:      types.RoundMoney(otherTax),
	}
	t.TotalInclTax = t.AmountExclTax.Add(t.VATAmount).Add(t.StampTax).Add(t.OtherTax)
	return t
}
