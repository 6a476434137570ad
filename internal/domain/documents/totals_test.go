package documents

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestComputeLine(t *testing.T) {
	tests := []struct {
		name            string
		qty, price, vat string
		total, vatAmt   string
	}{
		{"scenario", "4", "100", "19", "400.00", "76.00"},
		{"fractional qty", "2.5", "3.99", "19", "9.98", "1.90"},
		{"half cent rounds away from zero", "1", "0.125", "0", "0.13", "0.00"},
		{"vat rounding", "1", "10.05", "9", "10.05", "0.90"},
		{"zero vat", "3", "7", "0", "21.00", "0.00"},
		{"free line", "5", "0", "19", "0.00", "0.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := ComputeLine(LineInput{ArticleCode: "A1", Qty: d(tt.qty), UnitPrice: d(tt.price), VATRate: d(tt.vat)}, "Widget")
			assert.Equal(t, tt.total, l.LineTotal.StringFixed(2))
			assert.Equal(t, tt.vatAmt, l.VATAmount.StringFixed(2))
			assert.Equal(t, "Widget", l.Description)
		})
	}
}

func TestComputeLine_KeepsExactAmounts(t *testing.T) {
	l := ComputeLine(LineInput{Qty: d("3"), UnitPrice: d("33.333"), VATRate: d("9")}, "")
	assert.True(t, d("99.999").Equal(l.LineTotal), l.LineTotal.String())
	assert.True(t, d("8.99991").Equal(l.VATAmount), l.VATAmount.String())
}

func TestComputeTotals(t *testing.T) {
	lines := []Line{
		ComputeLine(LineInput{Qty: d("4"), UnitPrice: d("100"), VATRate: d("19")}, ""),
		ComputeLine(LineInput{Qty: d("3"), UnitPrice: d("33.333"), VATRate: d("9")}, ""),
		ComputeLine(LineInput{Qty: d("1"), UnitPrice: d("0.01"), VATRate: d("19")}, ""),
	}

	tot := ComputeTotals(lines, d("1.5"), d("0"))

	// 400 + 99.999 + 0.01 = 500.009
	assert.Equal(t, "500.01", tot.AmountExclTax.StringFixed(2))
	// 76 + 8.99991 + 0.0019 = 85.00181
	assert.Equal(t, "85.00", tot.VATAmount.StringFixed(2))
	assert.Equal(t, "1.50", tot.StampTax.StringFixed(2))
	assert.Equal(t, "586.51", tot.TotalInclTax.StringFixed(2))
}

func TestComputeTotals_RoundsSumNotLines(t *testing.T) {
	tests := []struct {
		name       string
		qty, price string
		vat        string
		n          int
		excl, tax  string
	}{
		// 3 × 0.005 = 0.015, while 3 × round(0.005) would give 0.03
		{"vat half cents", "1", "0.05", "10", 3, "0.15", "0.02"},
		// 3 × 0.333 = 0.999, while 3 × round(0.333) would give 0.99
		{"line thirds", "1", "0.333", "0", 3, "1.00", "0.00"},
		// 7 × 0.0049 = 0.0343
		{"sub-cent vat", "1", "0.049", "10", 7, "0.34", "0.03"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := make([]Line, tt.n)
			for i := range lines {
				lines[i] = ComputeLine(LineInput{Qty: d(tt.qty), UnitPrice: d(tt.price), VATRate: d(tt.vat)}, "")
			}
			tot := ComputeTotals(lines, decimal.Zero, decimal.Zero)
			assert.Equal(t, tt.excl, tot.AmountExclTax.StringFixed(2))
			assert.Equal(t, tt.tax, tot.VATAmount.StringFixed(2))
		})
	}
}

func TestComputeTotals_Empty(t *testing.T) {
	tot := ComputeTotals(nil, decimal.Zero, decimal.Zero)
	assert.True(t, tot.TotalInclTax.IsZero())
}
