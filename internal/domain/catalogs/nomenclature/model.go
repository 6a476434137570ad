// Package nomenclature provides read access to the article catalog.
package nomenclature

import (
	"github.com/shopspring/decimal"

	"docengine/internal/core/dockind"
)

// Article is a stocked item with two independent stock counters.
type Article struct {
	Code        string `mapstructure:"code" json:"code"`
	Family      string `mapstructure:"family" json:"family,omitempty"`
	Description string `mapstructure:"description" json:"description"`
	Supplier    string `mapstructure:"supplier" json:"supplier,omitempty"`

	UnitPrice decimal.Decimal `mapstructure:"unit_price" json:"unit_price"`
	Margin    decimal.Decimal `mapstructure:"margin" json:"margin"`
	VATRate   decimal.Decimal `mapstructure:"vat_rate" json:"vat_rate"`
	SalePrice decimal.Decimal `mapstructure:"sale_price" json:"sale_price"`
	Threshold decimal.Decimal `mapstructure:"threshold" json:"threshold"`

	StockConfirmed decimal.Decimal `mapstructure:"stock_confirmed" json:"stock_confirmed"`
	StockInTransit decimal.Decimal `mapstructure:"stock_intransit" json:"stock_intransit"`
}

// Stock returns the value of counter.
func (a *Article) Stock(counter dockind.Counter) decimal.Decimal {
	if counter == dockind.CounterInTransit {
		return a.StockInTransit
	}
	return a.StockConfirmed
}

// SetStock replaces the value of counter, typically with the balance an
// adjustment returned.
func (a *Article) SetStock(counter dockind.Counter, v decimal.Decimal) {
	if counter == dockind.CounterInTransit {
		a.StockInTransit = v
		return
	}
	a.StockConfirmed = v
}

// BelowThreshold reports whether counter dropped under the reorder threshold.
func (a *Article) BelowThreshold(counter dockind.Counter) bool {
	return a.Threshold.IsPositive() && a.Stock(counter).LessThan(a.Threshold)
}
