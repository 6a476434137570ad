// Package types provides common type aliases and utilities.
package types

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// Quantity is an article quantity. Stock counters may be fractional
// (weights, lengths), so it shares the decimal representation with Money.
type Quantity = decimal.Decimal

// MoneyPlaces is the number of fractional digits kept on document amounts.
const MoneyPlaces int32 = 2

// RoundMoney rounds half away from zero to MoneyPlaces digits.
func RoundMoney(m Money) Money {
	return m.Round(MoneyPlaces)
}

// Percent returns base * rate / 100 without intermediate rounding.
func Percent(base Money, rate decimal.Decimal) Money {
	return base.Mul(rate).Div(decimal.NewFromInt(100))
}

// MoneyJSON renders m as a JSON number with exactly MoneyPlaces digits (400.00).
func MoneyJSON(m Money) json.Number {
	return json.Number(m.StringFixed(MoneyPlaces))
}

// QuantityJSON renders q as a JSON number without trailing zeros.
func QuantityJSON(q Quantity) json.Number {
	return json.Number(q.String())
}
