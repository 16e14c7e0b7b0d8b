package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is a monetary value in a specific currency. Amounts are stored as
// BIGINT micros (10^-6) to avoid floating point errors; decimals are only
// used at the edges (rates, fees, display).
type Money struct {
	Amount   int64  // micros
	Currency string // ISO 4217
}

// NewMoney creates a Money value from micros.
func NewMoney(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: currency}
}

// ToDecimal converts the micros amount to a decimal.Decimal.
func (m Money) ToDecimal() decimal.Decimal {
	return decimal.NewFromInt(m.Amount).Div(decimal.NewFromInt(1_000_000))
}

// FromDecimal converts a decimal amount to int64 micros, truncating toward
// zero.
func FromDecimal(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(1_000_000)).IntPart()
}

// Convert converts the money to a target currency at the given rate
// (target per source).
func (m Money) Convert(targetCurrency string, rate decimal.Decimal) Money {
	return Money{
		Amount:   FromDecimal(m.ToDecimal().Mul(rate)),
		Currency: targetCurrency,
	}
}

// String renders the value with two decimal places, e.g. "100.00 USD".
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.ToDecimal().StringFixed(2), m.Currency)
}
