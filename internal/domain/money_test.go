package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestMoneyToDecimal(t *testing.T) {
	m := NewMoney(1_500_000, "USD")
	if got := m.ToDecimal().StringFixed(2); got != "1.50" {
		t.Errorf("expected 1.50, got %s", got)
	}
}

func TestMoneyConvert(t *testing.T) {
	m := NewMoney(100_000_000, "USD") // 100.00 USD
	rate := decimal.NewFromFloat(0.92)

	converted := m.Convert("EUR", rate)
	if converted.Currency != "EUR" {
		t.Errorf("expected EUR, got %s", converted.Currency)
	}
	if converted.Amount != 92_000_000 {
		t.Errorf("expected 92000000 micros, got %d", converted.Amount)
	}
}

func TestFromDecimalTruncates(t *testing.T) {
	d := decimal.NewFromFloat(0.0000019)
	if got := FromDecimal(d); got != 1 {
		t.Errorf("expected 1 micro, got %d", got)
	}
}

func TestMoneyString(t *testing.T) {
	m := NewMoney(25_000_000, "GBP")
	if got := m.String(); got != "25.00 GBP" {
		t.Errorf("unexpected string: %s", got)
	}
}
