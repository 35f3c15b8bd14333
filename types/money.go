// Package types provides common types used across imprint.
package types

import (
	"encoding/json"
	"fmt"
	"math/bits"
	"strings"
)

// Money represents a payment or price in the smallest indivisible unit of a
// currency. All arithmetic is unsigned integer-only and overflow-checked;
// nothing in the ledger ever wraps around.
//
// Examples:
//   - USD(4900) = $49.00 (4900 cents)
//   - EUR(19900) = €199.00 (19900 cents)
//   - JPY(100) = ¥100
type Money struct {
	Amount   uint64 `json:"amount"`   // Smallest unit (cents, pence, etc)
	Currency string `json:"currency"` // ISO 4217 lowercase: "usd", "eur", "gbp"
}

// New creates a Money value in the given currency.
func New(amount uint64, currency string) Money {
	return Money{Amount: amount, Currency: strings.ToLower(currency)}
}

// USD creates a Money value in US Dollars (cents).
func USD(cents uint64) Money { return Money{Amount: cents, Currency: "usd"} }

// EUR creates a Money value in Euros (cents).
func EUR(cents uint64) Money { return Money{Amount: cents, Currency: "eur"} }

// GBP creates a Money value in British Pounds (pence).
func GBP(pence uint64) Money { return Money{Amount: pence, Currency: "gbp"} }

// JPY creates a Money value in Japanese Yen (no decimal).
func JPY(yen uint64) Money { return Money{Amount: yen, Currency: "jpy"} }

// Zero returns a zero Money value in the specified currency.
func Zero(currency string) Money { return Money{Amount: 0, Currency: strings.ToLower(currency)} }

// CheckedAdd adds two Money values. It reports false when the currencies
// differ or the sum would overflow.
func (m Money) CheckedAdd(other Money) (Money, bool) {
	if !m.SameCurrency(other) {
		return Money{}, false
	}
	sum, carry := bits.Add64(m.Amount, other.Amount, 0)
	if carry != 0 {
		return Money{}, false
	}
	return Money{Amount: sum, Currency: m.Currency}, true
}

// CheckedMul multiplies the Money by a quantity. It reports false when the
// product would overflow.
func (m Money) CheckedMul(qty uint64) (Money, bool) {
	hi, lo := bits.Mul64(m.Amount, qty)
	if hi != 0 {
		return Money{}, false
	}
	return Money{Amount: lo, Currency: m.Currency}, true
}

// Comparison methods

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool { return m.Amount == 0 }

// IsPositive returns true if the amount is greater than zero.
func (m Money) IsPositive() bool { return m.Amount > 0 }

// SameCurrency reports whether both values use the same currency.
func (m Money) SameCurrency(other Money) bool {
	return strings.EqualFold(m.Currency, other.Currency)
}

// Equal returns true if both Money values are equal (same amount and currency).
func (m Money) Equal(other Money) bool {
	return m.Amount == other.Amount && m.SameCurrency(other)
}

// LessThan returns true if this Money is less than other. Panics if currencies don't match.
func (m Money) LessThan(other Money) bool {
	m.assertSameCurrency(other)
	return m.Amount < other.Amount
}

// GreaterThan returns true if this Money is greater than other. Panics if currencies don't match.
func (m Money) GreaterThan(other Money) bool {
	m.assertSameCurrency(other)
	return m.Amount > other.Amount
}

// Formatting methods

// FormatMajor returns the major unit string without currency symbol.
// For currencies with 2 decimal places: "49.00" for USD(4900).
// For currencies with 0 decimal places (JPY): "100" for JPY(100).
func (m Money) FormatMajor() string {
	decimals := currencyDecimals(m.Currency)
	if decimals == 0 {
		return fmt.Sprintf("%d", m.Amount)
	}

	divisor := uint64(1)
	for i := 0; i < decimals; i++ {
		divisor *= 10
	}

	format := fmt.Sprintf("%%d.%%0%dd", decimals)
	return fmt.Sprintf(format, m.Amount/divisor, m.Amount%divisor)
}

// String returns a human-readable string with currency symbol.
// Examples: "$49.00", "€199.00", "£99.00", "¥100"
func (m Money) String() string {
	return currencySymbol(m.Currency) + m.FormatMajor()
}

// MarshalJSON implements json.Marshaler.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   uint64 `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}{
		Amount:   m.Amount,
		Currency: m.Currency,
		Display:  m.String(),
	})
}

// Helper functions

// assertSameCurrency panics if currencies don't match.
func (m Money) assertSameCurrency(other Money) {
	if !m.SameCurrency(other) {
		panic(fmt.Sprintf("money: currency mismatch: %s != %s", m.Currency, other.Currency))
	}
}

// currencySymbol returns the symbol for a currency code.
func currencySymbol(currency string) string {
	symbols := map[string]string{
		"usd": "$",
		"eur": "€",
		"gbp": "£",
		"jpy": "¥",
		"cad": "C$",
		"aud": "A$",
		"chf": "CHF ",
	}
	if sym, ok := symbols[strings.ToLower(currency)]; ok {
		return sym
	}
	return strings.ToUpper(currency) + " "
}

// currencyDecimals returns the number of decimal places for a currency.
func currencyDecimals(currency string) int {
	zeroDecimal := map[string]bool{
		"jpy": true, // Japanese Yen
		"krw": true, // Korean Won
		"vnd": true, // Vietnamese Dong
		"clp": true, // Chilean Peso
	}
	if zeroDecimal[strings.ToLower(currency)] {
		return 0
	}
	// Most currencies have 2 decimal places
	return 2
}
