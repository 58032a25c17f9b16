// Package money provides currency-tagged fixed-point amounts.
// Amounts are stored as integer minor units (e.g. satoshi, cents) so that
// arithmetic is exact; mixing currencies in arithmetic is an error.
package money

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Common errors
var (
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrNegativeAmount   = errors.New("amount must not be negative")
	ErrInvalidAmount    = errors.New("invalid amount")
)

// Currency identifies an asset or fiat currency together with its precision.
type Currency struct {
	// Code is the ticker, e.g. "BTC", "ETH", "USDT", "USD", "EUR".
	Code string `json:"code"`
	// Precision is the number of decimal places in one whole unit.
	Precision int `json:"precision"`
}

// Equal reports whether two currencies are the same currency.
func (c Currency) Equal(other Currency) bool {
	return c.Code == other.Code
}

func (c Currency) String() string {
	return c.Code
}

// Money is an immutable amount of a single currency in minor units.
type Money struct {
	MinorUnits int64    `json:"minor_units"`
	Currency   Currency `json:"currency"`
}

// New creates a Money value from minor units.
func New(minorUnits int64, currency Currency) Money {
	return Money{MinorUnits: minorUnits, Currency: currency}
}

// Zero returns the zero amount of the given currency.
func Zero(currency Currency) Money {
	return Money{Currency: currency}
}

// FromMajor converts a major-unit value (e.g. "1.5 BTC") to Money.
// The fractional part beyond the currency's precision is truncated.
func FromMajor(major float64, currency Currency) Money {
	scale := math.Pow10(currency.Precision)
	return Money{
		MinorUnits: int64(math.Round(major * scale)),
		Currency:   currency,
	}
}

// Parse parses a decimal string such as "0.015" into Money.
func Parse(s string, currency Currency) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, fmt.Errorf("%w: empty string", ErrInvalidAmount)
	}

	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > currency.Precision {
		frac = frac[:currency.Precision]
	}
	for len(frac) < currency.Precision {
		frac += "0"
	}

	units, err := strconv.ParseInt(whole+frac, 10, 64)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if neg {
		units = -units
	}

	return Money{MinorUnits: units, Currency: currency}, nil
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool {
	return m.MinorUnits == 0
}

// IsPositive reports whether the amount is greater than zero.
func (m Money) IsPositive() bool {
	return m.MinorUnits > 0
}

// IsNegative reports whether the amount is less than zero.
func (m Money) IsNegative() bool {
	return m.MinorUnits < 0
}

// Add returns m + other. The currencies must match.
func (m Money) Add(other Money) (Money, error) {
	if !m.Currency.Equal(other.Currency) {
		return Money{}, fmt.Errorf("%w: %s + %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return Money{MinorUnits: m.MinorUnits + other.MinorUnits, Currency: m.Currency}, nil
}

// Sub returns m - other. The currencies must match.
func (m Money) Sub(other Money) (Money, error) {
	if !m.Currency.Equal(other.Currency) {
		return Money{}, fmt.Errorf("%w: %s - %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return Money{MinorUnits: m.MinorUnits - other.MinorUnits, Currency: m.Currency}, nil
}

// Cmp compares m against other: -1 if m < other, 0 if equal, 1 if m > other.
// The currencies must match.
func (m Money) Cmp(other Money) (int, error) {
	if !m.Currency.Equal(other.Currency) {
		return 0, fmt.Errorf("%w: compare %s with %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	switch {
	case m.MinorUnits < other.MinorUnits:
		return -1, nil
	case m.MinorUnits > other.MinorUnits:
		return 1, nil
	default:
		return 0, nil
	}
}

// LessThan reports whether m < other. The currencies must match.
func (m Money) LessThan(other Money) (bool, error) {
	c, err := m.Cmp(other)
	if err != nil {
		return false, err
	}
	return c < 0, nil
}

// GreaterThan reports whether m > other. The currencies must match.
func (m Money) GreaterThan(other Money) (bool, error) {
	c, err := m.Cmp(other)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}

// Major returns the amount in major units as a float64. Intended for
// display and metrics only, never for arithmetic.
func (m Money) Major() float64 {
	return float64(m.MinorUnits) / math.Pow10(m.Currency.Precision)
}

// String formats the amount with full precision, e.g. "0.01500000 BTC".
func (m Money) String() string {
	units := m.MinorUnits
	neg := units < 0
	if neg {
		units = -units
	}

	scale := int64(math.Pow10(m.Currency.Precision))
	whole := units
	var s string
	if scale > 1 {
		frac := units % scale
		whole = units / scale
		s = fmt.Sprintf("%d.%0*d", whole, m.Currency.Precision, frac)
	} else {
		s = strconv.FormatInt(whole, 10)
	}
	if neg {
		s = "-" + s
	}
	return s + " " + m.Currency.Code
}
