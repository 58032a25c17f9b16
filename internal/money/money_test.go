package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	btc = Currency{Code: "BTC", Precision: 8}
	eur = Currency{Code: "EUR", Precision: 2}
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		currency Currency
		want     int64
		wantErr  bool
	}{
		{name: "whole units", input: "1", currency: btc, want: 100000000},
		{name: "fractional", input: "0.015", currency: btc, want: 1500000},
		{name: "full precision", input: "0.00000001", currency: btc, want: 1},
		{name: "excess precision truncated", input: "0.123456789", currency: btc, want: 12345678},
		{name: "leading dot", input: ".5", currency: eur, want: 50},
		{name: "negative", input: "-2.50", currency: eur, want: -250},
		{name: "whitespace", input: "  3.00 ", currency: eur, want: 300},
		{name: "zero", input: "0", currency: eur, want: 0},
		{name: "empty", input: "", currency: eur, wantErr: true},
		{name: "garbage", input: "abc", currency: eur, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input, tt.currency)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.MinorUnits)
			assert.Equal(t, tt.currency, got.Currency)
		})
	}
}

func TestArithmetic(t *testing.T) {
	t.Parallel()

	a := New(150, eur)
	b := New(50, eur)

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, int64(200), sum.MinorUnits)

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.Equal(t, int64(100), diff.MinorUnits)

	// Inputs are never mutated.
	assert.Equal(t, int64(150), a.MinorUnits)
	assert.Equal(t, int64(50), b.MinorUnits)
}

func TestArithmeticCurrencyMismatch(t *testing.T) {
	t.Parallel()

	a := New(100, btc)
	b := New(100, eur)

	_, err := a.Add(b)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = a.Sub(b)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = a.Cmp(b)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestComparisons(t *testing.T) {
	t.Parallel()

	small := New(1, btc)
	big := New(2, btc)

	less, err := small.LessThan(big)
	require.NoError(t, err)
	assert.True(t, less)

	greater, err := big.GreaterThan(small)
	require.NoError(t, err)
	assert.True(t, greater)

	c, err := small.Cmp(small)
	require.NoError(t, err)
	assert.Zero(t, c)
}

func TestPredicates(t *testing.T) {
	t.Parallel()

	assert.True(t, Zero(btc).IsZero())
	assert.True(t, New(1, btc).IsPositive())
	assert.True(t, New(-1, btc).IsNegative())
	assert.False(t, New(-1, btc).IsPositive())
}

func TestFromMajor(t *testing.T) {
	t.Parallel()

	m := FromMajor(1.5, btc)
	assert.Equal(t, int64(150000000), m.MinorUnits)

	m = FromMajor(19.99, eur)
	assert.Equal(t, int64(1999), m.MinorUnits)
}

func TestString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0.01500000 BTC", New(1500000, btc).String())
	assert.Equal(t, "-2.50 EUR", New(-250, eur).String())
	assert.Equal(t, "0.00 EUR", Zero(eur).String())
}

func TestMajor(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.5, New(150000000, btc).Major(), 1e-9)
}
