// Package asset defines the asset catalogue capability consumed by the
// transfer engines. The catalogue resolves assets by ticker and supplies
// exchange rates and per-asset parameters; it never performs transfers.
package asset

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/traversefi/traverse/internal/money"
)

// Common errors
var (
	ErrUnknownAsset = errors.New("unknown asset")
	ErrNoRate       = errors.New("no exchange rate available")
)

// Kind distinguishes the settlement rail an asset lives on.
type Kind string

const (
	// Coin is a chain's native asset (pays its own network fees).
	Coin Kind = "COIN"
	// Token is an asset carried on another chain; fees are paid in the
	// chain's native asset.
	Token Kind = "TOKEN"
	// Fiat is bank-rail currency.
	Fiat Kind = "FIAT"
)

// Asset describes one transferable asset.
type Asset struct {
	Currency money.Currency `json:"currency"`
	Name     string         `json:"name"`
	Kind     Kind           `json:"kind"`
	// FeeCurrency is the currency network fees are charged in. For a Coin
	// it equals Currency; for a Token it is the parent chain's native
	// currency; fiat rails carry their fee in the fiat currency itself.
	FeeCurrency money.Currency `json:"fee_currency"`
	// MinConfirmations is the number of confirmations required before an
	// on-chain receipt is considered final.
	MinConfirmations int `json:"min_confirmations,omitempty"`
}

// ExchangeRate converts amounts of From into To at Rate.
type ExchangeRate struct {
	From money.Currency `json:"from"`
	To   money.Currency `json:"to"`
	// Rate is the price of one major unit of From in major units of To.
	Rate float64 `json:"rate"`
	// AsOf is when the rate was observed.
	AsOf time.Time `json:"as_of"`
}

// Convert converts an amount of the From currency into the To currency.
func (r ExchangeRate) Convert(m money.Money) (money.Money, error) {
	if !m.Currency.Equal(r.From) {
		return money.Money{}, fmt.Errorf("%w: rate is %s->%s, amount is %s",
			money.ErrCurrencyMismatch, r.From, r.To, m.Currency)
	}
	return money.FromMajor(m.Major()*r.Rate, r.To), nil
}

// Catalogue resolves assets and prices. Implementations are backed by the
// market-data service; failures are transient and mapped to the engine
// error taxonomy by callers.
type Catalogue interface {
	// Lookup returns the asset for a ticker.
	Lookup(ctx context.Context, code string) (Asset, error)

	// ExchangeRate returns the current rate from one currency to another.
	ExchangeRate(ctx context.Context, from, to money.Currency) (ExchangeRate, error)

	// HistoricRate returns the rate as of a point in time.
	HistoricRate(ctx context.Context, from, to money.Currency, at time.Time) (ExchangeRate, error)
}
