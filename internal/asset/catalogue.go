package asset

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/traversefi/traverse/internal/money"
)

// RateSource supplies raw exchange rates to the catalogue.
type RateSource interface {
	// Rate returns the price of one major unit of from in major units of to.
	Rate(ctx context.Context, from, to money.Currency) (float64, error)
	// RateAt returns the rate as of a point in time.
	RateAt(ctx context.Context, from, to money.Currency, at time.Time) (float64, error)
}

// StaticCatalogue resolves assets from a fixed table and prices them
// through a pluggable rate source.
type StaticCatalogue struct {
	assets map[string]Asset
	rates  RateSource
}

// NewStaticCatalogue creates a catalogue preloaded with the supported
// assets. A nil rate source disables rate lookups.
func NewStaticCatalogue(rates RateSource) *StaticCatalogue {
	c := &StaticCatalogue{
		assets: make(map[string]Asset),
		rates:  rates,
	}

	btc := money.Currency{Code: "BTC", Precision: 8}
	eth := money.Currency{Code: "ETH", Precision: 8}
	usdt := money.Currency{Code: "USDT", Precision: 6}
	eur := money.Currency{Code: "EUR", Precision: 2}
	usd := money.Currency{Code: "USD", Precision: 2}

	c.Add(Asset{Currency: btc, Name: "Bitcoin", Kind: Coin, FeeCurrency: btc, MinConfirmations: 2})
	c.Add(Asset{Currency: eth, Name: "Ethereum", Kind: Coin, FeeCurrency: eth, MinConfirmations: 12})
	c.Add(Asset{Currency: usdt, Name: "Tether", Kind: Token, FeeCurrency: eth, MinConfirmations: 12})
	c.Add(Asset{Currency: eur, Name: "Euro", Kind: Fiat, FeeCurrency: eur})
	c.Add(Asset{Currency: usd, Name: "US Dollar", Kind: Fiat, FeeCurrency: usd})

	return c
}

// Add registers an asset, replacing any previous asset with the same code.
func (c *StaticCatalogue) Add(a Asset) {
	c.assets[strings.ToUpper(a.Currency.Code)] = a
}

// Lookup returns the asset for a ticker.
func (c *StaticCatalogue) Lookup(ctx context.Context, code string) (Asset, error) {
	a, ok := c.assets[strings.ToUpper(code)]
	if !ok {
		return Asset{}, fmt.Errorf("%w: %s", ErrUnknownAsset, code)
	}
	return a, nil
}

// ExchangeRate returns the current rate from one currency to another.
func (c *StaticCatalogue) ExchangeRate(ctx context.Context, from, to money.Currency) (ExchangeRate, error) {
	if c.rates == nil {
		return ExchangeRate{}, ErrNoRate
	}
	rate, err := c.rates.Rate(ctx, from, to)
	if err != nil {
		return ExchangeRate{}, err
	}
	return ExchangeRate{From: from, To: to, Rate: rate, AsOf: time.Now()}, nil
}

// HistoricRate returns the rate as of a point in time.
func (c *StaticCatalogue) HistoricRate(ctx context.Context, from, to money.Currency, at time.Time) (ExchangeRate, error) {
	if c.rates == nil {
		return ExchangeRate{}, ErrNoRate
	}
	rate, err := c.rates.RateAt(ctx, from, to, at)
	if err != nil {
		return ExchangeRate{}, err
	}
	return ExchangeRate{From: from, To: to, Rate: rate, AsOf: at}, nil
}

var _ Catalogue = (*StaticCatalogue)(nil)
