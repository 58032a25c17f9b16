package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/traversefi/traverse/internal/account"
	"github.com/traversefi/traverse/internal/address"
	"github.com/traversefi/traverse/internal/asset"
	"github.com/traversefi/traverse/internal/money"
	"github.com/traversefi/traverse/internal/pending"
)

var (
	btc  = money.Currency{Code: "BTC", Precision: 8}
	eth  = money.Currency{Code: "ETH", Precision: 8}
	usdt = money.Currency{Code: "USDT", Precision: 6}
	eur  = money.Currency{Code: "EUR", Precision: 2}

	btcAsset  = asset.Asset{Currency: btc, Name: "Bitcoin", Kind: asset.Coin, FeeCurrency: btc}
	ethAsset  = asset.Asset{Currency: eth, Name: "Ethereum", Kind: asset.Coin, FeeCurrency: eth}
	usdtAsset = asset.Asset{Currency: usdt, Name: "Tether", Kind: asset.Token, FeeCurrency: eth}
	eurAsset  = asset.Asset{Currency: eur, Name: "Euro", Kind: asset.Fiat, FeeCurrency: eur}
)

// fakeAccount satisfies account.Account with a fixed balance.
type fakeAccount struct {
	id      string
	label   string
	asset   asset.Asset
	tags    account.Tags
	balance account.Balance
	receive account.ReceiveAddress
}

func (a *fakeAccount) ID() string                { return a.id }
func (a *fakeAccount) Label() string             { return a.label }
func (a *fakeAccount) Asset() asset.Asset        { return a.asset }
func (a *fakeAccount) Tags() account.Tags        { return a.tags }
func (a *fakeAccount) Balance(ctx context.Context) <-chan account.Balance {
	ch := make(chan account.Balance, 1)
	ch <- a.balance
	return ch
}
func (a *fakeAccount) ReceiveAddress(ctx context.Context) (account.ReceiveAddress, error) {
	if a.receive.Address == "" {
		return account.ReceiveAddress{}, account.ErrNoReceiveAddress
	}
	return a.receive, nil
}
func (a *fakeAccount) IsFunded(ctx context.Context) (bool, error) {
	return a.balance.Total.IsPositive(), nil
}

func walletAccount(minor int64) *fakeAccount {
	return &fakeAccount{
		id:    "wallet-1",
		label: "My Wallet",
		asset: btcAsset,
		tags:  account.Tags{account.NonCustodial},
		balance: account.Balance{
			Total:     money.New(minor, btc),
			Available: money.New(minor, btc),
		},
	}
}

func tradingAccount(a asset.Asset, minor int64) *fakeAccount {
	return &fakeAccount{
		id:    "trading-1",
		label: "Trading",
		asset: a,
		tags:  account.Tags{account.Trading},
		balance: account.Balance{
			Total:     money.New(minor, a.Currency),
			Available: money.New(minor, a.Currency),
		},
	}
}

type fakeFees struct {
	regular  int64
	priority int64
	err      error
}

func (f *fakeFees) Estimate(ctx context.Context, a asset.Asset, amount money.Money) (FeeEstimate, error) {
	if f.err != nil {
		return FeeEstimate{}, f.err
	}
	return FeeEstimate{
		Regular:  money.New(f.regular, a.FeeCurrency),
		Priority: money.New(f.priority, a.FeeCurrency),
	}, nil
}

type fakeResolver struct {
	resolved address.Resolved
	err      error
}

func (f *fakeResolver) Resolve(ctx context.Context, input string, a asset.Asset) (address.Resolved, error) {
	if f.err != nil {
		return address.Resolved{}, f.err
	}
	if f.resolved.Address == "" {
		return address.Resolved{Address: input}, nil
	}
	return f.resolved, nil
}

type fakeSigner struct{ err error }

func (f *fakeSigner) SignTransfer(payload []byte, secondaryCredential string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]byte("signed:"), payload...), nil
}

type fakeBroadcaster struct {
	hash  string
	err   error
	calls int
}

func (f *fakeBroadcaster) Broadcast(ctx context.Context, a asset.Asset, signedTx []byte) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.hash, nil
}

type fakeQuotes struct {
	quote    Quote
	lockErr  error
	released []string
	locks    int
}

func (f *fakeQuotes) Lock(ctx context.Context, amount money.Money, to money.Currency) (Quote, error) {
	f.locks++
	if f.lockErr != nil {
		return Quote{}, f.lockErr
	}
	return f.quote, nil
}

func (f *fakeQuotes) Release(ctx context.Context, quoteID string) error {
	f.released = append(f.released, quoteID)
	return nil
}

type fakeActivity struct {
	pendingOrders int
	inFlight      bool
}

func (f *fakeActivity) PendingOrders(ctx context.Context, accountID string) (int, error) {
	return f.pendingOrders, nil
}

func (f *fakeActivity) HasTransferInFlight(ctx context.Context, accountID string) (bool, error) {
	return f.inFlight, nil
}

type fakeSubmitter struct {
	ack  string
	err  error
	last SubmitRecord
}

func (f *fakeSubmitter) Submit(ctx context.Context, rec SubmitRecord) (string, error) {
	f.last = rec
	if f.err != nil {
		return "", f.err
	}
	return f.ack, nil
}

type fakeLimits struct {
	result LimitsResult
	err    error
}

func (f *fakeLimits) Limits(ctx context.Context, accountID string, action Action, currency money.Currency) (LimitsResult, error) {
	return f.result, f.err
}

type fakeEligibility struct {
	granted bool
	reason  string
}

func (f *fakeEligibility) Check(ctx context.Context, accountID string, action Action) (Eligibility, error) {
	return Eligibility{Granted: f.granted, Reason: f.reason}, nil
}

type fakeRewards struct{ terms RewardsTerms }

func (f *fakeRewards) Terms(ctx context.Context, accountID string, currency money.Currency) (RewardsTerms, error) {
	return f.terms, nil
}

type fakeFeeFunding struct{ balance money.Money }

func (f *fakeFeeFunding) FeeBalance(ctx context.Context, accountID string, feeCurrency money.Currency) (money.Money, error) {
	return f.balance, nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func mustUpdateAmount(t *testing.T, e TxEngine, tx pending.Tx, minor int64, c money.Currency) pending.Tx {
	t.Helper()
	out, err := e.UpdateAmount(context.Background(), tx, money.New(minor, c))
	require.NoError(t, err)
	return out
}

func mustValidateAll(t *testing.T, e TxEngine, tx pending.Tx) pending.Tx {
	t.Helper()
	out, err := e.ValidateAll(context.Background(), tx)
	require.NoError(t, err)
	return out
}
