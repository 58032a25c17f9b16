package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traversefi/traverse/internal/account"
	"github.com/traversefi/traverse/internal/address"
	"github.com/traversefi/traverse/internal/money"
	"github.com/traversefi/traverse/internal/pending"
	"github.com/traversefi/traverse/internal/validation"
	pkgerrors "github.com/traversefi/traverse/pkg/errors"
)

func onChainDeps() Deps {
	return Deps{
		Fees:        &fakeFees{regular: 10, priority: 30},
		Resolver:    &fakeResolver{},
		Signer:      &fakeSigner{},
		Broadcaster: &fakeBroadcaster{hash: "deadbeef"},
	}
}

func TestOnChainInitialise(t *testing.T) {
	t.Parallel()

	eng := NewOnChainSend(onChainDeps(), walletAccount(100000), Target{Address: "raw-addr"})

	tx, err := eng.Initialise(context.Background())
	require.NoError(t, err)

	assert.True(t, tx.Amount.IsZero())
	assert.False(t, tx.Attempted)
	assert.Equal(t, validation.Uninitialised, tx.State)
	assert.Equal(t, int64(100000), tx.AvailableBalance.MinorUnits)
	assert.Equal(t, int64(10), tx.FeeAmount.MinorUnits)
	assert.Equal(t, pending.FeeRegular, tx.FeeSelection.Selected)
	assert.True(t, tx.FeeSelection.Supports(pending.FeePriority))
	assert.True(t, tx.FeeSelection.Supports(pending.FeeCustom))
	assert.Equal(t, []pending.Step{pending.StepEnterAmount}, tx.Steps)

	from, ok := tx.Confirmations.Get(pending.TagFrom)
	require.True(t, ok)
	assert.Equal(t, "My Wallet", from.Value)

	desc, ok := tx.Confirmations.Get(pending.TagDescription)
	require.True(t, ok)
	assert.True(t, desc.Editable)
}

func TestOnChainUpdateAmountReestimatesFee(t *testing.T) {
	t.Parallel()

	deps := onChainDeps()
	eng := NewOnChainSend(deps, walletAccount(100000), Target{Address: "raw-addr"})

	tx, err := eng.Initialise(context.Background())
	require.NoError(t, err)

	tx = mustUpdateAmount(t, eng, tx, 5000, btc)
	assert.Equal(t, int64(5000), tx.Amount.MinorUnits)
	assert.True(t, tx.Attempted)
	assert.Equal(t, int64(10), tx.FeeAmount.MinorUnits)

	total, ok := tx.Confirmations.Get(pending.TagTotal)
	require.True(t, ok)
	assert.Equal(t, int64(5010), total.Amount.MinorUnits)
}

func TestOnChainUpdateAmountRejectsForeignCurrency(t *testing.T) {
	t.Parallel()

	eng := NewOnChainSend(onChainDeps(), walletAccount(1000), Target{Address: "raw-addr"})

	tx, err := eng.Initialise(context.Background())
	require.NoError(t, err)

	_, err = eng.UpdateAmount(context.Background(), tx, money.New(100, eur))
	assert.True(t, pkgerrors.IsTransferError(err, pkgerrors.TransferErrInvalidCurrency))
}

func TestOnChainFeeLevels(t *testing.T) {
	t.Parallel()

	eng := NewOnChainSend(onChainDeps(), walletAccount(100000), Target{Address: "raw-addr"})

	tx, err := eng.Initialise(context.Background())
	require.NoError(t, err)

	tx, err = eng.UpdateFeeLevel(context.Background(), tx, pending.FeePriority, nil)
	require.NoError(t, err)
	assert.Equal(t, pending.FeePriority, tx.FeeSelection.Selected)
	assert.Equal(t, int64(30), tx.FeeAmount.MinorUnits)

	custom := money.New(3, btc)
	tx, err = eng.UpdateFeeLevel(context.Background(), tx, pending.FeeCustom, &custom)
	require.NoError(t, err)
	assert.Equal(t, int64(3), tx.FeeAmount.MinorUnits)

	// Custom without an amount is rejected.
	_, err = eng.UpdateFeeLevel(context.Background(), tx, pending.FeeCustom, nil)
	assert.ErrorIs(t, err, pending.ErrFeeLevelUnavailable)

	_, err = eng.UpdateFeeLevel(context.Background(), tx, pending.FeeNone, nil)
	assert.ErrorIs(t, err, pending.ErrFeeLevelUnavailable)
}

func TestOnChainValidateAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		balance int64
		amount  int64
		want    validation.State
	}{
		{name: "affordable", balance: 100000, amount: 5000, want: validation.CanExecute},
		{name: "amount plus fee over balance", balance: 5005, amount: 5000, want: validation.InsufficientFunds},
		{name: "negative amount", balance: 100000, amount: -1, want: validation.InvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := NewOnChainSend(onChainDeps(), walletAccount(tt.balance), Target{Address: "raw-addr"})

			tx, err := eng.Initialise(context.Background())
			require.NoError(t, err)

			tx = tx.WithAmount(money.New(tt.amount, btc))
			tx, err = eng.ValidateAmount(context.Background(), tx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, tx.State)

			_, hasNotice := tx.Confirmations.Get(pending.TagErrorNotice)
			assert.Equal(t, tt.want.Blocking(), hasNotice)
		})
	}
}

func TestOnChainZeroAmountStaysPristine(t *testing.T) {
	t.Parallel()

	// A wallet that cannot even cover the fee must not warn before the
	// user has entered anything.
	eng := NewOnChainSend(onChainDeps(), walletAccount(5), Target{Address: "raw-addr"})

	tx, err := eng.Initialise(context.Background())
	require.NoError(t, err)

	tx, err = eng.ValidateAmount(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, validation.Uninitialised, tx.State)
	_, hasNotice := tx.Confirmations.Get(pending.TagErrorNotice)
	assert.False(t, hasNotice)
}

func TestOnChainTokenSendChecksGasSeparately(t *testing.T) {
	t.Parallel()

	tokenWallet := &fakeAccount{
		id:    "wallet-2",
		label: "Token Wallet",
		asset: usdtAsset,
		tags:  account.Tags{account.NonCustodial},
		balance: account.Balance{
			Total:     money.New(1000000, usdt),
			Available: money.New(1000000, usdt),
		},
	}

	deps := onChainDeps()
	deps.FeeFunding = &fakeFeeFunding{balance: money.New(5, eth)}

	eng := NewOnChainSend(deps, tokenWallet, Target{Address: "raw-addr"})

	tx, err := eng.Initialise(context.Background())
	require.NoError(t, err)

	// Fee (10 ETH minor units) exceeds the 5 available: gas short even
	// though the token balance covers the amount.
	tx = tx.WithAmount(money.New(100, usdt))
	tx, err = eng.ValidateAmount(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, validation.InsufficientGas, tx.State)

	// Token sends show no single total: the fee is in another currency.
	_, hasTotal := tx.Confirmations.Get(pending.TagTotal)
	assert.False(t, hasTotal)
}

func TestOnChainValidateAllResolvesAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		resolver *fakeResolver
		want     validation.State
	}{
		{
			name:     "valid address",
			resolver: &fakeResolver{resolved: address.Resolved{Address: "machine-addr"}},
			want:     validation.CanExecute,
		},
		{
			name:     "invalid address",
			resolver: &fakeResolver{err: address.ErrInvalidAddress},
			want:     validation.InvalidAddress,
		},
		{
			name:     "unresolvable domain",
			resolver: &fakeResolver{err: address.ErrInvalidDomain},
			want:     validation.InvalidDomain,
		},
		{
			name:     "contract address",
			resolver: &fakeResolver{resolved: address.Resolved{Address: "machine-addr", IsContract: true}},
			want:     validation.AddressIsContract,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := onChainDeps()
			deps.Resolver = tt.resolver

			eng := NewOnChainSend(deps, walletAccount(100000), Target{Address: "raw-addr"})

			tx, err := eng.Initialise(context.Background())
			require.NoError(t, err)

			tx = tx.WithAmount(money.New(500, btc))
			tx = mustValidateAll(t, eng, tx)
			assert.Equal(t, tt.want, tx.State)
		})
	}
}

func TestOnChainValidateAllBlocksOnInFlightTransfer(t *testing.T) {
	t.Parallel()

	deps := onChainDeps()
	deps.Activity = &fakeActivity{inFlight: true}

	eng := NewOnChainSend(deps, walletAccount(100000), Target{Address: "raw-addr"})

	tx, err := eng.Initialise(context.Background())
	require.NoError(t, err)

	tx = tx.WithAmount(money.New(500, btc))
	tx = mustValidateAll(t, eng, tx)
	assert.Equal(t, validation.HasTxInFlight, tx.State)
}

func TestOnChainExecute(t *testing.T) {
	t.Parallel()

	deps := onChainDeps()
	broadcaster := &fakeBroadcaster{hash: "deadbeef"}
	deps.Broadcaster = broadcaster

	eng := NewOnChainSend(deps, walletAccount(100000), Target{Address: "raw-addr"})

	tx, err := eng.Initialise(context.Background())
	require.NoError(t, err)

	tx = tx.WithAmount(money.New(500, btc))
	tx = mustValidateAll(t, eng, tx)
	require.Equal(t, validation.CanExecute, tx.State)

	res, err := eng.Execute(context.Background(), tx, "")
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", res.Hash)
	assert.Empty(t, res.AckID)
	assert.Equal(t, 1, broadcaster.calls)
}

func TestOnChainExecuteRefusesUnvalidatedSnapshot(t *testing.T) {
	t.Parallel()

	broadcaster := &fakeBroadcaster{hash: "deadbeef"}
	deps := onChainDeps()
	deps.Broadcaster = broadcaster

	eng := NewOnChainSend(deps, walletAccount(100000), Target{Address: "raw-addr"})

	tx, err := eng.Initialise(context.Background())
	require.NoError(t, err)

	// Never validated: no resolved address, state not CAN_EXECUTE.
	_, err = eng.Execute(context.Background(), tx, "")
	assert.ErrorIs(t, err, pkgerrors.ErrExecutionBlocked)
	assert.Zero(t, broadcaster.calls)
}

func TestOnChainExecuteSignerFailure(t *testing.T) {
	t.Parallel()

	deps := onChainDeps()
	deps.Signer = &fakeSigner{err: errors.New("credential rejected")}

	eng := NewOnChainSend(deps, walletAccount(100000), Target{Address: "raw-addr"})

	tx, err := eng.Initialise(context.Background())
	require.NoError(t, err)

	tx = tx.WithAmount(money.New(500, btc))
	tx = mustValidateAll(t, eng, tx)

	_, err = eng.Execute(context.Background(), tx, "wrong")
	require.Error(t, err)

	var domainErr *pkgerrors.Error
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, pkgerrors.TransferDomain, domainErr.Domain)
}

func TestOnChainSetOption(t *testing.T) {
	t.Parallel()

	eng := NewOnChainSend(onChainDeps(), walletAccount(100000), Target{Address: "raw-addr"})

	tx, err := eng.Initialise(context.Background())
	require.NoError(t, err)

	tx, err = eng.SetOption(context.Background(), tx, pending.Confirmation{
		Tag: pending.TagDescription, Value: "rent",
	})
	require.NoError(t, err)

	desc, ok := tx.Confirmations.Get(pending.TagDescription)
	require.True(t, ok)
	assert.Equal(t, "rent", desc.Value)

	_, err = eng.SetOption(context.Background(), tx, pending.Confirmation{
		Tag: pending.TagMemo, Value: "nope",
	})
	assert.ErrorIs(t, err, pkgerrors.ErrOptionNotOffered)
}

func TestOnChainTargetAccountUsesReceiveAddress(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{}
	deps := onChainDeps()
	deps.Resolver = resolver

	target := &fakeAccount{
		id:      "trading-9",
		label:   "Exchange Account",
		asset:   btcAsset,
		tags:    account.Tags{account.Trading},
		receive: account.ReceiveAddress{Address: "exchange-deposit-addr"},
	}

	eng := NewOnChainSend(deps, walletAccount(100000), Target{Account: target})

	tx, err := eng.Initialise(context.Background())
	require.NoError(t, err)

	to, ok := tx.Confirmations.Get(pending.TagTo)
	require.True(t, ok)
	assert.Equal(t, "Exchange Account", to.Value)

	tx = tx.WithAmount(money.New(500, btc))
	tx = mustValidateAll(t, eng, tx)
	assert.Equal(t, validation.CanExecute, tx.State)

	st, ok := tx.EngineState.(onChainState)
	require.True(t, ok)
	assert.Equal(t, "exchange-deposit-addr", st.Resolved.Address)
}

func TestOnChainProperties(t *testing.T) {
	t.Parallel()

	eng := NewOnChainSend(onChainDeps(), walletAccount(0), Target{Address: "raw-addr"})
	assert.False(t, eng.AcceptsFiatInput())
	assert.Equal(t, []string{"balance:wallet-1"}, eng.AffectedCaches())
	assert.NoError(t, eng.Cancel(context.Background(), pending.Tx{}))
}

func TestOnChainBuildConfirmationsRepeatable(t *testing.T) {
	t.Parallel()

	eng := NewOnChainSend(onChainDeps(), walletAccount(100000), Target{Address: "raw-addr"})

	tx, err := eng.Initialise(context.Background())
	require.NoError(t, err)
	tx = mustUpdateAmount(t, eng, tx, 5000, btc)

	once, err := eng.BuildConfirmations(context.Background(), tx)
	require.NoError(t, err)
	twice, err := eng.BuildConfirmations(context.Background(), once)
	require.NoError(t, err)

	assert.Equal(t, once.Confirmations, twice.Confirmations)
}

func TestOnChainValidateAllRepeatable(t *testing.T) {
	t.Parallel()

	eng := NewOnChainSend(onChainDeps(), walletAccount(100000), Target{Address: "raw-addr"})

	tx, err := eng.Initialise(context.Background())
	require.NoError(t, err)
	tx = mustUpdateAmount(t, eng, tx, 5000, btc)

	first := mustValidateAll(t, eng, tx)
	second := mustValidateAll(t, eng, first)

	assert.Equal(t, validation.CanExecute, first.State)
	assert.Equal(t, first.State, second.State)
	assert.Equal(t, first.Confirmations, second.Confirmations)
}

func TestOnChainValidateAllRepeatableWhenBlocked(t *testing.T) {
	t.Parallel()

	eng := NewOnChainSend(onChainDeps(), walletAccount(100), Target{Address: "raw-addr"})

	tx, err := eng.Initialise(context.Background())
	require.NoError(t, err)
	tx = mustUpdateAmount(t, eng, tx, 5000, btc)

	first := mustValidateAll(t, eng, tx)
	second := mustValidateAll(t, eng, first)

	assert.Equal(t, validation.InsufficientFunds, first.State)
	assert.Equal(t, first.State, second.State)

	// The error notice is replaced, never duplicated.
	assert.Equal(t, first.Confirmations, second.Confirmations)
}
