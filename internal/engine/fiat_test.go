package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traversefi/traverse/internal/account"
	"github.com/traversefi/traverse/internal/money"
	"github.com/traversefi/traverse/internal/pending"
	"github.com/traversefi/traverse/internal/validation"
	pkgerrors "github.com/traversefi/traverse/pkg/errors"
)

func bankAccount(minor int64) *fakeAccount {
	return &fakeAccount{
		id:    "bank-1",
		label: "Main Bank",
		asset: eurAsset,
		tags:  account.Tags{account.Fiat},
		balance: account.Balance{
			Total:     money.New(minor, eur),
			Available: money.New(minor, eur),
		},
	}
}

func eurTrading(minor int64) *fakeAccount {
	acc := tradingAccount(eurAsset, minor)
	acc.id = "trading-eur"
	return acc
}

func TestFiatDepositInitialise(t *testing.T) {
	t.Parallel()

	eng := NewFiatDeposit(Deps{Submitter: &fakeSubmitter{}}, bankAccount(50000),
		Target{Account: eurTrading(0)})

	tx, err := eng.Initialise(context.Background())
	require.NoError(t, err)

	assert.Equal(t, pending.FeeNone, tx.FeeSelection.Selected)
	assert.True(t, eng.AcceptsFiatInput())

	arrival, ok := tx.Confirmations.Get(pending.TagArrival)
	require.True(t, ok)
	assert.Equal(t, "1-3 business days", arrival.Value)

	// Deposits carry no editable reference.
	_, ok = tx.Confirmations.Get(pending.TagMemo)
	assert.False(t, ok)
}

func TestFiatWithdrawOffersReference(t *testing.T) {
	t.Parallel()

	eng := NewFiatWithdraw(Deps{Submitter: &fakeSubmitter{}}, eurTrading(50000),
		Target{Account: bankAccount(0)})

	tx, err := eng.Initialise(context.Background())
	require.NoError(t, err)

	memo, ok := tx.Confirmations.Get(pending.TagMemo)
	require.True(t, ok)
	assert.True(t, memo.Editable)

	tx, err = eng.SetOption(context.Background(), tx, pending.Confirmation{
		Tag: pending.TagMemo, Value: "Invoice 2026-117",
	})
	require.NoError(t, err)

	memo, _ = tx.Confirmations.Get(pending.TagMemo)
	assert.Equal(t, "Invoice 2026-117", memo.Value)
}

func TestFiatDepositRejectsReferenceEdits(t *testing.T) {
	t.Parallel()

	eng := NewFiatDeposit(Deps{Submitter: &fakeSubmitter{}}, bankAccount(50000),
		Target{Account: eurTrading(0)})

	tx, err := eng.Initialise(context.Background())
	require.NoError(t, err)

	_, err = eng.SetOption(context.Background(), tx, pending.Confirmation{
		Tag: pending.TagMemo, Value: "ref",
	})
	assert.ErrorIs(t, err, pkgerrors.ErrOptionNotOffered)
}

func TestFiatWithdrawReferenceValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ref  string
		want validation.State
	}{
		{name: "empty reference is fine", ref: "", want: validation.CanExecute},
		{name: "short printable ascii", ref: "Invoice 117", want: validation.CanExecute},
		{name: "too long", ref: strings.Repeat("x", maxBankReference+1), want: validation.MemoInvalid},
		{name: "non ascii", ref: "naïve", want: validation.MemoInvalid},
		{name: "control characters", ref: "ref\x00", want: validation.MemoInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := NewFiatWithdraw(Deps{Submitter: &fakeSubmitter{}}, eurTrading(50000),
				Target{Account: bankAccount(0)})

			tx, err := eng.Initialise(context.Background())
			require.NoError(t, err)

			if tt.ref != "" {
				tx, err = eng.SetOption(context.Background(), tx, pending.Confirmation{
					Tag: pending.TagMemo, Value: tt.ref,
				})
				require.NoError(t, err)
			}

			tx = mustUpdateAmount(t, eng, tx, 10000, eur)
			tx = mustValidateAll(t, eng, tx)
			assert.Equal(t, tt.want, tx.State)
		})
	}
}

func TestFiatDepositPaymentMethodLimit(t *testing.T) {
	t.Parallel()

	methodMax := money.New(25000, eur)
	deps := Deps{
		Submitter: &fakeSubmitter{},
		Limits:    &fakeLimits{result: LimitsResult{PaymentMethodMax: &methodMax}},
	}

	eng := NewFiatDeposit(deps, bankAccount(100000), Target{Account: eurTrading(0)})

	tx, err := eng.Initialise(context.Background())
	require.NoError(t, err)

	tx = mustUpdateAmount(t, eng, tx, 30000, eur)
	tx, err = eng.ValidateAmount(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, validation.AbovePaymentMethodLimit, tx.State)
}

func TestFiatExecuteCarriesReference(t *testing.T) {
	t.Parallel()

	submitter := &fakeSubmitter{ack: "payment-9"}
	eng := NewFiatWithdraw(Deps{Submitter: submitter}, eurTrading(50000),
		Target{Account: bankAccount(0)})

	tx, err := eng.Initialise(context.Background())
	require.NoError(t, err)

	tx, err = eng.SetOption(context.Background(), tx, pending.Confirmation{
		Tag: pending.TagMemo, Value: "Invoice 117",
	})
	require.NoError(t, err)

	tx = mustUpdateAmount(t, eng, tx, 10000, eur)
	tx = mustValidateAll(t, eng, tx)
	require.Equal(t, validation.CanExecute, tx.State)

	res, err := eng.Execute(context.Background(), tx, "")
	require.NoError(t, err)
	assert.Equal(t, "payment-9", res.AckID)
	assert.Equal(t, "Invoice 117", submitter.last.Memo)
	assert.Equal(t, Withdraw, submitter.last.Action)
}

func TestFiatDepositApprovalRequiredPassesThrough(t *testing.T) {
	t.Parallel()

	approval := &pkgerrors.ApprovalRequired{
		ApprovalURL: "https://bank.example/approve/abc",
		PaymentID:   "abc",
	}
	eng := NewFiatDeposit(Deps{Submitter: &fakeSubmitter{err: approval}}, bankAccount(50000),
		Target{Account: eurTrading(0)})

	tx, err := eng.Initialise(context.Background())
	require.NoError(t, err)

	tx = mustUpdateAmount(t, eng, tx, 10000, eur)
	tx = mustValidateAll(t, eng, tx)
	require.Equal(t, validation.CanExecute, tx.State)

	_, err = eng.Execute(context.Background(), tx, "")

	var got *pkgerrors.ApprovalRequired
	require.ErrorAs(t, err, &got)
	assert.Equal(t, "abc", got.PaymentID)
	assert.Equal(t, "https://bank.example/approve/abc", got.ApprovalURL)
}

func TestFiatWithdrawConfiguredReferenceLimit(t *testing.T) {
	t.Parallel()

	deps := Deps{Submitter: &fakeSubmitter{}, BankReferenceMax: 5}
	eng := NewFiatWithdraw(deps, eurTrading(50000), Target{Account: bankAccount(0)})

	tx, err := eng.Initialise(context.Background())
	require.NoError(t, err)

	tx, err = eng.SetOption(context.Background(), tx, pending.Confirmation{
		Tag: pending.TagMemo, Value: "123456",
	})
	require.NoError(t, err)

	tx = mustUpdateAmount(t, eng, tx, 10000, eur)
	tx = mustValidateAll(t, eng, tx)
	assert.Equal(t, validation.MemoInvalid, tx.State)
}
