package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlocking(t *testing.T) {
	t.Parallel()

	assert.False(t, CanExecute.Blocking())
	assert.False(t, Uninitialised.Blocking())

	for _, s := range []State{
		HasTxInFlight, InvalidAmount, InsufficientFunds, InsufficientGas,
		InvalidAddress, InvalidDomain, AddressIsContract, OptionInvalid,
		MemoInvalid, UnderMinLimit, OverSilverTierLimit, OverGoldTierLimit,
		AbovePaymentMethodLimit, PendingOrdersLimitReached, InvoiceExpired,
	} {
		assert.True(t, s.Blocking(), "state %s should block", s)
	}
}

func TestEveryBlockingStateHasAMessage(t *testing.T) {
	t.Parallel()

	for state := range messages {
		assert.NotEmpty(t, state.Message(), "state %s has no message", state)
	}

	// The two non-blocking states carry no message.
	assert.Empty(t, CanExecute.Message())
	assert.Empty(t, Uninitialised.Message())
}

func TestAmountRelated(t *testing.T) {
	t.Parallel()

	assert.True(t, InsufficientFunds.AmountRelated())
	assert.True(t, InsufficientGas.AmountRelated())
	assert.True(t, UnderMinLimit.AmountRelated())
	assert.True(t, OverGoldTierLimit.AmountRelated())

	assert.False(t, InvalidAddress.AmountRelated())
	assert.False(t, HasTxInFlight.AmountRelated())
	assert.False(t, InvoiceExpired.AmountRelated())
	assert.False(t, CanExecute.AmountRelated())
}
