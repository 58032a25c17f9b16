package pending

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traversefi/traverse/internal/money"
	"github.com/traversefi/traverse/internal/validation"
)

var btc = money.Currency{Code: "BTC", Precision: 8}

func TestWithAmountMarksAttempted(t *testing.T) {
	t.Parallel()

	tx := Tx{Amount: money.Zero(btc)}
	assert.False(t, tx.Attempted)

	// A zero amount keeps the transfer pristine.
	out := tx.WithAmount(money.Zero(btc))
	assert.False(t, out.Attempted)

	out = tx.WithAmount(money.New(100, btc))
	assert.True(t, out.Attempted)

	// Once attempted, clearing the amount does not reset the flag.
	out = out.WithAmount(money.Zero(btc))
	assert.True(t, out.Attempted)

	// The original snapshot is untouched.
	assert.False(t, tx.Attempted)
	assert.True(t, tx.Amount.IsZero())
}

func TestCopyOnWriteLeavesOriginalIntact(t *testing.T) {
	t.Parallel()

	tx := Tx{State: validation.Uninitialised}

	modified := tx.
		WithBalances(money.New(500, btc), money.New(400, btc)).
		WithFee(money.New(10, btc), money.New(12, btc)).
		WithState(validation.CanExecute)

	assert.Equal(t, validation.Uninitialised, tx.State)
	assert.True(t, tx.TotalBalance.IsZero())

	assert.Equal(t, validation.CanExecute, modified.State)
	assert.Equal(t, int64(500), modified.TotalBalance.MinorUnits)
	assert.Equal(t, int64(400), modified.AvailableBalance.MinorUnits)
	assert.Equal(t, int64(10), modified.FeeAmount.MinorUnits)
}

func TestSteps(t *testing.T) {
	t.Parallel()

	tx := Tx{}.PushStep(StepEnterAmount).PushStep(StepConfirm)
	assert.Equal(t, []Step{StepEnterAmount, StepConfirm}, tx.Steps)

	popped, last, ok := tx.PopStep()
	require.True(t, ok)
	assert.Equal(t, StepConfirm, last)
	assert.Equal(t, []Step{StepEnterAmount}, popped.Steps)

	// The source history is not shared with the copy.
	assert.Len(t, tx.Steps, 2)

	empty := Tx{}
	_, _, ok = empty.PopStep()
	assert.False(t, ok)
}

func TestMaxSpendable(t *testing.T) {
	t.Parallel()

	eth := money.Currency{Code: "ETH", Precision: 8}

	tests := []struct {
		name      string
		available money.Money
		feeFull   money.Money
		want      int64
	}{
		{
			name:      "fee deducted from same currency",
			available: money.New(1000, btc),
			feeFull:   money.New(50, btc),
			want:      950,
		},
		{
			name:      "fee exceeds balance clamps to zero",
			available: money.New(30, btc),
			feeFull:   money.New(50, btc),
			want:      0,
		},
		{
			name:      "token fee in other currency leaves balance whole",
			available: money.New(1000, btc),
			feeFull:   money.New(50, eth),
			want:      1000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := Tx{AvailableBalance: tt.available, FeeForFullAvailable: tt.feeFull}
			assert.Equal(t, tt.want, tx.MaxSpendable().MinorUnits)
		})
	}
}

func TestFeeSelection(t *testing.T) {
	t.Parallel()

	fs := FeeSelection{
		Selected:  FeeRegular,
		Available: []FeeLevel{FeeRegular, FeePriority, FeeCustom},
		Amounts: map[FeeLevel]money.Money{
			FeeRegular:  money.New(10, btc),
			FeePriority: money.New(25, btc),
		},
		CustomAmount: money.New(7, btc),
	}

	assert.True(t, fs.Supports(FeePriority))
	assert.False(t, fs.Supports(FeeNone))

	m, err := fs.AmountFor(FeePriority)
	require.NoError(t, err)
	assert.Equal(t, int64(25), m.MinorUnits)

	m, err = fs.AmountFor(FeeCustom)
	require.NoError(t, err)
	assert.Equal(t, int64(7), m.MinorUnits)

	_, err = fs.AmountFor(FeeNone)
	assert.ErrorIs(t, err, ErrFeeLevelUnavailable)
}

func TestConfirmationsUpsertReplacesByTag(t *testing.T) {
	t.Parallel()

	list := Confirmations{}.
		Upsert(Confirmation{Tag: TagFrom, Label: "From", Value: "Wallet"}).
		Upsert(Confirmation{Tag: TagTo, Label: "To", Value: "abc"})

	replaced := list.Upsert(Confirmation{Tag: TagTo, Label: "To", Value: "def"})

	require.Len(t, replaced, 2)
	item, ok := replaced.Get(TagTo)
	require.True(t, ok)
	assert.Equal(t, "def", item.Value)

	// Order is stable under replacement.
	assert.Equal(t, TagFrom, replaced[0].Tag)
	assert.Equal(t, TagTo, replaced[1].Tag)

	// The original list still holds the old value.
	item, ok = list.Get(TagTo)
	require.True(t, ok)
	assert.Equal(t, "abc", item.Value)
}

func TestConfirmationsRemove(t *testing.T) {
	t.Parallel()

	list := Confirmations{
		{Tag: TagFrom, Value: "Wallet"},
		{Tag: TagErrorNotice, Value: "nope"},
	}

	out := list.Remove(TagErrorNotice)
	require.Len(t, out, 1)
	_, ok := out.Get(TagErrorNotice)
	assert.False(t, ok)

	// Removing an absent tag is a no-op.
	out = out.Remove(TagMemo)
	assert.Len(t, out, 1)
}
