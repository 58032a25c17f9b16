// Package pending holds the immutable snapshot of a transfer under
// construction. A snapshot is never mutated in place: every change returns
// a new fully-formed copy, so concurrent readers always observe a
// consistent value and the orchestrator can discard stale derivations.
package pending

import (
	"github.com/traversefi/traverse/internal/money"
	"github.com/traversefi/traverse/internal/validation"
)

// Step is one entry of the review-flow navigation history.
type Step string

const (
	// StepEnterAmount is the amount entry screen.
	StepEnterAmount Step = "ENTER_AMOUNT"
	// StepConfirm is the final review screen.
	StepConfirm Step = "CONFIRM"
	// StepInProgress is shown while the transfer executes.
	StepInProgress Step = "IN_PROGRESS"
)

// Tx is the immutable snapshot of a transfer under construction.
type Tx struct {
	// Amount is what the user asked to transfer.
	Amount money.Money `json:"amount"`
	// TotalBalance is everything the source account holds.
	TotalBalance money.Money `json:"total_balance"`
	// AvailableBalance is what can be transferred right now, net of the
	// selected fee where the fee shares the amount's currency.
	AvailableBalance money.Money `json:"available_balance"`
	// FeeAmount is the resolved fee for the selected level. Its currency
	// matches the fee-bearing side, which may differ from Amount's.
	FeeAmount money.Money `json:"fee_amount"`
	// FeeForFullAvailable is the fee that would apply when sending the
	// full available balance.
	FeeForFullAvailable money.Money `json:"fee_for_full_available"`

	FeeSelection FeeSelection `json:"fee_selection"`
	// Limits is nil until the first validation resolves them.
	Limits *Limits `json:"limits,omitempty"`

	State         validation.State `json:"state"`
	Confirmations Confirmations    `json:"confirmations"`

	// Attempted becomes true once the user has entered a non-zero amount,
	// and gates the insufficient-funds notice on pristine transfers.
	Attempted bool `json:"attempted"`

	// EngineState is an engine-private payload carried between engine
	// calls and confirmation building. Only the owning engine reads it.
	EngineState any `json:"-"`

	// Steps is the navigation history, newest last.
	Steps []Step `json:"steps,omitempty"`
}

// WithAmount returns a copy with a new amount. A non-zero amount marks the
// transfer as attempted.
func (tx Tx) WithAmount(amount money.Money) Tx {
	out := tx
	out.Amount = amount
	if !amount.IsZero() {
		out.Attempted = true
	}
	return out
}

// WithBalances returns a copy with refreshed balances.
func (tx Tx) WithBalances(total, available money.Money) Tx {
	out := tx
	out.TotalBalance = total
	out.AvailableBalance = available
	return out
}

// WithFee returns a copy with the resolved fee amounts.
func (tx Tx) WithFee(fee, feeForFull money.Money) Tx {
	out := tx
	out.FeeAmount = fee
	out.FeeForFullAvailable = feeForFull
	return out
}

// WithFeeSelection returns a copy with a new fee selection.
func (tx Tx) WithFeeSelection(fs FeeSelection) Tx {
	out := tx
	out.FeeSelection = fs
	return out
}

// WithLimits returns a copy with resolved limits.
func (tx Tx) WithLimits(l Limits) Tx {
	out := tx
	out.Limits = &l
	return out
}

// WithState returns a copy in a new validation state.
func (tx Tx) WithState(s validation.State) Tx {
	out := tx
	out.State = s
	return out
}

// WithConfirmations returns a copy with a new confirmation list.
func (tx Tx) WithConfirmations(c Confirmations) Tx {
	out := tx
	out.Confirmations = c
	return out
}

// WithEngineState returns a copy carrying a new engine-private payload.
func (tx Tx) WithEngineState(state any) Tx {
	out := tx
	out.EngineState = state
	return out
}

// PushStep returns a copy with the step appended to the history.
func (tx Tx) PushStep(s Step) Tx {
	out := tx
	out.Steps = append(append([]Step(nil), tx.Steps...), s)
	return out
}

// PopStep returns a copy with the newest step removed, and that step.
func (tx Tx) PopStep() (Tx, Step, bool) {
	if len(tx.Steps) == 0 {
		return tx, "", false
	}
	out := tx
	last := tx.Steps[len(tx.Steps)-1]
	out.Steps = append([]Step(nil), tx.Steps[:len(tx.Steps)-1]...)
	return out, last, true
}

// MaxSpendable returns the most that can be sent given the available
// balance and, when the fee is charged in the amount's currency, the fee
// for sending everything.
func (tx Tx) MaxSpendable() money.Money {
	if !tx.FeeForFullAvailable.Currency.Equal(tx.AvailableBalance.Currency) {
		return tx.AvailableBalance
	}
	max, err := tx.AvailableBalance.Sub(tx.FeeForFullAvailable)
	if err != nil || max.IsNegative() {
		return money.Zero(tx.AvailableBalance.Currency)
	}
	return max
}
