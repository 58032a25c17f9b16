package engine

import (
	"context"
	"fmt"
	"unicode"

	"github.com/google/uuid"

	"github.com/traversefi/traverse/internal/account"
	"github.com/traversefi/traverse/internal/money"
	"github.com/traversefi/traverse/internal/pending"
	"github.com/traversefi/traverse/internal/validation"
	"github.com/traversefi/traverse/pkg/errors"
)

// maxBankReference is the longest reference bank rails carry when the
// configuration does not set its own bound.
const maxBankReference = 35

// fiatState is the engine-private payload for bank-rail transfers.
type fiatState struct {
	TxID      string
	Reference string
}

// FiatTransferEngine moves fiat between a linked bank account and the
// custodial trading balance. Deposits are bounded by the payment method's
// limit; withdrawals carry an optional bank reference and offer no
// selectable fee.
type FiatTransferEngine struct {
	base
	withdraw bool
}

// NewFiatDeposit constructs the bank deposit engine.
func NewFiatDeposit(deps Deps, source account.Account, target Target) TxEngine {
	return &FiatTransferEngine{base: newBase(deps, source, target)}
}

// NewFiatWithdraw constructs the bank withdrawal engine.
func NewFiatWithdraw(deps Deps, source account.Account, target Target) TxEngine {
	return &FiatTransferEngine{base: newBase(deps, source, target), withdraw: true}
}

func (e *FiatTransferEngine) action() Action {
	if e.withdraw {
		return Withdraw
	}
	return Deposit
}

// Initialise builds the first snapshot from the source balance and the
// rail's limits, including the payment-method bound for deposits.
func (e *FiatTransferEngine) Initialise(ctx context.Context) (pending.Tx, error) {
	a := e.source.Asset()

	bal, err := firstBalance(ctx, e.source)
	if err != nil {
		return pending.Tx{}, errors.TransferWrap(err, errors.OpInitialise, "reading source balance")
	}

	if err := e.resolveLimits(ctx, e.action(), a.Currency); err != nil {
		return pending.Tx{}, errors.TransferWrap(err, errors.OpInitialise, "resolving limits")
	}

	tx := pending.Tx{
		Amount:              money.Zero(a.Currency),
		TotalBalance:        bal.Total,
		AvailableBalance:    bal.Available,
		FeeAmount:           money.Zero(a.Currency),
		FeeForFullAvailable: money.Zero(a.Currency),
		FeeSelection: pending.FeeSelection{
			Selected:  pending.FeeNone,
			Available: []pending.FeeLevel{pending.FeeNone},
			Amounts:   map[pending.FeeLevel]money.Money{pending.FeeNone: money.Zero(a.Currency)},
		},
		State:       validation.Uninitialised,
		EngineState: fiatState{TxID: uuid.New().String()},
	}
	tx = tx.WithLimits(e.pendingLimits()).PushStep(pending.StepEnterAmount)
	return e.BuildConfirmations(ctx, tx)
}

// UpdateAmount carries the new amount; bank rails charge no client-side
// fee.
func (e *FiatTransferEngine) UpdateAmount(ctx context.Context, current pending.Tx, amount money.Money) (pending.Tx, error) {
	if !amount.Currency.Equal(e.source.Asset().Currency) {
		return pending.Tx{}, errors.NewTransferError(errors.TransferErrInvalidCurrency,
			fmt.Sprintf("amount currency %s does not match account asset %s", amount.Currency, e.source.Asset().Currency), nil)
	}
	return e.BuildConfirmations(ctx, current.WithAmount(amount))
}

// UpdateFeeLevel rejects everything except the rail's single None level.
func (e *FiatTransferEngine) UpdateFeeLevel(ctx context.Context, current pending.Tx, level pending.FeeLevel, custom *money.Money) (pending.Tx, error) {
	if !current.FeeSelection.Supports(level) {
		return pending.Tx{}, fmt.Errorf("%w: %s", pending.ErrFeeLevelUnavailable, level)
	}
	return current, nil
}

// SetOption applies edits to the bank reference on withdrawals.
func (e *FiatTransferEngine) SetOption(ctx context.Context, current pending.Tx, opt pending.Confirmation) (pending.Tx, error) {
	if !e.withdraw || opt.Tag != pending.TagMemo {
		return pending.Tx{}, errors.ErrOptionNotOffered
	}

	st, _ := current.EngineState.(fiatState)
	st.Reference = opt.Value
	return e.BuildConfirmations(ctx, current.WithEngineState(st))
}

// ValidateAmount applies funds, minimum and payment-method limit rules.
func (e *FiatTransferEngine) ValidateAmount(ctx context.Context, current pending.Tx) (pending.Tx, error) {
	state := e.amountState(current, nil)
	tx := current.WithState(state)
	return tx.WithConfirmations(errorNotice(tx.Confirmations, state, tx.Limits)), nil
}

// ValidateAll additionally checks the bank reference and unsettled
// transfers.
func (e *FiatTransferEngine) ValidateAll(ctx context.Context, current pending.Tx) (pending.Tx, error) {
	tx, err := e.ValidateAmount(ctx, current)
	if err != nil {
		return pending.Tx{}, err
	}
	if tx.State.Blocking() {
		return tx, nil
	}

	st, _ := tx.EngineState.(fiatState)
	if e.withdraw && !validBankReference(st.Reference, e.referenceLimit()) {
		tx = tx.WithState(validation.MemoInvalid)
		return tx.WithConfirmations(errorNotice(tx.Confirmations, tx.State, tx.Limits)), nil
	}

	if e.deps.Activity != nil {
		inFlight, err := e.deps.Activity.HasTransferInFlight(ctx, e.source.ID())
		if err == nil && inFlight {
			tx = tx.WithState(validation.HasTxInFlight)
			return tx.WithConfirmations(errorNotice(tx.Confirmations, tx.State, tx.Limits)), nil
		}
	}

	tx = tx.WithState(validation.CanExecute)
	return tx.WithConfirmations(errorNotice(tx.Confirmations, tx.State, tx.Limits)), nil
}

func (e *FiatTransferEngine) referenceLimit() int {
	if e.deps.BankReferenceMax > 0 {
		return e.deps.BankReferenceMax
	}
	return maxBankReference
}

// validBankReference accepts an empty reference or a short printable
// ASCII string within the limit; bank rails reject anything longer or
// non-ASCII.
func validBankReference(ref string, limit int) bool {
	if len(ref) > limit {
		return false
	}
	for _, r := range ref {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

// BuildConfirmations shows the bank-transfer terms alongside the shared
// items.
func (e *FiatTransferEngine) BuildConfirmations(ctx context.Context, current pending.Tx) (pending.Tx, error) {
	st, _ := current.EngineState.(fiatState)

	to := e.target.Address
	if e.target.Account != nil {
		to = e.target.Account.Label()
	}

	amount := current.Amount

	list := current.Confirmations.
		Upsert(pending.Confirmation{Tag: pending.TagFrom, Label: "From", Value: e.source.Label()}).
		Upsert(pending.Confirmation{Tag: pending.TagTo, Label: "To", Value: to}).
		Upsert(pending.Confirmation{Tag: pending.TagAmount, Label: "Amount", Amount: &amount}).
		Upsert(pending.Confirmation{Tag: pending.TagArrival, Label: "Arrives in", Value: "1-3 business days"})

	if e.withdraw {
		list = list.Upsert(pending.Confirmation{
			Tag: pending.TagMemo, Label: "Reference", Value: st.Reference, Editable: true,
		})
	}

	list = errorNotice(list, current.State, current.Limits)
	return current.WithConfirmations(list), nil
}

// Execute submits the bank transfer. A deposit that needs out-of-band
// approval surfaces the approval payload untranslated.
func (e *FiatTransferEngine) Execute(ctx context.Context, current pending.Tx, secondaryCredential string) (Result, error) {
	if current.State != validation.CanExecute {
		return Result{}, errors.ErrExecutionBlocked
	}

	st, _ := current.EngineState.(fiatState)
	targetID := ""
	if e.target.Account != nil {
		targetID = e.target.Account.ID()
	}

	now := e.now()
	ack, err := e.deps.Submitter.Submit(ctx, SubmitRecord{
		ID:            st.TxID,
		SourceAccount: e.source.ID(),
		TargetAccount: targetID,
		Action:        e.action(),
		Amount:        current.Amount,
		Fee:           current.FeeAmount,
		Memo:          st.Reference,
		Timestamp:     now.Unix(),
	})
	if err != nil {
		var approval *errors.ApprovalRequired
		if errors.As(err, &approval) {
			return Result{}, approval
		}
		return Result{}, translateQuoteErr(err)
	}

	return Result{AckID: ack, Executed: now}, nil
}

// Cancel has nothing to release for bank transfers.
func (e *FiatTransferEngine) Cancel(ctx context.Context, current pending.Tx) error {
	return nil
}

// AcceptsFiatInput reports that bank-rail amounts are fiat-denominated.
func (e *FiatTransferEngine) AcceptsFiatInput() bool { return true }

// AffectedCaches names the balance caches invalidated after execution.
func (e *FiatTransferEngine) AffectedCaches() []string {
	caches := []string{"balance:" + e.source.ID()}
	if e.target.Account != nil {
		caches = append(caches, "balance:"+e.target.Account.ID())
	}
	return caches
}

var _ TxEngine = (*FiatTransferEngine)(nil)
