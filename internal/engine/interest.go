package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/traversefi/traverse/internal/account"
	"github.com/traversefi/traverse/internal/money"
	"github.com/traversefi/traverse/internal/pending"
	"github.com/traversefi/traverse/internal/validation"
	"github.com/traversefi/traverse/pkg/errors"
)

// rewardsState is the engine-private payload for rewards-position moves.
// Lock days travel here from initialise to confirmation rendering without
// widening the shared snapshot schema.
type rewardsState struct {
	TxID  string
	Terms RewardsTerms
}

// InterestDepositEngine moves funds into an interest or staking position.
// Deposits are gated on an eligibility check and surface the position's
// withdrawal lock as a confirmation item.
type InterestDepositEngine struct {
	base
	withdraw bool
}

// NewInterestDeposit constructs the rewards deposit engine.
func NewInterestDeposit(deps Deps, source account.Account, target Target) TxEngine {
	return &InterestDepositEngine{base: newBase(deps, source, target)}
}

// NewInterestWithdraw constructs the rewards withdrawal engine: the same
// pipeline in reverse, with the in-flight-withdrawal guard and no
// eligibility gate.
func NewInterestWithdraw(deps Deps, source account.Account, target Target) TxEngine {
	return &InterestDepositEngine{base: newBase(deps, source, target), withdraw: true}
}

func (e *InterestDepositEngine) action() Action {
	if e.withdraw {
		return Withdraw
	}
	return Deposit
}

// Initialise checks eligibility, reads the balance and the position's
// terms, and builds the first snapshot.
func (e *InterestDepositEngine) Initialise(ctx context.Context) (pending.Tx, error) {
	a := e.source.Asset()

	if !e.withdraw && e.deps.Eligibility != nil {
		elig, err := e.deps.Eligibility.Check(ctx, e.source.ID(), Deposit)
		if err != nil {
			return pending.Tx{}, errors.NewTransferError(errors.TransferErrNetwork, "checking eligibility", err)
		}
		if !elig.Granted {
			return pending.Tx{}, errors.NewServerMessage(elig.Reason, nil)
		}
	}

	bal, err := firstBalance(ctx, e.source)
	if err != nil {
		return pending.Tx{}, errors.TransferWrap(err, errors.OpInitialise, "reading source balance")
	}

	if err := e.resolveLimits(ctx, e.action(), a.Currency); err != nil {
		return pending.Tx{}, errors.TransferWrap(err, errors.OpInitialise, "resolving limits")
	}

	st := rewardsState{TxID: uuid.New().String()}
	if e.deps.Rewards != nil {
		rewardsAccount := e.source
		if !e.withdraw && e.target.Account != nil {
			rewardsAccount = e.target.Account
		}
		terms, err := e.deps.Rewards.Terms(ctx, rewardsAccount.ID(), a.Currency)
		if err != nil {
			return pending.Tx{}, errors.NewTransferError(errors.TransferErrNetwork, "fetching rewards terms", err)
		}
		st.Terms = terms
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
		EngineState: st,
	}
	tx = tx.WithLimits(e.pendingLimits()).PushStep(pending.StepEnterAmount)
	return e.BuildConfirmations(ctx, tx)
}

// UpdateAmount carries the new amount; rewards moves have no fee to
// recompute.
func (e *InterestDepositEngine) UpdateAmount(ctx context.Context, current pending.Tx, amount money.Money) (pending.Tx, error) {
	if !amount.Currency.Equal(e.source.Asset().Currency) {
		return pending.Tx{}, errors.NewTransferError(errors.TransferErrInvalidCurrency,
			fmt.Sprintf("amount currency %s does not match account asset %s", amount.Currency, e.source.Asset().Currency), nil)
	}
	return e.BuildConfirmations(ctx, current.WithAmount(amount))
}

// UpdateFeeLevel rejects everything except the rail's single None level.
func (e *InterestDepositEngine) UpdateFeeLevel(ctx context.Context, current pending.Tx, level pending.FeeLevel, custom *money.Money) (pending.Tx, error) {
	if !current.FeeSelection.Supports(level) {
		return pending.Tx{}, fmt.Errorf("%w: %s", pending.ErrFeeLevelUnavailable, level)
	}
	return current, nil
}

// SetOption rejects edits; rewards moves offer no editable options.
func (e *InterestDepositEngine) SetOption(ctx context.Context, current pending.Tx, opt pending.Confirmation) (pending.Tx, error) {
	return pending.Tx{}, errors.ErrOptionNotOffered
}

// ValidateAmount applies funds and limit rules.
func (e *InterestDepositEngine) ValidateAmount(ctx context.Context, current pending.Tx) (pending.Tx, error) {
	state := e.amountState(current, nil)
	tx := current.WithState(state)
	return tx.WithConfirmations(errorNotice(tx.Confirmations, state, tx.Limits)), nil
}

// ValidateAll additionally blocks while a previous withdrawal is settling.
func (e *InterestDepositEngine) ValidateAll(ctx context.Context, current pending.Tx) (pending.Tx, error) {
	tx, err := e.ValidateAmount(ctx, current)
	if err != nil {
		return pending.Tx{}, err
	}
	if tx.State.Blocking() {
		return tx, nil
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

// BuildConfirmations shows the lock period and reward rate alongside the
// shared items.
func (e *InterestDepositEngine) BuildConfirmations(ctx context.Context, current pending.Tx) (pending.Tx, error) {
	st, _ := current.EngineState.(rewardsState)

	to := e.target.Address
	if e.target.Account != nil {
		to = e.target.Account.Label()
	}

	amount := current.Amount

	list := current.Confirmations.
		Upsert(pending.Confirmation{Tag: pending.TagFrom, Label: "From", Value: e.source.Label()}).
		Upsert(pending.Confirmation{Tag: pending.TagTo, Label: "To", Value: to}).
		Upsert(pending.Confirmation{Tag: pending.TagAmount, Label: "Amount", Amount: &amount})

	if !e.withdraw && st.Terms.LockDays > 0 {
		list = list.Upsert(pending.Confirmation{
			Tag:   pending.TagLockDays,
			Label: "Funds locked for",
			Value: fmt.Sprintf("%d days", st.Terms.LockDays),
		})
	}
	if !e.withdraw && st.Terms.AnnualRatePct > 0 {
		list = list.Upsert(pending.Confirmation{
			Tag:   pending.TagExchangeRate,
			Label: "Annual rate",
			Value: fmt.Sprintf("%.2f%%", st.Terms.AnnualRatePct),
		})
	}

	list = errorNotice(list, current.State, current.Limits)
	return current.WithConfirmations(list), nil
}

// Execute submits the position move to the custodial pipeline.
func (e *InterestDepositEngine) Execute(ctx context.Context, current pending.Tx, secondaryCredential string) (Result, error) {
	if current.State != validation.CanExecute {
		return Result{}, errors.ErrExecutionBlocked
	}

	st, _ := current.EngineState.(rewardsState)
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
		Timestamp:     now.Unix(),
	})
	if err != nil {
		return Result{}, translateQuoteErr(err)
	}

	return Result{AckID: ack, Executed: now}, nil
}

// Cancel has nothing to release for rewards moves.
func (e *InterestDepositEngine) Cancel(ctx context.Context, current pending.Tx) error {
	return nil
}

// AcceptsFiatInput reports that rewards amounts are asset-denominated.
func (e *InterestDepositEngine) AcceptsFiatInput() bool { return false }

// AffectedCaches names the balance caches invalidated after execution.
func (e *InterestDepositEngine) AffectedCaches() []string {
	caches := []string{"balance:" + e.source.ID()}
	if e.target.Account != nil {
		caches = append(caches, "balance:"+e.target.Account.ID())
	}
	return caches
}

var _ TxEngine = (*InterestDepositEngine)(nil)
