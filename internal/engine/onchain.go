package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/traversefi/traverse/internal/account"
	"github.com/traversefi/traverse/internal/address"
	"github.com/traversefi/traverse/internal/money"
	"github.com/traversefi/traverse/internal/pending"
	"github.com/traversefi/traverse/internal/validation"
	"github.com/traversefi/traverse/pkg/errors"
)

// onChainState is the engine-private payload for on-chain sends.
type onChainState struct {
	Resolved    address.Resolved
	Description string
	TxID        string
}

// OnChainSendEngine moves a coin or token from a non-custodial wallet to
// an external address or another account's receive address. Network fees
// are estimated per level; token sends pay the fee in the chain's native
// asset, so the fee currency differs from the amount's.
type OnChainSendEngine struct {
	base
}

// NewOnChainSend constructs the on-chain send engine.
func NewOnChainSend(deps Deps, source account.Account, target Target) TxEngine {
	return &OnChainSendEngine{base: newBase(deps, source, target)}
}

// Initialise builds the first snapshot from the wallet balance, the fee
// estimate for the full balance, and the rail's limits.
func (e *OnChainSendEngine) Initialise(ctx context.Context) (pending.Tx, error) {
	a := e.source.Asset()

	bal, err := firstBalance(ctx, e.source)
	if err != nil {
		return pending.Tx{}, errors.TransferWrap(err, errors.OpInitialise, "reading source balance")
	}

	if err := e.resolveLimits(ctx, Send, a.Currency); err != nil {
		return pending.Tx{}, errors.TransferWrap(err, errors.OpInitialise, "resolving limits")
	}

	est, err := e.deps.Fees.Estimate(ctx, a, bal.Available)
	if err != nil {
		return pending.Tx{}, errors.NewTransferError(errors.TransferErrNetwork, "estimating network fee", err)
	}

	tx := pending.Tx{
		Amount:              money.Zero(a.Currency),
		TotalBalance:        bal.Total,
		AvailableBalance:    bal.Available,
		FeeAmount:           est.Regular,
		FeeForFullAvailable: est.Regular,
		FeeSelection: pending.FeeSelection{
			Selected:  pending.FeeRegular,
			Available: []pending.FeeLevel{pending.FeeRegular, pending.FeePriority, pending.FeeCustom},
			Amounts: map[pending.FeeLevel]money.Money{
				pending.FeeRegular:  est.Regular,
				pending.FeePriority: est.Priority,
			},
		},
		State:       validation.Uninitialised,
		EngineState: onChainState{TxID: uuid.New().String()},
	}
	tx = tx.WithLimits(e.pendingLimits()).PushStep(pending.StepEnterAmount)
	return e.BuildConfirmations(ctx, tx)
}

// UpdateAmount re-estimates the network fee for the new amount. The
// orchestrator discards results for superseded amounts, so a slow
// estimate for an old amount is never applied.
func (e *OnChainSendEngine) UpdateAmount(ctx context.Context, current pending.Tx, amount money.Money) (pending.Tx, error) {
	if !amount.Currency.Equal(e.source.Asset().Currency) {
		return pending.Tx{}, errors.NewTransferError(errors.TransferErrInvalidCurrency,
			fmt.Sprintf("amount currency %s does not match account asset %s", amount.Currency, e.source.Asset().Currency), nil)
	}

	est, err := e.deps.Fees.Estimate(ctx, e.source.Asset(), amount)
	if err != nil {
		return pending.Tx{}, errors.NewTransferError(errors.TransferErrNetwork, "estimating network fee", err)
	}

	fullEst, err := e.deps.Fees.Estimate(ctx, e.source.Asset(), current.AvailableBalance)
	if err != nil {
		return pending.Tx{}, errors.NewTransferError(errors.TransferErrNetwork, "estimating full-balance fee", err)
	}

	fs := current.FeeSelection
	fs.Amounts = map[pending.FeeLevel]money.Money{
		pending.FeeRegular:  est.Regular,
		pending.FeePriority: est.Priority,
	}
	fs.CustomAmount = current.FeeSelection.CustomAmount

	fee, err := fs.AmountFor(fs.Selected)
	if err != nil {
		return pending.Tx{}, err
	}

	tx := current.WithAmount(amount).
		WithFeeSelection(fs).
		WithFee(fee, levelOrRegular(fs, fullEst))
	return e.BuildConfirmations(ctx, tx)
}

// levelOrRegular resolves the full-balance fee for the selected level,
// falling back to the regular estimate for the custom level.
func levelOrRegular(fs pending.FeeSelection, full FeeEstimate) money.Money {
	if fs.Selected == pending.FeePriority {
		return full.Priority
	}
	return full.Regular
}

// UpdateFeeLevel switches the fee tier, recomputing the fee magnitude.
func (e *OnChainSendEngine) UpdateFeeLevel(ctx context.Context, current pending.Tx, level pending.FeeLevel, custom *money.Money) (pending.Tx, error) {
	fs := current.FeeSelection
	if !fs.Supports(level) {
		return pending.Tx{}, fmt.Errorf("%w: %s", pending.ErrFeeLevelUnavailable, level)
	}

	fs.Selected = level
	if level == pending.FeeCustom {
		if custom == nil {
			return pending.Tx{}, fmt.Errorf("%w: custom level requires an amount", pending.ErrFeeLevelUnavailable)
		}
		fs.CustomAmount = *custom
	}

	fee, err := fs.AmountFor(level)
	if err != nil {
		return pending.Tx{}, err
	}

	tx := current.WithFeeSelection(fs).WithFee(fee, current.FeeForFullAvailable)
	return e.BuildConfirmations(ctx, tx)
}

// SetOption applies edits to the description option.
func (e *OnChainSendEngine) SetOption(ctx context.Context, current pending.Tx, opt pending.Confirmation) (pending.Tx, error) {
	if opt.Tag != pending.TagDescription {
		return pending.Tx{}, errors.ErrOptionNotOffered
	}

	st, _ := current.EngineState.(onChainState)
	st.Description = opt.Value
	return e.BuildConfirmations(ctx, current.WithEngineState(st))
}

// ValidateAmount applies funds, limit and fee-affordability rules.
func (e *OnChainSendEngine) ValidateAmount(ctx context.Context, current pending.Tx) (pending.Tx, error) {
	feeBal, err := e.feeBalance(ctx)
	if err != nil {
		return pending.Tx{}, err
	}

	state := e.amountState(current, feeBal)
	tx := current.WithState(state)
	return tx.WithConfirmations(errorNotice(tx.Confirmations, state, tx.Limits)), nil
}

// feeBalance returns the native-asset balance for token sends, nil when
// the fee shares the amount's currency.
func (e *OnChainSendEngine) feeBalance(ctx context.Context) (*money.Money, error) {
	a := e.source.Asset()
	if a.FeeCurrency.Equal(a.Currency) {
		return nil, nil
	}
	if e.deps.FeeFunding == nil {
		zero := money.Zero(a.FeeCurrency)
		return &zero, nil
	}
	bal, err := e.deps.FeeFunding.FeeBalance(ctx, e.source.ID(), a.FeeCurrency)
	if err != nil {
		return nil, errors.NewTransferError(errors.TransferErrNetwork, "reading fee asset balance", err)
	}
	return &bal, nil
}

// ValidateAll additionally resolves the target address and checks for an
// unsettled outgoing transfer.
func (e *OnChainSendEngine) ValidateAll(ctx context.Context, current pending.Tx) (pending.Tx, error) {
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
			return e.withState(tx, validation.HasTxInFlight), nil
		}
	}

	resolved, state, err := e.resolveTarget(ctx)
	if err != nil {
		return pending.Tx{}, err
	}
	if state.Blocking() {
		return e.withState(tx, state), nil
	}

	st, _ := tx.EngineState.(onChainState)
	st.Resolved = resolved
	tx = tx.WithEngineState(st)

	return e.withState(tx, validation.CanExecute), nil
}

func (e *OnChainSendEngine) withState(tx pending.Tx, state validation.State) pending.Tx {
	tx = tx.WithState(state)
	return tx.WithConfirmations(errorNotice(tx.Confirmations, state, tx.Limits))
}

// resolveTarget resolves the raw address, a naming-service domain, or the
// target account's receive address.
func (e *OnChainSendEngine) resolveTarget(ctx context.Context) (address.Resolved, validation.State, error) {
	a := e.source.Asset()

	input := e.target.Address
	if e.target.Account != nil {
		recv, err := e.target.Account.ReceiveAddress(ctx)
		if err != nil {
			return address.Resolved{}, "", errors.NewTransferError(errors.TransferErrNetwork, "fetching receive address", err)
		}
		input = recv.Address
	}

	resolved, err := e.deps.Resolver.Resolve(ctx, input, a)
	switch {
	case err == nil:
	case errors.Is(err, address.ErrInvalidDomain):
		return address.Resolved{}, validation.InvalidDomain, nil
	case errors.Is(err, address.ErrInvalidAddress):
		return address.Resolved{}, validation.InvalidAddress, nil
	default:
		return address.Resolved{}, "", errors.NewTransferError(errors.TransferErrNetwork, "resolving address", err)
	}

	if resolved.IsContract {
		return resolved, validation.AddressIsContract, nil
	}
	return resolved, validation.CanExecute, nil
}

// BuildConfirmations materialises the review items. Items are replaced by
// tag, so repeated builds on the same snapshot yield the same list.
func (e *OnChainSendEngine) BuildConfirmations(ctx context.Context, current pending.Tx) (pending.Tx, error) {
	st, _ := current.EngineState.(onChainState)

	to := e.target.Address
	if e.target.Account != nil {
		to = e.target.Account.Label()
	} else if st.Resolved.Domain != "" {
		to = st.Resolved.Domain
	}

	amount := current.Amount
	fee := current.FeeAmount

	list := current.Confirmations.
		Upsert(pending.Confirmation{Tag: pending.TagFrom, Label: "From", Value: e.source.Label()}).
		Upsert(pending.Confirmation{Tag: pending.TagTo, Label: "To", Value: to}).
		Upsert(pending.Confirmation{Tag: pending.TagAmount, Label: "Amount", Amount: &amount}).
		Upsert(pending.Confirmation{Tag: pending.TagNetworkFee, Label: "Network fee", Amount: &fee}).
		Upsert(pending.Confirmation{Tag: pending.TagDescription, Label: "Description", Value: st.Description, Editable: true})

	if total, err := current.Amount.Add(current.FeeAmount); err == nil {
		list = list.Upsert(pending.Confirmation{Tag: pending.TagTotal, Label: "Total", Amount: &total})
	} else {
		// Token send: fee is charged in the native asset, no single total.
		list = list.Remove(pending.TagTotal)
	}

	list = errorNotice(list, current.State, current.Limits)
	return current.WithConfirmations(list), nil
}

// Execute signs the transfer with the wallet key and broadcasts it,
// returning the chain hash.
func (e *OnChainSendEngine) Execute(ctx context.Context, current pending.Tx, secondaryCredential string) (Result, error) {
	if current.State != validation.CanExecute {
		return Result{}, errors.ErrExecutionBlocked
	}

	st, ok := current.EngineState.(onChainState)
	if !ok || st.Resolved.Address == "" {
		return Result{}, errors.ErrExecutionBlocked
	}

	now := e.now()
	payload := []byte(fmt.Sprintf("%s|%s|%s|%s|%s|%d",
		st.TxID, e.source.ID(), st.Resolved.Address,
		current.Amount, current.FeeAmount, now.Unix()))

	signed, err := e.deps.Signer.SignTransfer(payload, secondaryCredential)
	if err != nil {
		return Result{}, errors.TransferWrap(err, errors.OpExecute, "signing transfer")
	}

	hash, err := e.deps.Broadcaster.Broadcast(ctx, e.source.Asset(), signed)
	if err != nil {
		return Result{}, errors.NewTransferError(errors.TransferErrNetwork, "broadcasting transfer", err)
	}

	return Result{Hash: hash, Executed: now}, nil
}

// Cancel has nothing to release for on-chain sends.
func (e *OnChainSendEngine) Cancel(ctx context.Context, current pending.Tx) error {
	return nil
}

// AcceptsFiatInput reports that on-chain amounts are entered in the asset.
func (e *OnChainSendEngine) AcceptsFiatInput() bool { return false }

// AffectedCaches names the balance cache invalidated after execution.
func (e *OnChainSendEngine) AffectedCaches() []string {
	return []string{"balance:" + e.source.ID()}
}

var _ TxEngine = (*OnChainSendEngine)(nil)
