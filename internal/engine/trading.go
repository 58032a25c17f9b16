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

// maxOpenOrders caps concurrently open custodial orders per account
// when the configuration does not set its own cap.
const maxOpenOrders = 10

// tradingState is the engine-private payload for custodial quote rails.
type tradingState struct {
	TxID        string
	Quote       Quote
	HasQuote    bool
	Description string
}

// TradingSwapEngine exchanges one custodial asset for another against a
// locked quote. The quote carries the processing fee and an expiry; an
// expired quote blocks execution until the amount is refreshed.
type TradingSwapEngine struct {
	base
	action Action
}

// NewTradingSwap constructs the custodial swap engine.
func NewTradingSwap(deps Deps, source account.Account, target Target) TxEngine {
	return &TradingSwapEngine{base: newBase(deps, source, target), action: Swap}
}

// NewTradingSell constructs the custodial sell engine; it is the swap
// pipeline pointed at a fiat target, with tier limits applied.
func NewTradingSell(deps Deps, source account.Account, target Target) TxEngine {
	return &TradingSwapEngine{base: newBase(deps, source, target), action: Sell}
}

func (e *TradingSwapEngine) targetCurrency() money.Currency {
	if e.target.Account != nil {
		return e.target.Account.Asset().Currency
	}
	return e.source.Asset().Currency
}

// Initialise builds the first snapshot from the custodial balance. No
// quote is locked until the user enters an amount.
func (e *TradingSwapEngine) Initialise(ctx context.Context) (pending.Tx, error) {
	a := e.source.Asset()

	bal, err := firstBalance(ctx, e.source)
	if err != nil {
		return pending.Tx{}, errors.TransferWrap(err, errors.OpInitialise, "reading source balance")
	}

	if err := e.resolveLimits(ctx, e.action, a.Currency); err != nil {
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
		EngineState: tradingState{TxID: uuid.New().String()},
	}
	tx = tx.WithLimits(e.pendingLimits()).PushStep(pending.StepEnterAmount)
	return e.BuildConfirmations(ctx, tx)
}

// UpdateAmount locks a fresh quote for the new amount, releasing the
// previous one. Sells accept fiat-denominated input, converted into the
// source asset at the current rate before quoting. The orchestrator
// discards stale results, so a slow quote for a superseded amount is
// never applied.
func (e *TradingSwapEngine) UpdateAmount(ctx context.Context, current pending.Tx, amount money.Money) (pending.Tx, error) {
	if !amount.Currency.Equal(e.source.Asset().Currency) {
		converted, err := e.convertFiatInput(ctx, amount)
		if err != nil {
			return pending.Tx{}, err
		}
		amount = converted
	}

	st, _ := current.EngineState.(tradingState)

	if st.HasQuote {
		// Best effort; the old quote simply expires if release fails.
		_ = e.deps.Quotes.Release(ctx, st.Quote.ID)
		st.HasQuote = false
	}

	tx := current.WithAmount(amount)

	if amount.IsPositive() {
		q, err := e.deps.Quotes.Lock(ctx, amount, e.targetCurrency())
		if err != nil {
			return pending.Tx{}, translateQuoteErr(err)
		}
		st.Quote = q
		st.HasQuote = true
		tx = tx.WithFee(q.Fee, q.Fee)
	} else {
		tx = tx.WithFee(money.Zero(amount.Currency), money.Zero(amount.Currency))
	}

	return e.BuildConfirmations(ctx, tx.WithEngineState(st))
}

// convertFiatInput converts a fiat-denominated sell amount into the
// source asset at the current rate. Any other foreign currency is
// rejected.
func (e *TradingSwapEngine) convertFiatInput(ctx context.Context, amount money.Money) (money.Money, error) {
	if e.action != Sell || !amount.Currency.Equal(e.targetCurrency()) || e.deps.Catalogue == nil {
		return money.Money{}, errors.NewTransferError(errors.TransferErrInvalidCurrency,
			fmt.Sprintf("amount currency %s does not match account asset %s", amount.Currency, e.source.Asset().Currency), nil)
	}

	rate, err := e.deps.Catalogue.ExchangeRate(ctx, amount.Currency, e.source.Asset().Currency)
	if err != nil {
		return money.Money{}, errors.NewTransferError(errors.TransferErrNetwork, "converting fiat amount", err)
	}
	converted, err := rate.Convert(amount)
	if err != nil {
		return money.Money{}, errors.NewTransferError(errors.TransferErrInvalidCurrency, "converting fiat amount", err)
	}
	return converted, nil
}

// translateQuoteErr maps backend quote failures onto the transfer
// taxonomy.
func translateQuoteErr(err error) error {
	var domainErr *errors.Error
	if errors.As(err, &domainErr) && domainErr.Domain == errors.TransferDomain {
		return err
	}
	return errors.NewTransferError(errors.TransferErrNetwork, "locking quote", err)
}

// UpdateFeeLevel rejects everything except the rail's single None level.
func (e *TradingSwapEngine) UpdateFeeLevel(ctx context.Context, current pending.Tx, level pending.FeeLevel, custom *money.Money) (pending.Tx, error) {
	if !current.FeeSelection.Supports(level) {
		return pending.Tx{}, fmt.Errorf("%w: %s", pending.ErrFeeLevelUnavailable, level)
	}
	return current, nil
}

// SetOption applies edits to the description option.
func (e *TradingSwapEngine) SetOption(ctx context.Context, current pending.Tx, opt pending.Confirmation) (pending.Tx, error) {
	if opt.Tag != pending.TagDescription {
		return pending.Tx{}, errors.ErrOptionNotOffered
	}

	st, _ := current.EngineState.(tradingState)
	st.Description = opt.Value
	return e.BuildConfirmations(ctx, current.WithEngineState(st))
}

// ValidateAmount applies funds and tier-limit rules. The processing fee is
// part of the quote and shares the amount's currency.
func (e *TradingSwapEngine) ValidateAmount(ctx context.Context, current pending.Tx) (pending.Tx, error) {
	state := e.amountState(current, nil)
	tx := current.WithState(state)
	return tx.WithConfirmations(errorNotice(tx.Confirmations, state, tx.Limits)), nil
}

// ValidateAll additionally checks the open-order cap, unsettled transfers
// and quote expiry.
func (e *TradingSwapEngine) ValidateAll(ctx context.Context, current pending.Tx) (pending.Tx, error) {
	tx, err := e.ValidateAmount(ctx, current)
	if err != nil {
		return pending.Tx{}, err
	}
	if tx.State.Blocking() {
		return tx, nil
	}

	if e.deps.Activity != nil {
		if n, err := e.deps.Activity.PendingOrders(ctx, e.source.ID()); err == nil && n >= e.openOrderCap() {
			return e.withState(tx, validation.PendingOrdersLimitReached), nil
		}
		if inFlight, err := e.deps.Activity.HasTransferInFlight(ctx, e.source.ID()); err == nil && inFlight {
			return e.withState(tx, validation.HasTxInFlight), nil
		}
	}

	st, _ := tx.EngineState.(tradingState)
	if st.HasQuote && e.now().After(st.Quote.ExpiresAt) {
		return e.withState(tx, validation.InvoiceExpired), nil
	}

	return e.withState(tx, validation.CanExecute), nil
}

func (e *TradingSwapEngine) openOrderCap() int {
	if e.deps.MaxOpenOrders > 0 {
		return e.deps.MaxOpenOrders
	}
	return maxOpenOrders
}

func (e *TradingSwapEngine) withState(tx pending.Tx, state validation.State) pending.Tx {
	tx = tx.WithState(state)
	return tx.WithConfirmations(errorNotice(tx.Confirmations, state, tx.Limits))
}

// BuildConfirmations shows the rate, the resulting amount and the quote
// countdown alongside the shared items.
func (e *TradingSwapEngine) BuildConfirmations(ctx context.Context, current pending.Tx) (pending.Tx, error) {
	st, _ := current.EngineState.(tradingState)

	to := e.target.Address
	if e.target.Account != nil {
		to = e.target.Account.Label()
	}

	amount := current.Amount
	fee := current.FeeAmount

	list := current.Confirmations.
		Upsert(pending.Confirmation{Tag: pending.TagFrom, Label: "From", Value: e.source.Label()}).
		Upsert(pending.Confirmation{Tag: pending.TagTo, Label: "To", Value: to}).
		Upsert(pending.Confirmation{Tag: pending.TagAmount, Label: "Amount", Amount: &amount}).
		Upsert(pending.Confirmation{Tag: pending.TagProcessingFee, Label: "Processing fee", Amount: &fee}).
		Upsert(pending.Confirmation{Tag: pending.TagDescription, Label: "Description", Value: st.Description, Editable: true})

	if st.HasQuote {
		results := st.Quote.ResultsIn
		deadline := st.Quote.ExpiresAt
		list = list.
			Upsert(pending.Confirmation{
				Tag:   pending.TagExchangeRate,
				Label: "Rate",
				Value: fmt.Sprintf("1 %s = %.8f %s", st.Quote.Rate.From, st.Quote.Rate.Rate, st.Quote.Rate.To),
			}).
			Upsert(pending.Confirmation{Tag: pending.TagTotal, Label: "You receive", Amount: &results}).
			Upsert(pending.Confirmation{Tag: pending.TagQuoteExpiry, Label: "Quote expires", Deadline: &deadline})
	} else {
		list = list.Remove(pending.TagExchangeRate).Remove(pending.TagTotal).Remove(pending.TagQuoteExpiry)
	}

	list = errorNotice(list, current.State, current.Limits)
	return current.WithConfirmations(list), nil
}

// Execute submits the transfer to the custodial settlement pipeline and
// returns the acknowledgement; custodial rails produce no chain hash.
func (e *TradingSwapEngine) Execute(ctx context.Context, current pending.Tx, secondaryCredential string) (Result, error) {
	if current.State != validation.CanExecute {
		return Result{}, errors.ErrExecutionBlocked
	}

	st, ok := current.EngineState.(tradingState)
	if !ok || !st.HasQuote {
		return Result{}, errors.ErrExecutionBlocked
	}

	now := e.now()
	if now.After(st.Quote.ExpiresAt) {
		return Result{}, errors.NewTransferError(errors.TransferErrQuoteExpired, "quote expired before submission", nil)
	}

	targetID := ""
	if e.target.Account != nil {
		targetID = e.target.Account.ID()
	}

	ack, err := e.deps.Submitter.Submit(ctx, SubmitRecord{
		ID:            st.TxID,
		SourceAccount: e.source.ID(),
		TargetAccount: targetID,
		Action:        e.action,
		Amount:        current.Amount,
		Fee:           current.FeeAmount,
		QuoteID:       st.Quote.ID,
		Memo:          st.Description,
		Timestamp:     now.Unix(),
	})
	if err != nil {
		return Result{}, translateQuoteErr(err)
	}

	return Result{AckID: ack, Executed: now}, nil
}

// Cancel releases the locked quote, if any.
func (e *TradingSwapEngine) Cancel(ctx context.Context, current pending.Tx) error {
	st, _ := current.EngineState.(tradingState)
	if !st.HasQuote {
		return nil
	}
	return e.deps.Quotes.Release(ctx, st.Quote.ID)
}

// AcceptsFiatInput reports that custodial amounts may be entered in fiat
// for sells; swaps take asset-denominated input only.
func (e *TradingSwapEngine) AcceptsFiatInput() bool { return e.action == Sell }

// AffectedCaches names the balance caches invalidated after execution.
func (e *TradingSwapEngine) AffectedCaches() []string {
	caches := []string{"balance:" + e.source.ID()}
	if e.target.Account != nil {
		caches = append(caches, "balance:"+e.target.Account.ID())
	}
	return caches
}

var _ TxEngine = (*TradingSwapEngine)(nil)
