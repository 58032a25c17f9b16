package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/traversefi/traverse/internal/account"
	"github.com/traversefi/traverse/internal/money"
	"github.com/traversefi/traverse/internal/pending"
	"github.com/traversefi/traverse/internal/validation"
)

// balanceWait bounds how long an engine waits for the first balance
// observation during a snapshot rebuild.
const balanceWait = 10 * time.Second

// firstBalance reads one observation from the account's balance stream.
func firstBalance(ctx context.Context, acc account.Account) (account.Balance, error) {
	ctx, cancel := context.WithTimeout(ctx, balanceWait)
	defer cancel()

	select {
	case b, ok := <-acc.Balance(ctx):
		if !ok {
			return account.Balance{}, fmt.Errorf("balance stream closed for account %s", acc.ID())
		}
		return b, nil
	case <-ctx.Done():
		return account.Balance{}, fmt.Errorf("waiting for balance of account %s: %w", acc.ID(), ctx.Err())
	}
}

// base carries the collaborators and per-transfer identity every engine
// shares. Limits are resolved once at initialise and immutable afterwards.
type base struct {
	deps   Deps
	source account.Account
	target Target
	limits LimitsResult
}

func newBase(deps Deps, source account.Account, target Target) base {
	return base{deps: deps, source: source, target: target}
}

func (b *base) now() time.Time {
	if b.deps.Clock != nil {
		return b.deps.Clock.Now()
	}
	return time.Now()
}

// resolveLimits fetches and caches the rail's limits for this transfer.
func (b *base) resolveLimits(ctx context.Context, action Action, currency money.Currency) error {
	if b.deps.Limits == nil {
		return nil
	}
	res, err := b.deps.Limits.Limits(ctx, b.source.ID(), action, currency)
	if err != nil {
		return fmt.Errorf("resolving limits: %w", err)
	}
	b.limits = res
	return nil
}

// pendingLimits converts the cached limits into snapshot form.
func (b *base) pendingLimits() pending.Limits {
	return pending.Limits{
		Min:              b.limits.Min,
		Max:              b.limits.Max,
		SilverTierMax:    b.limits.SilverTierMax,
		GoldTierMax:      b.limits.GoldTierMax,
		PaymentMethodMax: b.limits.PaymentMethodMax,
		UpgradeHint:      b.limits.UpgradeHint,
	}
}

// amountState applies the amount-affecting rules shared by every rail:
// pristine-zero suppression, malformed amounts, min/max and tier limits,
// funds and fee affordability. feeBalance is the balance of the fee-paying
// asset when fees are charged in a different currency than the amount; nil
// means the fee shares the amount's currency.
func (b *base) amountState(tx pending.Tx, feeBalance *money.Money) validation.State {
	amt := tx.Amount

	if amt.IsZero() && !tx.Attempted {
		return validation.Uninitialised
	}
	if !amt.IsPositive() {
		return validation.InvalidAmount
	}

	if b.limits.Min != nil {
		if under, err := amt.LessThan(*b.limits.Min); err == nil && under {
			return validation.UnderMinLimit
		}
	}

	if state, blocked := b.fundsState(tx, feeBalance); blocked {
		return state
	}

	if b.limits.GoldTierMax != nil {
		if over, err := amt.GreaterThan(*b.limits.GoldTierMax); err == nil && over {
			return validation.OverGoldTierLimit
		}
	}
	if b.limits.SilverTierMax != nil {
		if over, err := amt.GreaterThan(*b.limits.SilverTierMax); err == nil && over {
			return validation.OverSilverTierLimit
		}
	}
	if b.limits.PaymentMethodMax != nil {
		if over, err := amt.GreaterThan(*b.limits.PaymentMethodMax); err == nil && over {
			return validation.AbovePaymentMethodLimit
		}
	}

	return validation.CanExecute
}

// fundsState checks that the amount plus fee is affordable.
func (b *base) fundsState(tx pending.Tx, feeBalance *money.Money) (validation.State, bool) {
	if feeBalance != nil {
		// Fee is charged in a different asset: amount and fee are
		// checked against their own balances.
		if over, err := tx.Amount.GreaterThan(tx.AvailableBalance); err != nil || over {
			return validation.InsufficientFunds, true
		}
		if gasShort, err := tx.FeeAmount.GreaterThan(*feeBalance); err != nil || gasShort {
			return validation.InsufficientGas, true
		}
		return "", false
	}

	total, err := tx.Amount.Add(tx.FeeAmount)
	if err != nil {
		// Fee currency differs but no fee balance was supplied; treat
		// the amount alone as the spend.
		total = tx.Amount
	}
	if over, err := total.GreaterThan(tx.AvailableBalance); err != nil || over {
		return validation.InsufficientFunds, true
	}
	return "", false
}

// errorNotice returns the confirmation list with the error-notice item
// synchronised to the validation state: upserted when blocking, removed
// otherwise. The notice carries the offending limit when one applies.
func errorNotice(list pending.Confirmations, state validation.State, limits *pending.Limits) pending.Confirmations {
	if !state.Blocking() {
		return list.Remove(pending.TagErrorNotice)
	}

	item := pending.Confirmation{
		Tag:   pending.TagErrorNotice,
		Label: string(state),
		Value: state.Message(),
	}
	if limits != nil {
		switch state {
		case validation.UnderMinLimit:
			item.Amount = limits.Min
		case validation.OverSilverTierLimit:
			item.Amount = firstLimit(limits.SilverTierMax, limits.Max)
		case validation.OverGoldTierLimit:
			item.Amount = firstLimit(limits.GoldTierMax, limits.Max)
		case validation.AbovePaymentMethodLimit:
			item.Amount = firstLimit(limits.PaymentMethodMax, limits.Max)
		}
	}
	return list.Upsert(item)
}

func firstLimit(bounds ...*money.Money) *money.Money {
	for _, b := range bounds {
		if b != nil {
			return b
		}
	}
	return nil
}
