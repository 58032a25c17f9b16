package engine

import (
	"fmt"
	"sort"

	"github.com/traversefi/traverse/internal/account"
	"github.com/traversefi/traverse/pkg/errors"
)

// Key selects an engine: one source capability tag, one target capability
// tag, one action.
type Key struct {
	Source account.Tag
	Target account.Tag
	Action Action
}

func (k Key) String() string {
	return fmt.Sprintf("%s->%s/%s", k.Source, k.Target, k.Action)
}

// Constructor builds an engine bound to one (source, target) pair.
type Constructor func(deps Deps, source account.Account, target Target) TxEngine

// Registry maps capability-tag tuples to engine constructors. Selection is
// a pure lookup: unsupported combinations fail at construction time, never
// as a runtime validation state.
type Registry struct {
	constructors map[Key]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[Key]Constructor)}
}

// Register binds a constructor to a key. Re-registering a key replaces the
// previous constructor.
func (r *Registry) Register(key Key, c Constructor) {
	r.constructors[key] = c
}

// Keys returns the registered combinations, sorted for stable listing.
func (r *Registry) Keys() []Key {
	keys := make([]Key, 0, len(r.constructors))
	for k := range r.constructors {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// New constructs the engine for a (source, target, action) triple. Because
// capability tags are orthogonal sets, every source-tag/target-tag pairing
// is tried; the first registered match wins, in tag order of the accounts.
func (r *Registry) New(deps Deps, source account.Account, target Target, action Action) (TxEngine, error) {
	for _, st := range source.Tags() {
		for _, tt := range target.Kind() {
			if c, ok := r.constructors[Key{Source: st, Target: tt, Action: action}]; ok {
				return c(deps, source, target), nil
			}
		}
	}
	return nil, fmt.Errorf("%w: source %v, target %v, action %s",
		errors.ErrUnsupportedCombination, source.Tags(), target.Kind(), action)
}

// DefaultRegistry returns a registry with every built-in engine wired.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	// On-chain sends from user-controlled wallets.
	r.Register(Key{account.NonCustodial, External, Send}, NewOnChainSend)
	r.Register(Key{account.NonCustodial, account.Trading, Send}, NewOnChainSend)
	r.Register(Key{account.NonCustodial, account.Exchange, Send}, NewOnChainSend)

	// Custodial trading rails.
	r.Register(Key{account.Trading, account.Trading, Swap}, NewTradingSwap)
	r.Register(Key{account.Trading, account.Fiat, Sell}, NewTradingSell)

	// Rewards positions.
	r.Register(Key{account.Trading, account.Interest, Deposit}, NewInterestDeposit)
	r.Register(Key{account.NonCustodial, account.Interest, Deposit}, NewInterestDeposit)
	r.Register(Key{account.Trading, account.Staking, Deposit}, NewInterestDeposit)
	r.Register(Key{account.Interest, account.Trading, Withdraw}, NewInterestWithdraw)
	r.Register(Key{account.Staking, account.Trading, Withdraw}, NewInterestWithdraw)

	// Fiat bank rails.
	r.Register(Key{account.Fiat, account.Trading, Deposit}, NewFiatDeposit)
	r.Register(Key{account.Trading, account.Fiat, Withdraw}, NewFiatWithdraw)

	return r
}
