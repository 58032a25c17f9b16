// Package account defines the account capability the transfer engines run
// against. Accounts are polymorphic over capability tags: a single account
// may be simultaneously a trading and an exchange account, and engines are
// selected by the (source tags, target tags, action) combination.
package account

import (
	"context"
	"errors"

	"github.com/traversefi/traverse/internal/asset"
	"github.com/traversefi/traverse/internal/money"
)

// Common errors
var (
	ErrNoReceiveAddress = errors.New("account has no receive address")
	ErrNotFunded        = errors.New("account is not funded")
)

// Tag marks one capability of an account. Tags are orthogonal; an account
// may carry several.
type Tag string

const (
	// NonCustodial marks a user-controlled on-chain wallet.
	NonCustodial Tag = "NON_CUSTODIAL"
	// Trading marks a custodial trading balance.
	Trading Tag = "TRADING"
	// Interest marks an interest-bearing rewards position.
	Interest Tag = "INTEREST"
	// Staking marks a staking position.
	Staking Tag = "STAKING"
	// Fiat marks a linked bank account.
	Fiat Tag = "FIAT"
	// Exchange marks an account held at an external exchange.
	Exchange Tag = "EXCHANGE"
)

// Tags is a set of capability tags.
type Tags []Tag

// Has reports whether the set contains the given tag.
func (t Tags) Has(tag Tag) bool {
	for _, v := range t {
		if v == tag {
			return true
		}
	}
	return false
}

// Balance is one observation of an account's funds.
type Balance struct {
	// Total is everything the account holds, including locked funds.
	Total money.Money `json:"total"`
	// Available is what can be spent right now.
	Available money.Money `json:"available"`
	// Pending is funds awaiting confirmation.
	Pending money.Money `json:"pending"`
}

// ReceiveAddress is a machine address funds can be sent to.
type ReceiveAddress struct {
	Address string `json:"address"`
	// Memo is a secondary routing field required by some rails.
	Memo string `json:"memo,omitempty"`
}

// Account is one source or target of a transfer. Implementations wrap
// custodial backends, on-chain wallets or linked bank accounts.
type Account interface {
	// ID uniquely identifies the account.
	ID() string

	// Label is the user-facing account name.
	Label() string

	// Asset returns the asset this account holds.
	Asset() asset.Asset

	// Tags returns the account's capability tags.
	Tags() Tags

	// Balance subscribes to the account's balance. The stream is hot and
	// replays the latest value to every new subscriber; it is closed when
	// ctx is cancelled.
	Balance(ctx context.Context) <-chan Balance

	// ReceiveAddress returns the address to fund this account.
	ReceiveAddress(ctx context.Context) (ReceiveAddress, error)

	// IsFunded reports whether the account has ever held funds.
	IsFunded(ctx context.Context) (bool, error)
}
