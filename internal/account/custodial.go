package account

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/traversefi/traverse/internal/asset"
	"github.com/traversefi/traverse/internal/money"
)

// BalanceSource reads an account's current balance from the custody
// store.
type BalanceSource interface {
	GetBalance(ctx context.Context, accountID string, currency money.Currency) (money.Money, error)
}

// CustodialAccount is an account whose balance lives in the custody
// store. Balance subscriptions poll the store and fan out through a
// replay-latest feed.
type CustodialAccount struct {
	id      string
	label   string
	asset   asset.Asset
	tags    Tags
	receive ReceiveAddress

	source       BalanceSource
	pollInterval time.Duration

	once sync.Once
	feed *BalanceFeed
}

// NewCustodialAccount creates an account backed by the given balance
// source.
func NewCustodialAccount(id, label string, a asset.Asset, tags Tags, receive ReceiveAddress, source BalanceSource) *CustodialAccount {
	return &CustodialAccount{
		id:           id,
		label:        label,
		asset:        a,
		tags:         tags,
		receive:      receive,
		source:       source,
		pollInterval: 5 * time.Second,
		feed:         NewBalanceFeed(),
	}
}

// ID uniquely identifies the account.
func (a *CustodialAccount) ID() string { return a.id }

// Label is the user-facing account name.
func (a *CustodialAccount) Label() string { return a.label }

// Asset returns the asset this account holds.
func (a *CustodialAccount) Asset() asset.Asset { return a.asset }

// Tags returns the account's capability tags.
func (a *CustodialAccount) Tags() Tags { return a.tags }

// Balance subscribes to the account's balance. The first observation is
// fetched synchronously so subscribers never wait a full poll interval.
func (a *CustodialAccount) Balance(ctx context.Context) <-chan Balance {
	a.once.Do(func() {
		if b, err := a.fetch(ctx); err == nil {
			a.feed.Publish(b)
		}
		go a.poll()
	})
	return a.feed.Subscribe(ctx)
}

func (a *CustodialAccount) poll() {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.feed.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), a.pollInterval)
			b, err := a.fetch(ctx)
			cancel()
			if err != nil {
				continue
			}
			a.feed.Publish(b)
		}
	}
}

// Close stops balance polling and closes all subscriptions.
func (a *CustodialAccount) Close() {
	a.feed.Close()
}

func (a *CustodialAccount) fetch(ctx context.Context) (Balance, error) {
	total, err := a.source.GetBalance(ctx, a.id, a.asset.Currency)
	if err != nil {
		return Balance{}, err
	}
	return Balance{
		Total:     total,
		Available: total,
		Pending:   money.Zero(a.asset.Currency),
	}, nil
}

// ReceiveAddress returns the address to fund this account.
func (a *CustodialAccount) ReceiveAddress(ctx context.Context) (ReceiveAddress, error) {
	if a.receive.Address == "" {
		return ReceiveAddress{}, ErrNoReceiveAddress
	}
	return a.receive, nil
}

// IsFunded reports whether the account has ever held funds.
func (a *CustodialAccount) IsFunded(ctx context.Context) (bool, error) {
	b, err := a.fetch(ctx)
	if err != nil {
		return false, err
	}
	return b.Total.IsPositive(), nil
}

var _ Account = (*CustodialAccount)(nil)

// Directory maps users to their accounts.
type Directory struct {
	mu       sync.RWMutex
	accounts map[string]map[string]Account
}

// NewDirectory creates an empty account directory.
func NewDirectory() *Directory {
	return &Directory{accounts: make(map[string]map[string]Account)}
}

// Register adds an account for a user.
func (d *Directory) Register(userID string, acc Account) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.accounts[userID] == nil {
		d.accounts[userID] = make(map[string]Account)
	}
	d.accounts[userID][acc.ID()] = acc
}

// Account resolves one of the user's accounts by ID.
func (d *Directory) Account(ctx context.Context, userID, accountID string) (Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	acc, ok := d.accounts[userID][accountID]
	if !ok {
		return nil, fmt.Errorf("account %s not found", accountID)
	}
	return acc, nil
}

// Accounts lists the user's accounts.
func (d *Directory) Accounts(ctx context.Context, userID string) []Account {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Account, 0, len(d.accounts[userID]))
	for _, acc := range d.accounts[userID] {
		out = append(out, acc)
	}
	return out
}
