// Package engine implements the per-transfer-type strategy layer. One
// engine exists per (source kind, target kind, action) combination and
// owns that rail's business logic: fee estimation, quote locking,
// bank-transfer terms, limit checks. Engines never mutate a snapshot in
// place; every call returns a new fully-formed pending.Tx.
package engine

import (
	"context"
	"time"

	"github.com/traversefi/traverse/internal/account"
	"github.com/traversefi/traverse/internal/address"
	"github.com/traversefi/traverse/internal/asset"
	"github.com/traversefi/traverse/internal/money"
	"github.com/traversefi/traverse/internal/pending"
)

// Action is the transfer semantic the user requested.
type Action string

const (
	// Send moves an asset to an address or another account.
	Send Action = "SEND"
	// Swap exchanges one custodial asset for another.
	Swap Action = "SWAP"
	// Sell exchanges a custodial asset for fiat.
	Sell Action = "SELL"
	// Deposit moves funds into a rewards position or custodial balance.
	Deposit Action = "DEPOSIT"
	// Withdraw moves funds out of a position or custodial balance.
	Withdraw Action = "WITHDRAW"
	// Sign signs a payload without moving funds.
	Sign Action = "SIGN"
)

// Target is where the transfer goes: a known account, or a raw external
// address/domain entered by the user.
type Target struct {
	// Account is set when the target is a known account.
	Account account.Account
	// Address is the raw user input for external targets.
	Address string
}

// Kind returns the capability tags used for engine selection. External
// address targets have the single pseudo-tag External.
func (t Target) Kind() []account.Tag {
	if t.Account != nil {
		return t.Account.Tags()
	}
	return []account.Tag{External}
}

// External is the pseudo capability tag of a raw address target.
const External account.Tag = "EXTERNAL"

// Result is the outcome of a successful execution.
type Result struct {
	// Hash is the on-chain transaction hash; empty on custodial rails.
	Hash string `json:"hash,omitempty"`
	// AckID identifies an acknowledged custodial/batched transfer.
	AckID string `json:"ack_id,omitempty"`
	// Executed is when the backend accepted the transfer.
	Executed time.Time `json:"executed"`
}

// TxEngine is the strategy contract every rail implements. The
// orchestrator is the only caller; it serialises calls and discards
// results derived from superseded snapshots.
type TxEngine interface {
	// Initialise builds the first snapshot: starting balances, default
	// fee level, zero amount, limits. Read-only, no side effects.
	Initialise(ctx context.Context) (pending.Tx, error)

	// UpdateAmount recomputes fees and available balance for a new
	// amount. Safe to call repeatedly with rapidly changing amounts.
	UpdateAmount(ctx context.Context, current pending.Tx, amount money.Money) (pending.Tx, error)

	// UpdateFeeLevel re-derives the fee for the requested level. The
	// level must be in the snapshot's available set.
	UpdateFeeLevel(ctx context.Context, current pending.Tx, level pending.FeeLevel, custom *money.Money) (pending.Tx, error)

	// SetOption applies a user-edited confirmation option.
	SetOption(ctx context.Context, current pending.Tx, opt pending.Confirmation) (pending.Tx, error)

	// ValidateAmount applies amount-affecting rules only: funds, limits,
	// fee affordability.
	ValidateAmount(ctx context.Context, current pending.Tx) (pending.Tx, error)

	// ValidateAll applies every rule, including address, memo, quote
	// expiry and in-flight checks. Always runs just before execution.
	ValidateAll(ctx context.Context, current pending.Tx) (pending.Tx, error)

	// BuildConfirmations materialises the review line items. Idempotent:
	// the same snapshot yields the same list.
	BuildConfirmations(ctx context.Context, current pending.Tx) (pending.Tx, error)

	// Execute performs the transfer. Callers must have re-validated; the
	// engine fails fast when the snapshot is not executable.
	Execute(ctx context.Context, current pending.Tx, secondaryCredential string) (Result, error)

	// Cancel abandons the transfer. Best effort; errors are advisory.
	Cancel(ctx context.Context, current pending.Tx) error

	// AcceptsFiatInput reports whether amounts may be entered in fiat.
	AcceptsFiatInput() bool

	// AffectedCaches names the read-through caches a successful
	// execution invalidates.
	AffectedCaches() []string
}

// FeeEstimate carries the resolved fee per selectable level.
type FeeEstimate struct {
	Regular  money.Money
	Priority money.Money
}

// FeeEstimator quotes network fees for an on-chain transfer of the given
// amount.
type FeeEstimator interface {
	Estimate(ctx context.Context, a asset.Asset, amount money.Money) (FeeEstimate, error)
}

// Quote is a locked exchange price with an expiry.
type Quote struct {
	ID        string
	Rate      asset.ExchangeRate
	ResultsIn money.Money
	Fee       money.Money
	ExpiresAt time.Time
}

// QuoteService locks prices for swap/sell transfers.
type QuoteService interface {
	// Lock obtains a quote converting amount into the target currency.
	Lock(ctx context.Context, amount money.Money, to money.Currency) (Quote, error)
	// Release abandons a locked quote.
	Release(ctx context.Context, quoteID string) error
}

// Eligibility is the outcome of a feature-access check.
type Eligibility struct {
	Granted bool
	Reason  string
}

// EligibilityChecker gates engine/target combinations on account status
// (e.g. depositing into an interest account under sanctions).
type EligibilityChecker interface {
	Check(ctx context.Context, accountID string, action Action) (Eligibility, error)
}

// ActivityChecker reports open orders and unsettled transfers for an
// account.
type ActivityChecker interface {
	// PendingOrders counts the account's open orders.
	PendingOrders(ctx context.Context, accountID string) (int, error)
	// HasTransferInFlight reports an unsettled outgoing transfer.
	HasTransferInFlight(ctx context.Context, accountID string) (bool, error)
}

// LimitsResult is the rail's transfer bounds for one account and action.
type LimitsResult struct {
	Min              *money.Money
	Max              *money.Money
	SilverTierMax    *money.Money
	GoldTierMax      *money.Money
	PaymentMethodMax *money.Money
	UpgradeHint      string
}

// LimitsService resolves per-account transfer limits.
type LimitsService interface {
	Limits(ctx context.Context, accountID string, action Action, currency money.Currency) (LimitsResult, error)
}

// Broadcaster publishes a signed on-chain transaction and returns its hash.
type Broadcaster interface {
	Broadcast(ctx context.Context, a asset.Asset, signedTx []byte) (string, error)
}

// Signer signs an on-chain transfer payload with the source wallet's key.
// The secondary credential unlocks the key where one is required.
type Signer interface {
	SignTransfer(payload []byte, secondaryCredential string) ([]byte, error)
}

// Submitter hands an executed custodial transfer to the settlement
// pipeline and returns an acknowledgement ID.
type Submitter interface {
	Submit(ctx context.Context, rec SubmitRecord) (string, error)
}

// SubmitRecord is the settlement-pipeline payload for a custodial transfer.
type SubmitRecord struct {
	ID            string      `json:"id"`
	SourceAccount string      `json:"source_account"`
	TargetAccount string      `json:"target_account"`
	Action        Action      `json:"action"`
	Amount        money.Money `json:"amount"`
	Fee           money.Money `json:"fee"`
	QuoteID       string      `json:"quote_id,omitempty"`
	Memo          string      `json:"memo,omitempty"`
	Timestamp     int64       `json:"timestamp"`
}

// RewardsTerms are the conditions attached to a rewards position.
type RewardsTerms struct {
	// LockDays is how long deposited funds stay locked.
	LockDays int
	// AnnualRatePct is the advertised annual reward rate.
	AnnualRatePct float64
}

// RewardsTermsService resolves the terms for interest/staking deposits.
type RewardsTermsService interface {
	Terms(ctx context.Context, accountID string, currency money.Currency) (RewardsTerms, error)
}

// FeeFunding reports the balance of the fee-paying asset when fees are
// charged in a different currency than the amount (token sends).
type FeeFunding interface {
	FeeBalance(ctx context.Context, accountID string, feeCurrency money.Currency) (money.Money, error)
}

// Clock abstracts time for quote-expiry checks.
type Clock interface {
	Now() time.Time
}

// Deps bundles the capability collaborators an engine may use. Engines
// take what they need and ignore the rest; nil fields disable the
// corresponding checks where optional.
type Deps struct {
	Catalogue   asset.Catalogue
	Resolver    AddressResolver
	Fees        FeeEstimator
	Quotes      QuoteService
	Eligibility EligibilityChecker
	Activity    ActivityChecker
	Limits      LimitsService
	Rewards     RewardsTermsService
	FeeFunding  FeeFunding
	Signer      Signer
	Broadcaster Broadcaster
	Submitter   Submitter
	Clock       Clock

	// MaxOpenOrders caps concurrently open custodial orders per account.
	// Zero selects the built-in default.
	MaxOpenOrders int
	// BankReferenceMax bounds the bank transfer reference length. Zero
	// selects the built-in default.
	BankReferenceMax int
}

// AddressResolver resolves raw input or a domain to a machine address.
type AddressResolver interface {
	Resolve(ctx context.Context, input string, a asset.Asset) (address.Resolved, error)
}
