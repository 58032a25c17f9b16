package pending

import (
	"time"

	"github.com/traversefi/traverse/internal/money"
)

// Tag identifies the kind of a confirmation line item. Rebuilding the
// confirmation list replaces items by tag instead of duplicating them.
type Tag string

const (
	// TagFrom shows the source account.
	TagFrom Tag = "FROM"
	// TagTo shows the target account or address.
	TagTo Tag = "TO"
	// TagAmount shows the transfer amount.
	TagAmount Tag = "AMOUNT"
	// TagNetworkFee shows the network fee.
	TagNetworkFee Tag = "NETWORK_FEE"
	// TagProcessingFee shows a custodial processing fee.
	TagProcessingFee Tag = "PROCESSING_FEE"
	// TagTotal shows amount plus fees.
	TagTotal Tag = "TOTAL"
	// TagExchangeRate shows the applied rate.
	TagExchangeRate Tag = "EXCHANGE_RATE"
	// TagDescription is a user-editable description.
	TagDescription Tag = "DESCRIPTION"
	// TagMemo is a user-editable memo/reference required by some rails.
	TagMemo Tag = "MEMO"
	// TagLockDays shows how long deposited funds are locked.
	TagLockDays Tag = "LOCK_DAYS"
	// TagArrival shows the expected arrival window.
	TagArrival Tag = "ARRIVAL"
	// TagQuoteExpiry counts down the locked quote.
	TagQuoteExpiry Tag = "QUOTE_EXPIRY"
	// TagErrorNotice carries the blocking validation state.
	TagErrorNotice Tag = "ERROR_NOTICE"
)

// Confirmation is one typed, user-visible line item reviewed before
// execution.
type Confirmation struct {
	Tag   Tag    `json:"tag"`
	Label string `json:"label"`
	// Value is the display value for textual items.
	Value string `json:"value,omitempty"`
	// Amount is set for monetary items.
	Amount *money.Money `json:"amount,omitempty"`
	// Editable marks the item as a user-settable option.
	Editable bool `json:"editable,omitempty"`
	// Deadline is set for countdown items such as quote expiry.
	Deadline *time.Time `json:"deadline,omitempty"`
}

// Confirmations is a stable-ordered list of line items unique by tag.
type Confirmations []Confirmation

// Get returns the item with the given tag.
func (c Confirmations) Get(tag Tag) (Confirmation, bool) {
	for _, item := range c {
		if item.Tag == tag {
			return item, true
		}
	}
	return Confirmation{}, false
}

// Upsert returns a new list with the item replaced in place if its tag is
// already present, or appended otherwise. The receiver is not modified.
func (c Confirmations) Upsert(item Confirmation) Confirmations {
	out := make(Confirmations, len(c))
	copy(out, c)
	for i, existing := range out {
		if existing.Tag == item.Tag {
			out[i] = item
			return out
		}
	}
	return append(out, item)
}

// Remove returns a new list without the item of the given tag.
func (c Confirmations) Remove(tag Tag) Confirmations {
	out := make(Confirmations, 0, len(c))
	for _, item := range c {
		if item.Tag != tag {
			out = append(out, item)
		}
	}
	return out
}
