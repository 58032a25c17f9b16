// Package validation defines the validation state machine shared by every
// transfer engine. Validity is never cached: each amount, fee or option
// change re-enters the machine from scratch against the complete snapshot,
// and CAN_EXECUTE is the only state execution may proceed from.
package validation

// State is one node of the validation state machine.
type State string

const (
	// Uninitialised means no validation has run yet, or the user has not
	// entered an amount.
	Uninitialised State = "UNINITIALISED"
	// CanExecute means the transfer passed every check and may execute.
	CanExecute State = "CAN_EXECUTE"
	// HasTxInFlight means another transfer on this account is still
	// settling and blocks a new one.
	HasTxInFlight State = "HAS_TX_IN_FLIGHT"
	// InvalidAmount means the amount is malformed or non-positive.
	InvalidAmount State = "INVALID_AMOUNT"
	// InsufficientFunds means the amount plus fee exceeds the available
	// balance.
	InsufficientFunds State = "INSUFFICIENT_FUNDS"
	// InsufficientGas means the fee-bearing asset balance cannot cover
	// the network fee.
	InsufficientGas State = "INSUFFICIENT_GAS"
	// InvalidAddress means the target address failed validation.
	InvalidAddress State = "INVALID_ADDRESS"
	// InvalidDomain means a naming-service domain could not be resolved.
	InvalidDomain State = "INVALID_DOMAIN"
	// AddressIsContract means the target is a contract address.
	AddressIsContract State = "ADDRESS_IS_CONTRACT"
	// OptionInvalid means a confirmation option holds an invalid value.
	OptionInvalid State = "OPTION_INVALID"
	// MemoInvalid means a required memo/reference is missing or malformed.
	MemoInvalid State = "MEMO_INVALID"
	// UnderMinLimit means the amount is below the rail's minimum.
	UnderMinLimit State = "UNDER_MIN_LIMIT"
	// OverSilverTierLimit means the amount exceeds the silver KYC tier.
	OverSilverTierLimit State = "OVER_SILVER_TIER_LIMIT"
	// OverGoldTierLimit means the amount exceeds the gold KYC tier.
	OverGoldTierLimit State = "OVER_GOLD_TIER_LIMIT"
	// AbovePaymentMethodLimit means the amount exceeds the linked payment
	// method's limit.
	AbovePaymentMethodLimit State = "ABOVE_PAYMENT_METHOD_LIMIT"
	// PendingOrdersLimitReached means too many orders are already open.
	PendingOrdersLimitReached State = "PENDING_ORDERS_LIMIT_REACHED"
	// InvoiceExpired means the locked quote or invoice has expired.
	InvoiceExpired State = "INVOICE_EXPIRED"
)

// messages maps every blocking state to exactly one user-facing message.
// An unmapped state is a bug, not an unknown-error fallback.
var messages = map[State]string{
	HasTxInFlight:             "A previous transfer is still processing. Wait for it to complete.",
	InvalidAmount:             "Enter a valid amount.",
	InsufficientFunds:         "You don't have enough funds for this transfer.",
	InsufficientGas:           "You don't have enough of the network's native asset to pay the fee.",
	InvalidAddress:            "The address is not valid for this asset.",
	InvalidDomain:             "This domain can't be resolved to an address.",
	AddressIsContract:         "Sending to a contract address is not supported.",
	OptionInvalid:             "One of the transfer options is invalid.",
	MemoInvalid:               "The memo or reference is missing or invalid.",
	UnderMinLimit:             "The amount is below the minimum for this transfer.",
	OverSilverTierLimit:       "The amount exceeds your current verification tier limit.",
	OverGoldTierLimit:         "The amount exceeds the maximum allowed for your account.",
	AbovePaymentMethodLimit:   "The amount exceeds this payment method's limit.",
	PendingOrdersLimitReached: "You've reached the maximum number of open orders.",
	InvoiceExpired:            "The quote expired. Refresh to get a new price.",
}

// Message returns the user-facing message for a blocking state. CanExecute
// and Uninitialised have no message.
func (s State) Message() string {
	return messages[s]
}

// Blocking reports whether the state prevents execution and should be
// surfaced to the user as an error notice.
func (s State) Blocking() bool {
	return s != CanExecute && s != Uninitialised
}

// AmountRelated reports whether the state is produced by amount-only
// validation, as opposed to transaction-wide checks.
func (s State) AmountRelated() bool {
	switch s {
	case InvalidAmount, InsufficientFunds, InsufficientGas,
		UnderMinLimit, OverSilverTierLimit, OverGoldTierLimit,
		AbovePaymentMethodLimit:
		return true
	}
	return false
}
