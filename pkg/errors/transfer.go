// pkg/errors/transfer.go
package errors

import "errors"

// Transfer error codes. This is the closed taxonomy every backend-specific
// failure is translated into at the engine boundary; the orchestrator and
// its consumers never see backend-native error shapes.
const (
	// TransferErrOrderLimitReached indicates the open-order cap was hit
	TransferErrOrderLimitReached = "TRANSFER_ORDER_LIMIT_REACHED"
	// TransferErrInsufficientBalance indicates the backend rejected the amount
	TransferErrInsufficientBalance = "TRANSFER_INSUFFICIENT_BALANCE"
	// TransferErrInvalidAddress indicates an invalid target address
	TransferErrInvalidAddress = "TRANSFER_INVALID_ADDRESS"
	// TransferErrInvalidCurrency indicates a currency the rail cannot carry
	TransferErrInvalidCurrency = "TRANSFER_INVALID_CURRENCY"
	// TransferErrQuoteExpired indicates the locked quote is no longer valid
	TransferErrQuoteExpired = "TRANSFER_QUOTE_EXPIRED"
	// TransferErrInternal indicates an internal server error
	TransferErrInternal = "TRANSFER_INTERNAL"
	// TransferErrNetwork indicates a network connection error
	TransferErrNetwork = "TRANSFER_NETWORK"
	// TransferErrAPI indicates a structured API error with a
	// server-provided message
	TransferErrAPI = "TRANSFER_API"
)

// Transfer domain name
const TransferDomain = "transfer"

// Transfer operations
const (
	OpInitialise         = "Initialise"
	OpUpdateAmount       = "UpdateAmount"
	OpUpdateFeeLevel     = "UpdateFeeLevel"
	OpSetOption          = "SetOption"
	OpValidateAmount     = "ValidateAmount"
	OpValidateAll        = "ValidateAll"
	OpBuildConfirmations = "BuildConfirmations"
	OpExecute            = "Execute"
	OpCancel             = "Cancel"
)

// Processor-level failures. These are terminal: the transfer is dead and
// the consumer must construct a new processor.
var (
	// ErrNotInitialised means a command ran before Initialise.
	ErrNotInitialised = errors.New("processor not initialised")
	// ErrAlreadyInitialised means Initialise ran twice.
	ErrAlreadyInitialised = errors.New("processor already initialised")
	// ErrProcessorClosed means the processor was reset and is not reusable.
	ErrProcessorClosed = errors.New("processor closed")
	// ErrTransferInFlight means an execution is already underway.
	ErrTransferInFlight = errors.New("transfer already in flight")
	// ErrUnsupportedCombination means no engine exists for the requested
	// source/target/action triple.
	ErrUnsupportedCombination = errors.New("unsupported source/target/action combination")
	// ErrFiatInputUnsupported means the engine takes no fiat-denominated input.
	ErrFiatInputUnsupported = errors.New("engine does not accept fiat amounts")
	// ErrOptionNotOffered means a confirmation option was set before being
	// offered by the engine.
	ErrOptionNotOffered = errors.New("option was not offered for this transfer")
	// ErrExecutionBlocked means execute was called outside CAN_EXECUTE.
	ErrExecutionBlocked = errors.New("transfer is not ready to execute")
)

// ApprovalRequired signals that execution needs a secondary out-of-band
// user action (e.g. approving a bank payment in another app). It is a
// distinct non-fatal outcome, not a failure.
type ApprovalRequired struct {
	// ApprovalURL is where the user completes the approval.
	ApprovalURL string
	// PaymentID identifies the payment awaiting approval.
	PaymentID string
}

func (e *ApprovalRequired) Error() string {
	return "transfer requires out-of-band approval"
}

// NewTransferError creates a new transfer error
func NewTransferError(code string, message string, err error) error {
	return &Error{
		Domain:   TransferDomain,
		Code:     code,
		Message:  message,
		Original: err,
	}
}

// TransferErrorf creates a new transfer error with formatted message
func TransferErrorf(code string, format string, args ...interface{}) error {
	return &Error{
		Domain:  TransferDomain,
		Code:    code,
		Message: Sprintf(format, args...),
	}
}

// TransferWrap wraps an error with the transfer domain
func TransferWrap(err error, operation string, message string) error {
	if err == nil {
		return nil
	}

	return &Error{
		Domain:    TransferDomain,
		Operation: operation,
		Message:   message,
		Original:  err,
	}
}

// IsTransferError checks if an error is a transfer error with the given code
func IsTransferError(err error, code string) bool {
	var domainErr *Error
	if As(err, &domainErr) {
		return domainErr.Domain == TransferDomain && domainErr.Code == code
	}
	return false
}

// NewServerMessage creates a structured API error carrying the
// server-provided message verbatim.
func NewServerMessage(message string, err error) error {
	return &Error{
		Domain:   TransferDomain,
		Code:     TransferErrAPI,
		Message:  message,
		Original: err,
	}
}
