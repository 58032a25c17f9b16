package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTransferError(t *testing.T) {
	t.Parallel()

	original := New("backend said no")
	err := NewTransferError(TransferErrInsufficientBalance, "not enough funds", original)

	var domainErr *Error
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, TransferDomain, domainErr.Domain)
	assert.Equal(t, TransferErrInsufficientBalance, domainErr.Code)
	assert.Equal(t, "not enough funds", domainErr.Message)
	assert.ErrorIs(t, err, original)
}

func TestIsTransferError(t *testing.T) {
	t.Parallel()

	err := NewTransferError(TransferErrQuoteExpired, "quote expired", nil)

	assert.True(t, IsTransferError(err, TransferErrQuoteExpired))
	assert.False(t, IsTransferError(err, TransferErrNetwork))
	assert.False(t, IsTransferError(New("plain"), TransferErrQuoteExpired))
	assert.False(t, IsTransferError(nil, TransferErrQuoteExpired))
}

func TestTransferWrapPreservesSentinel(t *testing.T) {
	t.Parallel()

	wrapped := TransferWrap(ErrExecutionBlocked, OpExecute, "validation refused execution")
	assert.ErrorIs(t, wrapped, ErrExecutionBlocked)

	var domainErr *Error
	require.ErrorAs(t, wrapped, &domainErr)
	assert.Equal(t, OpExecute, domainErr.Operation)

	assert.Nil(t, TransferWrap(nil, OpExecute, "no-op"))
}

func TestNewServerMessage(t *testing.T) {
	t.Parallel()

	err := NewServerMessage("Deposits are unavailable in your region.", nil)

	var domainErr *Error
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, TransferErrAPI, domainErr.Code)
	assert.Equal(t, "Deposits are unavailable in your region.", domainErr.Message)
}

func TestApprovalRequiredIsDistinct(t *testing.T) {
	t.Parallel()

	var err error = &ApprovalRequired{ApprovalURL: "https://x", PaymentID: "p1"}

	var approval *ApprovalRequired
	require.ErrorAs(t, err, &approval)
	assert.Equal(t, "p1", approval.PaymentID)

	// It is not part of the transfer error taxonomy.
	var domainErr *Error
	assert.False(t, As(err, &domainErr))
}
