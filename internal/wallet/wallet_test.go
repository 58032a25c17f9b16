package wallet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWallet(t *testing.T) {
	t.Parallel()

	w, err := New()
	require.NoError(t, err)

	assert.NotNil(t, w.PrivateKey)
	assert.Len(t, w.PublicKey, 33) // compressed
	assert.NotEmpty(t, w.Address)
	assert.Equal(t, DeriveAddress(w.PublicKey), w.Address)
}

func TestImportRoundTrip(t *testing.T) {
	t.Parallel()

	w, err := New()
	require.NoError(t, err)

	restored, err := Import(w.ExportPrivateKey())
	require.NoError(t, err)

	assert.Equal(t, w.Address, restored.Address)
	assert.Equal(t, w.PublicKey, restored.PublicKey)
}

func TestImportRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := Import("not-hex")
	assert.Error(t, err)
}

func TestSignAndVerifyTransfer(t *testing.T) {
	t.Parallel()

	w, err := New()
	require.NoError(t, err)

	payload := []byte("tx-1|wallet-1|addr|0.015 BTC|0.0001 BTC|1750000000")

	sig, err := w.SignTransfer(payload, "")
	require.NoError(t, err)

	ok, err := VerifySignature(w.PublicKey, payload, sig)
	require.NoError(t, err)
	assert.True(t, ok)

	// A different payload fails verification.
	ok, err = VerifySignature(w.PublicKey, []byte("other"), sig)
	require.NoError(t, err)
	assert.False(t, ok)

	// Another wallet's key fails verification.
	other, err := New()
	require.NoError(t, err)
	ok, err = VerifySignature(other.PublicKey, payload, sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSecondaryCredentialGatesSigning(t *testing.T) {
	t.Parallel()

	w, err := New()
	require.NoError(t, err)
	require.NoError(t, w.SetCredential("hunter2"))

	payload := []byte("payload")

	_, err = w.SignTransfer(payload, "wrong")
	assert.Error(t, err)

	_, err = w.SignTransfer(payload, "")
	assert.Error(t, err)

	sig, err := w.SignTransfer(payload, "hunter2")
	require.NoError(t, err)
	assert.NotEmpty(t, sig)
}

func TestVerifySignatureRejectsMalformedInputs(t *testing.T) {
	t.Parallel()

	w, err := New()
	require.NoError(t, err)

	_, err = VerifySignature([]byte("bad key"), []byte("payload"), []byte("bad sig"))
	assert.Error(t, err)

	_, err = VerifySignature(w.PublicKey, []byte("payload"), []byte("bad sig"))
	assert.Error(t, err)
}
