// Package wallet manages the key pairs behind non-custodial accounts and
// signs on-chain transfer payloads. Addresses are derived from the
// compressed public key the same way across assets.
package wallet

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcutil/base58"
	"golang.org/x/crypto/bcrypt"
)

// Wallet is one user-controlled key pair.
type Wallet struct {
	PrivateKey *btcec.PrivateKey
	PublicKey  []byte
	Address    string
	CreatedAt  time.Time

	// credentialHash is the bcrypt hash of the secondary credential
	// required to sign; empty means no credential is enforced.
	credentialHash []byte
}

// New creates a wallet with a fresh key pair.
func New() (*Wallet, error) {
	privateKey, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	pubKey := privateKey.PubKey().SerializeCompressed()

	return &Wallet{
		PrivateKey: privateKey,
		PublicKey:  pubKey,
		Address:    DeriveAddress(pubKey),
		CreatedAt:  time.Now(),
	}, nil
}

// Import restores a wallet from a private key hex string.
func Import(privateKeyHex string) (*Wallet, error) {
	privateKeyBytes, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key format: %w", err)
	}

	privateKey, _ := btcec.PrivKeyFromBytes(privateKeyBytes)
	if privateKey == nil {
		return nil, errors.New("invalid private key")
	}

	pubKey := privateKey.PubKey().SerializeCompressed()

	return &Wallet{
		PrivateKey: privateKey,
		PublicKey:  pubKey,
		Address:    DeriveAddress(pubKey),
		CreatedAt:  time.Now(),
	}, nil
}

// DeriveAddress derives the base58 address from a compressed public key.
func DeriveAddress(pubKey []byte) string {
	sha := sha256.New()
	sha.Write(pubKey)
	hash := sha.Sum(nil)
	return base58.Encode(hash[:20])
}

// ExportPrivateKey exports the private key as a hex string.
func (w *Wallet) ExportPrivateKey() string {
	return hex.EncodeToString(w.PrivateKey.Serialize())
}

// SetCredential requires the given secondary credential for signing.
func (w *Wallet) SetCredential(credential string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(credential), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash credential: %w", err)
	}
	w.credentialHash = hash
	return nil
}

// SignTransfer signs an on-chain transfer payload, verifying the
// secondary credential first when one is set.
func (w *Wallet) SignTransfer(payload []byte, secondaryCredential string) ([]byte, error) {
	if len(w.credentialHash) > 0 {
		if err := bcrypt.CompareHashAndPassword(w.credentialHash, []byte(secondaryCredential)); err != nil {
			return nil, errors.New("secondary credential rejected")
		}
	}

	digest := sha256.Sum256(payload)
	signature := ecdsa.Sign(w.PrivateKey, digest[:])
	return signature.Serialize(), nil
}

// VerifySignature verifies a transfer signature against a public key.
func VerifySignature(pubKey, payload, signature []byte) (bool, error) {
	parsedPubKey, err := btcec.ParsePubKey(pubKey)
	if err != nil {
		return false, fmt.Errorf("failed to parse public key: %w", err)
	}

	parsedSig, err := ecdsa.ParseSignature(signature)
	if err != nil {
		return false, fmt.Errorf("failed to parse signature: %w", err)
	}

	digest := sha256.Sum256(payload)
	return parsedSig.Verify(digest[:], parsedPubKey), nil
}
