package quotes

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Common errors
var (
	ErrInvalidToken = errors.New("invalid quote token")
	ErrExpiredToken = errors.New("quote token has expired")
)

// TokenSigner issues and verifies HMAC-SHA256 quote tokens. A token
// binds a quote ID to its expiry, so a redeemer can reject expired or
// tampered quotes without trusting the caller's clock.
type TokenSigner struct {
	secret []byte
}

// NewTokenSigner creates a signer. The secret must be at least 32 bytes.
func NewTokenSigner(secret []byte) (*TokenSigner, error) {
	if len(secret) < 32 {
		return nil, errors.New("secret must be at least 32 bytes")
	}
	return &TokenSigner{secret: secret}, nil
}

// Token returns the signed token "<id>.<expiry>.<signature>".
func (s *TokenSigner) Token(id string, expiresAt time.Time) string {
	sig := s.sign(id, expiresAt.Unix())
	return fmt.Sprintf("%s.%d.%s", id, expiresAt.Unix(), hex.EncodeToString(sig))
}

// Parse splits a token into its ID and expiry without verifying it.
func (s *TokenSigner) Parse(token string) (string, time.Time, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", time.Time{}, ErrInvalidToken
	}
	expiry, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", time.Time{}, ErrInvalidToken
	}
	return parts[0], time.Unix(expiry, 0), nil
}

// Verify checks the token's signature and expiry.
func (s *TokenSigner) Verify(token, id string, expiresAt time.Time) error {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return ErrInvalidToken
	}

	sig, err := hex.DecodeString(parts[2])
	if err != nil {
		return ErrInvalidToken
	}
	expected := s.sign(id, expiresAt.Unix())
	if !hmac.Equal(sig, expected) {
		return ErrInvalidToken
	}

	if time.Now().After(expiresAt) {
		return ErrExpiredToken
	}
	return nil
}

func (s *TokenSigner) sign(id string, expiry int64) []byte {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(id))
	binary.Write(h, binary.BigEndian, expiry)
	return h.Sum(nil)
}
