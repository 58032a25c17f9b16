package address

import (
	"context"
	"errors"
	"testing"

	"github.com/btcsuite/btcutil/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traversefi/traverse/internal/asset"
	"github.com/traversefi/traverse/internal/money"
)

var (
	btcAsset = asset.Asset{
		Currency:    money.Currency{Code: "BTC", Precision: 8},
		Kind:        asset.Coin,
		FeeCurrency: money.Currency{Code: "BTC", Precision: 8},
	}
	eurAsset = asset.Asset{
		Currency:    money.Currency{Code: "EUR", Precision: 2},
		Kind:        asset.Fiat,
		FeeCurrency: money.Currency{Code: "EUR", Precision: 2},
	}
)

// validAddr is 20 bytes of payload, well within the accepted range.
var validAddr = base58.Encode([]byte("01234567890123456789"))

type domainsFunc func(ctx context.Context, domain string, a asset.Asset) (string, error)

func (f domainsFunc) Resolve(ctx context.Context, domain string, a asset.Asset) (string, error) {
	return f(ctx, domain, a)
}

type contractsFunc func(ctx context.Context, addr string, a asset.Asset) (bool, error)

func (f contractsFunc) IsContract(ctx context.Context, addr string, a asset.Asset) (bool, error) {
	return f(ctx, addr, a)
}

func TestValidRaw(t *testing.T) {
	t.Parallel()

	assert.True(t, ValidRaw(validAddr, btcAsset))
	assert.False(t, ValidRaw("tooshort", btcAsset))
	assert.False(t, ValidRaw("", btcAsset))

	// Fiat targets are bank references checked upstream; only a minimal
	// length applies here.
	assert.True(t, ValidRaw("DE89370400440532013000", eurAsset))
	assert.False(t, ValidRaw("DE", eurAsset))
}

func TestResolveRawAddress(t *testing.T) {
	t.Parallel()

	r := NewResolver(nil, nil)

	res, err := r.Resolve(context.Background(), "  "+validAddr+"  ", btcAsset)
	require.NoError(t, err)
	assert.Equal(t, validAddr, res.Address)
	assert.Empty(t, res.Domain)
	assert.False(t, res.IsContract)
}

func TestResolveRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	r := NewResolver(nil, nil)

	_, err := r.Resolve(context.Background(), "", btcAsset)
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = r.Resolve(context.Background(), "bogus!", btcAsset)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestResolveDomain(t *testing.T) {
	t.Parallel()

	domains := domainsFunc(func(ctx context.Context, domain string, a asset.Asset) (string, error) {
		assert.Equal(t, "alice.crypto", domain)
		return validAddr, nil
	})

	r := NewResolver(domains, nil)

	res, err := r.Resolve(context.Background(), "alice.crypto", btcAsset)
	require.NoError(t, err)
	assert.Equal(t, validAddr, res.Address)
	assert.Equal(t, "alice.crypto", res.Domain)
}

func TestResolveDomainFailure(t *testing.T) {
	t.Parallel()

	domains := domainsFunc(func(ctx context.Context, domain string, a asset.Asset) (string, error) {
		return "", errors.New("not registered")
	})

	r := NewResolver(domains, nil)

	_, err := r.Resolve(context.Background(), "nobody.crypto", btcAsset)
	assert.ErrorIs(t, err, ErrInvalidDomain)
}

func TestResolveDomainWithoutResolver(t *testing.T) {
	t.Parallel()

	r := NewResolver(nil, nil)

	_, err := r.Resolve(context.Background(), "alice.crypto", btcAsset)
	assert.ErrorIs(t, err, ErrInvalidDomain)
}

func TestResolveDetectsContract(t *testing.T) {
	t.Parallel()

	contracts := contractsFunc(func(ctx context.Context, addr string, a asset.Asset) (bool, error) {
		return true, nil
	})

	r := NewResolver(nil, contracts)

	res, err := r.Resolve(context.Background(), validAddr, btcAsset)
	require.NoError(t, err)
	assert.True(t, res.IsContract)
}

func TestResolveSkipsContractCheckForFiat(t *testing.T) {
	t.Parallel()

	called := false
	contracts := contractsFunc(func(ctx context.Context, addr string, a asset.Asset) (bool, error) {
		called = true
		return true, nil
	})

	r := NewResolver(nil, contracts)

	res, err := r.Resolve(context.Background(), "DE89370400440532013000", eurAsset)
	require.NoError(t, err)
	assert.False(t, res.IsContract)
	assert.False(t, called)
}
