package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traversefi/traverse/internal/asset"
	"github.com/traversefi/traverse/internal/engine"
	"github.com/traversefi/traverse/internal/money"
)

var eur = money.Currency{Code: "EUR", Precision: 2}

func TestParseUnits(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(12345), parseUnits("12345"))
	assert.Equal(t, int64(-50), parseUnits("-50"))
	assert.Equal(t, int64(0), parseUnits(""))
	assert.Equal(t, int64(0), parseUnits("not-a-number"))
	assert.Equal(t, int64(0), parseUnits("12.5"))
}

func TestParseBound(t *testing.T) {
	t.Parallel()

	bound := parseBound("250000", eur)
	require.NotNil(t, bound)
	assert.Equal(t, int64(250000), bound.MinorUnits)
	assert.True(t, bound.Currency.Equal(eur))

	assert.Nil(t, parseBound("", eur))
	assert.Nil(t, parseBound("garbage", eur))
}

func TestSetBound(t *testing.T) {
	t.Parallel()

	fields := map[string]interface{}{}
	m := money.New(1000, eur)
	setBound(fields, "min", &m)
	setBound(fields, "max", nil)

	assert.Equal(t, map[string]interface{}{"min": int64(1000)}, fields)
}

func TestKeyLayout(t *testing.T) {
	t.Parallel()

	btc := asset.Asset{Currency: money.Currency{Code: "BTC", Precision: 8}}

	assert.Equal(t, "fees:BTC", feesKey(btc))
	assert.Equal(t, "limits:SWAP:BTC", limitsKey(engine.Swap, btc.Currency))
	assert.Equal(t, "balance:wallet-1:BTC", balanceKey("wallet-1", btc.Currency))
	assert.Equal(t, "account:wallet-1:transfers", historyKey("wallet-1"))
	assert.Equal(t, "interest-1:DEPOSIT", blockMember("interest-1", engine.Deposit))
}

func TestFeeAccount(t *testing.T) {
	t.Parallel()

	rc := &RedisCustody{}
	assert.Equal(t, "fee_collector", rc.feeAccount())

	rc.FeeCollector = "treasury"
	assert.Equal(t, "treasury", rc.feeAccount())
}
