package account

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traversefi/traverse/internal/asset"
	"github.com/traversefi/traverse/internal/money"
)

func writeAccountsFile(t *testing.T, payload string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accounts.json")
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))
	return path
}

func TestLoadDirectory(t *testing.T) {
	t.Parallel()

	path := writeAccountsFile(t, `[
		{"user_id": "alice", "id": "acc-1", "label": "Trading", "asset": "BTC", "tags": ["TRADING"]},
		{"user_id": "alice", "id": "acc-2", "label": "Savings", "asset": "btc", "tags": ["INTEREST"], "receive_address": "addr", "receive_memo": "ref"}
	]`)

	source := balanceSourceFunc(func(ctx context.Context, accountID string, currency money.Currency) (money.Money, error) {
		return money.Zero(currency), nil
	})

	dir, err := LoadDirectory(context.Background(), path, asset.NewStaticCatalogue(nil), source)
	require.NoError(t, err)

	acc, err := dir.Account(context.Background(), "alice", "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "Trading", acc.Label())
	assert.Equal(t, "BTC", acc.Asset().Currency.Code)
	assert.True(t, acc.Tags().Has(Trading))

	// The asset code is case-insensitive and the receive address survives.
	acc, err = dir.Account(context.Background(), "alice", "acc-2")
	require.NoError(t, err)
	recvAddr, err := acc.ReceiveAddress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "addr", recvAddr.Address)
	assert.Equal(t, "ref", recvAddr.Memo)
}

func TestLoadDirectoryEmptyPath(t *testing.T) {
	t.Parallel()

	dir, err := LoadDirectory(context.Background(), "", asset.NewStaticCatalogue(nil), nil)
	require.NoError(t, err)
	assert.Empty(t, dir.Accounts(context.Background(), "anyone"))
}

func TestLoadDirectoryRejectsUnknownAsset(t *testing.T) {
	t.Parallel()

	path := writeAccountsFile(t, `[{"user_id": "alice", "id": "acc-1", "asset": "DOGE"}]`)

	_, err := LoadDirectory(context.Background(), path, asset.NewStaticCatalogue(nil), nil)
	assert.ErrorIs(t, err, asset.ErrUnknownAsset)
}

func TestLoadDirectoryRejectsIncompleteEntry(t *testing.T) {
	t.Parallel()

	path := writeAccountsFile(t, `[{"id": "acc-1", "asset": "BTC"}]`)

	_, err := LoadDirectory(context.Background(), path, asset.NewStaticCatalogue(nil), nil)
	assert.Error(t, err)
}

func TestLoadDirectoryMissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadDirectory(context.Background(), "/does/not/exist.json", asset.NewStaticCatalogue(nil), nil)
	assert.Error(t, err)
}
