package account

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/traversefi/traverse/internal/asset"
)

// bootstrapEntry is one account in the directory bootstrap file.
type bootstrapEntry struct {
	UserID  string   `json:"user_id"`
	ID      string   `json:"id"`
	Label   string   `json:"label"`
	Asset   string   `json:"asset"`
	Tags    []string `json:"tags"`
	Address string   `json:"receive_address,omitempty"`
	Memo    string   `json:"receive_memo,omitempty"`
}

// LoadDirectory reads a JSON bootstrap file and registers its accounts,
// backed by the given balance source.
func LoadDirectory(ctx context.Context, path string, catalogue asset.Catalogue, source BalanceSource) (*Directory, error) {
	dir := NewDirectory()
	if path == "" {
		return dir, nil
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts file %s: %w", path, err)
	}

	var entries []bootstrapEntry
	if err := json.Unmarshal(payload, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse accounts file %s: %w", path, err)
	}

	for _, entry := range entries {
		if entry.UserID == "" || entry.ID == "" {
			return nil, fmt.Errorf("account entry missing user_id or id")
		}

		a, err := catalogue.Lookup(ctx, entry.Asset)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", entry.ID, err)
		}

		tags := make(Tags, 0, len(entry.Tags))
		for _, t := range entry.Tags {
			tags = append(tags, Tag(t))
		}

		dir.Register(entry.UserID, NewCustodialAccount(
			entry.ID,
			entry.Label,
			a,
			tags,
			ReceiveAddress{Address: entry.Address, Memo: entry.Memo},
			source,
		))
	}

	return dir, nil
}
