// internal/storage/fees.go
package storage

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"

	"github.com/traversefi/traverse/internal/asset"
	"github.com/traversefi/traverse/internal/engine"
	"github.com/traversefi/traverse/internal/money"
)

const feesKeyPrefix = "fees:"

// RedisFees estimates network fees from per-asset fee parameters kept
// in Redis. Each asset has a flat base fee per level plus an optional
// amount-proportional component in basis points.
type RedisFees struct {
	Client *redis.Client
}

// NewRedisFees wraps an existing Redis client.
func NewRedisFees(client *redis.Client) *RedisFees {
	return &RedisFees{Client: client}
}

// Estimate quotes the fee per selectable level for an on-chain
// transfer. Fees are denominated in the asset's fee currency.
func (rf *RedisFees) Estimate(ctx context.Context, a asset.Asset, amount money.Money) (engine.FeeEstimate, error) {
	fields, err := rf.Client.HGetAll(ctx, feesKey(a)).Result()
	if err != nil {
		return engine.FeeEstimate{}, fmt.Errorf("failed to read fee parameters: %w", err)
	}

	regular := parseUnits(fields["regular"])
	priority := parseUnits(fields["priority"])
	bps := parseUnits(fields["bps"])

	// The proportional part only applies when the amount shares the fee
	// currency; token amounts pay a flat fee in the chain's native asset.
	var proportional int64
	if bps > 0 && amount.Currency.Equal(a.FeeCurrency) {
		proportional = amount.MinorUnits * bps / 10000
	}

	return engine.FeeEstimate{
		Regular:  money.New(regular+proportional, a.FeeCurrency),
		Priority: money.New(priority+proportional, a.FeeCurrency),
	}, nil
}

// SetFeeParameters stores an asset's fee parameters.
func (rf *RedisFees) SetFeeParameters(ctx context.Context, a asset.Asset, regular, priority, bps int64) error {
	return rf.Client.HSet(ctx, feesKey(a), map[string]interface{}{
		"regular":  regular,
		"priority": priority,
		"bps":      bps,
	}).Err()
}

func parseUnits(raw string) int64 {
	if raw == "" {
		return 0
	}
	units, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return units
}

func feesKey(a asset.Asset) string {
	return feesKeyPrefix + a.Currency.Code
}

var _ engine.FeeEstimator = (*RedisFees)(nil)
