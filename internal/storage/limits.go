// internal/storage/limits.go
package storage

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"

	"github.com/traversefi/traverse/internal/engine"
	"github.com/traversefi/traverse/internal/money"
)

const limitsKeyPrefix = "limits:"

// RedisLimits resolves per-action transfer limits from Redis. Limits
// are stored per (action, currency) as a hash of minor-unit bounds;
// absent fields mean the bound does not apply.
type RedisLimits struct {
	Client *redis.Client
}

// NewRedisLimits wraps an existing Redis client.
func NewRedisLimits(client *redis.Client) *RedisLimits {
	return &RedisLimits{Client: client}
}

// Limits returns the transfer bounds for one account and action.
func (rl *RedisLimits) Limits(ctx context.Context, accountID string, action engine.Action, currency money.Currency) (engine.LimitsResult, error) {
	fields, err := rl.Client.HGetAll(ctx, limitsKey(action, currency)).Result()
	if err != nil {
		return engine.LimitsResult{}, fmt.Errorf("failed to read limits: %w", err)
	}

	result := engine.LimitsResult{
		Min:              parseBound(fields["min"], currency),
		Max:              parseBound(fields["max"], currency),
		SilverTierMax:    parseBound(fields["silver_max"], currency),
		GoldTierMax:      parseBound(fields["gold_max"], currency),
		PaymentMethodMax: parseBound(fields["payment_method_max"], currency),
		UpgradeHint:      fields["upgrade_hint"],
	}
	return result, nil
}

// SetLimits stores the bounds for one action and currency. Nil bounds
// clear the corresponding field.
func (rl *RedisLimits) SetLimits(ctx context.Context, action engine.Action, currency money.Currency, limits engine.LimitsResult) error {
	key := limitsKey(action, currency)

	pipe := rl.Client.Pipeline()
	pipe.Del(ctx, key)
	fields := map[string]interface{}{}
	setBound(fields, "min", limits.Min)
	setBound(fields, "max", limits.Max)
	setBound(fields, "silver_max", limits.SilverTierMax)
	setBound(fields, "gold_max", limits.GoldTierMax)
	setBound(fields, "payment_method_max", limits.PaymentMethodMax)
	if limits.UpgradeHint != "" {
		fields["upgrade_hint"] = limits.UpgradeHint
	}
	if len(fields) > 0 {
		pipe.HSet(ctx, key, fields)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func parseBound(raw string, currency money.Currency) *money.Money {
	if raw == "" {
		return nil
	}
	units, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	m := money.New(units, currency)
	return &m
}

func setBound(fields map[string]interface{}, name string, bound *money.Money) {
	if bound != nil {
		fields[name] = bound.MinorUnits
	}
}

func limitsKey(action engine.Action, currency money.Currency) string {
	return limitsKeyPrefix + string(action) + ":" + currency.Code
}

var _ engine.LimitsService = (*RedisLimits)(nil)
