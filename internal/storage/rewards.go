// internal/storage/rewards.go
package storage

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"

	"github.com/traversefi/traverse/internal/engine"
	"github.com/traversefi/traverse/internal/money"
)

const (
	rewardsKeyPrefix      = "rewards:"
	eligibilityBlockedKey = "eligibility:blocked"
	eligibilityReasonsKey = "eligibility:reasons"
)

// RedisRewards resolves rewards terms and feature eligibility from
// Redis. Eligibility is deny-listed: accounts are eligible unless
// explicitly blocked for an action.
type RedisRewards struct {
	Client *redis.Client
}

// NewRedisRewards wraps an existing Redis client.
func NewRedisRewards(client *redis.Client) *RedisRewards {
	return &RedisRewards{Client: client}
}

// Terms returns the conditions attached to a rewards position.
func (rr *RedisRewards) Terms(ctx context.Context, accountID string, currency money.Currency) (engine.RewardsTerms, error) {
	fields, err := rr.Client.HGetAll(ctx, rewardsKeyPrefix+currency.Code).Result()
	if err != nil {
		return engine.RewardsTerms{}, fmt.Errorf("failed to read rewards terms: %w", err)
	}
	if len(fields) == 0 {
		return engine.RewardsTerms{}, fmt.Errorf("no rewards terms for %s", currency.Code)
	}

	lockDays, _ := strconv.Atoi(fields["lock_days"])
	rate, _ := strconv.ParseFloat(fields["annual_rate_pct"], 64)
	return engine.RewardsTerms{
		LockDays:      lockDays,
		AnnualRatePct: rate,
	}, nil
}

// SetTerms stores the rewards terms for a currency.
func (rr *RedisRewards) SetTerms(ctx context.Context, currency money.Currency, terms engine.RewardsTerms) error {
	return rr.Client.HSet(ctx, rewardsKeyPrefix+currency.Code, map[string]interface{}{
		"lock_days":       terms.LockDays,
		"annual_rate_pct": terms.AnnualRatePct,
	}).Err()
}

// Check reports whether an account may use an action.
func (rr *RedisRewards) Check(ctx context.Context, accountID string, action engine.Action) (engine.Eligibility, error) {
	member := blockMember(accountID, action)
	blocked, err := rr.Client.SIsMember(ctx, eligibilityBlockedKey, member).Result()
	if err != nil {
		return engine.Eligibility{}, fmt.Errorf("failed to check eligibility: %w", err)
	}
	if !blocked {
		return engine.Eligibility{Granted: true}, nil
	}

	reason, err := rr.Client.HGet(ctx, eligibilityReasonsKey, member).Result()
	if err == redis.Nil {
		reason = "this feature is not available for your account"
	} else if err != nil {
		return engine.Eligibility{}, fmt.Errorf("failed to read eligibility reason: %w", err)
	}
	return engine.Eligibility{Granted: false, Reason: reason}, nil
}

// Block denies an account an action, with a user-facing reason.
func (rr *RedisRewards) Block(ctx context.Context, accountID string, action engine.Action, reason string) error {
	member := blockMember(accountID, action)
	pipe := rr.Client.Pipeline()
	pipe.SAdd(ctx, eligibilityBlockedKey, member)
	if reason != "" {
		pipe.HSet(ctx, eligibilityReasonsKey, member, reason)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Unblock restores an account's access to an action.
func (rr *RedisRewards) Unblock(ctx context.Context, accountID string, action engine.Action) error {
	member := blockMember(accountID, action)
	pipe := rr.Client.Pipeline()
	pipe.SRem(ctx, eligibilityBlockedKey, member)
	pipe.HDel(ctx, eligibilityReasonsKey, member)
	_, err := pipe.Exec(ctx)
	return err
}

func blockMember(accountID string, action engine.Action) string {
	return accountID + ":" + string(action)
}

var (
	_ engine.RewardsTermsService = (*RedisRewards)(nil)
	_ engine.EligibilityChecker  = (*RedisRewards)(nil)
)
