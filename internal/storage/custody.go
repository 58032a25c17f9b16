// internal/storage/custody.go
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/traversefi/traverse/internal/engine"
	"github.com/traversefi/traverse/internal/money"
)

const (
	// Balance key prefix for custodial account balances
	balanceKeyPrefix = "balance:"

	// Transfer key prefix for settled transfer records
	transferKeyPrefix = "transfer:"

	// Prefix for per-account open order counts
	pendingOrdersKeyPrefix = "orders:pending:"

	// Prefix for per-account in-flight transfer flags
	inFlightKeyPrefix = "inflight:"
)

// ErrInsufficientCustodyBalance is returned when the atomic transfer
// script finds the source short.
var ErrInsufficientCustodyBalance = errors.New("insufficient custody balance")

// RedisCustody stores custodial balances and settled transfer records.
// Balances are kept as integer minor units so the Lua transfer script can
// do exact arithmetic.
type RedisCustody struct {
	Client *redis.Client

	// FeeCollector is the account credited with transfer fees. Empty
	// selects the default collector account.
	FeeCollector string
}

// NewRedisCustody connects to Redis and verifies the connection.
func NewRedisCustody(redisAddr string) (*RedisCustody, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
		DB:   0,
	})

	if _, err := client.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCustody{Client: client}, nil
}

func (rc *RedisCustody) feeAccount() string {
	if rc.FeeCollector != "" {
		return rc.FeeCollector
	}
	return "fee_collector"
}

// Close closes the Redis connection.
func (rc *RedisCustody) Close() error {
	return rc.Client.Close()
}

// Ping reports Redis reachability.
func (rc *RedisCustody) Ping(ctx context.Context) error {
	return rc.Client.Ping(ctx).Err()
}

// FeeBalance returns an account's balance in the fee-paying currency.
// Used when fees are charged in a different currency than the amount.
func (rc *RedisCustody) FeeBalance(ctx context.Context, accountID string, feeCurrency money.Currency) (money.Money, error) {
	return rc.GetBalance(ctx, accountID, feeCurrency)
}

// GetBalance returns an account's custodial balance in the given currency.
// Unknown accounts have a zero balance.
func (rc *RedisCustody) GetBalance(ctx context.Context, accountID string, currency money.Currency) (money.Money, error) {
	units, err := rc.Client.Get(ctx, balanceKey(accountID, currency)).Int64()
	if err == redis.Nil {
		return money.Zero(currency), nil
	}
	if err != nil {
		return money.Money{}, err
	}
	return money.New(units, currency), nil
}

// SetBalance sets an account's custodial balance.
func (rc *RedisCustody) SetBalance(ctx context.Context, accountID string, amount money.Money) error {
	return rc.Client.Set(ctx, balanceKey(accountID, amount.Currency), amount.MinorUnits, 0).Err()
}

// ApplyTransfer settles a transfer record atomically: the source is
// debited amount plus fee, the target credited, and the fee accrued to
// the fee collector. Deposits skip the debit (funds arrive from the bank
// rail); withdrawals skip the credit.
func (rc *RedisCustody) ApplyTransfer(ctx context.Context, rec *engine.SubmitRecord) error {
	luaScript := redis.NewScript(`
		local sourceBalance = tonumber(redis.call("GET", KEYS[1]) or "0")
		local targetBalance = tonumber(redis.call("GET", KEYS[2]) or "0")
		local feeBalance = tonumber(redis.call("GET", KEYS[3]) or "0")
		local amount = tonumber(ARGV[1])
		local fee = tonumber(ARGV[2])
		local action = ARGV[3]

		if action == "DEPOSIT" then
			redis.call("SET", KEYS[2], targetBalance + amount)
			redis.call("SET", KEYS[3], feeBalance + fee)
			return 1
		end

		local totalDebit = amount + fee
		if sourceBalance < totalDebit then
			return 0
		end
		redis.call("SET", KEYS[1], sourceBalance - totalDebit)
		if action ~= "WITHDRAW" then
			redis.call("SET", KEYS[2], targetBalance + amount)
		end
		redis.call("SET", KEYS[3], feeBalance + fee)
		return 1
	`)

	sourceKey := balanceKey(rec.SourceAccount, rec.Amount.Currency)
	targetKey := balanceKey(rec.TargetAccount, rec.Amount.Currency)
	feeKey := balanceKey(rc.feeAccount(), rec.Fee.Currency)

	res, err := luaScript.Run(ctx, rc.Client,
		[]string{sourceKey, targetKey, feeKey},
		rec.Amount.MinorUnits, rec.Fee.MinorUnits, string(rec.Action)).Result()
	if err != nil {
		return fmt.Errorf("failed to apply transfer: %w", err)
	}

	if res.(int64) == 0 {
		return ErrInsufficientCustodyBalance
	}

	return nil
}

// StoreTransfer records a settled transfer and indexes it in the history
// of both accounts.
func (rc *RedisCustody) StoreTransfer(ctx context.Context, rec *engine.SubmitRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	if err := rc.Client.Set(ctx, transferKeyPrefix+rec.ID, payload, 0).Err(); err != nil {
		return err
	}

	score := float64(rec.Timestamp)
	if err := rc.Client.ZAdd(ctx, historyKey(rec.SourceAccount), &redis.Z{
		Score:  score,
		Member: rec.ID,
	}).Err(); err != nil {
		return err
	}

	if rec.TargetAccount != "" && rec.TargetAccount != rec.SourceAccount {
		if err := rc.Client.ZAdd(ctx, historyKey(rec.TargetAccount), &redis.Z{
			Score:  score,
			Member: rec.ID,
		}).Err(); err != nil {
			return err
		}
	}

	return nil
}

// GetTransfer retrieves a settled transfer by ID.
func (rc *RedisCustody) GetTransfer(ctx context.Context, id string) (*engine.SubmitRecord, error) {
	payload, err := rc.Client.Get(ctx, transferKeyPrefix+id).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("transfer not found: %s", id)
	}
	if err != nil {
		return nil, err
	}

	var rec engine.SubmitRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("failed to deserialize transfer: %w", err)
	}
	return &rec, nil
}

// AccountTransfers returns an account's transfer history, newest first.
func (rc *RedisCustody) AccountTransfers(ctx context.Context, accountID string, limit, offset int64) ([]*engine.SubmitRecord, error) {
	ids, err := rc.Client.ZRevRange(ctx, historyKey(accountID), offset, offset+limit-1).Result()
	if err != nil {
		return nil, err
	}

	records := make([]*engine.SubmitRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := rc.GetTransfer(ctx, id)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, nil
}

// PendingOrders counts the account's open orders.
func (rc *RedisCustody) PendingOrders(ctx context.Context, accountID string) (int, error) {
	n, err := rc.Client.Get(ctx, pendingOrdersKeyPrefix+accountID).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

// HasTransferInFlight reports an unsettled outgoing transfer.
func (rc *RedisCustody) HasTransferInFlight(ctx context.Context, accountID string) (bool, error) {
	n, err := rc.Client.Exists(ctx, inFlightKeyPrefix+accountID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkInFlight flags an outgoing transfer until it settles.
func (rc *RedisCustody) MarkInFlight(ctx context.Context, accountID, transferID string) error {
	return rc.Client.Set(ctx, inFlightKeyPrefix+accountID, transferID, 0).Err()
}

// ClearInFlight removes the in-flight flag after settlement.
func (rc *RedisCustody) ClearInFlight(ctx context.Context, accountID string) error {
	return rc.Client.Del(ctx, inFlightKeyPrefix+accountID).Err()
}

// Invalidate drops read-through cache keys so subsequent reads reflect a
// settled transfer.
func (rc *RedisCustody) Invalidate(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	return rc.Client.Del(ctx, keys...).Err()
}

func balanceKey(accountID string, currency money.Currency) string {
	return balanceKeyPrefix + accountID + ":" + currency.Code
}

func historyKey(accountID string) string {
	return "account:" + accountID + ":transfers"
}
