// Package quotes implements the Redis-backed quote service used by the
// trading rails. A locked quote is a price frozen for a short window:
// it lives in Redis under a TTL matching its expiry and its ID is
// self-authenticating via an HMAC token.
package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/traversefi/traverse/internal/asset"
	"github.com/traversefi/traverse/internal/engine"
	"github.com/traversefi/traverse/internal/money"
	"github.com/traversefi/traverse/pkg/config"
)

const (
	quotePrefix     = "quote:"        // individual locked quotes
	ratePrefix      = "rate:"         // current rates, rate:<FROM>:<TO>
	rateHistPrefix  = "rate:history:" // historic rates, sorted set by unix time
	processingFeeBp = 75              // processing fee in basis points
)

// RedisQuotes locks and releases quotes against Redis. It also serves
// as the catalogue's rate source and the engines' clock.
type RedisQuotes struct {
	client *redis.Client
	signer *TokenSigner
	ttl    time.Duration
}

// NewRedisQuotes creates the quote service. The auth secret signs quote
// tokens; it must be at least 32 bytes.
func NewRedisQuotes(cfg *config.Config) (*RedisQuotes, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if _, err := client.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	signer, err := NewTokenSigner([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, err
	}

	return &RedisQuotes{
		client: client,
		signer: signer,
		ttl:    cfg.Transfer.QuoteTTL,
	}, nil
}

// Close closes the Redis connection.
func (q *RedisQuotes) Close() error {
	return q.client.Close()
}

// Ping reports Redis reachability.
func (q *RedisQuotes) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Now returns the current time.
func (q *RedisQuotes) Now() time.Time {
	return time.Now()
}

// Lock freezes the current rate for the quote window and stores the
// quote under a TTL. The quote ID carries an HMAC token binding it to
// its expiry, so a redeemer can verify it without a lookup.
func (q *RedisQuotes) Lock(ctx context.Context, amount money.Money, to money.Currency) (engine.Quote, error) {
	rawRate, err := q.Rate(ctx, amount.Currency, to)
	if err != nil {
		return engine.Quote{}, err
	}

	rate := asset.ExchangeRate{
		From: amount.Currency,
		To:   to,
		Rate: rawRate,
		AsOf: time.Now(),
	}
	resultsIn, err := rate.Convert(amount)
	if err != nil {
		return engine.Quote{}, err
	}

	fee := money.New(amount.MinorUnits*processingFeeBp/10000, amount.Currency)
	expiresAt := time.Now().Add(q.ttl)

	id := uuid.New().String()
	quote := engine.Quote{
		ID:        q.signer.Token(id, expiresAt),
		Rate:      rate,
		ResultsIn: resultsIn,
		Fee:       fee,
		ExpiresAt: expiresAt,
	}

	payload, err := json.Marshal(quote)
	if err != nil {
		return engine.Quote{}, fmt.Errorf("failed to marshal quote: %w", err)
	}
	if err := q.client.Set(ctx, quotePrefix+id, payload, q.ttl).Err(); err != nil {
		return engine.Quote{}, fmt.Errorf("failed to store quote: %w", err)
	}

	return quote, nil
}

// Release abandons a locked quote. Releasing an expired or unknown
// quote is not an error.
func (q *RedisQuotes) Release(ctx context.Context, quoteID string) error {
	id, _, err := q.signer.Parse(quoteID)
	if err != nil {
		return err
	}
	return q.client.Del(ctx, quotePrefix+id).Err()
}

// Redeem verifies a quote token and returns the stored quote. Expired
// and tampered tokens fail; a successful redeem consumes the quote.
func (q *RedisQuotes) Redeem(ctx context.Context, quoteID string) (engine.Quote, error) {
	id, expiresAt, err := q.signer.Parse(quoteID)
	if err != nil {
		return engine.Quote{}, err
	}
	if err := q.signer.Verify(quoteID, id, expiresAt); err != nil {
		return engine.Quote{}, err
	}

	payload, err := q.client.Get(ctx, quotePrefix+id).Result()
	if err == redis.Nil {
		return engine.Quote{}, ErrExpiredToken
	} else if err != nil {
		return engine.Quote{}, fmt.Errorf("failed to load quote: %w", err)
	}

	var quote engine.Quote
	if err := json.Unmarshal([]byte(payload), &quote); err != nil {
		return engine.Quote{}, fmt.Errorf("failed to unmarshal quote: %w", err)
	}

	if err := q.client.Del(ctx, quotePrefix+id).Err(); err != nil {
		return engine.Quote{}, fmt.Errorf("failed to consume quote: %w", err)
	}
	return quote, nil
}

// Rate returns the current rate between two currencies.
func (q *RedisQuotes) Rate(ctx context.Context, from, to money.Currency) (float64, error) {
	if from.Equal(to) {
		return 1, nil
	}

	val, err := q.client.Get(ctx, rateKey(from, to)).Result()
	if err == redis.Nil {
		// Try the inverse pair.
		inv, invErr := q.client.Get(ctx, rateKey(to, from)).Result()
		if invErr != nil {
			return 0, fmt.Errorf("%w: %s->%s", asset.ErrNoRate, from, to)
		}
		rate, parseErr := strconv.ParseFloat(inv, 64)
		if parseErr != nil || rate == 0 {
			return 0, fmt.Errorf("%w: %s->%s", asset.ErrNoRate, from, to)
		}
		return 1 / rate, nil
	} else if err != nil {
		return 0, fmt.Errorf("failed to read rate: %w", err)
	}

	rate, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid stored rate %q: %w", val, err)
	}
	return rate, nil
}

// RateAt returns the most recent rate observed at or before the given
// time.
func (q *RedisQuotes) RateAt(ctx context.Context, from, to money.Currency, at time.Time) (float64, error) {
	vals, err := q.client.ZRevRangeByScore(ctx, rateHistKey(from, to), &redis.ZRangeBy{
		Min:    "-inf",
		Max:    strconv.FormatInt(at.Unix(), 10),
		Count:  1,
		Offset: 0,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read rate history: %w", err)
	}
	if len(vals) == 0 {
		return 0, fmt.Errorf("%w: %s->%s at %s", asset.ErrNoRate, from, to, at.Format(time.RFC3339))
	}

	// History members are "<rate>@<unix>" to keep equal rates distinct.
	var rate float64
	if _, err := fmt.Sscanf(vals[0], "%f", &rate); err != nil {
		return 0, fmt.Errorf("invalid history entry %q: %w", vals[0], err)
	}
	return rate, nil
}

// PublishRate stores the current rate and appends it to the history.
func (q *RedisQuotes) PublishRate(ctx context.Context, from, to money.Currency, rate float64) error {
	now := time.Now().Unix()
	pipe := q.client.Pipeline()
	pipe.Set(ctx, rateKey(from, to), strconv.FormatFloat(rate, 'f', -1, 64), 0)
	pipe.ZAdd(ctx, rateHistKey(from, to), &redis.Z{
		Score:  float64(now),
		Member: fmt.Sprintf("%s@%d", strconv.FormatFloat(rate, 'f', -1, 64), now),
	})
	_, err := pipe.Exec(ctx)
	return err
}

func rateKey(from, to money.Currency) string {
	return ratePrefix + from.Code + ":" + to.Code
}

func rateHistKey(from, to money.Currency) string {
	return rateHistPrefix + from.Code + ":" + to.Code
}

var (
	_ engine.QuoteService = (*RedisQuotes)(nil)
	_ engine.Clock        = (*RedisQuotes)(nil)
	_ asset.RateSource    = (*RedisQuotes)(nil)
)
