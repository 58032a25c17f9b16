package submit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Common errors
var (
	ErrEmptyBatch = errors.New("empty batch")
)

const (
	batchKeyPrefix = "settlement:batch:"
	batchIndexKey  = "settlement:batches"
	latestBatchKey = "settlement:latest"
)

// Batch is one finality checkpoint: a digest-chained group of settled
// transfer IDs. Each batch's digest covers its predecessor's, so the
// chain detects any rewrite of settled history.
type Batch struct {
	ID          string   `json:"id"`
	Transfers   []string `json:"transfers"`
	Digest      string   `json:"digest"`
	PrevDigest  string   `json:"prev_digest"`
	PrevBatchID string   `json:"prev_batch_id"`
	SettledAt   int64    `json:"settled_at"`
}

// Batcher accumulates settled transfer IDs and periodically seals them
// into digest-chained batches stored in Redis.
type Batcher struct {
	client   *redis.Client
	interval time.Duration

	mu         sync.Mutex
	pending    []string
	prevID     string
	prevDigest string
	loaded     bool
}

// NewBatcher creates a finality batcher on an existing Redis client.
func NewBatcher(client *redis.Client, interval time.Duration) *Batcher {
	return &Batcher{client: client, interval: interval}
}

// Add queues a settled transfer for the next batch.
func (b *Batcher) Add(transferID string) {
	b.mu.Lock()
	b.pending = append(b.pending, transferID)
	b.mu.Unlock()
}

// Run seals batches on the configured interval until the context is
// cancelled, then seals one final batch.
func (b *Batcher) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sealCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_, _ = b.Seal(sealCtx)
			cancel()
			return
		case <-ticker.C:
			if _, err := b.Seal(ctx); err != nil && !errors.Is(err, ErrEmptyBatch) {
				// Transfers stay queued; the next tick retries them.
				continue
			}
		}
	}
}

// Seal writes the pending transfers as one batch and advances the
// chain head. Sealing with nothing pending returns ErrEmptyBatch.
func (b *Batcher) Seal(ctx context.Context) (*Batch, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.loadHead(ctx); err != nil {
		return nil, err
	}
	if len(b.pending) == 0 {
		return nil, ErrEmptyBatch
	}

	transfers := make([]string, len(b.pending))
	copy(transfers, b.pending)

	batch := &Batch{
		ID:          uuid.New().String(),
		Transfers:   transfers,
		PrevDigest:  b.prevDigest,
		PrevBatchID: b.prevID,
		SettledAt:   time.Now().Unix(),
	}
	batch.Digest = chainDigest(batch.PrevDigest, transfers)

	payload, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch: %w", err)
	}

	pipe := b.client.Pipeline()
	pipe.Set(ctx, batchKeyPrefix+batch.ID, payload, 0)
	pipe.ZAdd(ctx, batchIndexKey, &redis.Z{Score: float64(batch.SettledAt), Member: batch.ID})
	pipe.Set(ctx, latestBatchKey, batch.ID, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to store batch: %w", err)
	}

	b.pending = b.pending[:0]
	b.prevID = batch.ID
	b.prevDigest = batch.Digest
	return batch, nil
}

// Batch returns a sealed batch by ID.
func (b *Batcher) Batch(ctx context.Context, id string) (*Batch, error) {
	payload, err := b.client.Get(ctx, batchKeyPrefix+id).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("batch %s not found", id)
	} else if err != nil {
		return nil, fmt.Errorf("failed to load batch: %w", err)
	}

	var batch Batch
	if err := json.Unmarshal([]byte(payload), &batch); err != nil {
		return nil, fmt.Errorf("failed to unmarshal batch: %w", err)
	}
	return &batch, nil
}

// Verify recomputes a batch's digest against its contents.
func (b *Batcher) Verify(batch *Batch) error {
	if batch == nil {
		return errors.New("batch cannot be nil")
	}
	if chainDigest(batch.PrevDigest, batch.Transfers) != batch.Digest {
		return errors.New("batch digest mismatch")
	}
	return nil
}

// loadHead restores the chain head after a restart. Callers hold mu.
func (b *Batcher) loadHead(ctx context.Context) error {
	if b.loaded {
		return nil
	}

	id, err := b.client.Get(ctx, latestBatchKey).Result()
	if err == redis.Nil {
		b.loaded = true
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to load chain head: %w", err)
	}

	head, err := b.Batch(ctx, id)
	if err != nil {
		return err
	}
	b.prevID = head.ID
	b.prevDigest = head.Digest
	b.loaded = true
	return nil
}

func chainDigest(prevDigest string, transfers []string) string {
	h := sha256.New()
	h.Write([]byte(prevDigest))
	for _, id := range transfers {
		h.Write([]byte(id))
	}
	return hex.EncodeToString(h.Sum(nil))
}
