package submit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/traversefi/traverse/internal/asset"
	"github.com/traversefi/traverse/internal/engine"
	"github.com/traversefi/traverse/pkg/config"
	"github.com/traversefi/traverse/pkg/logging"
)

var broadcastTopic = "onchain.broadcast"

// Broadcaster hands signed on-chain transactions to the broadcast
// pipeline. The transaction hash is the digest of the signed payload;
// node submission happens downstream of the topic.
type Broadcaster struct {
	producer *kafka.Producer
	logger   *logging.Logger
}

// NewBroadcaster creates a Kafka-backed broadcaster.
func NewBroadcaster(cfg *config.Config, logger *logging.Logger) (*Broadcaster, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Kafka.Brokers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return &Broadcaster{producer: producer, logger: logger}, nil
}

// Broadcast publishes the signed transaction and returns its hash.
func (b *Broadcaster) Broadcast(ctx context.Context, a asset.Asset, signedTx []byte) (string, error) {
	digest := sha256.Sum256(signedTx)
	hash := hex.EncodeToString(digest[:])

	delivery := make(chan kafka.Event, 1)
	err := b.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &broadcastTopic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(hash),
		Value: signedTx,
		Headers: []kafka.Header{
			{Key: "asset", Value: []byte(a.Currency.Code)},
		},
	}, delivery)
	if err != nil {
		return "", fmt.Errorf("failed to produce signed transaction: %w", err)
	}

	select {
	case ev := <-delivery:
		if m, ok := ev.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			return "", fmt.Errorf("signed transaction not delivered: %w", m.TopicPartition.Error)
		}
	case <-ctx.Done():
		return "", ctx.Err()
	}

	b.logger.Info("broadcast signed transaction", "hash", hash, "asset", a.Currency.Code)
	return hash, nil
}

// Close flushes and closes the producer.
func (b *Broadcaster) Close() {
	b.producer.Flush(15 * 1000)
	b.producer.Close()
}

var _ engine.Broadcaster = (*Broadcaster)(nil)
