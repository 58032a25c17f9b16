// Package submit is the custodial settlement pipeline. Executed transfers
// are produced to Kafka; a worker consumes them, applies them to the
// custody ledger atomically, and publishes the outcome to the confirmed or
// failed topic. Engines on batched rails treat a successful produce as an
// acknowledged, unhashed result.
package submit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/traversefi/traverse/internal/engine"
	"github.com/traversefi/traverse/pkg/config"
	"github.com/traversefi/traverse/pkg/logging"
)

var (
	// Topic for executed transfers awaiting settlement
	transfersTopic = "transfers"

	// Topic for settled transfers (confirmation)
	confirmedTopic = "transfers.confirmed"

	// Topic for transfers the custody ledger rejected
	failedTopic = "transfers.failed"
)

// Submitter produces executed transfers to the settlement topic.
type Submitter struct {
	producer *kafka.Producer
	logger   *logging.Logger
}

// NewSubmitter creates a Kafka-backed submitter.
func NewSubmitter(cfg *config.Config, logger *logging.Logger) (*Submitter, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Kafka.Brokers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return &Submitter{producer: producer, logger: logger}, nil
}

// Submit publishes the transfer record and returns its ID as the
// acknowledgement.
func (s *Submitter) Submit(ctx context.Context, rec engine.SubmitRecord) (string, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to serialize transfer record: %w", err)
	}

	delivery := make(chan kafka.Event, 1)
	err = s.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &transfersTopic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(rec.ID),
		Value: payload,
	}, delivery)
	if err != nil {
		return "", fmt.Errorf("failed to produce transfer record: %w", err)
	}

	select {
	case ev := <-delivery:
		if m, ok := ev.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			return "", fmt.Errorf("transfer record not delivered: %w", m.TopicPartition.Error)
		}
	case <-ctx.Done():
		return "", ctx.Err()
	}

	return rec.ID, nil
}

// Close flushes and closes the producer.
func (s *Submitter) Close() {
	s.producer.Flush(15 * 1000)
	s.producer.Close()
}

var _ engine.Submitter = (*Submitter)(nil)
