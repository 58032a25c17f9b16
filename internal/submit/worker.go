package submit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/traversefi/traverse/internal/engine"
	"github.com/traversefi/traverse/internal/storage"
	"github.com/traversefi/traverse/pkg/config"
	"github.com/traversefi/traverse/pkg/logging"
)

const (
	// Consumer group ID
	consumerGroupID = "transfer_settlement_group"
)

// Worker consumes executed transfers and settles them against the custody
// ledger, publishing the outcome.
type Worker struct {
	ctx      context.Context
	consumer *kafka.Consumer
	producer *kafka.Producer
	custody  *storage.RedisCustody
	batcher  *Batcher
	logger   *logging.Logger
}

// NewWorker creates a settlement worker. A nil batcher disables
// finality checkpoints.
func NewWorker(ctx context.Context, cfg *config.Config, custody *storage.RedisCustody, batcher *Batcher, logger *logging.Logger) (*Worker, error) {
	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Kafka.Brokers,
		"group.id":          consumerGroupID,
		"auto.offset.reset": "earliest",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Kafka.Brokers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return &Worker{
		ctx:      ctx,
		consumer: consumer,
		producer: producer,
		custody:  custody,
		batcher:  batcher,
		logger:   logger,
	}, nil
}

// Start consumes the settlement topic until the context is cancelled.
func (w *Worker) Start() error {
	if err := w.consumer.SubscribeTopics([]string{transfersTopic}, nil); err != nil {
		return fmt.Errorf("failed to subscribe to topics: %w", err)
	}

	w.logger.Info("settlement worker started, waiting for transfers")

	for {
		select {
		case <-w.ctx.Done():
			w.logger.Info("shutting down settlement worker")
			w.consumer.Close()
			w.producer.Flush(15 * 1000)
			w.producer.Close()
			return nil

		default:
			msg, err := w.consumer.ReadMessage(100 * time.Millisecond)
			if err != nil {
				if kerr, ok := err.(kafka.Error); ok && kerr.Code() == kafka.ErrTimedOut {
					continue
				}
				w.logger.Error("error reading message", "error", err)
				continue
			}

			w.settle(msg)
		}
	}
}

// settle applies one transfer record to the custody ledger.
func (w *Worker) settle(msg *kafka.Message) {
	var rec engine.SubmitRecord
	if err := json.Unmarshal(msg.Value, &rec); err != nil {
		w.logger.Error("error deserializing transfer record", "error", err)
		return
	}

	w.logger.Info("settling transfer",
		"id", rec.ID, "action", string(rec.Action), "amount", rec.Amount.String())

	if err := w.custody.ApplyTransfer(w.ctx, &rec); err != nil {
		w.logger.Error("transfer settlement failed", "id", rec.ID, "error", err)
		w.publish(failedTopic, &rec)
		return
	}

	if err := w.custody.StoreTransfer(w.ctx, &rec); err != nil {
		// The balances moved; the record is best effort.
		w.logger.Error("error storing settled transfer", "id", rec.ID, "error", err)
	}

	if w.batcher != nil {
		w.batcher.Add(rec.ID)
	}

	w.publish(confirmedTopic, &rec)
	w.logger.Info("transfer settled", "id", rec.ID)
}

// publish emits the settlement outcome.
func (w *Worker) publish(topic string, rec *engine.SubmitRecord) {
	payload, err := json.Marshal(rec)
	if err != nil {
		w.logger.Error("error serializing settlement outcome", "error", err)
		return
	}

	err = w.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(rec.ID),
		Value: payload,
	}, nil)
	if err != nil {
		w.logger.Error("error publishing settlement outcome", "topic", topic, "error", err)
	}
}
