package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"ms-registration/internal/logger"
)

// MessageReader is the part of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler processes one message. A returned error is logged and the message
// is still committed.
type Handler func(ctx context.Context, msg kafka.Message) error

type Consumer struct {
	Reader MessageReader
	Logger *logger.Logger
}

// NewConsumer creates a group consumer over the given topics.
func NewConsumer(brokers, topics []string, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		GroupTopics: topics,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
	})
	if log == nil {
		log = logger.Nop()
	}
	return &Consumer{Reader: reader, Logger: log}
}

// Start consumes until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context, handle Handler) error {
	c.Logger.Info("KAFKA", "Kafka consumer started")
	for {
		msg, err := c.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.Logger.Info("KAFKA", "Kafka consumer stopped")
				return nil
			}
			c.Logger.Error("KAFKA", fmt.Sprintf("Error reading message: %v", err))
			return err
		}

		if err := handle(ctx, msg); err != nil {
			c.Logger.LogKafka("HANDLE_FAILED", msg.Topic, fmt.Sprintf("offset=%d key=%s: %v", msg.Offset, msg.Key, err))
		}
		if err := c.Reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.Logger.Error("KAFKA", fmt.Sprintf("Failed to commit offset %d on %s: %v", msg.Offset, msg.Topic, err))
		}
	}
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.Reader.Close()
}
