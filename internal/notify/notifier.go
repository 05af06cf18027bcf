// Package notify delivers attendee notifications: published to Kafka by the
// API, consumed by the worker and sent as plain-text email.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ms-registration/internal/config"
	"ms-registration/internal/kafka"
	"ms-registration/internal/logger"
	"ms-registration/internal/models"
)

const publishTimeout = 5 * time.Second

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, v interface{}) error
}

// KafkaNotifier publishes each notification to the topic for its family.
type KafkaNotifier struct {
	Publisher Publisher
	Topics    config.TopicConfig
	Logger    *logger.Logger
}

func NewKafkaNotifier(p Publisher, topics config.TopicConfig, log *logger.Logger) *KafkaNotifier {
	if log == nil {
		log = logger.Nop()
	}
	return &KafkaNotifier{Publisher: p, Topics: topics, Logger: log}
}

func (k *KafkaNotifier) TopicFor(t models.NotificationType) string {
	if strings.HasPrefix(string(t), "waitlist.") {
		return k.Topics.Waitlist
	}
	return k.Topics.Registrations
}

// Notify runs after the caller's transaction committed, so it must outlive a
// cancelled request context.
func (k *KafkaNotifier) Notify(ctx context.Context, n models.Notification) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	topic := k.TopicFor(n.Type)
	if err := k.Publisher.PublishJSON(ctx, topic, n.Key(), n); err != nil {
		k.Logger.Error("NOTIFY", fmt.Sprintf("Failed to publish %s for %s: %v", n.Type, n.Key(), err))
	}
}

// LogNotifier only logs. Used when Kafka is disabled.
type LogNotifier struct {
	Logger *logger.Logger
}

func (l LogNotifier) Notify(_ context.Context, n models.Notification) {
	l.Logger.Info("NOTIFY", fmt.Sprintf("%s event=%s key=%s to=%s", n.Type, n.EventID, n.Key(), n.AttendeeEmail))
}

type Notifier interface {
	Notify(ctx context.Context, n models.Notification)
}

// Multi fans a notification out to several notifiers in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n models.Notification) {
	for _, notifier := range m {
		notifier.Notify(ctx, n)
	}
}

// FromConfig builds the notifier the API processes use: Kafka when enabled,
// otherwise log-only. The returned close func flushes the producer.
func FromConfig(ctx context.Context, cfg config.KafkaConfig, log *logger.Logger) (Notifier, func() error) {
	if !cfg.Enabled {
		log.Warn("KAFKA", "Kafka disabled, notifications are only logged")
		return LogNotifier{Logger: log}, func() error { return nil }
	}
	topics := []string{cfg.Topics.Registrations, cfg.Topics.Waitlist}
	if err := kafka.EnsureTopicsExist(ctx, cfg.Brokers, topics, log); err != nil {
		log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
	}
	producer := kafka.NewProducer(cfg.Brokers, log)
	log.Info("KAFKA", "Kafka producer initialized successfully")
	return NewKafkaNotifier(producer, cfg.Topics, log), producer.Close
}
