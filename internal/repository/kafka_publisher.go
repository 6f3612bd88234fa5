package repository

import (
	"context"

	"TrendEngine/internal/domain/models"
	pkgkafka "TrendEngine/pkg/kafka"
)

// KafkaEventPublisher emits signal and trade events to Kafka, keyed by
// symbol so per-symbol ordering is preserved.
type KafkaEventPublisher struct {
	producer    *pkgkafka.Producer
	signalTopic string
	tradeTopic  string
}

// NewKafkaEventPublisher creates the publisher.
func NewKafkaEventPublisher(producer *pkgkafka.Producer, signalTopic, tradeTopic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{
		producer:    producer,
		signalTopic: signalTopic,
		tradeTopic:  tradeTopic,
	}
}

// PublishSignal emits one pipeline decision.
func (p *KafkaEventPublisher) PublishSignal(ctx context.Context, ev *models.SignalEvent) error {
	return p.producer.Publish(ctx, p.signalTopic, []byte(ev.Symbol), ev)
}

// PublishTrade emits one closed trade.
func (p *KafkaEventPublisher) PublishTrade(ctx context.Context, t *models.TradeEntry) error {
	return p.producer.Publish(ctx, p.tradeTopic, []byte(t.Symbol), t)
}

// Close flushes and closes the producer.
func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NoopEventPublisher discards events. Used when Kafka is disabled and in
// backtests.
type NoopEventPublisher struct{}

func (NoopEventPublisher) PublishSignal(ctx context.Context, ev *models.SignalEvent) error { return nil }
func (NoopEventPublisher) PublishTrade(ctx context.Context, t *models.TradeEntry) error    { return nil }
func (NoopEventPublisher) Close() error                                                    { return nil }
