package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/segmentio/kafka-go"

	sharedDomain "github.com/davicafu/triplab/internal/shared/domain"
)

// KafkaPublisher publica mensajes ya serializados. El writer no lleva topic
// fijo: cada mensaje indica el suyo, así el relay de outbox y el replay de
// dead letters comparten el mismo adapter.
type KafkaPublisher struct {
	writer *kafka.Writer
	log    *zap.Logger
}

func NewKafkaPublisher(writer *kafka.Writer, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, log: log}
}

func (p *KafkaPublisher) Publish(ctx context.Context, topic string, key string, payload []byte) error {
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error("Error publishing to Kafka",
			zap.String("topic", topic),
			zap.String("key", key),
			zap.Error(err),
		)
		return err
	}

	p.log.Debug("Event published successfully", zap.String("topic", topic), zap.String("key", key))
	return nil
}

// Verificación estática
var _ sharedDomain.EventPublisher = (*KafkaPublisher)(nil)
