package repository

import (
	"context"

	"DepthWatch/internal/domain/models"
	domrepo "DepthWatch/internal/domain/repository"
	pkgkafka "DepthWatch/pkg/kafka"
)

// KafkaPublisher implements DetectionPublisher for Kafka. Messages are
// keyed by symbol so per-symbol ordering survives partitioning.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) domrepo.DetectionPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) PublishDetection(ctx context.Context, snap *models.DetectionSnapshot) error {
	return p.producer.Publish(ctx, p.topic, []byte(snap.Symbol), snap)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
