package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"certifier/internal/platform/kafka/producer"
)

// Producer is the subset of the Kafka producer the sink uses.
type Producer interface {
	ProduceAsync(msg *producer.Message) error
}

// KafkaSink streams entries to a topic keyed by tenant, so a consumer sees
// one tenant's activity in order.
type KafkaSink struct {
	producer Producer
	topic    string
}

func NewKafkaSink(p Producer, topic string) *KafkaSink {
	return &KafkaSink{producer: p, topic: topic}
}

func (s *KafkaSink) Publish(_ context.Context, e *Entry) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal activity entry: %w", err)
	}
	return s.producer.ProduceAsync(&producer.Message{
		Topic: s.topic,
		Key:   []byte(e.TenantID.String()),
		Value: value,
		Headers: map[string]string{
			"kind":    string(e.Kind),
			"version": "1",
		},
	})
}
