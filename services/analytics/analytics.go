package analytics

import (
	"context"
	"encoding/json"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/zap"
)

// Event is the record published for every tracked analytics event.
type Event struct {
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
}

// KafkaSink publishes events to a single topic keyed by event name.
type KafkaSink struct {
	producer producer
	topic    string
	now      func() time.Time
}

func NewKafkaSink(p producer, topic string) *KafkaSink {
	return &KafkaSink{producer: p, topic: topic, now: time.Now}
}

func (s *KafkaSink) Track(ctx context.Context, event string, properties map[string]any) error {
	value, err := json.Marshal(Event{
		Name:       event,
		Properties: properties,
		OccurredAt: s.now().UTC(),
	})
	if err != nil {
		return err
	}

	return s.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &s.topic, Partition: kafka.PartitionAny},
		Key:            []byte(event),
		Value:          value,
	}, nil)
}

// drainDeliveryReports logs failed deliveries until events is closed.
func drainDeliveryReports(events chan kafka.Event) {
	for e := range events {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				zap.L().Warn("analytics event delivery failed",
					zap.String("key", string(ev.Key)),
					zap.Error(ev.TopicPartition.Error),
				)
			}
		case kafka.Error:
			zap.L().Warn("analytics producer error", zap.Error(ev))
		}
	}
}

// LogSink writes events to the structured log. Used when no brokers are
// configured.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	if log == nil {
		log = zap.L()
	}
	return &LogSink{log: log.Named("analytics")}
}

func (s *LogSink) Track(ctx context.Context, event string, properties map[string]any) error {
	s.log.Info(event, zap.Any("properties", properties))
	return nil
}
