package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeProducer struct {
	ProduceFn func(msg *kafka.Message, deliveryChan chan kafka.Event) error
}

func (f *fakeProducer) Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error {
	return f.ProduceFn(msg, deliveryChan)
}

func TestKafkaSinkTrack(t *testing.T) {
	var got *kafka.Message
	sink := NewKafkaSink(&fakeProducer{
		ProduceFn: func(msg *kafka.Message, _ chan kafka.Event) error {
			got = msg
			return nil
		},
	}, "referral-analytics")
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	sink.now = func() time.Time { return at }

	require.NoError(t, sink.Track(context.Background(), "referral_completed", map[string]any{"redemption_id": "r1"}))
	require.NotNil(t, got)
	require.Equal(t, "referral-analytics", *got.TopicPartition.Topic)
	require.Equal(t, kafka.PartitionAny, got.TopicPartition.Partition)
	require.Equal(t, "referral_completed", string(got.Key))

	var ev Event
	require.NoError(t, json.Unmarshal(got.Value, &ev))
	require.Equal(t, "referral_completed", ev.Name)
	require.Equal(t, "r1", ev.Properties["redemption_id"])
	require.True(t, at.Equal(ev.OccurredAt))
}

func TestKafkaSinkTrackProduceError(t *testing.T) {
	sink := NewKafkaSink(&fakeProducer{
		ProduceFn: func(*kafka.Message, chan kafka.Event) error {
			return errors.New("queue full")
		},
	}, "t")

	require.Error(t, sink.Track(context.Background(), "e", nil))
}

func TestLogSinkTrack(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))

	require.NoError(t, sink.Track(context.Background(), "referral_redeemed", map[string]any{"code": "ABCD2345"}))
	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "referral_redeemed", entries[0].Message)
	require.Equal(t, "analytics", entries[0].LoggerName)
}

func TestDrainDeliveryReportsLogsFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	topic := "t"
	events := make(chan kafka.Event, 2)
	events <- &kafka.Message{TopicPartition: kafka.TopicPartition{Topic: &topic}, Key: []byte("ok")}
	events <- &kafka.Message{TopicPartition: kafka.TopicPartition{Topic: &topic, Error: errors.New("broker down")}, Key: []byte("bad")}
	close(events)

	drainDeliveryReports(events)
	require.Equal(t, 1, logs.Len())
}
