package analytics

import (
	"context"

	"referral-ledger/pkg/config"
	"referral-ledger/services/referral"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("analytics.sink",
	fx.Provide(NewSink),
)

// NewSink returns a Kafka-backed sink when KAFKA.ADDR is set and a LogSink
// otherwise.
func NewSink(lc fx.Lifecycle, cfg *config.Config) (referral.AnalyticsSink, error) {
	if cfg.Kafka.Addrs == "" {
		zap.L().Info("[Analytics] KAFKA.ADDR not set, tracking to log")
		return NewLogSink(zap.L()), nil
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Kafka.Addrs,
		"client.id":          cfg.AppName,
		"acks":               "1",
		"linger.ms":          50,
		"enable.idempotence": false,
	})
	if err != nil {
		zap.L().Error("[Analytics] Failed to create kafka producer", zap.Error(err))
		return nil, err
	}

	go drainDeliveryReports(p.Events())

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if remaining := p.Flush(5000); remaining > 0 {
				zap.L().Warn("[Analytics] Unflushed analytics events", zap.Int("remaining", remaining))
			}
			p.Close()
			return nil
		},
	})

	zap.L().Info("[Analytics] Kafka producer ready", zap.String("topic", cfg.Kafka.AnalyticsTopic))
	return NewKafkaSink(p, cfg.Kafka.AnalyticsTopic), nil
}
