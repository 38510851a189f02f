package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"referral-ledger/pkg/config"
	"referral-ledger/pkg/db"
	"referral-ledger/pkg/featureflags"
	"referral-ledger/pkg/gen"
	"referral-ledger/pkg/hashistack/secretmanager"
	"referral-ledger/pkg/lock"
	"referral-ledger/pkg/logger"
	"referral-ledger/pkg/redis"
	"referral-ledger/pkg/task"
	"referral-ledger/services/analytics"
	"referral-ledger/services/notification"
	"referral-ledger/services/referral"
)

func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Auto(),
		logger.Module,
		db.Module,
		redis.Module,
		lock.Module,
		gen.Module,
		task.Client,
		task.Server,
		featureflags.Module,
		notification.Module,
		notification.TaskModule,
		analytics.Module,
		referral.Module,
		referral.TaskModule,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
