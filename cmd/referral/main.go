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
	"referral-ledger/pkg/health"
	"referral-ledger/pkg/httpapi"
	"referral-ledger/pkg/lock"
	"referral-ledger/pkg/logger"
	"referral-ledger/pkg/otelcol"
	"referral-ledger/pkg/profiling"
	"referral-ledger/pkg/redis"
	"referral-ledger/pkg/server"
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
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		lock.Module,
		gen.Module,
		task.Client,
		featureflags.Module,
		health.Module,
		httpapi.Module,
		notification.Module,
		analytics.Module,
		referral.Module,
		referral.Gateway,
		server.ProvideGRPCServer,
		server.ProvideHTTPServer,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "production" {
		return fxevent.NopLogger
	}
	return &fxevent.ZapLogger{Logger: logger.Named("fx")}
})
