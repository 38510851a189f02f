package referral

import (
	"referral-ledger/pkg/config"
	"referral-ledger/pkg/taskname"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/gorm"
)

var Module = fx.Module("referral.service",
	fx.Provide(NewService),
	fx.Invoke(Migrate),
)

var Gateway = fx.Module("referral.gateway",
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes, registerHealthServer),
)

var TaskModule = fx.Module("referral.task",
	fx.Invoke(registerTaskHandlers),
)

// Migrate creates or updates the referral tables when DATABASE.AUTO_MIGRATE
// is enabled.
func Migrate(cfg *config.Config, db *gorm.DB) error {
	if !cfg.Database.AutoMigrate {
		return nil
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		zap.L().Error("failed to migrate referral tables", zap.Error(err))
		return err
	}
	return nil
}

func registerRoutes(r *gin.Engine, h *Handler) {
	h.Register(r)
}

func registerHealthServer(server *grpc.Server, service *Service) {
	grpc_health_v1.RegisterHealthServer(server, service)
}

func registerTaskHandlers(mux *asynq.ServeMux, service *Service) {
	mux.HandleFunc(taskname.ReferralActivityLogged, service.HandleActivityLogged)
}
