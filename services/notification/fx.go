package notification

import (
	"referral-ledger/pkg/taskname"
	"referral-ledger/services/referral"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

// Module provides the referral.NotificationSink backed by the task queue.
var Module = fx.Module("notification.sink",
	fx.Provide(
		fx.Annotate(NewSink, fx.As(new(referral.NotificationSink))),
	),
)

var TaskModule = fx.Module("notification.task",
	fx.Invoke(registerTaskHandlers),
)

func registerTaskHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(taskname.NotificationReferralReward, HandleReferralReward)
}
