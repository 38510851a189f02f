package referral

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"referral-ledger/pkg/task"
	"referral-ledger/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type ActivityLoggedPayload struct {
	RefereeID  string    `json:"referee_id"`
	EventID    string    `json:"event_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewActivityLoggedTask builds the worker task for ev. The event id doubles
// as the asynq task id so a second enqueue of the same event is dropped.
func NewActivityLoggedTask(ev ActivityLogged) (*asynq.Task, []asynq.Option, error) {
	payload, err := json.Marshal(ActivityLoggedPayload{
		RefereeID:  ev.RefereeID,
		EventID:    ev.EventID,
		EnqueuedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, nil, err
	}

	opts := []asynq.Option{
		asynq.Queue(task.QueueReferral),
		asynq.MaxRetry(10),
		asynq.Timeout(30 * time.Second),
	}
	if ev.EventID != "" {
		opts = append(opts, asynq.TaskID("activity:"+ev.EventID), asynq.Retention(24*time.Hour))
	}
	return asynq.NewTask(taskname.ReferralActivityLogged, payload), opts, nil
}

// HandleActivityLogged is the asynq handler for taskname.ReferralActivityLogged.
func (s *Service) HandleActivityLogged(ctx context.Context, t *asynq.Task) error {
	var payload ActivityLoggedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}
	if blankID(payload.RefereeID) {
		return fmt.Errorf("invalid payload: missing referee_id: %w", asynq.SkipRetry)
	}

	zapLog := zap.L().With(
		zap.String("task_type", t.Type()),
		zap.String("referee_id", payload.RefereeID),
		zap.String("event_id", payload.EventID),
	)

	res, err := s.RecordProgress(ctx, ActivityLogged{RefereeID: payload.RefereeID, EventID: payload.EventID})
	if err != nil {
		zapLog.Error("failed to record referral progress", zap.Error(err))
		return err
	}

	zapLog.Debug("referral progress recorded",
		zap.String("outcome", string(res.Outcome)),
		zap.Int("meals_logged", res.MealsLogged),
	)
	return nil
}
