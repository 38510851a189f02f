package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"referral-ledger/pkg/featureflags"
	"referral-ledger/pkg/task"
	"referral-ledger/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// FeatureReferralRewardNotifications gates the referrer push per user.
const FeatureReferralRewardNotifications = "referral_reward_notifications"

type ReferralRewardPayload struct {
	ReferrerID  string    `json:"referrer_id"`
	RefereeName string    `json:"referee_name"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	RequestedAt time.Time `json:"requested_at"`
}

// Sink hands referrer notifications to the notification queue.
type Sink struct {
	enqueuer task.Enqueuer
	flags    featureflags.FeatureFlag
}

type SinkParams struct {
	fx.In
	Enqueuer task.Enqueuer
	Flags    featureflags.FeatureFlag `optional:"true"`
}

func NewSink(p SinkParams) *Sink {
	return &Sink{enqueuer: p.Enqueuer, flags: p.Flags}
}

func rewardMessage(refereeName string) (string, string) {
	name := refereeName
	if name == "" {
		name = "Your friend"
	}
	return "You earned 10 entries!", fmt.Sprintf("%s logged 5 meals. Your referral reward has been added.", name)
}

func (s *Sink) NotifyReferrerReward(ctx context.Context, referrerID, refereeName string) error {
	if s.flags != nil && !s.flags.Enabled(ctx, referrerID, FeatureReferralRewardNotifications, true) {
		zap.L().Debug("referral reward notification disabled", zap.String("referrer_id", referrerID))
		return nil
	}

	title, body := rewardMessage(refereeName)
	payload, err := json.Marshal(ReferralRewardPayload{
		ReferrerID:  referrerID,
		RefereeName: refereeName,
		Title:       title,
		Body:        body,
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	t := asynq.NewTask(taskname.NotificationReferralReward, payload)
	if _, err := s.enqueuer.Enqueue(ctx, t,
		asynq.Queue(task.QueueNotification),
		asynq.MaxRetry(5),
		asynq.Timeout(10*time.Second),
	); err != nil {
		return fmt.Errorf("enqueue referral reward notification: %w", err)
	}
	return nil
}

// HandleReferralReward logs the hand-off to the push provider.
func HandleReferralReward(ctx context.Context, t *asynq.Task) error {
	var payload ReferralRewardPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.ReferrerID == "" {
		return fmt.Errorf("invalid payload: missing referrer_id: %w", asynq.SkipRetry)
	}

	zap.L().Info("referral reward notification delivered",
		zap.String("task_type", t.Type()),
		zap.String("referrer_id", payload.ReferrerID),
		zap.String("title", payload.Title),
		zap.String("body", payload.Body),
	)
	return nil
}
