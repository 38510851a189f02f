package referral

import "context"

//go:generate mockgen -source=sink.go -destination=sink_mock_test.go -package=referral

// NotificationSink delivers the "your friend finished" message to a referrer.
type NotificationSink interface {
	NotifyReferrerReward(ctx context.Context, referrerID, refereeName string) error
}

// AnalyticsSink records product analytics events.
type AnalyticsSink interface {
	Track(ctx context.Context, event string, properties map[string]any) error
}

const (
	EventCodeGenerated    = "referral_code_generated"
	EventRedeemed         = "referral_redeemed"
	EventFraudBlocked     = "referral_fraud_blocked"
	EventProgress         = "referral_progress"
	EventCompleted        = "referral_completed"
	EventReferrerExcluded = "referral_referrer_excluded"
)

type nopNotificationSink struct{}

func (nopNotificationSink) NotifyReferrerReward(context.Context, string, string) error { return nil }

type nopAnalyticsSink struct{}

func (nopAnalyticsSink) Track(context.Context, string, map[string]any) error { return nil }
