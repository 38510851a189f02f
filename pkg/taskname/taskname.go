package taskname

const (
	// Referral tasks
	ReferralActivityLogged = "referral:activity:logged"

	// Notification tasks
	NotificationReferralReward = "notification:referral:reward"
)
