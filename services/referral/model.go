package referral

import (
	"time"

	"gorm.io/datatypes"
)

const (
	// RewardAmount is the number of entries credited to each party.
	RewardAmount int64 = 10
	// CompletionThreshold is the number of logged meals that finalizes a redemption.
	CompletionThreshold = 5
)

type RedemptionStatus string

const (
	RedemptionPending   RedemptionStatus = "pending"
	RedemptionCompleted RedemptionStatus = "completed"
	RedemptionFailed    RedemptionStatus = "failed"
)

func (s RedemptionStatus) Terminal() bool {
	return s == RedemptionCompleted || s == RedemptionFailed
}

type Role string

const (
	RoleReferrer Role = "referrer"
	RoleReferee  Role = "referee"
)

type ReferralCode struct {
	Code               string    `gorm:"column:code;primaryKey;size:10" json:"code"`
	OwnerID            string    `gorm:"column:owner_id;size:64;not null;uniqueIndex:ux_referral_code_owner" json:"owner_id"`
	TotalReferrals     int64     `gorm:"column:total_referrals;not null;default:0" json:"total_referrals"`
	TotalEarnedEntries int64     `gorm:"column:total_earned_entries;not null;default:0" json:"total_earned_entries"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (ReferralCode) TableName() string {
	return "referral_codes"
}

// Redemption is a referee's use of a code. A referee owns at most one row for
// its lifetime (ux_redemption_referee).
type Redemption struct {
	ID                string           `gorm:"column:id;primaryKey;size:32" json:"id"`
	Code              string           `gorm:"column:code;size:10;not null;index" json:"code"`
	ReferrerID        string           `gorm:"column:referrer_id;size:64;not null;index:idx_redemption_referrer_status,priority:1" json:"referrer_id"`
	RefereeID         string           `gorm:"column:referee_id;size:64;not null;uniqueIndex:ux_redemption_referee" json:"referee_id"`
	RefereeName       string           `gorm:"column:referee_name;size:128" json:"referee_name"`
	DeviceFingerprint string           `gorm:"column:device_fingerprint;size:128;index" json:"device_fingerprint,omitempty"`
	Status            RedemptionStatus `gorm:"column:status;size:16;not null;default:pending;index:idx_redemption_referrer_status,priority:2" json:"status"`
	MealsLogged       int              `gorm:"column:meals_logged;not null;default:0" json:"meals_logged"`
	ReferrerExcluded  bool             `gorm:"column:referrer_excluded;not null;default:false" json:"referrer_excluded"`
	Metadata          datatypes.JSON   `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt         time.Time        `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time        `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
	CompletedAt       *time.Time       `gorm:"column:completed_at;index" json:"completed_at,omitempty"`
}

func (Redemption) TableName() string {
	return "referral_redemptions"
}

// Reward is an append-only ledger row, unique per (redemption_id, role).
type Reward struct {
	ID            string    `gorm:"column:id;primaryKey;size:32" json:"id"`
	BeneficiaryID string    `gorm:"column:beneficiary_id;size:64;not null;index" json:"beneficiary_id"`
	RedemptionID  string    `gorm:"column:redemption_id;size:32;not null;uniqueIndex:ux_reward_redemption_role,priority:1" json:"redemption_id"`
	Role          Role      `gorm:"column:role;size:16;not null;uniqueIndex:ux_reward_redemption_role,priority:2" json:"role"`
	Amount        int64     `gorm:"column:amount;not null" json:"amount"`
	AwardedAt     time.Time `gorm:"column:awarded_at;not null" json:"awarded_at"`
}

func (Reward) TableName() string {
	return "referral_rewards"
}

// ProgressEvent records an applied ActivityLogged event id so redelivery
// does not count the same meal twice.
type ProgressEvent struct {
	EventID      string    `gorm:"column:event_id;primaryKey;size:64"`
	RedemptionID string    `gorm:"column:redemption_id;size:32;not null;index"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (ProgressEvent) TableName() string {
	return "referral_progress_events"
}

// Models lists every table owned by this package, in migration order.
func Models() []any {
	return []any{&ReferralCode{}, &Redemption{}, &Reward{}, &ProgressEvent{}}
}
