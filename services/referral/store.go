package referral

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicateKey is returned by Store writes that hit a unique index.
var ErrDuplicateKey = errors.New("referral: duplicate key")

// Store is the persistence contract of the ledger. Lookups return nil, nil
// when nothing matches.
type Store interface {
	LoadCode(ctx context.Context, ownerID string) (*ReferralCode, error)
	SaveCode(ctx context.Context, code *ReferralCode) error
	FindCodeByValue(ctx context.Context, code string) (*ReferralCode, error)
	UpdateCodeAggregates(ctx context.Context, ownerID string, deltaReferrals, deltaEntries int64) error

	SaveRedemption(ctx context.Context, r *Redemption) error
	// UpdateRedemption merges fields into the row in a single statement.
	UpdateRedemption(ctx context.Context, id string, fields map[string]any) error
	FindRedemption(ctx context.Context, id string) (*Redemption, error)
	FindRedemptionByReferee(ctx context.Context, refereeID string) (*Redemption, error)
	FindPendingRedemption(ctx context.Context, refereeID string) (*Redemption, error)
	ListRedemptionsForUser(ctx context.Context, userID string, role Role) ([]*Redemption, error)
	ListAllRedemptions(ctx context.Context) ([]*Redemption, error)
	HasAnyRedemptionAsReferee(ctx context.Context, userID string) (bool, error)
	CountRedemptionsByFingerprint(ctx context.Context, fingerprint string) (int64, error)
	CountCompletedSince(ctx context.Context, referrerID string, since time.Time) (int64, error)
	// IncrementProgress adds one meal to a pending redemption. applied is
	// false when eventID was already recorded or the redemption is no longer
	// pending; the current row is returned either way.
	IncrementProgress(ctx context.Context, redemptionID, eventID string) (r *Redemption, applied bool, err error)
	// TransitionRedemption moves id from one status to another and reports
	// whether this caller performed the transition.
	TransitionRedemption(ctx context.Context, id string, from, to RedemptionStatus, fields map[string]any) (bool, error)

	SaveReward(ctx context.Context, r *Reward) error
	ListRewardsForRedemption(ctx context.Context, redemptionID string) ([]*Reward, error)
	ListRewardsForUser(ctx context.Context, userID string) ([]*Reward, error)

	// Transaction runs fn against a Store bound to a single transaction.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}
