package referral

import (
	"context"
	"errors"
	"fmt"
	"time"

	"referral-ledger/pkg/db/option"
	"referral-ledger/pkg/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errEventSeen  = errors.New("progress event already applied")
	errNotPending = errors.New("redemption not pending")
)

type gormStore struct {
	db *gorm.DB

	codes       repository.Repository[ReferralCode]
	redemptions repository.Repository[Redemption]
	rewards     repository.Repository[Reward]
}

func NewStore(db *gorm.DB) Store {
	return &gormStore{
		db:          db,
		codes:       repository.ProvideStore[ReferralCode](db),
		redemptions: repository.ProvideStore[Redemption](db),
		rewards:     repository.ProvideStore[Reward](db),
	}
}

func (s *gormStore) withTx(tx *gorm.DB) *gormStore {
	return &gormStore{
		db:          tx,
		codes:       s.codes.WithTrx(tx),
		redemptions: s.redemptions.WithTrx(tx),
		rewards:     s.rewards.WithTrx(tx),
	}
}

func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(s.withTx(tx))
	})
}

func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%s: %w", op, ErrDuplicateKey)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *gormStore) LoadCode(ctx context.Context, ownerID string) (*ReferralCode, error) {
	code, err := s.codes.FindOne(ctx, &ReferralCode{}, option.Eq("owner_id", ownerID))
	return code, translate("load code", err)
}

func (s *gormStore) SaveCode(ctx context.Context, code *ReferralCode) error {
	return translate("save code", s.codes.Create(ctx, code))
}

func (s *gormStore) FindCodeByValue(ctx context.Context, value string) (*ReferralCode, error) {
	code, err := s.codes.FindOne(ctx, &ReferralCode{}, option.Eq("code", value))
	return code, translate("find code", err)
}

func (s *gormStore) UpdateCodeAggregates(ctx context.Context, ownerID string, deltaReferrals, deltaEntries int64) error {
	res := s.db.WithContext(ctx).
		Model(&ReferralCode{}).
		Where("owner_id = ?", ownerID).
		Updates(map[string]any{
			"total_referrals":      gorm.Expr("total_referrals + ?", deltaReferrals),
			"total_earned_entries": gorm.Expr("total_earned_entries + ?", deltaEntries),
			"updated_at":           time.Now().UTC(),
		})
	if res.Error != nil {
		return translate("update code aggregates", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update code aggregates: no code for owner %s", ownerID)
	}
	return nil
}

func (s *gormStore) SaveRedemption(ctx context.Context, r *Redemption) error {
	return translate("save redemption", s.redemptions.Create(ctx, r))
}

func (s *gormStore) UpdateRedemption(ctx context.Context, id string, fields map[string]any) error {
	return translate("update redemption", s.redemptions.Update(ctx, id, fields))
}

func (s *gormStore) FindRedemption(ctx context.Context, id string) (*Redemption, error) {
	r, err := s.redemptions.FindOne(ctx, &Redemption{}, option.Eq("id", id))
	return r, translate("find redemption", err)
}

func (s *gormStore) FindRedemptionByReferee(ctx context.Context, refereeID string) (*Redemption, error) {
	r, err := s.redemptions.FindOne(ctx, &Redemption{}, option.Eq("referee_id", refereeID))
	return r, translate("find redemption by referee", err)
}

func (s *gormStore) FindPendingRedemption(ctx context.Context, refereeID string) (*Redemption, error) {
	r, err := s.redemptions.FindOne(ctx, &Redemption{},
		option.Eq("referee_id", refereeID),
		option.Eq("status", RedemptionPending),
	)
	return r, translate("find pending redemption", err)
}

func (s *gormStore) ListRedemptionsForUser(ctx context.Context, userID string, role Role) ([]*Redemption, error) {
	column := "referee_id"
	if role == RoleReferrer {
		column = "referrer_id"
	}
	rows, err := s.redemptions.Find(ctx, &Redemption{}, option.Eq(column, userID), option.WithSortBy(option.QuerySortBy{OrderBy: "desc"}))
	return rows, translate("list redemptions", err)
}

func (s *gormStore) ListAllRedemptions(ctx context.Context) ([]*Redemption, error) {
	rows, err := s.redemptions.Find(ctx, &Redemption{}, option.WithSortBy(option.QuerySortBy{OrderBy: "asc"}))
	return rows, translate("list all redemptions", err)
}

func (s *gormStore) HasAnyRedemptionAsReferee(ctx context.Context, userID string) (bool, error) {
	n, err := s.redemptions.Count(ctx, &Redemption{}, option.Eq("referee_id", userID))
	if err != nil {
		return false, translate("count referee redemptions", err)
	}
	return n > 0, nil
}

func (s *gormStore) CountRedemptionsByFingerprint(ctx context.Context, fingerprint string) (int64, error) {
	n, err := s.redemptions.Count(ctx, &Redemption{}, option.Eq("device_fingerprint", fingerprint))
	return n, translate("count fingerprint redemptions", err)
}

func (s *gormStore) CountCompletedSince(ctx context.Context, referrerID string, since time.Time) (int64, error) {
	n, err := s.redemptions.Count(ctx,
		&Redemption{},
		option.Eq("referrer_id", referrerID),
		option.Eq("status", RedemptionCompleted),
		option.ApplyOperator(option.Condition{Field: "completed_at", Operator: option.GTE, Value: since}),
	)
	return n, translate("count completed redemptions", err)
}

func (s *gormStore) IncrementProgress(ctx context.Context, redemptionID, eventID string) (*Redemption, bool, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if eventID != "" {
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&ProgressEvent{EventID: eventID, RedemptionID: redemptionID})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errEventSeen
			}
		}

		res := tx.Model(&Redemption{}).
			Where("id = ? AND status = ?", redemptionID, RedemptionPending).
			Updates(map[string]any{
				"meals_logged": gorm.Expr("meals_logged + 1"),
				"updated_at":   time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errNotPending
		}
		return nil
	})

	applied := true
	switch {
	case errors.Is(err, errEventSeen), errors.Is(err, errNotPending):
		applied = false
	case err != nil:
		return nil, false, translate("increment progress", err)
	}

	r, err := s.FindRedemption(ctx, redemptionID)
	if err != nil {
		return nil, false, err
	}
	if r == nil {
		return nil, false, fmt.Errorf("increment progress: redemption %s not found", redemptionID)
	}
	return r, applied, nil
}

func (s *gormStore) TransitionRedemption(ctx context.Context, id string, from, to RedemptionStatus, fields map[string]any) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range fields {
		updates[k] = v
	}

	res := s.db.WithContext(ctx).
		Model(&Redemption{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, translate("transition redemption", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *gormStore) SaveReward(ctx context.Context, r *Reward) error {
	return translate("save reward", s.rewards.Create(ctx, r))
}

func (s *gormStore) ListRewardsForRedemption(ctx context.Context, redemptionID string) ([]*Reward, error) {
	rows, err := s.rewards.Find(ctx, &Reward{}, option.Eq("redemption_id", redemptionID))
	return rows, translate("list rewards", err)
}

func (s *gormStore) ListRewardsForUser(ctx context.Context, userID string) ([]*Reward, error) {
	rows, err := s.rewards.Find(ctx, &Reward{}, option.Eq("beneficiary_id", userID), option.WithSortBy(option.QuerySortBy{
		SortBy:  "awarded_at",
		OrderBy: "desc",
		Allow:   map[string]bool{"awarded_at": true},
	}))
	return rows, translate("list user rewards", err)
}
