package referral

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"referral-ledger/pkg/lock"
	"referral-ledger/pkg/rediskey"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type RedeemRequest struct {
	Code              string         `json:"code" binding:"required"`
	RefereeID         string         `json:"referee_id" binding:"required"`
	RefereeName       string         `json:"referee_name"`
	DeviceFingerprint string         `json:"device_fingerprint"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

type RedeemResult struct {
	Redemption *Redemption      `json:"redemption,omitempty"`
	Validation ValidationResult `json:"validation"`
}

// ActivityLogged is one meal logged by a referee. EventID deduplicates
// redelivery; an empty id is always counted.
type ActivityLogged struct {
	RefereeID string `json:"referee_id"`
	EventID   string `json:"event_id,omitempty"`
}

type Outcome string

const (
	OutcomeNoPendingRedemption Outcome = "no_pending_redemption"
	OutcomeDuplicateEvent      Outcome = "duplicate_event"
	OutcomeProgressed          Outcome = "progressed"
	OutcomeCompleted           Outcome = "completed"
	OutcomeReferrerExcluded    Outcome = "referrer_excluded"
	OutcomeAlreadyAwarded      Outcome = "already_awarded"
)

type ProgressResult struct {
	Outcome      Outcome   `json:"outcome"`
	RedemptionID string    `json:"redemption_id,omitempty"`
	MealsLogged  int       `json:"meals_logged"`
	Rewards      []*Reward `json:"rewards,omitempty"`
}

// Ledger drives a redemption from creation through finalization.
type Ledger struct {
	store       Store
	node        *snowflake.Node
	locker      lock.Locker
	validator   *Validator
	fraud       *FraudDetector
	limiter     *RateLimiter
	distributor *Distributor
	notifier    NotificationSink
	analytics   AnalyticsSink
	now         func() time.Time
}

type LedgerParams struct {
	Store       Store
	Node        *snowflake.Node
	Locker      lock.Locker
	Validator   *Validator
	Fraud       *FraudDetector
	Limiter     *RateLimiter
	Distributor *Distributor
	Notifier    NotificationSink
	Analytics   AnalyticsSink
}

func NewLedger(p LedgerParams) *Ledger {
	l := &Ledger{
		store:       p.Store,
		node:        p.Node,
		locker:      p.Locker,
		validator:   p.Validator,
		fraud:       p.Fraud,
		limiter:     p.Limiter,
		distributor: p.Distributor,
		notifier:    p.Notifier,
		analytics:   p.Analytics,
		now:         time.Now,
	}
	if l.locker == nil {
		l.locker = lock.NewLocalLocker()
	}
	if l.notifier == nil {
		l.notifier = nopNotificationSink{}
	}
	if l.analytics == nil {
		l.analytics = nopAnalyticsSink{}
	}
	return l
}

// CreateRedemption validates the code, applies the device heuristic and
// persists a pending redemption. Expected rejections come back in
// RedeemResult.Validation; a suspicious device returns ErrFraudBlocked.
func (l *Ledger) CreateRedemption(ctx context.Context, req RedeemRequest) (*RedeemResult, error) {
	zapLog := zap.L().With(
		zap.String("referee_id", req.RefereeID),
		zap.String("code", NormalizeCode(req.Code)),
	)

	validation, err := l.validator.ValidateForRedemption(ctx, req.Code, req.RefereeID)
	if errors.Is(err, ErrMissingRefereeID) {
		return nil, err
	}
	if err != nil {
		zapLog.Error("failed to validate redemption", zap.Error(err))
		return nil, err
	}
	if !validation.Valid {
		redemptionAttempts.WithLabelValues(string(validation.Reason)).Inc()
		zapLog.Info("redemption rejected", zap.String("reason", string(validation.Reason)))
		return &RedeemResult{Validation: validation}, nil
	}

	fraud, err := l.fraud.Check(ctx, req.DeviceFingerprint)
	if err != nil {
		zapLog.Error("failed to run fraud check", zap.Error(err))
		return nil, err
	}
	if fraud.Suspicious {
		redemptionAttempts.WithLabelValues("fraud_blocked").Inc()
		zapLog.Warn("redemption blocked, device reused", zap.Int64("prior_on_device", fraud.PriorOnDevice))
		l.track(ctx, EventFraudBlocked, map[string]any{
			"referee_id":      req.RefereeID,
			"code":            validation.Code.Code,
			"prior_on_device": fraud.PriorOnDevice,
		})
		return nil, ErrFraudBlocked
	}

	var metadata datatypes.JSON
	if len(req.Metadata) > 0 {
		raw, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode redemption metadata: %w", err)
		}
		metadata = datatypes.JSON(raw)
	}

	now := l.now().UTC()
	redemption := &Redemption{
		ID:                l.node.Generate().String(),
		Code:              validation.Code.Code,
		ReferrerID:        validation.Code.OwnerID,
		RefereeID:         req.RefereeID,
		RefereeName:       req.RefereeName,
		DeviceFingerprint: req.DeviceFingerprint,
		Status:            RedemptionPending,
		MealsLogged:       0,
		Metadata:          metadata,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := l.store.SaveRedemption(ctx, redemption); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			// lost a race with another redemption by the same referee
			redemptionAttempts.WithLabelValues(string(ReasonAlreadyUsed)).Inc()
			return &RedeemResult{Validation: ValidationResult{Code: validation.Code, Reason: ReasonAlreadyUsed}}, nil
		}
		zapLog.Error("failed to save redemption", zap.Error(err))
		return nil, err
	}

	redemptionAttempts.WithLabelValues("created").Inc()
	zapLog.Info("redemption created", zap.String("redemption_id", redemption.ID), zap.String("referrer_id", redemption.ReferrerID))
	l.track(ctx, EventRedeemed, map[string]any{
		"redemption_id": redemption.ID,
		"referrer_id":   redemption.ReferrerID,
		"referee_id":    redemption.RefereeID,
		"code":          redemption.Code,
	})

	return &RedeemResult{Redemption: redemption, Validation: validation}, nil
}

// RecordProgress counts one ActivityLogged event and finalizes the
// redemption once the threshold is reached. Safe under duplicate and
// concurrent delivery.
func (l *Ledger) RecordProgress(ctx context.Context, ev ActivityLogged) (*ProgressResult, error) {
	if blankID(ev.RefereeID) {
		return nil, ErrMissingRefereeID
	}
	zapLog := zap.L().With(zap.String("referee_id", ev.RefereeID), zap.String("event_id", ev.EventID))

	pending, err := l.store.FindPendingRedemption(ctx, ev.RefereeID)
	if err != nil {
		zapLog.Error("failed to find pending redemption", zap.Error(err))
		return nil, err
	}
	if pending == nil {
		return &ProgressResult{Outcome: OutcomeNoPendingRedemption}, nil
	}

	r, applied, err := l.store.IncrementProgress(ctx, pending.ID, ev.EventID)
	if err != nil {
		zapLog.Error("failed to increment progress", zap.String("redemption_id", pending.ID), zap.Error(err))
		return nil, err
	}

	result := &ProgressResult{RedemptionID: r.ID, MealsLogged: r.MealsLogged}
	if r.Status.Terminal() {
		result.Outcome = OutcomeAlreadyAwarded
		return result, nil
	}

	if applied {
		l.track(ctx, EventProgress, map[string]any{
			"redemption_id": r.ID,
			"referee_id":    r.RefereeID,
			"meals_logged":  r.MealsLogged,
			"threshold":     CompletionThreshold,
		})
	}

	// a redelivered event still finalizes a redemption whose earlier
	// finalization attempt failed after the increment committed
	if r.MealsLogged < CompletionThreshold {
		result.Outcome = OutcomeProgressed
		if !applied {
			result.Outcome = OutcomeDuplicateEvent
		}
		return result, nil
	}

	return l.finalize(ctx, r)
}

func (l *Ledger) finalize(ctx context.Context, r *Redemption) (*ProgressResult, error) {
	zapLog := zap.L().With(
		zap.String("redemption_id", r.ID),
		zap.String("referrer_id", r.ReferrerID),
		zap.String("referee_id", r.RefereeID),
	)

	unlock, err := l.locker.Lock(ctx, rediskey.BuildRedemptionLockKey(r.ID))
	if err != nil {
		zapLog.Error("failed to acquire redemption lock", zap.Error(err))
		return nil, fmt.Errorf("lock redemption %s: %w", r.ID, err)
	}
	defer unlock()

	result := &ProgressResult{RedemptionID: r.ID, MealsLogged: r.MealsLogged}
	var rate RateLimitResult

	err = l.store.Transaction(ctx, func(tx Store) error {
		existing, err := tx.ListRewardsForRedemption(ctx, r.ID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			result.Outcome = OutcomeAlreadyAwarded
			return nil
		}

		// evaluated before the transition so this redemption is not counted
		// against its own referrer
		rate, err = l.limiter.WithStore(tx).CanAwardReferrer(ctx, r.ReferrerID)
		if err != nil {
			return err
		}

		status := RedemptionCompleted
		if !rate.Allowed {
			status = RedemptionFailed
		}

		won, err := tx.TransitionRedemption(ctx, r.ID, RedemptionPending, status, map[string]any{
			"completed_at":      l.now().UTC(),
			"referrer_excluded": !rate.Allowed,
		})
		if err != nil {
			return err
		}
		if !won {
			result.Outcome = OutcomeAlreadyAwarded
			return nil
		}

		distributor := l.distributor.WithStore(tx)
		refereeReward, err := distributor.Award(ctx, r.ID, r.RefereeID, RoleReferee, RewardAmount)
		if err != nil {
			return err
		}
		result.Rewards = append(result.Rewards, refereeReward)

		if !rate.Allowed {
			result.Outcome = OutcomeReferrerExcluded
			return nil
		}

		referrerReward, err := distributor.Award(ctx, r.ID, r.ReferrerID, RoleReferrer, RewardAmount)
		if err != nil {
			return err
		}
		result.Rewards = append(result.Rewards, referrerReward)

		if err := tx.UpdateCodeAggregates(ctx, r.ReferrerID, 1, RewardAmount); err != nil {
			return err
		}
		result.Outcome = OutcomeCompleted
		return nil
	})
	if err != nil {
		zapLog.Error("failed to finalize redemption", zap.Error(err))
		return nil, err
	}

	finalizations.WithLabelValues(string(result.Outcome)).Inc()
	for _, reward := range result.Rewards {
		rewardsIssued.WithLabelValues(string(reward.Role)).Inc()
	}

	switch result.Outcome {
	case OutcomeCompleted:
		zapLog.Info("redemption completed, both parties rewarded")
		l.notify(ctx, r)
		l.track(ctx, EventCompleted, map[string]any{
			"redemption_id": r.ID,
			"referrer_id":   r.ReferrerID,
			"referee_id":    r.RefereeID,
			"amount":        RewardAmount,
		})
	case OutcomeReferrerExcluded:
		zapLog.Warn("referrer excluded by payout rate limit, referee rewarded",
			zap.String("reason", rate.Reason),
			zap.Int64("weekly_count", rate.WeeklyCount),
			zap.Int64("monthly_count", rate.MonthlyCount),
		)
		l.track(ctx, EventReferrerExcluded, map[string]any{
			"redemption_id": r.ID,
			"referrer_id":   r.ReferrerID,
			"referee_id":    r.RefereeID,
			"reason":        rate.Reason,
		})
	case OutcomeAlreadyAwarded:
		zapLog.Info("redemption already finalized, skipping")
	}

	return result, nil
}

func (l *Ledger) notify(ctx context.Context, r *Redemption) {
	if err := l.notifier.NotifyReferrerReward(ctx, r.ReferrerID, r.RefereeName); err != nil {
		zap.L().Warn("failed to notify referrer", zap.String("referrer_id", r.ReferrerID), zap.Error(err))
	}
}

func (l *Ledger) track(ctx context.Context, event string, props map[string]any) {
	if err := l.analytics.Track(ctx, event, props); err != nil {
		zap.L().Warn("failed to track analytics event", zap.String("event", event), zap.Error(err))
	}
}
