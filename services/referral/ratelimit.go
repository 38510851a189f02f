package referral

import (
	"context"
	"time"
)

const (
	weeklyWindow  = 7 * 24 * time.Hour
	weeklyCap     = 5
	monthlyWindow = 30 * 24 * time.Hour
	monthlyCap    = 10

	RateLimitWeekly  = "weekly_cap_reached"
	RateLimitMonthly = "monthly_cap_reached"
)

type RateLimitResult struct {
	Allowed      bool   `json:"allowed"`
	Reason       string `json:"reason,omitempty"`
	WeeklyCount  int64  `json:"weekly_count"`
	MonthlyCount int64  `json:"monthly_count"`
}

// RateLimiter caps referrer payouts over trailing windows of completed
// redemptions, keyed by completion time. Every call reads the store.
type RateLimiter struct {
	store Store
	now   func() time.Time
}

func NewRateLimiter(store Store) *RateLimiter {
	return &RateLimiter{store: store, now: time.Now}
}

func (l *RateLimiter) WithStore(store Store) *RateLimiter {
	return &RateLimiter{store: store, now: l.now}
}

func (l *RateLimiter) CanAwardReferrer(ctx context.Context, referrerID string) (RateLimitResult, error) {
	now := l.now().UTC()

	weekly, err := l.store.CountCompletedSince(ctx, referrerID, now.Add(-weeklyWindow))
	if err != nil {
		return RateLimitResult{}, err
	}
	monthly, err := l.store.CountCompletedSince(ctx, referrerID, now.Add(-monthlyWindow))
	if err != nil {
		return RateLimitResult{}, err
	}

	res := RateLimitResult{Allowed: true, WeeklyCount: weekly, MonthlyCount: monthly}
	switch {
	case weekly >= weeklyCap:
		res.Allowed, res.Reason = false, RateLimitWeekly
	case monthly >= monthlyCap:
		res.Allowed, res.Reason = false, RateLimitMonthly
	}
	return res, nil
}
