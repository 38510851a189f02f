package referral

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCanAwardReferrerWindows(t *testing.T) {
	day := 24 * time.Hour

	tests := []struct {
		name      string
		completed []time.Duration
		allowed   bool
		reason    string
	}{
		{name: "no history", allowed: true},
		{name: "four this week", completed: repeat(4, day), allowed: true},
		{name: "five this week", completed: repeat(5, day), reason: RateLimitWeekly},
		{name: "five spread outside the week", completed: repeat(5, 10*day), allowed: true},
		{name: "ten this month", completed: append(repeat(4, 2*day), repeat(6, 20*day)...), reason: RateLimitMonthly},
		{name: "old history ignored", completed: repeat(12, 40*day), allowed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			now := time.Now().UTC()
			for i, ago := range tt.completed {
				f.seedCompleted(t, "referrer", now.Add(-ago), i)
			}

			res, err := f.svc.ReferrerEligibility(context.Background(), "referrer")
			require.NoError(t, err)
			require.Equal(t, tt.allowed, res.Allowed)
			require.Equal(t, tt.reason, res.Reason)
		})
	}
}

func TestCanAwardReferrerIgnoresPendingAndOtherReferrers(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()

	for i := 0; i < 6; i++ {
		f.seedCompleted(t, "someone-else", now.Add(-time.Hour), i)
	}
	code := f.code(t, "referrer")
	for _, referee := range []string{"r1", "r2", "r3", "r4", "r5", "r6"} {
		f.redeem(t, code.Code, referee, "")
	}

	res, err := f.svc.ReferrerEligibility(context.Background(), "referrer")
	require.NoError(t, err)
	require.True(t, res.Allowed)
	require.Zero(t, res.WeeklyCount)
}

func TestCanAwardReferrerUsesCompletionTime(t *testing.T) {
	f := newFixture(t)
	limiter := NewRateLimiter(f.svc.store)
	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		f.seedCompleted(t, "referrer", base.Add(-time.Duration(i)*time.Hour), i)
	}

	limiter.now = func() time.Time { return base.Add(8 * 24 * time.Hour) }
	res, err := limiter.CanAwardReferrer(context.Background(), "referrer")
	require.NoError(t, err)
	require.True(t, res.Allowed)
	require.EqualValues(t, 5, res.MonthlyCount)
}

func repeat(n int, ago time.Duration) []time.Duration {
	out := make([]time.Duration, n)
	for i := range out {
		out[i] = ago
	}
	return out
}
