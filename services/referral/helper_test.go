package referral

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"referral-ledger/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fixture struct {
	db  *gorm.DB
	svc *Service
}

func newFixture(t *testing.T, sinks ...any) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t, Models()...)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	p := ServiceParams{DB: db, Node: node}
	for _, s := range sinks {
		switch v := s.(type) {
		case NotificationSink:
			p.Notifier = v
		case AnalyticsSink:
			p.Analytics = v
		}
	}

	return &fixture{db: db, svc: NewService(p)}
}

func (f *fixture) code(t *testing.T, ownerID string) *ReferralCode {
	t.Helper()
	code, err := f.svc.GetOrCreateCode(context.Background(), ownerID)
	require.NoError(t, err)
	return code
}

func (f *fixture) redeem(t *testing.T, code, refereeID, fingerprint string) *Redemption {
	t.Helper()
	res, err := f.svc.Redeem(context.Background(), RedeemRequest{
		Code:              code,
		RefereeID:         refereeID,
		RefereeName:       "Name " + refereeID,
		DeviceFingerprint: fingerprint,
	})
	require.NoError(t, err)
	require.True(t, res.Validation.Valid, "redeem rejected: %s", res.Validation.Reason)
	return res.Redemption
}

func (f *fixture) logMeals(t *testing.T, refereeID string, n int) *ProgressResult {
	t.Helper()
	var last *ProgressResult
	for i := 0; i < n; i++ {
		res, err := f.svc.RecordProgress(context.Background(), ActivityLogged{
			RefereeID: refereeID,
			EventID:   fmt.Sprintf("%s-meal-%d-%d", refereeID, i, time.Now().UnixNano()),
		})
		require.NoError(t, err)
		last = res
	}
	return last
}

// seedCompleted inserts a finalized redemption for referrerID completed at t.
func (f *fixture) seedCompleted(t *testing.T, referrerID string, completedAt time.Time, i int) {
	t.Helper()
	at := completedAt.UTC()
	require.NoError(t, f.db.Create(&Redemption{
		ID:          fmt.Sprintf("seed-%s-%d", referrerID, i),
		Code:        "SEEDCODE",
		ReferrerID:  referrerID,
		RefereeID:   fmt.Sprintf("seed-referee-%s-%d", referrerID, i),
		Status:      RedemptionCompleted,
		MealsLogged: CompletionThreshold,
		CompletedAt: &at,
	}).Error)
}

func (f *fixture) rewards(t *testing.T, redemptionID string) []*Reward {
	t.Helper()
	rows, err := f.svc.store.ListRewardsForRedemption(context.Background(), redemptionID)
	require.NoError(t, err)
	return rows
}

func (f *fixture) reload(t *testing.T, id string) *Redemption {
	t.Helper()
	r, err := f.svc.store.FindRedemption(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, r)
	return r
}
