package referral

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"referral-ledger/pkg/middleware"
)

type fakeEnqueuer struct {
	EnqueueFn func(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return f.EnqueueFn(ctx, task, opts...)
}

func newRouter(f *fixture) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Error())
	NewHandler(f.svc).Register(r)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHandlerCreateCodeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f)

	w := do(t, r, http.MethodPost, "/v1/referral/codes", gin.H{"owner_id": "u1"})
	require.Equal(t, http.StatusOK, w.Code)
	var first ReferralCode
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	require.Len(t, first.Code, 8)

	w = do(t, r, http.MethodPost, "/v1/referral/codes", gin.H{"owner_id": "u1"})
	require.Equal(t, http.StatusOK, w.Code)
	var second ReferralCode
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	require.Equal(t, first.Code, second.Code)

	w = do(t, r, http.MethodPost, "/v1/referral/codes", gin.H{})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerValidateCode(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f)
	code := f.code(t, "referrer")

	w := do(t, r, http.MethodGet, "/v1/referral/codes/"+code.Code+"/validate?referee_id=referrer", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var res ValidationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.False(t, res.Valid)
	require.Equal(t, ReasonSelfReferral, res.Reason)

	w = do(t, r, http.MethodGet, "/v1/referral/codes/"+code.Code+"/validate", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerRedeem(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f)
	code := f.code(t, "referrer")

	w := do(t, r, http.MethodPost, "/v1/referral/redemptions", RedeemRequest{Code: code.Code, RefereeID: "referee"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created Redemption
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.Equal(t, RedemptionPending, created.Status)
	require.Equal(t, "referrer", created.ReferrerID)

	w = do(t, r, http.MethodPost, "/v1/referral/redemptions", RedeemRequest{Code: "NOPE1234", RefereeID: "other"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decodeError(t, w)
	require.Len(t, body.Error.Details, 1)
	require.Equal(t, string(ReasonNotFound), body.Error.Details[0].Message)

	w = do(t, r, http.MethodPost, "/v1/referral/redemptions", gin.H{"code": code.Code})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerRedeemBlankReferee(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f)
	code := f.code(t, "referrer")

	w := do(t, r, http.MethodPost, "/v1/referral/redemptions", RedeemRequest{Code: code.Code, RefereeID: "   "})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodGet, "/v1/referral/codes/"+code.Code+"/validate?referee_id=%20%20", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerRedeemFraudBlocked(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f)
	code := f.code(t, "referrer")
	for i := 0; i < FraudThreshold; i++ {
		f.redeem(t, code.Code, fmt.Sprintf("referee-%d", i), "device")
	}

	w := do(t, r, http.MethodPost, "/v1/referral/redemptions", RedeemRequest{
		Code:              code.Code,
		RefereeID:         "referee-x",
		DeviceFingerprint: "device",
	})
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "forbidden", decodeError(t, w).Error.Code)
}

func TestHandlerProgress(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f)

	w := do(t, r, http.MethodGet, "/v1/referral/redemptions/referee/nobody", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	code := f.code(t, "referrer")
	f.redeem(t, code.Code, "referee", "")
	f.logMeals(t, "referee", 2)

	w = do(t, r, http.MethodGet, "/v1/referral/redemptions/referee/referee", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view ProgressView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	require.Equal(t, 2, view.Redemption.MealsLogged)
	require.Equal(t, CompletionThreshold, view.Threshold)
	require.Equal(t, 3, view.Remaining)
}

func TestHandlerActivityEnqueues(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f)

	var got []*asynq.Task
	f.svc.enqueuer = &fakeEnqueuer{
		EnqueueFn: func(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
			got = append(got, task)
			return &asynq.TaskInfo{ID: "t"}, nil
		},
	}

	w := do(t, r, http.MethodPost, "/v1/referral/activity", ActivityLogged{RefereeID: "referee"})
	require.Equal(t, http.StatusAccepted, w.Code)
	var ev ActivityLogged
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ev))
	require.NotEmpty(t, ev.EventID)
	require.Len(t, got, 1)

	var payload ActivityLoggedPayload
	require.NoError(t, json.Unmarshal(got[0].Payload(), &payload))
	require.Equal(t, ev.EventID, payload.EventID)

	w = do(t, r, http.MethodPost, "/v1/referral/activity", gin.H{"event_id": "e1"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	f.svc.enqueuer = &fakeEnqueuer{
		EnqueueFn: func(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
			return nil, errors.New("redis down")
		},
	}
	w = do(t, r, http.MethodPost, "/v1/referral/activity", ActivityLogged{RefereeID: "referee"})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandlerStatsAndRewards(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f)
	code := f.code(t, "referrer")
	f.redeem(t, code.Code, "done", "")
	f.logMeals(t, "done", CompletionThreshold)
	f.redeem(t, code.Code, "waiting", "")

	w := do(t, r, http.MethodGet, "/v1/referral/users/referrer/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	require.EqualValues(t, 1, stats.TotalReferrals)
	require.EqualValues(t, RewardAmount, stats.TotalEarnedEntries)
	require.Equal(t, 1, stats.Completed)
	require.Equal(t, 1, stats.Pending)
	require.EqualValues(t, RewardAmount, stats.EntriesReceived)

	w = do(t, r, http.MethodGet, "/v1/referral/users/done/rewards", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rewards struct {
		Rewards []*Reward `json:"rewards"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rewards))
	require.Len(t, rewards.Rewards, 1)
	require.Equal(t, RoleReferee, rewards.Rewards[0].Role)

	w = do(t, r, http.MethodGet, "/v1/referral/referrers/referrer/eligibility", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var eligibility RateLimitResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &eligibility))
	require.True(t, eligibility.Allowed)
	require.EqualValues(t, 1, eligibility.WeeklyCount)
}
