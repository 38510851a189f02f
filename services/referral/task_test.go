package referral

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"referral-ledger/pkg/taskname"
)

func TestNewActivityLoggedTask(t *testing.T) {
	task, opts, err := NewActivityLoggedTask(ActivityLogged{RefereeID: "referee", EventID: "e1"})
	require.NoError(t, err)
	require.Equal(t, taskname.ReferralActivityLogged, task.Type())

	types := map[asynq.OptionType]any{}
	for _, o := range opts {
		types[o.Type()] = o.Value()
	}
	require.Equal(t, "referral", types[asynq.QueueOpt])
	require.Equal(t, "activity:e1", types[asynq.TaskIDOpt])
	require.Equal(t, 10, types[asynq.MaxRetryOpt])

	_, opts, err = NewActivityLoggedTask(ActivityLogged{RefereeID: "referee"})
	require.NoError(t, err)
	for _, o := range opts {
		require.NotEqual(t, asynq.TaskIDOpt, o.Type())
	}
}

func TestHandleActivityLogged(t *testing.T) {
	f := newFixture(t)
	code := f.code(t, "referrer")
	r := f.redeem(t, code.Code, "referee", "")

	task, _, err := NewActivityLoggedTask(ActivityLogged{RefereeID: "referee", EventID: "e1"})
	require.NoError(t, err)

	require.NoError(t, f.svc.HandleActivityLogged(context.Background(), task))
	// redelivery of the same task is not counted again
	require.NoError(t, f.svc.HandleActivityLogged(context.Background(), task))
	require.Equal(t, 1, f.reload(t, r.ID).MealsLogged)
}

func TestHandleActivityLoggedBadPayload(t *testing.T) {
	f := newFixture(t)

	err := f.svc.HandleActivityLogged(context.Background(), asynq.NewTask(taskname.ReferralActivityLogged, []byte("{")))
	require.True(t, errors.Is(err, asynq.SkipRetry))

	err = f.svc.HandleActivityLogged(context.Background(), asynq.NewTask(taskname.ReferralActivityLogged, []byte(`{"event_id":"e1"}`)))
	require.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestEnqueueActivityWithoutQueue(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.EnqueueActivity(context.Background(), ActivityLogged{RefereeID: "referee"})
	require.Error(t, err)
}
