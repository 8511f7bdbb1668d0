package rollout

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rollerrors "github.com/systmms/rollops/internal/errors"
	"github.com/systmms/rollops/internal/gateway"
	"github.com/systmms/rollops/internal/logging"
)

type fakeCancelGateway struct {
	runs    []gateway.TaskRun
	listErr error

	listCalls   int
	cancelCalls int

	gotRollout string
	gotStageID string
	gotRuns    []string
	cancelErr  error
}

func (f *fakeCancelGateway) ListTaskRuns(_ context.Context, rolloutName string) ([]gateway.TaskRun, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.runs, nil
}

func (f *fakeCancelGateway) BatchCancelTaskRuns(_ context.Context, rolloutName, stageID string, taskRunNames []string) error {
	f.cancelCalls++
	f.gotRollout = rolloutName
	f.gotStageID = stageID
	f.gotRuns = taskRunNames
	return f.cancelErr
}

func newTestCanceler(gw CancelGateway) *Canceler {
	return NewCanceler(gw, logging.New(false, true))
}

func TestCanceler_NoRolloutIsNoOp(t *testing.T) {
	t.Parallel()

	gw := &fakeCancelGateway{}
	canceler := newTestCanceler(gw)

	var h Handle
	canceler.Cancel(context.Background(), &h)

	assert.Zero(t, gw.listCalls, "cancellation before creation must make zero remote calls")
	assert.Zero(t, gw.cancelCalls)
}

func TestCanceler_TwoRunsOneBatchCancel(t *testing.T) {
	t.Parallel()

	gw := &fakeCancelGateway{
		runs: []gateway.TaskRun{
			{Name: "projects/demo/rollouts/r-1/stages/prod/tasks/deploy/taskRuns/run-1", Status: gateway.RunRunning},
			{Name: "projects/demo/rollouts/r-1/stages/prod/tasks/verify/taskRuns/run-2", Status: gateway.RunPending},
		},
	}
	canceler := newTestCanceler(gw)

	var h Handle
	h.Set("projects/demo/rollouts/r-1")
	canceler.Cancel(context.Background(), &h)

	require.Equal(t, 1, gw.cancelCalls, "both runs share a stage, one batch-cancel covers them")
	assert.Equal(t, "projects/demo/rollouts/r-1", gw.gotRollout)
	assert.Equal(t, "stages/prod", gw.gotStageID)
	assert.Equal(t, []string{
		"projects/demo/rollouts/r-1/stages/prod/tasks/deploy/taskRuns/run-1",
		"projects/demo/rollouts/r-1/stages/prod/tasks/verify/taskRuns/run-2",
	}, gw.gotRuns)
}

func TestCanceler_FiltersTerminalRuns(t *testing.T) {
	t.Parallel()

	gw := &fakeCancelGateway{
		runs: []gateway.TaskRun{
			{Name: "projects/demo/rollouts/r-1/stages/prod/tasks/deploy/taskRuns/run-1", Status: gateway.RunDone},
			{Name: "projects/demo/rollouts/r-1/stages/prod/tasks/verify/taskRuns/run-2", Status: gateway.RunRunning},
			{Name: "projects/demo/rollouts/r-1/stages/prod/tasks/notify/taskRuns/run-3", Status: gateway.RunCanceled},
		},
	}
	canceler := newTestCanceler(gw)

	var h Handle
	h.Set("projects/demo/rollouts/r-1")
	canceler.Cancel(context.Background(), &h)

	require.Equal(t, 1, gw.cancelCalls)
	assert.Equal(t, []string{
		"projects/demo/rollouts/r-1/stages/prod/tasks/verify/taskRuns/run-2",
	}, gw.gotRuns)
}

func TestCanceler_NoActiveRuns(t *testing.T) {
	t.Parallel()

	gw := &fakeCancelGateway{
		runs: []gateway.TaskRun{
			{Name: "projects/demo/rollouts/r-1/stages/prod/tasks/deploy/taskRuns/run-1", Status: gateway.RunDone},
		},
	}
	canceler := newTestCanceler(gw)

	var h Handle
	h.Set("projects/demo/rollouts/r-1")
	canceler.Cancel(context.Background(), &h)

	assert.Equal(t, 1, gw.listCalls)
	assert.Zero(t, gw.cancelCalls)
}

func TestCanceler_FailuresNeverEscalate(t *testing.T) {
	t.Parallel()

	t.Run("list fails", func(t *testing.T) {
		t.Parallel()

		gw := &fakeCancelGateway{listErr: &rollerrors.RemoteError{Status: 500, Message: "boom"}}
		canceler := newTestCanceler(gw)

		var h Handle
		h.Set("projects/demo/rollouts/r-1")
		assert.NotPanics(t, func() { canceler.Cancel(context.Background(), &h) })
		assert.Zero(t, gw.cancelCalls)
	})

	t.Run("cancel fails", func(t *testing.T) {
		t.Parallel()

		gw := &fakeCancelGateway{
			runs: []gateway.TaskRun{
				{Name: "projects/demo/rollouts/r-1/stages/prod/tasks/deploy/taskRuns/run-1", Status: gateway.RunRunning},
			},
			cancelErr: &rollerrors.RemoteError{Status: 503, Message: "unavailable"},
		}
		canceler := newTestCanceler(gw)

		var h Handle
		h.Set("projects/demo/rollouts/r-1")
		assert.NotPanics(t, func() { canceler.Cancel(context.Background(), &h) })
		assert.Equal(t, 1, gw.cancelCalls)
	})
}

func TestStageIDFromTaskRun(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		runName string
		want    string
		wantErr bool
	}{
		{
			name:    "full task run name",
			runName: "projects/demo/rollouts/r-1/stages/prod/tasks/deploy/taskRuns/run-1",
			want:    "stages/prod",
		},
		{
			name:    "no stage segment",
			runName: "projects/demo/rollouts/r-1/tasks/deploy",
			wantErr: true,
		},
		{
			name:    "trailing stages segment",
			runName: "projects/demo/rollouts/r-1/stages",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := stageIDFromTaskRun(tt.runName)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
