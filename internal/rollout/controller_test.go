package rollout

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rollerrors "github.com/systmms/rollops/internal/errors"
	"github.com/systmms/rollops/internal/gateway"
	"github.com/systmms/rollops/internal/logging"
)

const testRolloutName = "projects/demo/rollouts/r-1"

// fakePlatform simulates the change-management platform: previews return the
// full topology, creation with a target materializes exactly one stage, and
// task runs progress NOT_STARTED -> RUNNING on batch-run and RUNNING -> DONE
// on the following poll.
type fakePlatform struct {
	envs      []string
	taskCount int

	stages     []gateway.Stage
	createOpts []gateway.CreateOptions
	getCalls   int
	runCalls   [][]string

	// runErrs are popped one per BatchRunTasks call; nil entries succeed.
	runErrs []error

	// completeAfterPolls, when > 0, flips every task to DONE once getCalls
	// reaches it. Used for stages whose tasks were started externally.
	completeAfterPolls int
}

func newFakePlatform(envs []string, taskCount int) *fakePlatform {
	return &fakePlatform{envs: envs, taskCount: taskCount}
}

func (f *fakePlatform) CreateRollout(_ context.Context, _ string, spec gateway.RolloutSpec, opts gateway.CreateOptions) (*gateway.Rollout, error) {
	f.createOpts = append(f.createOpts, opts)

	if opts.ValidateOnly {
		stages := make([]gateway.Stage, len(f.envs))
		for i, env := range f.envs {
			stages[i] = gateway.Stage{Environment: env}
		}
		return &gateway.Rollout{Plan: spec.Plan, Stages: stages}, nil
	}

	if opts.Target == "" {
		return &gateway.Rollout{Name: testRolloutName, Plan: spec.Plan}, nil
	}

	idx := len(f.stages)
	stageName := fmt.Sprintf("%s/stages/stage-%d", testRolloutName, idx)
	tasks := make([]gateway.Task, f.taskCount)
	for i := range tasks {
		tasks[i] = gateway.Task{
			Name:   fmt.Sprintf("%s/tasks/task-%d", stageName, i),
			Status: gateway.TaskNotStarted,
		}
	}
	f.stages = append(f.stages, gateway.Stage{
		Name:        stageName,
		Environment: opts.Target,
		Tasks:       tasks,
	})
	return f.snapshot(), nil
}

func (f *fakePlatform) GetRollout(_ context.Context, _ string) (*gateway.Rollout, error) {
	f.getCalls++

	for si := range f.stages {
		for ti := range f.stages[si].Tasks {
			task := &f.stages[si].Tasks[ti]
			if task.Status == gateway.TaskRunning {
				task.Status = gateway.TaskDone
			}
			if f.completeAfterPolls > 0 && f.getCalls >= f.completeAfterPolls {
				task.Status = gateway.TaskDone
			}
		}
	}
	return f.snapshot(), nil
}

func (f *fakePlatform) BatchRunTasks(_ context.Context, stageName string, taskNames []string, _ string) error {
	f.runCalls = append(f.runCalls, taskNames)

	if len(f.runErrs) > 0 {
		err := f.runErrs[0]
		f.runErrs = f.runErrs[1:]
		if err != nil {
			return err
		}
	}

	for si := range f.stages {
		if f.stages[si].Name != stageName {
			continue
		}
		for ti := range f.stages[si].Tasks {
			for _, name := range taskNames {
				if f.stages[si].Tasks[ti].Name == name {
					f.stages[si].Tasks[ti].Status = gateway.TaskRunning
				}
			}
		}
	}
	return nil
}

func (f *fakePlatform) snapshot() *gateway.Rollout {
	stages := make([]gateway.Stage, len(f.stages))
	for i, stage := range f.stages {
		tasks := make([]gateway.Task, len(stage.Tasks))
		copy(tasks, stage.Tasks)
		stages[i] = gateway.Stage{Name: stage.Name, Environment: stage.Environment, Tasks: tasks}
	}
	return &gateway.Rollout{Name: testRolloutName, Stages: stages}
}

// newTestController wires a controller with instant sleeps and returns the
// sleep counter.
func newTestController(gw Gateway) (*Controller, *int) {
	c := NewController(gw, logging.New(false, true), time.Millisecond)
	sleeps := 0
	c.sleep = func(ctx context.Context, _ time.Duration) error {
		sleeps++
		return ctx.Err()
	}
	return c, &sleeps
}

func testRequest(target string) Request {
	return Request{
		Project: "projects/demo",
		Plan:    "projects/demo/plans/web",
		Target:  target,
		Reason:  "rollops test",
	}
}

func TestController_EmptyPipeline(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform(nil, 0)
	c, _ := newTestController(platform)

	var h Handle
	err := c.Run(context.Background(), testRequest(""), &h)
	require.NoError(t, err)

	assert.Equal(t, testRolloutName, h.Get())
	assert.Zero(t, platform.getCalls)
	// Preview plus the real creation, nothing else.
	require.Len(t, platform.createOpts, 2)
	assert.True(t, platform.createOpts[0].ValidateOnly)
	assert.False(t, platform.createOpts[1].ValidateOnly)
}

func TestController_StopsAtTargetStage(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform([]string{
		"environments/dev",
		"environments/staging",
		"environments/prod",
	}, 1)
	c, _ := newTestController(platform)

	var h Handle
	err := c.Run(context.Background(), testRequest("environments/staging"), &h)
	require.NoError(t, err)

	// Stage creation stopped at the target: dev and staging, never prod.
	var targets []string
	for _, opts := range platform.createOpts {
		if opts.Target != "" {
			targets = append(targets, opts.Target)
		}
	}
	assert.Equal(t, []string{"environments/dev", "environments/staging"}, targets)
	require.Len(t, platform.stages, 2)
}

func TestController_TargetNotInPreview(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform([]string{"environments/dev", "environments/prod"}, 1)
	c, _ := newTestController(platform)

	var h Handle
	err := c.Run(context.Background(), testRequest("environments/qa"), &h)

	var notFound *rollerrors.TargetNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "environments/qa", notFound.Target)
	assert.Equal(t, []string{"environments/dev", "environments/prod"}, notFound.Available)

	// Failing before creation: the preview was the only remote call, so no
	// rollout exists and the handle stays unset.
	require.Len(t, platform.createOpts, 1)
	assert.True(t, platform.createOpts[0].ValidateOnly)
	assert.Empty(t, h.Get())
}

func TestController_RunToCompletion(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform([]string{"environments/dev", "environments/prod"}, 2)
	c, _ := newTestController(platform)

	var h Handle
	err := c.Run(context.Background(), testRequest(""), &h)
	require.NoError(t, err)

	require.Len(t, platform.stages, 2)
	for _, stage := range platform.stages {
		for _, task := range stage.Tasks {
			assert.Equal(t, gateway.TaskDone, task.Status)
		}
	}
}

func TestController_TaskFailureIsFatal(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform([]string{"environments/prod"}, 1)
	// Pre-materialize the stage with a failed task.
	platform.stages = []gateway.Stage{{
		Name:        testRolloutName + "/stages/stage-0",
		Environment: "environments/prod",
		Tasks: []gateway.Task{
			{Name: "tasks/deploy", Status: gateway.TaskFailed},
			{Name: "tasks/verify", Status: gateway.TaskNotStarted},
		},
	}}
	c, _ := newTestController(platform)

	var h Handle
	err := c.Run(context.Background(), testRequest(""), &h)

	var failure *rollerrors.TaskFailureError
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, []string{"tasks/deploy"}, failure.Tasks)
	assert.Empty(t, platform.runCalls, "a failed stage must not trigger task runs")
}

func TestController_NoNetworkCallWithoutNotStartedTasks(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform([]string{"environments/prod"}, 0)
	// The stage's only task was started externally and is still pending.
	platform.stages = []gateway.Stage{{
		Name:        testRolloutName + "/stages/stage-0",
		Environment: "environments/prod",
		Tasks:       []gateway.Task{{Name: "tasks/deploy", Status: gateway.TaskPending}},
	}}
	platform.completeAfterPolls = 2
	c, _ := newTestController(platform)

	var h Handle
	err := c.Run(context.Background(), testRequest(""), &h)
	require.NoError(t, err)

	assert.Empty(t, platform.runCalls)
}

func TestController_IdempotentConflictIsSwallowed(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform([]string{"environments/prod"}, 1)
	platform.runErrs = []error{&rollerrors.RemoteError{
		Status:  409,
		Message: "cannot create pending task runs because there are pending/running/done task runs",
	}}
	c, _ := newTestController(platform)

	var h Handle
	err := c.Run(context.Background(), testRequest(""), &h)
	require.NoError(t, err)

	// First batch-run hit the conflict, the retry on the next cycle stuck.
	assert.Len(t, platform.runCalls, 2)
}

func TestController_OtherBatchRunErrorIsFatal(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform([]string{"environments/prod"}, 1)
	platform.runErrs = []error{&rollerrors.RemoteError{Status: 500, Message: "actuator exploded"}}
	c, _ := newTestController(platform)

	var h Handle
	err := c.Run(context.Background(), testRequest(""), &h)

	var remote *rollerrors.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, 500, remote.Status)
	assert.Len(t, platform.runCalls, 1)
}

func TestController_SkipsDoneStagesWithoutSleeping(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform([]string{"environments/dev", "environments/staging", "environments/prod"}, 0)
	// Everything already finished in an earlier invocation.
	for i, env := range platform.envs {
		platform.stages = append(platform.stages, gateway.Stage{
			Name:        fmt.Sprintf("%s/stages/stage-%d", testRolloutName, i),
			Environment: env,
			Tasks:       []gateway.Task{{Name: "tasks/deploy", Status: gateway.TaskDone}},
		})
	}
	c, sleeps := newTestController(platform)

	var h Handle
	err := c.Run(context.Background(), testRequest("environments/prod"), &h)
	require.NoError(t, err)

	assert.Zero(t, *sleeps, "advancing over completed stages must not poll-sleep")
	assert.Equal(t, 3, platform.getCalls)
}

func TestController_ContextCancellationStopsLoop(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform([]string{"environments/prod"}, 1)
	c, _ := newTestController(platform)

	ctx, cancel := context.WithCancel(context.Background())
	c.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	var h Handle
	err := c.Run(ctx, testRequest(""), &h)
	assert.ErrorIs(t, err, context.Canceled)
	// The rollout was created before the interruption, so cancellation has a
	// handle to work with.
	assert.Equal(t, testRolloutName, h.Get())
}

func TestController_PreviewAndMaterializedOrderAgree(t *testing.T) {
	t.Parallel()

	envs := []string{"environments/dev", "environments/staging", "environments/prod"}
	platform := newFakePlatform(envs, 1)
	c, _ := newTestController(platform)

	var h Handle
	err := c.Run(context.Background(), testRequest(""), &h)
	require.NoError(t, err)

	require.Len(t, platform.stages, len(envs))
	for i, stage := range platform.stages {
		assert.Equal(t, envs[i], stage.Environment)
	}
}
