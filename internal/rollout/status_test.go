package rollout

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/systmms/rollops/internal/gateway"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		statuses        []string
		wantDone        bool
		wantFailed      []string
		wantNotStarted  []string
	}{
		{
			name:     "zero tasks is vacuously done",
			statuses: nil,
			wantDone: true,
		},
		{
			name:     "all done",
			statuses: []string{gateway.TaskDone, gateway.TaskDone},
			wantDone: true,
		},
		{
			name:     "done and skipped",
			statuses: []string{gateway.TaskDone, gateway.TaskSkipped, gateway.TaskDone},
			wantDone: true,
		},
		{
			name:     "pending blocks done",
			statuses: []string{gateway.TaskDone, gateway.TaskPending},
			wantDone: false,
		},
		{
			name:     "running blocks done",
			statuses: []string{gateway.TaskRunning},
			wantDone: false,
		},
		{
			name:     "canceled blocks done",
			statuses: []string{gateway.TaskDone, gateway.TaskCanceled},
			wantDone: false,
		},
		{
			name:       "failed blocks done and is collected",
			statuses:   []string{gateway.TaskDone, gateway.TaskFailed},
			wantDone:   false,
			wantFailed: []string{"tasks/task-1"},
		},
		{
			name:       "failures preserve task order",
			statuses:   []string{gateway.TaskFailed, gateway.TaskDone, gateway.TaskFailed, gateway.TaskFailed},
			wantDone:   false,
			wantFailed: []string{"tasks/task-0", "tasks/task-2", "tasks/task-3"},
		},
		{
			name:           "not started are collected in order",
			statuses:       []string{gateway.TaskNotStarted, gateway.TaskDone, gateway.TaskNotStarted},
			wantDone:       false,
			wantNotStarted: []string{"tasks/task-0", "tasks/task-2"},
		},
		{
			name:     "unrecognized status is treated as in flight",
			statuses: []string{"REBOOTING"},
			wantDone: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			stage := gateway.Stage{Environment: "environments/prod"}
			for i, s := range tt.statuses {
				stage.Tasks = append(stage.Tasks, gateway.Task{
					Name:   fmt.Sprintf("tasks/task-%d", i),
					Status: s,
				})
			}

			status := Classify(stage)

			assert.Equal(t, tt.wantDone, status.Done)
			assert.Equal(t, tt.wantFailed, collectNames(status.FailedTasks))
			assert.Equal(t, tt.wantNotStarted, collectNames(status.NotStartedTasks))
		})
	}
}

func collectNames(tasks []gateway.Task) []string {
	if len(tasks) == 0 {
		return nil
	}
	return taskNames(tasks)
}
