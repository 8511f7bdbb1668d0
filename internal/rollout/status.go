package rollout

import (
	"github.com/systmms/rollops/internal/gateway"
)

// StageStatus is the classification of a stage's task list. It is the sole
// basis for every control decision the controller makes.
type StageStatus struct {
	// Done is true iff every task is DONE or SKIPPED. A stage with no tasks
	// is vacuously done.
	Done bool

	// FailedTasks holds the FAILED tasks in their original order.
	FailedTasks []gateway.Task

	// NotStartedTasks holds the NOT_STARTED tasks in their original order.
	NotStartedTasks []gateway.Task
}

// Classify computes the completion state of a stage from its task statuses.
// Pure and side-effect free.
func Classify(stage gateway.Stage) StageStatus {
	status := StageStatus{Done: true}

	for _, task := range stage.Tasks {
		switch task.Status {
		case gateway.TaskDone, gateway.TaskSkipped:
			// Terminal success states keep the stage done.
		case gateway.TaskFailed:
			status.Done = false
			status.FailedTasks = append(status.FailedTasks, task)
		case gateway.TaskNotStarted:
			status.Done = false
			status.NotStartedTasks = append(status.NotStartedTasks, task)
		default:
			// PENDING, RUNNING, CANCELED and anything unrecognized is in
			// flight as far as progression is concerned.
			status.Done = false
		}
	}
	return status
}
