package rollout

import (
	"context"
	"fmt"
	"strings"

	"github.com/systmms/rollops/internal/gateway"
	"github.com/systmms/rollops/internal/logging"
)

// CancelGateway is the slice of the platform client the cancel handler needs.
type CancelGateway interface {
	ListTaskRuns(ctx context.Context, rolloutName string) ([]gateway.TaskRun, error)
	BatchCancelTaskRuns(ctx context.Context, rolloutName, stageID string, taskRunNames []string) error
}

// Canceler reacts to an external termination request by best-effort canceling
// the active task runs of the rollout this process created. Nothing here is
// ever escalated: the process must still exit promptly, so every failure is
// reported as a warning and swallowed.
type Canceler struct {
	gw     CancelGateway
	logger *logging.Logger
}

// NewCanceler creates a cancellation handler.
func NewCanceler(gw CancelGateway, logger *logging.Logger) *Canceler {
	return &Canceler{gw: gw, logger: logger}
}

// Cancel enumerates the task runs under the rollout recorded in handle,
// filters to the still-active ones and issues a single batch-cancel covering
// all of them. A handle with no rollout recorded (including the benign race
// where the signal lands before creation) is a pure no-op.
func (c *Canceler) Cancel(ctx context.Context, handle *Handle) {
	rolloutName := handle.Get()
	if rolloutName == "" {
		c.logger.Debug("No rollout created yet, nothing to cancel")
		return
	}

	c.logger.Info("Canceling active task runs of rollout %s", rolloutName)

	runs, err := c.gw.ListTaskRuns(ctx, rolloutName)
	if err != nil {
		c.logger.Warn("Failed to list task runs for %s: %v", rolloutName, err)
		return
	}

	var active []gateway.TaskRun
	for _, run := range runs {
		if run.Active() {
			active = append(active, run)
		}
	}
	if len(active) == 0 {
		c.logger.Info("No pending or running task runs under %s", rolloutName)
		return
	}

	// All active runs belong to the stage the cursor was on; its identifier
	// is embedded in every task run name.
	stageID, err := stageIDFromTaskRun(active[0].Name)
	if err != nil {
		c.logger.Warn("Cannot derive stage from task run %s: %v", active[0].Name, err)
		return
	}

	names := make([]string, len(active))
	for i, run := range active {
		names[i] = run.Name
	}

	if err := c.gw.BatchCancelTaskRuns(ctx, rolloutName, stageID, names); err != nil {
		c.logger.Warn("Failed to cancel %d task runs under %s: %v", len(names), stageID, err)
		return
	}
	c.logger.Info("Requested cancellation of %d task runs under %s", len(names), stageID)
}

// stageIDFromTaskRun extracts the stages/{id} segment from a task run name of
// the form {rollout}/stages/{id}/tasks/{task}/taskRuns/{run}.
func stageIDFromTaskRun(name string) (string, error) {
	parts := strings.Split(name, "/")
	for i, part := range parts {
		if part == "stages" && i+1 < len(parts) {
			return "stages/" + parts[i+1], nil
		}
	}
	return "", fmt.Errorf("task run name %q has no stage segment", name)
}
