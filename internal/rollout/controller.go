package rollout

import (
	"context"
	"fmt"
	"time"

	rollerrors "github.com/systmms/rollops/internal/errors"
	"github.com/systmms/rollops/internal/gateway"
	"github.com/systmms/rollops/internal/logging"
)

// DefaultPollInterval is the fixed delay between progression polls.
const DefaultPollInterval = 5 * time.Second

// Gateway is the slice of the platform client the controller needs.
type Gateway interface {
	GetRollout(ctx context.Context, name string) (*gateway.Rollout, error)
	CreateRollout(ctx context.Context, project string, spec gateway.RolloutSpec, opts gateway.CreateOptions) (*gateway.Rollout, error)
	BatchRunTasks(ctx context.Context, stageName string, taskNames []string, reason string) error
}

// Request describes one rollout to drive.
type Request struct {
	// Project is the owning project resource, e.g. projects/demo.
	Project string

	// Plan is the full plan reference, projects/{project}/plans/{plan}.
	Plan string

	// Target selects the stage environment to stop at. Empty means run the
	// whole pipeline to completion.
	Target string

	// Title is an optional operator-supplied rollout label.
	Title string

	// Reason is attached to every task batch-run for the platform's audit log.
	Reason string
}

// Controller drives a rollout stage by stage: it previews the topology,
// creates the rollout, then polls and advances until the target stage is done
// or a task fails. One rollout per Controller.Run call; calls never overlap.
type Controller struct {
	gw           Gateway
	logger       *logging.Logger
	metrics      *Metrics
	pollInterval time.Duration

	// sleep is swapped out in tests to avoid real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewController creates a progression controller. A pollInterval of zero
// selects DefaultPollInterval.
func NewController(gw Gateway, logger *logging.Logger, pollInterval time.Duration) *Controller {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Controller{
		gw:           gw,
		logger:       logger,
		metrics:      NewMetrics(),
		pollInterval: pollInterval,
		sleep:        sleepContext,
	}
}

// Run executes the full progression: preview, validate target, create, then
// advance the cursor until the target stage reports done. The created rollout
// name is published through handle as soon as it is known so a concurrent
// cancellation can find it.
//
// All errors are fatal; the single recognized idempotent conflict during
// batch-run is the only remote failure that is downgraded and retried by the
// normal poll cadence.
func (c *Controller) Run(ctx context.Context, req Request, handle *Handle) error {
	spec := gateway.RolloutSpec{Plan: req.Plan, Title: req.Title}

	// The platform only reveals the full stage topology, and therefore
	// whether the requested target exists at all, through a dry run.
	preview, err := c.gw.CreateRollout(ctx, req.Project, spec, gateway.CreateOptions{ValidateOnly: true})
	if err != nil {
		return fmt.Errorf("previewing rollout for %s: %w", req.Plan, err)
	}

	stageCount := len(preview.Stages)
	c.logger.Debug("Preview for %s has %d stages", req.Plan, stageCount)

	targetIndex := -1
	if req.Target != "" {
		for i, stage := range preview.Stages {
			if stage.Environment == req.Target {
				targetIndex = i
				break
			}
		}
		if targetIndex == -1 {
			available := make([]string, 0, stageCount)
			for _, stage := range preview.Stages {
				available = append(available, stage.Environment)
			}
			return &rollerrors.TargetNotFoundError{Target: req.Target, Available: available}
		}
	}

	// Create the real rollout with no stages. Stages are materialized one at
	// a time as the cursor reaches them, so a crash mid-advancement leaves at
	// most one extra empty stage behind.
	created, err := c.gw.CreateRollout(ctx, req.Project, spec, gateway.CreateOptions{})
	if err != nil {
		return fmt.Errorf("creating rollout for %s: %w", req.Plan, err)
	}
	handle.Set(created.Name)
	c.metrics.RecordRolloutStarted(req.Plan)
	c.logger.Info("Created rollout %s", created.Name)

	if stageCount == 0 {
		c.logger.Info("Plan %s produced an empty pipeline, nothing to do", req.Plan)
		return nil
	}

	start := time.Now()
	err = c.advance(ctx, req, spec, preview, created.Name, targetIndex)
	status := "success"
	if err != nil {
		status = "failure"
	}
	c.metrics.RecordRolloutCompleted(req.Plan, status, time.Since(start).Seconds())
	return err
}

// advance runs the poll/advancement loop. The cursor i only ever increases.
func (c *Controller) advance(ctx context.Context, req Request, spec gateway.RolloutSpec, preview *gateway.Rollout, rolloutName string, targetIndex int) error {
	stageCount := len(preview.Stages)

	for i := 0; i < stageCount; {
		current, err := c.gw.GetRollout(ctx, rolloutName)
		if err != nil {
			return fmt.Errorf("fetching rollout state: %w", err)
		}
		c.metrics.RecordPoll(req.Plan)

		// Stage i not materialized yet: extend the pipeline by exactly this
		// one stage. The create response already reflects the extension.
		if len(current.Stages) < i+1 {
			env := preview.Stages[i].Environment
			c.logger.Info("Creating stage %d/%d (%s)", i+1, stageCount, env)

			current, err = c.gw.CreateRollout(ctx, req.Project, spec, gateway.CreateOptions{Target: env})
			if err != nil {
				return fmt.Errorf("creating stage for %s: %w", env, err)
			}
			if len(current.Stages) < i+1 {
				// Platform has acknowledged but not yet listed the stage.
				if err := c.sleep(ctx, c.pollInterval); err != nil {
					return err
				}
				continue
			}
		}

		stage := current.Stages[i]
		status := Classify(stage)

		switch {
		case status.Done:
			c.logger.Info("Stage %d/%d (%s) is done", i+1, stageCount, stage.Environment)
			c.metrics.RecordStageCompleted(req.Plan, stage.Environment)

			if i == targetIndex || (targetIndex < 0 && i == stageCount-1) {
				c.logger.Info("Rollout %s reached its target stage", rolloutName)
				return nil
			}
			// Skipping already-completed stages must not incur poll latency.
			i++
			continue

		case len(status.FailedTasks) > 0:
			names := taskNames(status.FailedTasks)
			return &rollerrors.TaskFailureError{Stage: stage.Name, Tasks: names}

		case len(status.NotStartedTasks) > 0:
			names := taskNames(status.NotStartedTasks)
			c.logger.Debug("Running %d tasks in stage %s", len(names), stage.Environment)

			err := c.gw.BatchRunTasks(ctx, stage.Name, names, req.Reason)
			switch {
			case err == nil:
				c.metrics.RecordTaskBatch(req.Plan, stage.Environment)
			case rollerrors.IsIdempotentConflict(err):
				// Tasks were already triggered by a previous poll cycle.
				c.logger.Debug("Task runs already exist in stage %s, waiting", stage.Environment)
				c.metrics.RecordConflictSwallowed(req.Plan)
			default:
				return fmt.Errorf("running tasks in stage %s: %w", stage.Environment, err)
			}

		default:
			c.logger.Debug("Stage %d/%d (%s) still in progress", i+1, stageCount, stage.Environment)
		}

		if err := c.sleep(ctx, c.pollInterval); err != nil {
			return err
		}
	}

	// With an explicit target the cursor cannot normally pass it: the target
	// was validated against the preview before the loop started.
	if targetIndex >= 0 {
		return fmt.Errorf("rollout %s ended without stage %s reporting done", rolloutName, req.Target)
	}

	// Run-to-completion mode: every stage reported done.
	return nil
}

func taskNames(tasks []gateway.Task) []string {
	names := make([]string, len(tasks))
	for i, task := range tasks {
		names[i] = task.Name
	}
	return names
}

// sleepContext waits for d or for ctx cancellation, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
