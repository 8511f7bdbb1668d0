package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/systmms/rollops/internal/config"
	"github.com/systmms/rollops/internal/rollout"
)

// cancelGrace bounds the best-effort batch-cancel issued after an interrupt.
// The process must still exit promptly even if the platform is slow.
const cancelGrace = 10 * time.Second

// releaseOverrides holds the flag values that take precedence over the
// configuration file.
type releaseOverrides struct {
	plan         string
	target       string
	title        string
	reason       string
	pollInterval time.Duration
}

// apply folds the flag overrides into the loaded definition and re-validates.
func (o releaseOverrides) apply(def *config.Definition) error {
	if o.plan != "" {
		def.Rollout.Plan = o.plan
	}
	if o.target != "" {
		def.Rollout.Target = o.target
	}
	if o.title != "" {
		def.Rollout.Title = o.title
	}
	if o.reason != "" {
		def.Rollout.Reason = o.reason
	}
	if o.pollInterval > 0 {
		def.Rollout.PollInterval = config.Duration(o.pollInterval)
	}
	return def.Validate()
}

func NewReleaseCommand(cfg *config.Config) *cobra.Command {
	var (
		overrides        releaseOverrides
		metricsPort      int
		skipVersionCheck bool
	)

	cmd := &cobra.Command{
		Use:   "release",
		Short: "Create a rollout and advance it stage by stage",
		Long: `Create a rollout from the configured delivery plan and drive it to done.

The rollout is previewed first, then created empty and extended one stage at
a time. Tasks in each stage are batch-run and polled until the stage reports
done; with --target the progression stops once that stage is done, otherwise
it runs the whole pipeline.

SIGINT or SIGTERM stops the progression and issues a best-effort cancel of
the task runs still pending or running.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}
			def := cfg.Definition
			if err := overrides.apply(def); err != nil {
				return err
			}

			session, err := openPlatform(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer session.Close()

			if !skipVersionCheck {
				actuator, err := session.Client.ActuatorVersion(cmd.Context())
				if err != nil {
					return fmt.Errorf("actuator preflight failed: %w", err)
				}
				cfg.Logger.Debug("Platform actuator version %s", actuator)
			}

			if metricsPort == 0 {
				metricsPort = def.Metrics.Port
			}
			if metricsPort > 0 {
				serverCfg := rollout.DefaultMetricsServerConfig()
				serverCfg.Enabled = true
				serverCfg.Port = metricsPort

				server := rollout.NewMetricsServer(serverCfg)
				if err := server.Start(); err != nil {
					return fmt.Errorf("starting metrics server: %w", err)
				}
				defer func() {
					shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
					defer done()
					_ = server.Stop(shutdownCtx)
				}()
				cfg.Logger.Info("Serving metrics on %s", server.Addr())
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				select {
				case sig := <-sigCh:
					cfg.Logger.Warn("Received %s, stopping rollout", sig)
					cancel()
				case <-ctx.Done():
				}
			}()

			handle := &rollout.Handle{}
			controller := rollout.NewController(session.Client, cfg.Logger, def.PollEvery())

			req := rollout.Request{
				Project: def.Project(),
				Plan:    def.Rollout.Plan,
				Target:  def.Rollout.Target,
				Title:   def.Rollout.Title,
				Reason:  def.Rollout.Reason,
			}

			err = controller.Run(ctx, req, handle)
			if err != nil && errors.Is(err, context.Canceled) {
				// The interrupt aborted the loop; try to stop what the
				// platform already has in flight before exiting.
				cancelCtx, done := context.WithTimeout(context.Background(), cancelGrace)
				defer done()
				rollout.NewCanceler(session.Client, cfg.Logger).Cancel(cancelCtx, handle)
				return fmt.Errorf("rollout interrupted: %w", err)
			}
			if err != nil {
				return err
			}

			cfg.Logger.Info("Rollout %s completed", handle.Get())
			return nil
		},
	}

	cmd.Flags().StringVar(&overrides.plan, "plan", "", "Delivery plan reference (overrides config)")
	cmd.Flags().StringVar(&overrides.target, "target", "", "Stop once this stage environment is done")
	cmd.Flags().StringVar(&overrides.title, "title", "", "Rollout title")
	cmd.Flags().StringVar(&overrides.reason, "reason", "", "Audit reason attached to task runs")
	cmd.Flags().DurationVar(&overrides.pollInterval, "poll-interval", 0, "Delay between status polls")
	cmd.Flags().IntVar(&metricsPort, "metrics-port", 0, "Serve Prometheus metrics on this port")
	cmd.Flags().BoolVar(&skipVersionCheck, "skip-version-check", false, "Skip the actuator version preflight")

	return cmd
}
