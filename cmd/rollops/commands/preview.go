package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/systmms/rollops/internal/config"
	"github.com/systmms/rollops/internal/gateway"
)

func NewPreviewCommand(cfg *config.Config) *cobra.Command {
	var (
		planRef    string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show the stage topology a rollout would have",
		Long: `Ask the platform for a dry-run of the configured delivery plan and print
the resulting stage topology. Nothing is created or stored; the platform
assigns no rollout name to a preview.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}
			def := cfg.Definition
			if planRef != "" {
				def.Rollout.Plan = planRef
				if err := def.Validate(); err != nil {
					return err
				}
			}

			session, err := openPlatform(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer session.Close()

			spec := gateway.RolloutSpec{Plan: def.Rollout.Plan, Title: def.Rollout.Title}
			preview, err := session.Client.CreateRollout(cmd.Context(), def.Project(), spec, gateway.CreateOptions{ValidateOnly: true})
			if err != nil {
				return fmt.Errorf("previewing rollout for %s: %w", def.Rollout.Plan, err)
			}

			if jsonOutput {
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(preview)
			}

			printTopology(os.Stdout, def.Rollout.Plan, preview)
			return nil
		},
	}

	cmd.Flags().StringVar(&planRef, "plan", "", "Delivery plan reference (overrides config)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the preview as JSON")

	return cmd
}

// printTopology renders the previewed stages as a table.
func printTopology(out io.Writer, plan string, preview *gateway.Rollout) {
	fmt.Fprintf(out, "Plan %s expands to %d stage(s):\n\n", plan, len(preview.Stages))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "#\tENVIRONMENT\tTASKS\n")
	_, _ = fmt.Fprintf(w, "-\t-----------\t-----\n")
	for i, stage := range preview.Stages {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%d\n", i+1, stage.Environment, len(stage.Tasks))
	}
	_ = w.Flush()
}
