package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/systmms/rollops/internal/config"
	"github.com/systmms/rollops/internal/credential"
)

func NewDoctorCommand(cfg *config.Config) *cobra.Command {
	var skipRemote bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, credential and platform connectivity",
		Long: `Verify that rollops is ready to drive a rollout.

This command checks:
- Configuration file validity
- Credential source configuration and resolution
- Platform reachability and actuator version

Use --skip-remote to stop after the local checks.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			results := make([]checkResult, 0, 3)

			cfg.Logger.Info("Checking rollops configuration...")
			if err := cfg.Load(); err != nil {
				results = append(results, checkResult{Name: "configuration", Status: "error", Message: err.Error()})
				displayCheckResults(results)
				return fmt.Errorf("configuration check failed")
			}
			results = append(results, checkResult{
				Name:    "configuration",
				Status:  "healthy",
				Message: fmt.Sprintf("plan %s on %s", cfg.Definition.Rollout.Plan, cfg.Definition.Platform.BaseURL),
			})

			source, err := credential.New(cfg.Definition.Platform.Credential.SourceConfig())
			if err == nil {
				err = source.Validate()
			}
			switch {
			case err != nil:
				results = append(results, checkResult{Name: "credential", Status: "error", Message: err.Error()})
			case skipRemote:
				results = append(results, checkResult{
					Name:    "credential",
					Status:  "healthy",
					Message: fmt.Sprintf("%s source configured (not resolved)", source.Name()),
				})
			default:
				token, resolveErr := source.Resolve(cmd.Context())
				if resolveErr != nil {
					results = append(results, checkResult{Name: "credential", Status: "error", Message: resolveErr.Error()})
				} else {
					token.Destroy()
					results = append(results, checkResult{
						Name:    "credential",
						Status:  "healthy",
						Message: fmt.Sprintf("resolved via %s source", source.Name()),
					})
				}
			}

			if skipRemote {
				results = append(results, checkResult{Name: "platform", Status: "skipped", Message: "remote checks disabled"})
			} else if credentialHealthy(results) {
				session, err := openPlatform(cmd.Context(), cfg)
				if err != nil {
					results = append(results, checkResult{Name: "platform", Status: "error", Message: err.Error()})
				} else {
					actuator, err := session.Client.ActuatorVersion(cmd.Context())
					session.Close()
					if err != nil {
						results = append(results, checkResult{Name: "platform", Status: "error", Message: err.Error()})
					} else {
						results = append(results, checkResult{
							Name:    "platform",
							Status:  "healthy",
							Message: fmt.Sprintf("actuator version %s", actuator),
						})
					}
				}
			} else {
				results = append(results, checkResult{Name: "platform", Status: "skipped", Message: "no usable credential"})
			}

			displayCheckResults(results)

			healthy := 0
			failed := 0
			for _, result := range results {
				switch result.Status {
				case "healthy":
					healthy++
				case "error":
					failed++
				}
			}
			fmt.Printf("\nSummary: %d/%d checks healthy\n", healthy, len(results))
			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}

			cfg.Logger.Info("✓ Ready to roll")
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipRemote, "skip-remote", false, "Only run local checks")

	return cmd
}

// checkResult is one row of doctor output.
type checkResult struct {
	Name    string
	Status  string // healthy, error, skipped
	Message string
}

func credentialHealthy(results []checkResult) bool {
	for _, result := range results {
		if result.Name == "credential" {
			return result.Status == "healthy"
		}
	}
	return false
}

// displayCheckResults shows check outcomes in a formatted table.
func displayCheckResults(results []checkResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(w, "CHECK\tSTATUS\tMESSAGE\n")
	_, _ = fmt.Fprintf(w, "-----\t------\t-------\n")

	for _, result := range results {
		status := result.Status
		switch result.Status {
		case "healthy":
			status = "✓ " + status
		case "error":
			status = "✗ " + status
		default:
			status = "- " + status
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", result.Name, status, result.Message)
	}

	_ = w.Flush()
}
