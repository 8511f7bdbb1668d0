package commands

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/systmms/rollops/internal/config"
	"github.com/systmms/rollops/internal/logging"
)

func TestCompletionCommand_GeneratesScripts(t *testing.T) {
	shells := []string{"bash", "zsh", "fish", "powershell"}

	for _, shell := range shells {
		t.Run(shell, func(t *testing.T) {
			cfg := &config.Config{Logger: logging.New(false, true)}

			root := &cobra.Command{Use: "rollops"}
			root.AddCommand(NewCompletionCommand(cfg))
			root.SetArgs([]string{"completion", shell})

			output := captureStdout(t, root, nil)
			assert.NotEmpty(t, output)
		})
	}
}

func TestCompletionCommand_RejectsUnknownShell(t *testing.T) {
	cfg := &config.Config{Logger: logging.New(false, true)}

	root := &cobra.Command{Use: "rollops"}
	root.AddCommand(NewCompletionCommand(cfg))
	root.SetArgs([]string{"completion", "tcsh"})

	assert.Error(t, root.Execute())
}
