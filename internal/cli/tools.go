package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentcage/cage/internal/config"
)

// Tool shortcuts run a known agent CLI in the sandbox. Inside the sandbox
// the agent's own permission prompts only guard an already-contained
// process, so each shortcut passes the agent's auto-approve flag unless
// --no-yolo asks for stock behavior.
func newToolCommand(tool string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   fmt.Sprintf("%s [flags] [-- %s-args...]", tool, tool),
		Short: fmt.Sprintf("Run %s in the sandbox", tool),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := []string{tool}
			if noYolo, _ := cmd.Flags().GetBool("no-yolo"); !noYolo {
				command = append(command, config.ToolYoloFlags[tool]...)
			}
			command = append(command, args...)
			return runProject(cmd, command)
		},
	}
	cmd.Flags().Bool("no-yolo", false, "keep the agent's own permission prompts")
	addSessionFlags(cmd)
	addWorktreeFlag(cmd)
	return cmd
}

func init() {
	for _, tool := range config.ToolShortcuts {
		rootCmd.AddCommand(newToolCommand(tool))
	}
}
