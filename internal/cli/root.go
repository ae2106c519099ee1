// Package cli wires the cobra command tree: sandbox sessions, ephemeral
// clones, worktree management, and maintenance commands.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/agentcage/cage/internal/ui"
)

var exitCode int

var rootCmd = &cobra.Command{
	Use:   "cage",
	Short: "Run coding agents in a container sandbox",
	Long: `Cage runs coding agents and shells in an isolated container sandbox.
The project directory is mounted in, host capabilities (SSH agent, display,
GPU, audio) are passed through only when enabled, and git worktrees keep
their host paths so embedded absolute paths stay valid.

Examples:
  cage claude                       # Claude Code in a sandbox, auto-approved
  cage run -- make test             # one-off command in the sandbox
  cage shell                        # interactive shell
  cage clone https://github.com/o/r # ephemeral clone, removed on exit
  cage worktree add fix-parser      # managed worktree with a stable path`,
	SilenceUsage: true,
}

// Execute runs the command tree and returns the process exit code. Sandbox
// sessions propagate the container's exit code through here.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		if exitCode == 0 {
			exitCode = 1
		}
	}
	return exitCode
}

func init() {
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")
	cobra.OnInitialize(func() {
		verbose, _ := rootCmd.PersistentFlags().GetBool("verbose")
		ui.SetVerbose(verbose)
	})
}
