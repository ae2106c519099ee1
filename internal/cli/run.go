package cli

import (
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] -- command [args...]",
	Short: "Run a command in the sandbox",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProject(cmd, args)
	},
}

var shellCmd = &cobra.Command{
	Use:   "shell [flags]",
	Short: "Start an interactive shell in the sandbox",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProject(cmd, []string{"bash"})
	},
}

func init() {
	addSessionFlags(runCmd)
	addWorktreeFlag(runCmd)
	addSessionFlags(shellCmd)
	addWorktreeFlag(shellCmd)
	rootCmd.AddCommand(runCmd, shellCmd)
}
