package cli

import (
	"github.com/spf13/cobra"
)

var cloneCmd = &cobra.Command{
	Use:   "clone [flags] URL [-- command [args...]]",
	Short: "Work on an ephemeral clone of a repository",
	Long: `Clone clones a repository into a fresh named volume, runs a command (an
interactive shell by default) inside it, and removes the volume when the
session ends. Nothing touches the host filesystem.

The clone step always has network access; the work container follows the
configured network mode.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, _ := cmd.Flags().GetString("ref")
		command := args[1:]
		if len(command) == 0 {
			command = []string{"bash"}
		}
		return runClone(cmd, args[0], ref, command)
	},
}

func init() {
	cloneCmd.Flags().String("ref", "", "branch or tag to clone")
	addSessionFlags(cloneCmd)
	rootCmd.AddCommand(cloneCmd)
}
