package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/agentcage/cage/internal/runtime"
	"github.com/agentcage/cage/internal/ui"
	"github.com/agentcage/cage/internal/worktree"
)

var worktreeCmd = &cobra.Command{
	Use:   "worktree",
	Short: "Manage sandbox-friendly git worktrees",
	Long: `Worktree manages git worktrees under a stable per-repository directory
outside the repository itself, so a worktree's absolute path is the same on
the host and inside the sandbox and .git references stay valid.`,
}

func worktreeManager() (*worktree.Manager, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	mgr, err := worktree.NewManager(dir)
	if err != nil {
		return nil, err
	}
	// Fail fast outside a repository instead of on the first subcommand.
	if _, err := mgr.GitRoot(); err != nil {
		return nil, err
	}
	return mgr, nil
}

var worktreeAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Create a managed worktree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := worktreeManager()
		if err != nil {
			return err
		}
		branch, _ := cmd.Flags().GetString("branch")
		if branch == "" {
			branch = args[0]
		}
		path, err := mgr.Add(args[0], branch)
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

var worktreeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List managed worktrees for this repository",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := worktreeManager()
		if err != nil {
			return err
		}
		records, err := mgr.Managed()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, r := range records {
			branch := r.Branch
			if r.Detached {
				branch = "(detached)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, branch, r.Path)
		}
		return w.Flush()
	},
}

var worktreeRemoveCmd = &cobra.Command{
	Use:   "remove NAME",
	Short: "Remove a managed worktree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := worktreeManager()
		if err != nil {
			return err
		}
		force, _ := cmd.Flags().GetBool("force")

		// Advisory only: a sandbox with the worktree mounted keeps running
		// either way, but removing the tree under it rarely ends well.
		if path, ok, err := mgr.Lookup(args[0]); err == nil && ok {
			if rt, err := runtime.Select(""); err == nil {
				if worktree.InUse(path, rt.CommandPrefix()) {
					ui.Sink{}.Warnf("worktree %s appears to be mounted in a running sandbox", args[0])
				}
			}
		}

		return mgr.Remove(args[0], force)
	},
}

var worktreeRepairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Repair worktree links after the repository moved",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := worktreeManager()
		if err != nil {
			return err
		}
		moved, err := mgr.Repair()
		if err != nil {
			return err
		}
		for _, path := range moved {
			fmt.Println("moved", path)
		}
		return nil
	},
}

func init() {
	worktreeAddCmd.Flags().String("branch", "", "branch to create (default: worktree name)")
	worktreeRemoveCmd.Flags().BoolP("force", "f", false, "remove even with local modifications")
	worktreeCmd.AddCommand(worktreeAddCmd, worktreeListCmd, worktreeRemoveCmd, worktreeRepairCmd)
	rootCmd.AddCommand(worktreeCmd)
}
