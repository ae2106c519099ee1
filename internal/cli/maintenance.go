package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentcage/cage/internal/config"
	"github.com/agentcage/cage/internal/runtime"
	"github.com/agentcage/cage/internal/updates"
)

var pullImageCmd = &cobra.Command{
	Use:   "pull-image",
	Short: "Pull the sandbox image now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := os.Getwd()
		if err != nil {
			return err
		}
		cfg, err := config.Load(dir)
		if err != nil {
			return err
		}
		rt, err := runtime.Select(cfg.Runtime)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()
		if err := runtime.PullImage(ctx, rt, config.Image(&cfg)); err != nil {
			return err
		}
		_, err = updates.MarkImagePull(updates.Load(), time.Now())
		return err
	},
}

var upgradeToolsCmd = &cobra.Command{
	Use:   "upgrade-tools",
	Short: "Upgrade mise-managed tools in the persistent tool volume",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := os.Getwd()
		if err != nil {
			return err
		}
		s, err := newSession(cmd, dir)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()
		if err := s.upgradeTools(ctx); err != nil {
			return err
		}
		_, err = updates.MarkToolUpgrade(updates.Load(), time.Now())
		return err
	},
}

var resetVolumesCmd = &cobra.Command{
	Use:   "reset-volumes",
	Short: "Remove the persistent tool and cache volumes",
	Long: `Reset-volumes removes the named volumes holding installed tools and
caches. They are recreated empty on the next session, which reinstalls the
default tool set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := os.Getwd()
		if err != nil {
			return err
		}
		cfg, err := config.Load(dir)
		if err != nil {
			return err
		}
		rt, err := runtime.Select(cfg.Runtime)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()
		for _, vol := range []string{config.MiseDataVolume, config.CacheVolume} {
			if err := runtime.RemoveVolume(ctx, rt, vol, true); err != nil {
				return err
			}
			fmt.Println("removed", vol)
		}
		return nil
	},
}

func init() {
	addSessionFlags(upgradeToolsCmd)
	rootCmd.AddCommand(pullImageCmd, upgradeToolsCmd, resetVolumesCmd)
}
