package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/moby/term"
	"github.com/spf13/cobra"

	"github.com/agentcage/cage/internal/clone"
	"github.com/agentcage/cage/internal/config"
	"github.com/agentcage/cage/internal/hostcap"
	"github.com/agentcage/cage/internal/runtime"
	"github.com/agentcage/cage/internal/sandbox"
	"github.com/agentcage/cage/internal/ui"
	"github.com/agentcage/cage/internal/updates"
	"github.com/agentcage/cage/internal/worktree"
)

// session bundles everything a sandbox command needs after setup.
type session struct {
	cfg       config.Config
	caps      hostcap.Capabilities
	runtime   runtime.Runtime
	assembler *sandbox.Assembler
	tty       bool
}

// addSessionFlags registers the capability and isolation flags shared by all
// sandbox-launching commands.
func addSessionFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("runtime", "", "container runtime: podman or docker (default: auto)")
	f.Bool("ssh-agent", false, "forward the SSH agent socket")
	f.Bool("git-config", false, "mount git configuration")
	f.Bool("ai-config", false, "mount agent configuration directories")
	f.Bool("container-socket", false, "mount the container runtime socket")
	f.Bool("clipboard", false, "read-only display socket for clipboard access")
	f.Bool("display", false, "read-write display socket passthrough")
	f.Bool("dbus", false, "mount the session D-Bus socket")
	f.Bool("gpu", false, "pass through GPU render nodes")
	f.Bool("audio", false, "mount audio server sockets")
	f.Bool("forward-api-keys", false, "forward known API key variables")
	f.Bool("readonly-project", false, "mount the project directory read-only")
	f.String("network", "", "network mode: default, none, host, bridge")
	f.String("memory", "", "memory limit, e.g. 8g")
	f.Float64("cpus", 0, "CPU limit")
	f.StringArray("mount", nil, "extra mount SOURCE[:TARGET[:OPTIONS]]")
	f.StringToString("env", nil, "extra environment variable")
}

// collectOverrides turns the flags the user actually set into overrides.
// Unset flags stay nil so config values survive.
func collectOverrides(cmd *cobra.Command) config.Overrides {
	f := cmd.Flags()
	var ov config.Overrides

	strFlag := func(name string, dst **string) {
		if f.Changed(name) {
			v, _ := f.GetString(name)
			*dst = &v
		}
	}
	boolFlag := func(name string, dst **bool) {
		if f.Changed(name) {
			v, _ := f.GetBool(name)
			*dst = &v
		}
	}

	strFlag("runtime", &ov.Runtime)
	boolFlag("ssh-agent", &ov.SSHAgent)
	boolFlag("git-config", &ov.GitConfig)
	boolFlag("ai-config", &ov.AIConfig)
	boolFlag("container-socket", &ov.ContainerSocket)
	boolFlag("clipboard", &ov.Clipboard)
	boolFlag("display", &ov.Display)
	boolFlag("dbus", &ov.DBus)
	boolFlag("gpu", &ov.GPU)
	boolFlag("audio", &ov.Audio)
	boolFlag("forward-api-keys", &ov.ForwardAPIKeys)
	boolFlag("readonly-project", &ov.ReadonlyProject)
	strFlag("network", &ov.NetworkMode)
	strFlag("memory", &ov.Memory)
	if f.Changed("cpus") {
		v, _ := f.GetFloat64("cpus")
		ov.CPUs = &v
	}
	ov.Mounts, _ = f.GetStringArray("mount")
	ov.Env, _ = f.GetStringToString("env")
	return ov
}

// addWorktreeFlag registers the named-worktree session selector. Only
// project-directory sessions get it; clones have no worktree to enter.
func addWorktreeFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("worktree", "w", "", "run in the named managed worktree")
}

// resolveProjectDir picks the session's project directory: the current
// directory, or the named managed worktree when --worktree is given. The
// worktree name resolves through the live git listing, never by path
// construction alone.
func resolveProjectDir(cmd *cobra.Command) (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolving working directory: %w", err)
	}
	name, _ := cmd.Flags().GetString("worktree")
	if name == "" {
		return dir, nil
	}

	mgr, err := worktree.NewManager(dir)
	if err != nil {
		return "", err
	}
	path, found, err := mgr.Lookup(name)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("worktree %q not found; create it with: cage worktree add %s", name, name)
	}
	return path, nil
}

// newSession performs the shared setup: platform check, config load and
// override merge, capability resolution, runtime selection.
func newSession(cmd *cobra.Command, projectDir string) (*session, error) {
	if err := hostcap.CheckSupported(); err != nil {
		return nil, err
	}

	cfg, err := config.Load(projectDir)
	if err != nil {
		return nil, err
	}
	cfg = config.ApplyOverrides(cfg, collectOverrides(cmd))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	caps := hostcap.Resolve()

	rt, err := runtime.Select(cfg.Runtime)
	if err != nil {
		return nil, err
	}

	_, tty := term.GetFdInfo(os.Stdin)

	return &session{
		cfg:       cfg,
		caps:      caps,
		runtime:   rt,
		assembler: sandbox.NewAssembler(cfg, caps, ui.Sink{}),
		tty:       tty,
	}, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM. The container
// child receives the signal through the shared process group; cancellation
// here covers auxiliary commands like pulls and volume cleanup.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}

// maintain runs the periodic pull and tool-upgrade steps when enabled and
// due. Failures warn and continue: a stale image still runs.
func (s *session) maintain(ctx context.Context) {
	if !s.cfg.AutoPullImage && !s.cfg.AutoUpgradeTools {
		return
	}
	store := updates.Load()
	now := time.Now()

	if s.cfg.AutoPullImage && updates.ImagePullDue(store, now) {
		ui.Step("pulling %s", config.Image(&s.cfg))
		if err := runtime.PullImage(ctx, s.runtime, config.Image(&s.cfg)); err != nil {
			ui.Sink{}.Warnf("image pull failed: %v", err)
		} else if store, err = updates.MarkImagePull(store, now); err != nil {
			ui.Sink{}.Warnf("recording image pull: %v", err)
		}
	}

	if s.cfg.AutoUpgradeTools && updates.ToolUpgradeDue(store, now) {
		ui.Step("upgrading sandbox tools")
		if err := s.upgradeTools(ctx); err != nil {
			ui.Sink{}.Warnf("tool upgrade failed: %v", err)
		} else if _, err := updates.MarkToolUpgrade(store, now); err != nil {
			ui.Sink{}.Warnf("recording tool upgrade: %v", err)
		}
	}
}

// upgradeTools runs mise upgrade in a throwaway sandbox sharing the
// persistent tool volumes.
func (s *session) upgradeTools(ctx context.Context) error {
	dir, err := os.Getwd()
	if err != nil {
		return err
	}
	spec, err := s.assembler.Assemble(dir, []string{"mise", "upgrade"}, false, false)
	if err != nil {
		return err
	}
	code, err := s.runtime.Run(ctx, spec)
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("mise upgrade exited with code %d", code)
	}
	return nil
}

// runProject launches a sandbox session in the resolved project directory
// and records the container's exit code.
func runProject(cmd *cobra.Command, command []string) error {
	projectDir, err := resolveProjectDir(cmd)
	if err != nil {
		return err
	}

	s, err := newSession(cmd, projectDir)
	if err != nil {
		return err
	}

	// Concurrent sessions in one worktree are allowed but rarely intended;
	// say so before dropping into the container.
	if name, _ := cmd.Flags().GetString("worktree"); name != "" {
		if worktree.InUse(projectDir, s.runtime.CommandPrefix()) {
			ui.Sink{}.Warnf("worktree %s is already mounted in a running sandbox", name)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	s.maintain(ctx)
	ui.Banner(s.runtime.Name(), config.Image(&s.cfg), projectDir)

	spec, err := s.assembler.Assemble(projectDir, command, s.tty, true)
	if err != nil {
		return err
	}
	ui.Debugf("argv: %s", strings.Join(s.runtime.Build(spec), " "))
	code, err := s.runtime.Run(ctx, spec)
	if err != nil {
		return err
	}
	// The child's exit code propagates as ours, without an extra message:
	// whatever ran inside already reported its failure.
	exitCode = code
	return nil
}

// runClone launches an ephemeral-clone session.
func runClone(cmd *cobra.Command, cloneURL, ref string, command []string) error {
	dir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolving working directory: %w", err)
	}

	s, err := newSession(cmd, dir)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	s.maintain(ctx)
	ui.Banner(s.runtime.Name(), config.Image(&s.cfg), cloneURL)

	orch := &clone.Orchestrator{
		Runtime:   s.runtime,
		Assembler: s.assembler,
		Warn:      ui.Sink{},
	}
	if s.cfg.AutoUpgradeTools {
		orch.Upgrade = s.upgradeTools
	}
	code, err := orch.Run(ctx, cloneURL, ref, command, s.tty, true)
	exitCode = code
	return err
}
