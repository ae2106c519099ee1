package sandbox

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentcage/cage/internal/config"
	"github.com/agentcage/cage/internal/hostcap"
	"github.com/agentcage/cage/internal/worktree"
)

// Assembler builds Specifications from a config and a capability snapshot.
// It performs no probing of its own; everything host-dependent comes in
// through the snapshot, so assembly is deterministic for a given input.
type Assembler struct {
	cfg  config.Config
	caps hostcap.Capabilities
	warn WarningSink
}

// NewAssembler returns an assembler over the given config and capabilities.
func NewAssembler(cfg config.Config, caps hostcap.Capabilities, warn WarningSink) *Assembler {
	return &Assembler{cfg: cfg, caps: caps, warn: warn}
}

// Assemble produces the specification for a project-directory session.
func (a *Assembler) Assemble(projectDir string, command []string, tty, stdinOpen bool) (Specification, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Specification{}, fmt.Errorf("resolving home directory: %w", err)
	}

	mounts, groups, devices, err := a.buildMounts(projectDir, home)
	if err != nil {
		return Specification{}, err
	}

	return Specification{
		Image:       config.Image(&a.cfg),
		Command:     command,
		WorkingDir:  projectDir,
		User:        fmt.Sprintf("%d:%d", a.caps.UID, a.caps.GID),
		Env:         a.buildEnv(projectDir),
		Mounts:      mounts,
		NetworkMode: networkMode(a.cfg.NetworkMode),
		PidMode:     a.cfg.PidMode,
		Tty:         tty,
		StdinOpen:   stdinOpen,
		Groups:      groups,
		Devices:     devices,
		Resources:   a.cfg.Resources,
	}, nil
}

// AssembleClone produces the specification for the clone step of an
// ephemeral-clone session. The clone container always has network access,
// whatever the session's isolation settings: a repository cannot be fetched
// without it.
func (a *Assembler) AssembleClone(cloneURL, volume, repoName, ref string) Specification {
	var mounts []Mount
	if a.caps.IdentityFiles {
		mounts = append(mounts,
			bindMountRO("/etc/passwd", "/etc/passwd"),
			bindMountRO("/etc/group", "/etc/group"),
		)
	}
	mounts = append(mounts, volumeMount(volume, config.CloneWorkspace))
	if a.cfg.SSHAgent {
		mounts = a.addSSHAgent(mounts)
	}

	env := map[string]string{"HOME": config.SandboxHome}
	if a.cfg.SSHAgent && a.caps.SSHAgent != "" {
		env["SSH_AUTH_SOCK"] = "/ssh-agent"
	}
	if term := os.Getenv("TERM"); term != "" {
		env["TERM"] = term
	}

	cloneCmd := []string{"git", "clone", "--depth", "1"}
	if ref != "" {
		cloneCmd = append(cloneCmd, "--branch", ref)
	}
	cloneCmd = append(cloneCmd, cloneURL, config.CloneWorkspace+"/"+repoName)

	return Specification{
		Image:      config.Image(&a.cfg),
		Command:    cloneCmd,
		WorkingDir: config.CloneWorkspace,
		User:       fmt.Sprintf("%d:%d", a.caps.UID, a.caps.GID),
		Env:        env,
		Mounts:     mounts,
		Resources:  a.cfg.Resources,
	}
}

// AssembleCloneWork produces the specification for the work container of an
// ephemeral-clone session, running inside the previously cloned volume.
func (a *Assembler) AssembleCloneWork(volume, repoName string, command []string, tty, stdinOpen bool) (Specification, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Specification{}, fmt.Errorf("resolving home directory: %w", err)
	}
	workingDir := config.CloneWorkspace + "/" + repoName

	var mounts []Mount
	var groups []int
	var devices []string
	if a.caps.IdentityFiles {
		mounts = append(mounts,
			bindMountRO("/etc/passwd", "/etc/passwd"),
			bindMountRO("/etc/group", "/etc/group"),
		)
	}
	mounts = append(mounts, volumeMount(volume, config.CloneWorkspace))
	mounts, groups, devices, err = a.addOptionalMounts(mounts, groups, devices, home)
	if err != nil {
		return Specification{}, err
	}
	for _, spec := range a.cfg.Mounts {
		mounts = append(mounts, ParseMountSpec(spec, workingDir))
	}

	return Specification{
		Image:       config.Image(&a.cfg),
		Command:     command,
		WorkingDir:  workingDir,
		User:        fmt.Sprintf("%d:%d", a.caps.UID, a.caps.GID),
		Env:         a.buildEnv(workingDir),
		Mounts:      mounts,
		NetworkMode: networkMode(a.cfg.NetworkMode),
		PidMode:     a.cfg.PidMode,
		Tty:         tty,
		StdinOpen:   stdinOpen,
		Groups:      groups,
		Devices:     devices,
		Resources:   a.cfg.Resources,
	}, nil
}

func networkMode(mode string) string {
	if mode == "" || mode == config.NetworkDefault {
		return ""
	}
	return mode
}

func (a *Assembler) buildMounts(projectDir, home string) ([]Mount, []int, []string, error) {
	var mounts []Mount
	var groups []int
	var devices []string

	// Identity passthrough so the mapped user resolves inside the sandbox.
	// Linux only: Docker Desktop's VM handles identity differently.
	if a.caps.IdentityFiles {
		mounts = append(mounts,
			bindMountRO("/etc/passwd", "/etc/passwd"),
			bindMountRO("/etc/group", "/etc/group"),
		)
	}

	mounts, skipProject := a.addWorktreeMounts(mounts, projectDir)
	if !skipProject {
		mounts = append(mounts, Mount{
			Source:   projectDir,
			Target:   projectDir,
			Kind:     MountBind,
			ReadOnly: a.cfg.ReadonlyProject,
		})
	}

	var err error
	mounts, groups, devices, err = a.addOptionalMounts(mounts, groups, devices, home)
	if err != nil {
		return nil, nil, nil, err
	}

	// User-supplied mounts come last so they win over automatic ones at the
	// same target.
	for _, spec := range a.cfg.Mounts {
		mounts = append(mounts, ParseMountSpec(spec, projectDir))
	}

	return mounts, groups, devices, nil
}

// addWorktreeMounts resolves the project/worktree mount decision and reports
// whether the direct project mount should be suppressed.
//
// For a worktree session (project dir inside the managed workspace area) the
// main repository's .git directory is mounted read-write — the shared object
// store, refs, and worktree lock files live there — and the workspace root is
// mounted with the caller's read-only preference. The project dir itself is
// already covered by the workspace root; mounting it again under a different
// read-only policy would only invite ordering conflicts.
//
// For a normal session the workspace root is still mounted when it exists, so
// sibling worktrees stay visible and git inside the sandbox does not flag
// them as prunable.
func (a *Assembler) addWorktreeMounts(mounts []Mount, projectDir string) ([]Mount, bool) {
	mgr, err := worktree.NewManager(projectDir)
	if err != nil {
		return mounts, false
	}
	mainRepo, err := mgr.MainRepoRoot()
	if err != nil {
		return mounts, false
	}
	base, err := mgr.BaseDir()
	if err != nil {
		return mounts, false
	}
	resolvedBase := worktree.ResolvePath(base)

	contained, err := mgr.Contains(projectDir)
	if err == nil && contained {
		gitDir := filepath.Join(mainRepo, ".git")
		mounts = append(mounts, bindMount(gitDir, gitDir))
		mounts = append(mounts, Mount{
			Source:   resolvedBase,
			Target:   resolvedBase,
			Kind:     MountBind,
			ReadOnly: a.cfg.ReadonlyProject,
		})
		return mounts, true
	}

	if _, err := os.Stat(resolvedBase); err == nil {
		mounts = append(mounts, Mount{
			Source:   resolvedBase,
			Target:   resolvedBase,
			Kind:     MountBind,
			ReadOnly: a.cfg.ReadonlyProject,
		})
	}
	return mounts, false
}

func (a *Assembler) addOptionalMounts(mounts []Mount, groups []int, devices []string, home string) ([]Mount, []int, []string, error) {
	if a.cfg.GitConfig {
		mounts = a.addConfigMounts(mounts, home, []string{".gitconfig", ".config/git"})
	}

	if a.cfg.AIConfig {
		mounts = a.addConfigMounts(mounts, home, []string{
			".claude",
			".claude.json",
			".codex",
			".gemini",
			".config/opencode",
			".local/share/opencode",
		})
		// The IDE lock directory stays read-only so the sandbox cannot
		// delete lock files out from under a host editor.
		ideDir := filepath.Join(home, ".claude", "ide")
		if _, err := os.Stat(ideDir); err == nil {
			mounts = append(mounts, bindMountRO(ideDir, config.SandboxHome+"/.claude/ide"))
		}
	}

	if a.cfg.SSHAgent {
		mounts = a.addSSHAgent(mounts)
	}

	if a.cfg.ContainerSocket {
		mounts, groups = a.addContainerSocket(mounts, groups)
	}

	mounts = a.addDisplaySockets(mounts)

	if a.cfg.DBus {
		mounts = a.addDBusSocket(mounts)
	}

	if a.cfg.GPU {
		devices, groups = a.addGPU(devices, groups)
	}

	if a.cfg.Audio {
		mounts = a.addAudioSockets(mounts)
	}

	mounts, err := a.addMiseSupport(mounts)
	if err != nil {
		return nil, nil, nil, err
	}
	return mounts, groups, devices, nil
}

func (a *Assembler) addConfigMounts(mounts []Mount, home string, configs []string) []Mount {
	for _, rel := range configs {
		src := filepath.Join(home, rel)
		if _, err := os.Stat(src); err == nil {
			mounts = append(mounts, bindMount(src, config.SandboxHome+"/"+rel))
		}
	}
	return mounts
}

func (a *Assembler) addSSHAgent(mounts []Mount) []Mount {
	if a.caps.SSHAgent == "" {
		a.warn.Warnf("SSH agent socket not found, skipping SSH agent")
		return mounts
	}
	return append(mounts, bindMount(a.caps.SSHAgent, "/ssh-agent"))
}

func (a *Assembler) addContainerSocket(mounts []Mount, groups []int) ([]Mount, []int) {
	sock := a.caps.RuntimeSocket
	if sock == "" {
		a.warn.Warnf("no container socket found, docker/podman won't work inside the sandbox")
		return mounts, groups
	}
	// Same path inside and out so the docker/podman CLI works unchanged.
	mounts = append(mounts, bindMount(sock, sock))
	// The socket group only means something on Linux; a GID from Docker
	// Desktop's VM is useless on the host.
	if a.caps.Platform.IsLinux() && a.caps.RuntimeSockGID >= 0 {
		groups = appendGroup(groups, a.caps.RuntimeSockGID)
	}
	return mounts, groups
}

// addDisplaySockets handles both the display and clipboard flags. Display
// requests the socket read-write; clipboard-only requests it read-only. When
// both are set the read-write mount wins and no duplicate is added.
func (a *Assembler) addDisplaySockets(mounts []Mount) []Mount {
	if !a.cfg.Display && !a.cfg.Clipboard {
		return mounts
	}
	if !a.caps.HasDisplay {
		if a.caps.Platform == hostcap.MacOS {
			a.warn.Warnf("display passthrough is not supported on macOS (no display server sockets)")
		} else {
			a.warn.Warnf("no display server detected, display/clipboard won't work inside the sandbox")
		}
		return mounts
	}

	d := a.caps.Display
	mounts = append(mounts, Mount{
		Source:   d.Socket,
		Target:   d.Socket,
		Kind:     MountBind,
		ReadOnly: !a.cfg.Display,
	})
	if d.Kind == hostcap.DisplayX11 && d.Authority != "" {
		mounts = append(mounts, bindMountRO(d.Authority, d.Authority))
	}
	return mounts
}

func (a *Assembler) addDBusSocket(mounts []Mount) []Mount {
	if a.caps.DBusUnsupported != "" {
		a.warn.Warnf("%s", a.caps.DBusUnsupported)
		return mounts
	}
	if a.caps.DBus == "" {
		a.warn.Warnf("no session D-Bus socket found, skipping D-Bus")
		return mounts
	}
	return append(mounts, bindMount(a.caps.DBus, a.caps.DBus))
}

func (a *Assembler) addGPU(devices []string, groups []int) ([]string, []int) {
	if !a.caps.HasGPU {
		a.warn.Warnf("no GPU render nodes found, skipping GPU")
		return devices, groups
	}
	devices = append(devices, a.caps.GPUDevices...)
	if a.caps.RenderGroup >= 0 {
		groups = appendGroup(groups, a.caps.RenderGroup)
	}
	return devices, groups
}

func (a *Assembler) addAudioSockets(mounts []Mount) []Mount {
	if len(a.caps.Audio) == 0 {
		a.warn.Warnf("no audio sockets found, skipping audio")
		return mounts
	}
	for _, sock := range a.caps.Audio {
		mounts = append(mounts, bindMount(sock.Path, sock.Path))
	}
	return mounts
}

func (a *Assembler) addMiseSupport(mounts []Mount) ([]Mount, error) {
	mounts = append(mounts,
		volumeMount(config.MiseDataVolume, config.SandboxHome+"/.local/share/mise"),
		volumeMount(config.CacheVolume, config.SandboxHome+"/.cache"),
	)
	path, err := EnsureMiseConfig(a.warn)
	if err != nil {
		return nil, err
	}
	return append(mounts, bindMount(path, config.SandboxHome+"/.config/mise/config.toml")), nil
}

func appendGroup(groups []int, gid int) []int {
	for _, g := range groups {
		if g == gid {
			return groups
		}
	}
	return append(groups, gid)
}
