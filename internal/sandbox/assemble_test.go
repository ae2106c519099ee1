package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agentcage/cage/internal/config"
	"github.com/agentcage/cage/internal/hostcap"
)

// recordingSink captures warnings for assertions.
type recordingSink struct {
	warnings []string
}

func (s *recordingSink) Warnf(format string, args ...any) {
	s.warnings = append(s.warnings, fmt.Sprintf(format, args...))
}
func (s *recordingSink) Infof(format string, args ...any) {}

// testEnv isolates home, config, and API key variables for assembly tests.
func testEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("CAGE_RUNTIME_IMAGE", "")
	for _, key := range config.APIKeys {
		t.Setenv(key, "")
	}
}

func linuxCaps() hostcap.Capabilities {
	return hostcap.Capabilities{
		Platform:       hostcap.Linux,
		UID:            1000,
		GID:            1000,
		RuntimeSockGID: -1,
		RenderGroup:    -1,
	}
}

func findMount(mounts []Mount, target string) (Mount, bool) {
	// Later entries win on duplicate targets, so scan from the back.
	for i := len(mounts) - 1; i >= 0; i-- {
		if mounts[i].Target == target {
			return mounts[i], true
		}
	}
	return Mount{}, false
}

func TestAssembleBasics(t *testing.T) {
	testEnv(t)
	project := t.TempDir()
	sink := &recordingSink{}

	a := NewAssembler(config.Config{NetworkMode: config.NetworkDefault}, linuxCaps(), sink)
	spec, err := a.Assemble(project, []string{"bash"}, true, true)
	if err != nil {
		t.Fatal(err)
	}

	if spec.User != "1000:1000" {
		t.Errorf("User = %q, want 1000:1000", spec.User)
	}
	if spec.WorkingDir != project {
		t.Errorf("WorkingDir = %q, want project dir", spec.WorkingDir)
	}
	if spec.NetworkMode != "" {
		t.Errorf("NetworkMode = %q, default mode should map to empty", spec.NetworkMode)
	}
	if !spec.Tty || !spec.StdinOpen {
		t.Error("Tty and StdinOpen should carry through")
	}

	m, ok := findMount(spec.Mounts, project)
	if !ok {
		t.Fatal("project directory not mounted")
	}
	if m.ReadOnly || m.Kind != MountBind || m.Source != project {
		t.Errorf("project mount = %+v", m)
	}

	if env := spec.Env; env["CAGE"] != "1" || env["HOME"] != config.SandboxHome || env["PROJECT_PATH"] != project {
		t.Errorf("base env missing markers: %v", env)
	}
}

func TestAssembleNetworkModes(t *testing.T) {
	testEnv(t)
	project := t.TempDir()

	for mode, want := range map[string]string{
		config.NetworkDefault: "",
		config.NetworkNone:    "none",
		config.NetworkHost:    "host",
		config.NetworkBridge:  "bridge",
	} {
		a := NewAssembler(config.Config{NetworkMode: mode}, linuxCaps(), &recordingSink{})
		spec, err := a.Assemble(project, []string{"true"}, false, false)
		if err != nil {
			t.Fatal(err)
		}
		if spec.NetworkMode != want {
			t.Errorf("mode %q: NetworkMode = %q, want %q", mode, spec.NetworkMode, want)
		}
	}
}

func TestAssembleReadonlyProject(t *testing.T) {
	testEnv(t)
	project := t.TempDir()

	a := NewAssembler(config.Config{ReadonlyProject: true}, linuxCaps(), &recordingSink{})
	spec, err := a.Assemble(project, []string{"true"}, false, false)
	if err != nil {
		t.Fatal(err)
	}
	m, ok := findMount(spec.Mounts, project)
	if !ok || !m.ReadOnly {
		t.Errorf("project mount = %+v, want read-only", m)
	}
}

func TestAssembleIdentityFiles(t *testing.T) {
	testEnv(t)
	project := t.TempDir()

	caps := linuxCaps()
	caps.IdentityFiles = true
	a := NewAssembler(config.Config{}, caps, &recordingSink{})
	spec, err := a.Assemble(project, []string{"true"}, false, false)
	if err != nil {
		t.Fatal(err)
	}
	for _, target := range []string{"/etc/passwd", "/etc/group"} {
		m, ok := findMount(spec.Mounts, target)
		if !ok || !m.ReadOnly {
			t.Errorf("%s mount = %+v, want read-only bind", target, m)
		}
	}

	caps.IdentityFiles = false
	a = NewAssembler(config.Config{}, caps, &recordingSink{})
	spec, err = a.Assemble(project, []string{"true"}, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := findMount(spec.Mounts, "/etc/passwd"); ok {
		t.Error("identity files mounted despite capability absence")
	}
}

func TestAssembleSSHAgent(t *testing.T) {
	testEnv(t)
	project := t.TempDir()

	caps := linuxCaps()
	caps.SSHAgent = "/run/user/1000/ssh-agent.sock"
	a := NewAssembler(config.Config{SSHAgent: true}, caps, &recordingSink{})
	spec, err := a.Assemble(project, []string{"true"}, false, false)
	if err != nil {
		t.Fatal(err)
	}

	m, ok := findMount(spec.Mounts, "/ssh-agent")
	if !ok || m.Source != caps.SSHAgent {
		t.Errorf("agent mount = %+v, want source %q", m, caps.SSHAgent)
	}
	if spec.Env["SSH_AUTH_SOCK"] != "/ssh-agent" {
		t.Errorf("SSH_AUTH_SOCK = %q", spec.Env["SSH_AUTH_SOCK"])
	}
	// SSH commit signing is rerouted through the agent.
	if spec.Env["GIT_CONFIG_COUNT"] != "1" ||
		spec.Env["GIT_CONFIG_KEY_0"] != "gpg.ssh.program" ||
		spec.Env["GIT_CONFIG_VALUE_0"] != "ssh-keygen" {
		t.Errorf("git signing env not set: %v", spec.Env)
	}
}

func TestAssembleSSHAgentAbsentWarns(t *testing.T) {
	testEnv(t)
	project := t.TempDir()
	sink := &recordingSink{}

	a := NewAssembler(config.Config{SSHAgent: true}, linuxCaps(), sink)
	spec, err := a.Assemble(project, []string{"true"}, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := findMount(spec.Mounts, "/ssh-agent"); ok {
		t.Error("agent mount present without an agent socket")
	}
	if _, ok := spec.Env["SSH_AUTH_SOCK"]; ok {
		t.Error("SSH_AUTH_SOCK set without an agent socket")
	}
	if len(sink.warnings) == 0 {
		t.Error("expected a warning about the missing agent")
	}
}

func TestAssembleDisplayAndClipboard(t *testing.T) {
	testEnv(t)
	project := t.TempDir()

	caps := linuxCaps()
	caps.HasDisplay = true
	caps.Display = hostcap.Display{
		Kind:           hostcap.DisplayWayland,
		Socket:         "/run/user/1000/wayland-0",
		WaylandDisplay: "wayland-0",
	}

	tests := []struct {
		name         string
		display      bool
		clipboard    bool
		wantMount    bool
		wantReadOnly bool
	}{
		{"neither", false, false, false, false},
		{"clipboard only", false, true, true, true},
		{"display only", true, false, true, false},
		{"both", true, true, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Config{Display: tt.display, Clipboard: tt.clipboard}
			a := NewAssembler(cfg, caps, &recordingSink{})
			spec, err := a.Assemble(project, []string{"true"}, false, false)
			if err != nil {
				t.Fatal(err)
			}
			m, ok := findMount(spec.Mounts, caps.Display.Socket)
			if ok != tt.wantMount {
				t.Fatalf("display mount present = %v, want %v", ok, tt.wantMount)
			}
			if !tt.wantMount {
				return
			}
			if m.ReadOnly != tt.wantReadOnly {
				t.Errorf("display mount ReadOnly = %v, want %v", m.ReadOnly, tt.wantReadOnly)
			}
			count := 0
			for _, mm := range spec.Mounts {
				if mm.Target == caps.Display.Socket {
					count++
				}
			}
			if count != 1 {
				t.Errorf("display socket mounted %d times, want 1", count)
			}
			if spec.Env["WAYLAND_DISPLAY"] != "wayland-0" {
				t.Errorf("WAYLAND_DISPLAY = %q", spec.Env["WAYLAND_DISPLAY"])
			}
			if spec.Env["XDG_RUNTIME_DIR"] != "/run/user/1000" {
				t.Errorf("XDG_RUNTIME_DIR = %q", spec.Env["XDG_RUNTIME_DIR"])
			}
		})
	}
}

func TestAssembleContainerSocketGroup(t *testing.T) {
	testEnv(t)
	project := t.TempDir()

	caps := linuxCaps()
	caps.RuntimeSocket = "/run/podman/podman.sock"
	caps.RuntimeSockGID = 972
	a := NewAssembler(config.Config{ContainerSocket: true}, caps, &recordingSink{})
	spec, err := a.Assemble(project, []string{"true"}, false, false)
	if err != nil {
		t.Fatal(err)
	}

	m, ok := findMount(spec.Mounts, caps.RuntimeSocket)
	if !ok || m.Source != caps.RuntimeSocket {
		t.Errorf("socket mount = %+v, want same-path bind", m)
	}
	if len(spec.Groups) != 1 || spec.Groups[0] != 972 {
		t.Errorf("Groups = %v, want socket group", spec.Groups)
	}

	// The socket GID means nothing off Linux.
	caps.Platform = hostcap.MacOS
	a = NewAssembler(config.Config{ContainerSocket: true}, caps, &recordingSink{})
	spec, err = a.Assemble(project, []string{"true"}, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(spec.Groups) != 0 {
		t.Errorf("Groups = %v, want none on macOS", spec.Groups)
	}
}

func TestAssembleGPU(t *testing.T) {
	testEnv(t)
	project := t.TempDir()

	caps := linuxCaps()
	caps.HasGPU = true
	caps.GPUDevices = []string{"/dev/dri/renderD128"}
	caps.RenderGroup = 105
	a := NewAssembler(config.Config{GPU: true}, caps, &recordingSink{})
	spec, err := a.Assemble(project, []string{"true"}, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(spec.Devices) != 1 || spec.Devices[0] != "/dev/dri/renderD128" {
		t.Errorf("Devices = %v", spec.Devices)
	}
	if len(spec.Groups) != 1 || spec.Groups[0] != 105 {
		t.Errorf("Groups = %v, want render group", spec.Groups)
	}
}

func TestAssembleGroupDedup(t *testing.T) {
	testEnv(t)
	project := t.TempDir()

	caps := linuxCaps()
	caps.RuntimeSocket = "/run/podman/podman.sock"
	caps.RuntimeSockGID = 105
	caps.HasGPU = true
	caps.GPUDevices = []string{"/dev/dri/renderD128"}
	caps.RenderGroup = 105
	a := NewAssembler(config.Config{ContainerSocket: true, GPU: true}, caps, &recordingSink{})
	spec, err := a.Assemble(project, []string{"true"}, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(spec.Groups) != 1 {
		t.Errorf("Groups = %v, want the shared GID once", spec.Groups)
	}
}

func TestAssembleForwardAPIKeys(t *testing.T) {
	testEnv(t)
	project := t.TempDir()
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	a := NewAssembler(config.Config{}, linuxCaps(), &recordingSink{})
	spec, err := a.Assemble(project, []string{"true"}, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := spec.Env["ANTHROPIC_API_KEY"]; ok {
		t.Error("API key forwarded without forward_api_keys")
	}

	a = NewAssembler(config.Config{ForwardAPIKeys: true}, linuxCaps(), &recordingSink{})
	spec, err = a.Assemble(project, []string{"true"}, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if spec.Env["ANTHROPIC_API_KEY"] != "sk-test" {
		t.Error("API key not forwarded with forward_api_keys enabled")
	}
}

func TestAssembleUserMountsLast(t *testing.T) {
	testEnv(t)
	project := t.TempDir()

	cfg := config.Config{Mounts: []string{project + ":" + project + ":ro"}}
	a := NewAssembler(cfg, linuxCaps(), &recordingSink{})
	spec, err := a.Assemble(project, []string{"true"}, false, false)
	if err != nil {
		t.Fatal(err)
	}

	// The user's read-only remount of the project must come after the
	// automatic read-write one so last-wins makes it effective.
	last := spec.Mounts[len(spec.Mounts)-1]
	if last.Target != project || !last.ReadOnly {
		t.Errorf("last mount = %+v, want the user's read-only project mount", last)
	}
}

func TestAssembleUserEnvWins(t *testing.T) {
	testEnv(t)
	project := t.TempDir()

	cfg := config.Config{Env: map[string]string{"HOME": "/custom-home", "EXTRA": "1"}}
	a := NewAssembler(cfg, linuxCaps(), &recordingSink{})
	spec, err := a.Assemble(project, []string{"true"}, false, false)
	if err != nil {
		t.Fatal(err)
	}
	if spec.Env["HOME"] != "/custom-home" || spec.Env["EXTRA"] != "1" {
		t.Errorf("user env did not win: %v", spec.Env)
	}
}

func TestAssembleMiseVolumes(t *testing.T) {
	testEnv(t)
	project := t.TempDir()

	a := NewAssembler(config.Config{}, linuxCaps(), &recordingSink{})
	spec, err := a.Assemble(project, []string{"true"}, false, false)
	if err != nil {
		t.Fatal(err)
	}

	m, ok := findMount(spec.Mounts, config.SandboxHome+"/.local/share/mise")
	if !ok || m.Kind != MountVolume || m.Source != config.MiseDataVolume {
		t.Errorf("mise data mount = %+v", m)
	}
	m, ok = findMount(spec.Mounts, config.SandboxHome+"/.cache")
	if !ok || m.Kind != MountVolume || m.Source != config.CacheVolume {
		t.Errorf("cache mount = %+v", m)
	}
	if _, ok := findMount(spec.Mounts, config.SandboxHome+"/.config/mise/config.toml"); !ok {
		t.Error("mise config not bind-mounted")
	}
	if spec.Env["MISE_TRUSTED_CONFIG_PATHS"] != project || spec.Env["MISE_YES"] != "1" {
		t.Errorf("mise env missing: %v", spec.Env)
	}
}

func TestAssembleCloneAlwaysNetworked(t *testing.T) {
	testEnv(t)

	a := NewAssembler(config.Config{NetworkMode: config.NetworkNone}, linuxCaps(), &recordingSink{})
	spec := a.AssembleClone("https://github.com/user/repo.git", "vol", "repo", "")

	if spec.NetworkMode != "" {
		t.Errorf("clone NetworkMode = %q, clone must keep network access", spec.NetworkMode)
	}
	if got := strings.Join(spec.Command, " "); got != "git clone --depth 1 https://github.com/user/repo.git /workspace/repo" {
		t.Errorf("clone command = %q", got)
	}
	m, ok := findMount(spec.Mounts, config.CloneWorkspace)
	if !ok || m.Kind != MountVolume || m.Source != "vol" {
		t.Errorf("workspace mount = %+v", m)
	}
}

func TestAssembleCloneWithRef(t *testing.T) {
	testEnv(t)

	a := NewAssembler(config.Config{}, linuxCaps(), &recordingSink{})
	spec := a.AssembleClone("https://github.com/user/repo.git", "vol", "repo", "v1.2")
	got := strings.Join(spec.Command, " ")
	if !strings.Contains(got, "--branch v1.2") {
		t.Errorf("clone command = %q, want --branch v1.2", got)
	}
}

func TestAssembleCloneWork(t *testing.T) {
	testEnv(t)

	a := NewAssembler(config.Config{NetworkMode: config.NetworkNone}, linuxCaps(), &recordingSink{})
	spec, err := a.AssembleCloneWork("vol", "repo", []string{"bash"}, true, true)
	if err != nil {
		t.Fatal(err)
	}
	if spec.WorkingDir != config.CloneWorkspace+"/repo" {
		t.Errorf("WorkingDir = %q", spec.WorkingDir)
	}
	// The work container honors the configured isolation, unlike the clone.
	if spec.NetworkMode != "none" {
		t.Errorf("NetworkMode = %q, want none", spec.NetworkMode)
	}
	m, ok := findMount(spec.Mounts, config.CloneWorkspace)
	if !ok || m.Source != "vol" {
		t.Errorf("workspace mount = %+v", m)
	}
}

func TestEnsureMiseConfigIdempotent(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	sink := &recordingSink{}

	path, err := EnsureMiseConfig(sink)
	if err != nil {
		t.Fatal(err)
	}
	custom := []byte("[tools]\nnode = \"22\"\n")
	if err := os.WriteFile(path, custom, 0o644); err != nil {
		t.Fatal(err)
	}

	again, err := EnsureMiseConfig(sink)
	if err != nil {
		t.Fatal(err)
	}
	if again != path {
		t.Errorf("path changed: %q vs %q", again, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(custom) {
		t.Error("existing mise config was overwritten")
	}
	if filepath.Dir(path) == "" {
		t.Error("unexpected empty config dir")
	}
}
